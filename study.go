package stackview

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/stackview/loader"
)

// ImageRef is one image of a study.
//
// URL is the full-quality image. Tiers optionally lists lower-quality
// variants; when it is empty the image is loaded in a single step from URL.
type ImageRef struct {
	Index int                `yaml:"-"`
	URL   string             `yaml:"url"`
	Name  string             `yaml:"name,omitempty"`
	Tiers []loader.Candidate `yaml:"tiers,omitempty"`
}

// Candidates returns the tiers to load for the image, always including URL
// as the high tier.
func (r ImageRef) Candidates() []loader.Candidate {
	out := make([]loader.Candidate, 0, len(r.Tiers)+1)
	hasURL := false
	for _, c := range r.Tiers {
		if c.URL == "" {
			continue
		}
		if c.URL == r.URL {
			hasURL = true
		}
		out = append(out, c)
	}
	if !hasURL && r.URL != "" {
		out = append(out, loader.Candidate{URL: r.URL, Tier: loader.TierHigh})
	}
	return out
}

// tierOf returns the tier url is listed under, or TierHigh.
func (r ImageRef) tierOf(url string) loader.Tier {
	for _, c := range r.Tiers {
		if c.URL == url {
			return c.Tier
		}
	}
	return loader.TierHigh
}

// Study is an ordered stack of images viewed together, such as the slices
// of one scan.
type Study struct {
	Name   string     `yaml:"name"`
	Images []ImageRef `yaml:"images"`
}

// NewStudy builds a study from image URLs in display order.
func NewStudy(name string, urls ...string) *Study {
	s := &Study{Name: name, Images: make([]ImageRef, len(urls))}
	for i, u := range urls {
		s.Images[i] = ImageRef{Index: i, URL: u}
	}
	return s
}

// Len returns the number of images.
func (s *Study) Len() int { return len(s.Images) }

// ParseStudy decodes a YAML study manifest:
//
//	name: Chest CT
//	images:
//	  - url: https://pacs.example.org/ct/001.jpg
//	    tiers:
//	      - {url: https://pacs.example.org/ct/001-low.jpg, tier: low}
//	  - url: https://pacs.example.org/ct/002.jpg
//
// Every tier entry must name its tier.
func ParseStudy(r io.Reader) (*Study, error) {
	var s Study
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if err == io.EOF {
			return nil, ErrEmptyStudy
		}
		return nil, fmt.Errorf("stackview: parse study: %w", err)
	}
	for i := range s.Images {
		if s.Images[i].URL == "" {
			return nil, fmt.Errorf("stackview: image %d has no url", i)
		}
		s.Images[i].Index = i
	}
	if len(s.Images) == 0 {
		return nil, ErrEmptyStudy
	}
	return &s, nil
}

// LoadStudy reads a manifest from path. Relative image paths are resolved
// against the manifest's directory.
func LoadStudy(path string) (*Study, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("stackview: load study: %w", err)
	}
	s, err := ParseStudy(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	for i := range s.Images {
		img := &s.Images[i]
		img.URL = resolve(dir, img.URL)
		for j := range img.Tiers {
			img.Tiers[j].URL = resolve(dir, img.Tiers[j].URL)
		}
	}
	return s, nil
}

func resolve(dir, u string) string {
	if strings.Contains(u, "://") || filepath.IsAbs(u) {
		return u
	}
	return filepath.Join(dir, u)
}
