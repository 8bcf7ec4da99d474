package stackview

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/stackview/loader"
)

const manifest = `name: Chest CT
images:
  - url: https://pacs.example.org/ct/001.jpg
    name: Slice 1
    tiers:
      - {url: https://pacs.example.org/ct/001-mid.jpg, tier: medium}
      - {url: https://pacs.example.org/ct/001-low.jpg, tier: low}
  - url: https://pacs.example.org/ct/002.jpg
`

func TestParseStudy(t *testing.T) {
	s, err := ParseStudy(strings.NewReader(manifest))
	if err != nil {
		t.Fatalf("ParseStudy: %v", err)
	}
	if s.Name != "Chest CT" || s.Len() != 2 {
		t.Fatalf("study = %+v", s)
	}
	if s.Images[1].Index != 1 {
		t.Errorf("Index = %d, want 1", s.Images[1].Index)
	}

	want := []loader.Candidate{
		{URL: "https://pacs.example.org/ct/001-mid.jpg", Tier: loader.TierMedium},
		{URL: "https://pacs.example.org/ct/001-low.jpg", Tier: loader.TierLow},
		{URL: "https://pacs.example.org/ct/001.jpg", Tier: loader.TierHigh},
	}
	if diff := cmp.Diff(want, s.Images[0].Candidates()); diff != "" {
		t.Errorf("Candidates mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]loader.Candidate{{URL: "https://pacs.example.org/ct/002.jpg", Tier: loader.TierHigh}},
		s.Images[1].Candidates()); diff != "" {
		t.Errorf("single-tier Candidates mismatch (-want +got):\n%s", diff)
	}
}

func TestParseStudyErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty document", "", ErrEmptyStudy},
		{"no images", "name: x\nimages: []\n", ErrEmptyStudy},
		{"missing url", "images:\n  - name: a\n", nil},
		{"unknown field", "images:\n  - url: a\n    size: 3\n", nil},
		{"bad tier", "images:\n  - url: a\n    tiers: [{url: b, tier: ultra}]\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStudy(strings.NewReader(tt.input))
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadStudyResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "study.yaml")
	body := "images:\n" +
		"  - url: slices/001.png\n" +
		"    tiers: [{url: thumbs/001.jpg, tier: low}]\n" +
		"  - url: https://pacs.example.org/002.png\n" +
		"  - url: /abs/003.png\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadStudy(path)
	if err != nil {
		t.Fatalf("LoadStudy: %v", err)
	}
	got := []string{s.Images[0].URL, s.Images[0].Tiers[0].URL, s.Images[1].URL, s.Images[2].URL}
	want := []string{
		filepath.Join(dir, "slices/001.png"),
		filepath.Join(dir, "thumbs/001.jpg"),
		"https://pacs.example.org/002.png",
		"/abs/003.png",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("resolved URLs mismatch (-want +got):\n%s", diff)
	}

	if _, err := LoadStudy(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing manifest should fail")
	}
}

func TestNewStudy(t *testing.T) {
	s := NewStudy("s", "a", "b")
	if s.Len() != 2 || s.Images[1].Index != 1 || s.Images[1].URL != "b" {
		t.Errorf("NewStudy = %+v", s)
	}
}
