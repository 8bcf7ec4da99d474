package loader

import (
	"fmt"
	"sort"
)

// Tier is one quality variant of a logical image.
type Tier uint8

// Quality tiers, ordered from fastest to best.
const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return fmt.Sprintf("Tier(%d)", t)
	}
}

// ParseTier parses a tier name as produced by String.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "low":
		return TierLow, nil
	case "medium":
		return TierMedium, nil
	case "high", "":
		return TierHigh, nil
	default:
		return 0, fmt.Errorf("loader: unknown tier %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Candidate is one tier of a logical image and where to fetch it.
type Candidate struct {
	URL  string `yaml:"url"`
	Tier Tier   `yaml:"tier"`
}

// sortCandidates orders candidates from the lowest tier to the highest,
// keeping the given order among equal tiers.
func sortCandidates(c []Candidate) []Candidate {
	out := make([]Candidate, len(c))
	copy(out, c)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out
}
