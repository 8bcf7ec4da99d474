package gesture

import (
	"fmt"
	"strings"

	"github.com/gogpu/stackview/view"
)

// Preset is a named brightness/contrast pair. The values approximate the
// look of common radiology windows on already-windowed display images.
type Preset struct {
	Name       string
	Brightness int
	Contrast   int
}

// Presets.
var (
	PresetDefault    = Preset{Name: "default"}
	PresetLung       = Preset{Name: "lung", Brightness: 20, Contrast: 60}
	PresetBone       = Preset{Name: "bone", Brightness: -15, Contrast: 45}
	PresetSoftTissue = Preset{Name: "soft-tissue", Brightness: 5, Contrast: 25}
	PresetBrain      = Preset{Name: "brain", Brightness: 0, Contrast: 50}
)

// Presets lists the built-in presets in display order.
func Presets() []Preset {
	return []Preset{PresetDefault, PresetLung, PresetBone, PresetSoftTissue, PresetBrain}
}

// PresetByName finds a built-in preset, ignoring case.
func PresetByName(name string) (Preset, error) {
	for _, p := range Presets() {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("gesture: unknown preset %q", name)
}

// Apply sets t's levels to the preset's, leaving zoom and pan alone.
func (p Preset) Apply(t view.Transform) view.Transform {
	return t.WithBrightness(p.Brightness).WithContrast(p.Contrast)
}
