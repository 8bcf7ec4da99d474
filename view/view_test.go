package view

import (
	"math"
	"testing"
)

func TestDefault(t *testing.T) {
	d := Default()
	if d.Zoom != 1 || d.Pan != (Point{}) || d.Brightness != 0 || d.Contrast != 0 {
		t.Errorf("Default() = %+v", d)
	}
	if !d.IsDefault() {
		t.Error("Default().IsDefault() = false")
	}
}

func TestResetAfterMutations(t *testing.T) {
	tr := Default().
		ScaleZoom(3.5, Desktop).
		PanBy(120, -40).
		WithBrightness(55).
		WithContrast(-80).
		AdjustLevels(10, 10).
		PanBy(-3, 9)

	if tr.IsDefault() {
		t.Fatal("mutated transform reports default")
	}

	tr.Reset()

	want := Transform{Zoom: 1, Pan: Point{X: 0, Y: 0}, Brightness: 0, Contrast: 0}
	if tr != want {
		t.Errorf("after Reset = %+v, want %+v", tr, want)
	}
}

func TestClampZoom(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		in      float64
		want    float64
	}{
		{"desktop in range", Desktop, 2, 2},
		{"desktop below", Desktop, 0.01, 0.1},
		{"desktop above", Desktop, 50, 10},
		{"touch below", Touch, 0.2, 0.5},
		{"touch above", Touch, 100, 5},
		{"negative", Touch, -1, 0.5},
		{"nan", Desktop, math.NaN(), 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.ClampZoom(tt.in); got != tt.want {
				t.Errorf("ClampZoom(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestScaleZoomTouchClamp(t *testing.T) {
	got := Default().ScaleZoom(100, Touch)
	if got.Zoom != 5 {
		t.Errorf("zoom = %v, want 5", got.Zoom)
	}
}

func TestLevelsClamp(t *testing.T) {
	tr := Default().WithBrightness(250).WithContrast(-250)
	if tr.Brightness != MaxLevel || tr.Contrast != MinLevel {
		t.Errorf("levels = (%d, %d), want (%d, %d)", tr.Brightness, tr.Contrast, MaxLevel, MinLevel)
	}
	tr = tr.AdjustLevels(-300, 300)
	if tr.Brightness != MinLevel || tr.Contrast != MaxLevel {
		t.Errorf("adjusted levels = (%d, %d)", tr.Brightness, tr.Contrast)
	}
}

func TestPointHelpers(t *testing.T) {
	a, b := Pt(0, 0), Pt(3, 4)
	if d := a.Distance(b); d != 5 {
		t.Errorf("Distance = %v, want 5", d)
	}
	if m := a.Midpoint(b); m != Pt(1.5, 2) {
		t.Errorf("Midpoint = %+v", m)
	}
	if s := b.Sub(a).Add(b); s != Pt(6, 8) {
		t.Errorf("Sub/Add = %+v", s)
	}
}
