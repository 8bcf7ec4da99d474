package gesture

import (
	"math"

	"github.com/gogpu/stackview/view"
)

// Sensitivities, in levels per pixel of pointer motion.
const (
	WindowingSensitivity  = 0.5
	PinchLevelSensitivity = 0.25
)

// WheelZoomSpeed converts wheel units to a log zoom factor.
const WheelZoomSpeed = 0.002

// WindowDelta is a shift of the display window. Center moves brightness
// and Width moves contrast.
type WindowDelta struct {
	Center float64
	Width  float64
}

// Effect is what an event asks of the view transform.
type Effect struct {
	Pan       view.Point
	ZoomScale float64 // multiplier; 0 means no zoom
	Window    WindowDelta
	Reset     bool
}

// IsZero reports whether e changes nothing.
func (e Effect) IsZero() bool {
	return e == Effect{}
}

// Apply returns t with e applied and clamped to p. Window deltas are
// rounded to whole levels.
func (e Effect) Apply(t view.Transform, p view.Profile) view.Transform {
	if e.Reset {
		return view.Default()
	}
	if e.Pan != (view.Point{}) {
		t = t.PanBy(e.Pan.X, e.Pan.Y)
	}
	if e.ZoomScale > 0 {
		t = t.ScaleZoom(e.ZoomScale, p)
	}
	if e.Window != (WindowDelta{}) {
		t = t.AdjustLevels(int(math.Round(e.Window.Center)), int(math.Round(e.Window.Width)))
	}
	return t
}

// Transition computes the next state and the effect of ev given the
// active tool. It does not modify s.
func Transition(s State, ev Event, tool Tool) (State, Effect) {
	s = s.clone()

	switch ev.Kind {
	case DoubleTap:
		return s, Effect{Reset: true}

	case Wheel:
		if !tool.navigates() || (tool != ToolZoom && !ev.Ctrl) || ev.Delta == 0 {
			return s, Effect{}
		}
		return s, Effect{ZoomScale: math.Exp(-ev.Delta * WheelZoomSpeed)}

	case PointerDown:
		return pointerDown(s, ev, tool), Effect{}

	case PointerMove:
		return pointerMove(s, ev, tool)

	case PointerUp, PointerCancel:
		return pointerUp(s, ev), Effect{}
	}
	return s, Effect{}
}

func pointerDown(s State, ev Event, tool Tool) State {
	p := Pointer{ID: ev.PointerID, Pos: ev.Pos}
	if i := s.find(ev.PointerID); i >= 0 {
		s.Pointers[i] = p
	} else {
		s.Pointers = append(s.Pointers, p)
	}

	if !tool.navigates() {
		return s
	}
	switch {
	case len(s.Pointers) >= 2:
		a, b := s.Pointers[0].Pos, s.Pointers[1].Pos
		s.Phase = Pinching
		s.LastPinchDistance = a.Distance(b)
		s.LastCenter = a.Midpoint(b)
	case s.Phase == Idle:
		s.Phase = Panning
		s.Start = ev.Pos
		s.Last = ev.Pos
	}
	return s
}

func pointerMove(s State, ev Event, tool Tool) (State, Effect) {
	i := s.find(ev.PointerID)
	if i < 0 {
		return s, Effect{}
	}
	s.Pointers[i].Pos = ev.Pos

	if !tool.navigates() {
		return s, Effect{}
	}

	switch s.Phase {
	case Panning:
		d := ev.Pos.Sub(s.Last)
		s.Last = ev.Pos
		switch tool {
		case ToolPan:
			return s, Effect{Pan: d}
		case ToolWindowing:
			return s, Effect{Window: WindowDelta{
				Center: d.X * WindowingSensitivity,
				Width:  d.Y * WindowingSensitivity,
			}}
		}
		return s, Effect{}

	case Pinching:
		if i > 1 || len(s.Pointers) < 2 {
			return s, Effect{}
		}
		a, b := s.Pointers[0].Pos, s.Pointers[1].Pos
		dist := a.Distance(b)
		center := a.Midpoint(b)

		var e Effect
		if s.LastPinchDistance > 0 && dist > 0 {
			e.ZoomScale = dist / s.LastPinchDistance
		}
		dc := center.Sub(s.LastCenter)
		e.Window = WindowDelta{
			Center: -dc.Y * PinchLevelSensitivity,
			Width:  dc.X * PinchLevelSensitivity,
		}
		s.LastPinchDistance = dist
		s.LastCenter = center
		return s, e
	}
	return s, Effect{}
}

func pointerUp(s State, ev Event) State {
	if i := s.find(ev.PointerID); i >= 0 {
		s.Pointers = append(s.Pointers[:i], s.Pointers[i+1:]...)
	}
	if len(s.Pointers) == 0 {
		return State{}
	}
	if s.Phase == Pinching && len(s.Pointers) >= 2 {
		// The pair may have changed; measure the next move from the new one.
		a, b := s.Pointers[0].Pos, s.Pointers[1].Pos
		s.LastPinchDistance = a.Distance(b)
		s.LastCenter = a.Midpoint(b)
	}
	return s
}
