package gesture

import (
	"fmt"

	"github.com/gogpu/stackview/view"
)

// Phase is the gesture in progress.
type Phase uint8

// Phases.
const (
	Idle Phase = iota
	Panning
	Pinching
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Panning:
		return "panning"
	case Pinching:
		return "pinching"
	default:
		return fmt.Sprintf("Phase(%d)", p)
	}
}

// Pointer is one active contact.
type Pointer struct {
	ID  int
	Pos view.Point
}

// State is the transient gesture state. The zero value is idle.
type State struct {
	Phase    Phase
	Pointers []Pointer

	// Start and Last track the dragging pointer while panning.
	Start view.Point
	Last  view.Point

	// LastPinchDistance and LastCenter track the pinch pair.
	LastPinchDistance float64
	LastCenter        view.Point
}

// clone returns s with its own pointer slice.
func (s State) clone() State {
	if s.Pointers != nil {
		s.Pointers = append([]Pointer(nil), s.Pointers...)
	}
	return s
}

func (s *State) find(id int) int {
	for i, p := range s.Pointers {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// EventKind identifies an input event.
type EventKind uint8

// Event kinds.
const (
	PointerDown EventKind = iota
	PointerMove
	PointerUp
	PointerCancel
	DoubleTap
	Wheel
)

// Event is one input event. Wheel events use Delta, in wheel units where
// positive scrolls down; Ctrl marks a pinch-to-zoom trackpad gesture.
type Event struct {
	Kind      EventKind
	PointerID int
	Pos       view.Point
	Delta     float64
	Ctrl      bool
}

// Down builds a pointer down event.
func Down(id int, x, y float64) Event {
	return Event{Kind: PointerDown, PointerID: id, Pos: view.Pt(x, y)}
}

// Move builds a pointer move event.
func Move(id int, x, y float64) Event {
	return Event{Kind: PointerMove, PointerID: id, Pos: view.Pt(x, y)}
}

// Up builds a pointer up event.
func Up(id int) Event {
	return Event{Kind: PointerUp, PointerID: id}
}
