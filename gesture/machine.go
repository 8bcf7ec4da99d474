package gesture

import (
	"log/slog"
	"math"
	"sync"

	"github.com/gogpu/stackview/view"
)

// Machine applies input events to a view transform.
// It is safe for concurrent use.
type Machine struct {
	mu       sync.Mutex
	state    State
	tool     Tool
	profile  view.Profile
	t        view.Transform
	residual WindowDelta
	onChange func(view.Transform)
	log      *slog.Logger
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithOnChange registers fn to receive the transform after every change.
// fn is called without the machine's lock held.
func WithOnChange(fn func(view.Transform)) MachineOption {
	return func(m *Machine) { m.onChange = fn }
}

// WithTool sets the initial tool.
func WithTool(t Tool) MachineOption {
	return func(m *Machine) { m.tool = t }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *slog.Logger) MachineOption {
	return func(m *Machine) {
		if l != nil {
			m.log = l
		}
	}
}

// NewMachine returns an idle machine with the default transform.
func NewMachine(profile view.Profile, opts ...MachineOption) *Machine {
	m := &Machine{
		profile: profile,
		t:       view.Default(),
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle feeds one event through Transition and applies its effect.
// It returns the resulting transform and whether it changed.
func (m *Machine) Handle(ev Event) (view.Transform, bool) {
	m.mu.Lock()
	prev := m.state.Phase
	next, eff := Transition(m.state, ev, m.tool)
	m.state = next
	if next.Phase != prev {
		m.log.Debug("gesture: phase", "from", prev, "to", next.Phase, "tool", m.tool)
	}
	changed := m.applyLocked(eff)
	t := m.t
	m.mu.Unlock()

	if changed {
		m.notify(t)
	}
	return t, changed
}

// applyLocked applies e, carrying fractional window motion between events.
func (m *Machine) applyLocked(e Effect) bool {
	before := m.t
	if e.Reset {
		m.t = view.Default()
		m.residual = WindowDelta{}
		return m.t != before
	}

	w := WindowDelta{
		Center: m.residual.Center + e.Window.Center,
		Width:  m.residual.Width + e.Window.Width,
	}
	dc, dw := math.Trunc(w.Center), math.Trunc(w.Width)
	m.residual = WindowDelta{Center: w.Center - dc, Width: w.Width - dw}

	e.Window = WindowDelta{Center: dc, Width: dw}
	m.t = e.Apply(m.t, m.profile)
	return m.t != before
}

func (m *Machine) notify(t view.Transform) {
	if m.onChange != nil {
		m.onChange(t)
	}
}

// Update replaces the transform with fn's result, clamped to the profile.
// It is how UI controls such as sliders change the view.
func (m *Machine) Update(fn func(view.Transform) view.Transform) view.Transform {
	m.mu.Lock()
	before := m.t
	m.t = fn(m.t).Clamp(m.profile)
	t := m.t
	m.mu.Unlock()

	if t != before {
		m.notify(t)
	}
	return t
}

// Reset restores the default transform without touching gesture state.
func (m *Machine) Reset() view.Transform {
	t, _ := m.Handle(Event{Kind: DoubleTap})
	return t
}

// SetTool selects the active tool. A gesture in progress under a tool
// that no longer navigates is dropped.
func (m *Machine) SetTool(t Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tool == t {
		return
	}
	m.tool = t
	if !t.navigates() && m.state.Phase != Idle {
		m.state.Phase = Idle
	}
}

// Tool returns the active tool.
func (m *Machine) Tool() Tool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tool
}

// State returns a copy of the gesture state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Transform returns the current transform.
func (m *Machine) Transform() view.Transform {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

// Profile returns the device profile bounding the zoom.
func (m *Machine) Profile() view.Profile {
	return m.profile
}
