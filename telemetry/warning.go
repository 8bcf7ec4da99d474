package telemetry

import (
	"fmt"
	"time"
)

// WarningKind classifies a performance warning.
type WarningKind uint8

// Warning kinds.
const (
	LowFPS WarningKind = iota
	SlowRender
	SlowImageLoad
)

func (k WarningKind) String() string {
	switch k {
	case LowFPS:
		return "low_fps"
	case SlowRender:
		return "slow_render"
	case SlowImageLoad:
		return "slow_image_load"
	default:
		return fmt.Sprintf("WarningKind(%d)", k)
	}
}

// Warning is a non-fatal performance signal.
type Warning struct {
	Kind    WarningKind
	At      time.Time
	Value   float64 // fps or milliseconds, depending on Kind
	Message string
}

// Thresholds decide when warnings are raised.
type Thresholds struct {
	MinFPS       float64
	MaxRender    time.Duration
	MaxImageLoad time.Duration
}

// DefaultThresholds: 30 fps, one 60 Hz frame per render, two seconds per
// image load.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinFPS:       30,
		MaxRender:    16700 * time.Microsecond,
		MaxImageLoad: 2 * time.Second,
	}
}
