package telemetry

import (
	"fmt"
	"strings"
	"time"
)

// Connection is the coarse network class.
type Connection uint8

// Connection classes.
const (
	ConnectionFast Connection = iota
	ConnectionSlow
	ConnectionOffline
)

func (c Connection) String() string {
	switch c {
	case ConnectionFast:
		return "fast"
	case ConnectionSlow:
		return "slow"
	case ConnectionOffline:
		return "offline"
	default:
		return fmt.Sprintf("Connection(%d)", c)
	}
}

// slowConnections are effective connection types treated as slow.
var slowConnections = map[string]bool{
	"slow-2g": true,
	"2g":      true,
	"3g":      true,
}

// ClassifyConnection maps an effective connection type such as "4g" or
// "2g" to a Connection. Offline wins over any type.
func ClassifyConnection(effectiveType string, online bool) Connection {
	if !online {
		return ConnectionOffline
	}
	if slowConnections[strings.ToLower(strings.TrimSpace(effectiveType))] {
		return ConnectionSlow
	}
	return ConnectionFast
}

// High performance thresholds.
const (
	HighPerformanceFPS      = 45
	HighPerformanceMemoryMB = 200
)

// Sample is one telemetry reading.
type Sample struct {
	At         time.Time
	FPS        float64
	MemoryMB   float64
	BatteryPct *float64 // nil when unknown
	LowPower   *bool    // nil when unknown
	Connection Connection

	// Most recent durations reported through RecordRender and
	// RecordImageLoad, in milliseconds.
	RenderMs    float64
	ImageLoadMs float64
}

// DefaultSample is the reading assumed when no sensor is available.
func DefaultSample() Sample {
	return Sample{FPS: 60, Connection: ConnectionFast}
}

// IsHighPerformance reports whether s describes a device that can afford
// full-quality rendering.
func (s Sample) IsHighPerformance() bool {
	lowPower := s.LowPower != nil && *s.LowPower
	return s.FPS > HighPerformanceFPS && s.MemoryMB < HighPerformanceMemoryMB && !lowPower
}
