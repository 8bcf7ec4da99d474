package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/process"
)

// ErrSensorUnavailable is returned by sensors that cannot produce a reading.
var ErrSensorUnavailable = errors.New("telemetry: sensor unavailable")

// FPSSensor reports frames per second.
type FPSSensor interface {
	FPS() (float64, error)
}

// MemorySensor reports memory use in MiB.
type MemorySensor interface {
	MemoryMB(ctx context.Context) (float64, error)
}

// Power is a battery reading.
type Power struct {
	BatteryPct float64
	LowPower   bool
}

// PowerSensor reports battery state.
type PowerSensor interface {
	Power(ctx context.Context) (Power, error)
}

// NetworkSensor reports the connection class.
type NetworkSensor interface {
	Connection(ctx context.Context) (Connection, error)
}

// PowerFunc adapts a function to PowerSensor.
type PowerFunc func(ctx context.Context) (Power, error)

// Power implements PowerSensor.
func (f PowerFunc) Power(ctx context.Context) (Power, error) { return f(ctx) }

// NetworkFunc reports an effective connection type and whether the host is
// online. It adapts to NetworkSensor through ClassifyConnection.
type NetworkFunc func(ctx context.Context) (effectiveType string, online bool, err error)

// Connection implements NetworkSensor.
func (f NetworkFunc) Connection(ctx context.Context) (Connection, error) {
	typ, online, err := f(ctx)
	if err != nil {
		return ConnectionFast, err
	}
	return ClassifyConnection(typ, online), nil
}

// StaticNetwork always reports c.
type StaticNetwork Connection

// Connection implements NetworkSensor.
func (s StaticNetwork) Connection(context.Context) (Connection, error) {
	return Connection(s), nil
}

// ProcessMemory reports the resident set size of this process.
type ProcessMemory struct {
	proc *process.Process
}

// NewProcessMemory returns a sensor for the current process.
func NewProcessMemory() (*ProcessMemory, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("%w: process: %v", ErrSensorUnavailable, err)
	}
	return &ProcessMemory{proc: p}, nil
}

// MemoryMB implements MemorySensor.
func (m *ProcessMemory) MemoryMB(ctx context.Context) (float64, error) {
	info, err := m.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: memory: %v", ErrSensorUnavailable, err)
	}
	return float64(info.RSS) / (1 << 20), nil
}
