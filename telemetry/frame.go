package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultFrameInterval is the tick period of FrameCounter.Run, one frame
// at 60 Hz.
const DefaultFrameInterval = time.Second / 60

// MinFrameWindow is the shortest window FPS measures over.
const MinFrameWindow = 100 * time.Millisecond

// FrameCounter measures frame rate by counting ticks over a window.
// Run drives it from its own ticker, so a busy process shows up as dropped
// ticks regardless of how often the compositor draws.
type FrameCounter struct {
	now func() time.Time

	mu     sync.Mutex
	frames int
	since  time.Time
}

// NewFrameCounter returns a counter whose window starts now.
func NewFrameCounter(now func() time.Time) *FrameCounter {
	if now == nil {
		now = time.Now
	}
	return &FrameCounter{now: now, since: now()}
}

// Tick records one frame.
func (f *FrameCounter) Tick() {
	f.mu.Lock()
	f.frames++
	f.mu.Unlock()
}

// FPS returns the frame rate since the previous call and starts a new
// window. It fails while the window is shorter than MinFrameWindow.
func (f *FrameCounter) FPS() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	elapsed := now.Sub(f.since)
	if elapsed < MinFrameWindow {
		return 0, fmt.Errorf("%w: frame window too short", ErrSensorUnavailable)
	}
	fps := float64(f.frames) / elapsed.Seconds()
	f.frames = 0
	f.since = now
	return fps, nil
}

// Run ticks every interval until ctx is done.
func (f *FrameCounter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			f.Tick()
		}
	}
}
