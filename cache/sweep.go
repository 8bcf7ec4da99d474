package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepInterval is how often a Sweeper runs a normal eviction.
const DefaultSweepInterval = time.Hour

// Sweeper runs Store.Evict(false) on a fixed schedule for the lifetime of a
// viewer session.
type Sweeper struct {
	store *Store
	cron  *cron.Cron
	log   *slog.Logger
}

// NewSweeper schedules a sweep of store every interval.
// An interval <= 0 uses DefaultSweepInterval. The sweeper does not run
// until Start is called.
func NewSweeper(store *Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cl := cronLogger{logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	sw := &Sweeper{store: store, cron: c, log: logger}
	c.Schedule(cron.Every(interval), cron.FuncJob(sw.Sweep))
	return sw
}

// Sweep runs one normal eviction pass.
func (sw *Sweeper) Sweep() {
	n := sw.store.Evict(context.Background(), false)
	st := sw.store.Stats()
	sw.log.Debug("cache: sweep finished",
		"removed", n,
		"entries", st.ItemCount,
		"usage_percent", st.UsagePercent())
}

// Start begins the schedule in its own goroutine.
func (sw *Sweeper) Start() {
	sw.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish or ctx
// to be done.
func (sw *Sweeper) Stop(ctx context.Context) {
	done := sw.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cache: sweeper "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cache: sweeper "+msg, append(keysAndValues, "err", err)...)
}
