package preload

import (
	"sync"
	"time"
)

// DefaultIdleDelay is the longest deferred work waits for the foreground
// to go quiet.
const DefaultIdleDelay = time.Second

// IdleScheduler defers work until no foreground work is running, or until
// a delay has passed since the work was submitted, whichever is first.
type IdleScheduler struct {
	delay time.Duration

	mu     sync.Mutex
	busy   int
	queue  []func()
	timer  *time.Timer
	closed bool
	wg     sync.WaitGroup
}

// NewIdleScheduler returns a scheduler with the given maximum delay.
func NewIdleScheduler(delay time.Duration) *IdleScheduler {
	if delay <= 0 {
		delay = DefaultIdleDelay
	}
	return &IdleScheduler{delay: delay}
}

// Busy marks foreground work as running. The returned func marks it done;
// when the last foreground work finishes, deferred work is released.
func (s *IdleScheduler) Busy() (done func()) {
	s.mu.Lock()
	s.busy++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.busy--
			if s.busy == 0 {
				s.flushLocked()
			}
		})
	}
}

// Submit queues fn to run once the scheduler is idle.
func (s *IdleScheduler) Submit(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, fn)
	if s.busy == 0 {
		s.flushLocked()
		return
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.delay, s.expire)
	}
}

// Pending returns the number of queued functions.
func (s *IdleScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *IdleScheduler) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer = nil
	s.flushLocked()
}

func (s *IdleScheduler) flushLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.closed {
		return
	}
	for _, fn := range s.queue {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			fn()
		}()
	}
	s.queue = nil
}

// Close drops queued work and waits for released work to return.
func (s *IdleScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}
