package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrSchedulerClosed is returned when scheduling on a scheduler that has been shut down.
var ErrSchedulerClosed = errors.New("scheduler is shut down")

// task is one owned periodic invocation.
type task struct {
	period time.Duration
	ticker Ticker
	cancel context.CancelFunc
}

// Scheduler runs named periodic tasks and deferred one-shot tasks.
// Scheduling a name that is already active replaces the previous task, so a
// name never has more than one live ticker.
type Scheduler struct {
	clock  Clock
	logger zerolog.Logger

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler driven by clock.
func NewScheduler(clock Clock, logger zerolog.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{
		clock:  clock,
		logger: logger,
		tasks:  make(map[string]*task),
	}
}

// Clock returns the scheduler's time source.
func (s *Scheduler) Clock() Clock {
	return s.clock
}

// Schedule invokes action every period under name until cancelled. Any task
// already registered under name is stopped first. A zero or negative period
// only cancels.
func (s *Scheduler) Schedule(name string, period time.Duration, action func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}

	s.cancelLocked(name)
	if period <= 0 {
		s.logger.Debug().Str("task", name).Msg("Periodic task disabled")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		period: period,
		ticker: s.clock.NewTicker(period),
		cancel: cancel,
	}
	s.tasks[name] = t

	s.wg.Add(1)
	go s.run(ctx, name, t, action)

	s.logger.Debug().Str("task", name).Dur("period", period).Msg("Periodic task scheduled")
	return nil
}

// Cancel stops the task registered under name. It reports whether a task was active.
// An invocation already in progress is not interrupted.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(name)
}

func (s *Scheduler) cancelLocked(name string) bool {
	t, ok := s.tasks[name]
	if !ok {
		return false
	}
	t.cancel()
	t.ticker.Stop()
	delete(s.tasks, name)
	s.logger.Debug().Str("task", name).Msg("Periodic task cancelled")
	return true
}

// Post runs action once, as soon as possible, on its own goroutine.
func (s *Scheduler) Post(action func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.invoke("deferred", action)
	}()
	return nil
}

// Period returns the period of the task registered under name.
func (s *Scheduler) Period(name string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return 0, false
	}
	return t.period, true
}

// Active returns the number of live periodic tasks.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Shutdown cancels every task and waits for running invocations to return.
// No action fires after Shutdown returns.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for name := range s.tasks {
		s.cancelLocked(name)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug().Msg("Scheduler shut down")
}

// run drives one periodic task until its context is cancelled.
func (s *Scheduler) run(ctx context.Context, name string, t *task, action func()) {
	defer s.wg.Done()

	for {
		select {
		case <-t.ticker.C():
			if ctx.Err() != nil {
				return
			}
			s.invoke(name, action)
		case <-ctx.Done():
			return
		}
	}
}

// invoke calls action and turns a panic into a logged error.
func (s *Scheduler) invoke(name string, action func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Err(fmt.Errorf("panic: %v", r)).Str("task", name).Msg("Scheduled task panicked")
		}
	}()
	action()
}
