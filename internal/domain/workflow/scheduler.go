package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type stopper interface {
	Stop() bool
}

// Scheduler runs delayed tasks keyed by order id. Scheduling a key replaces
// any pending task for it; Cancel revokes it. Tasks are in-process only and
// are lost on restart.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*scheduledTask
	seq     uint64
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger

	afterFunc func(time.Duration, func()) stopper
}

type scheduledTask struct {
	seq   uint64
	timer stopper
}

func NewScheduler(logger zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:  make(map[string]*scheduledTask),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Schedule runs fn after delay unless the key is cancelled or rescheduled
// first. It reports false once the scheduler is stopped.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if prev, ok := s.tasks[key]; ok {
		prev.timer.Stop()
	}
	s.seq++
	seq := s.seq
	task := &scheduledTask{seq: seq}
	task.timer = s.afterFunc(delay, func() { s.fire(key, seq, fn) })
	s.tasks[key] = task
	return true
}

func (s *Scheduler) fire(key string, seq uint64, fn func(ctx context.Context)) {
	s.mu.Lock()
	task, ok := s.tasks[key]
	if !ok || task.seq != seq || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.tasks, key)
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("order_id", key).Interface("panic", r).Msg("scheduled task panicked")
		}
	}()
	fn(s.ctx)
}

// Cancel revokes the pending task for key and reports whether there was one.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[key]
	if !ok {
		return false
	}
	task.timer.Stop()
	delete(s.tasks, key)
	return true
}

// Pending reports whether a task is waiting for key.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels every pending task, cancels the context of running ones and
// waits for them to return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for key, task := range s.tasks {
		task.timer.Stop()
		delete(s.tasks, key)
	}
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
