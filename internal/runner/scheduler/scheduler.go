package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"scalp_engine/pkg/logger"
)

type Job func(ctx context.Context) error

type entry struct {
	name     string
	interval time.Duration
	fn       Job
}

// Scheduler — периодические фоновые задачи: fn, затем пауза interval, и так до Stop.
// Ошибка или паника задачи логируется и не останавливает цикл.
type Scheduler struct {
	mu      sync.Mutex
	jobs    []entry
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{}
}

// SchedulePeriodic регистрирует задачу. Если планировщик уже запущен — стартует сразу.
func (s *Scheduler) SchedulePeriodic(name string, interval time.Duration, fn Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry{name: name, interval: interval, fn: fn}
	s.jobs = append(s.jobs, e)
	if s.running {
		s.launchLocked(e)
	}
}

func (s *Scheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.ctx, s.cancel = context.WithCancel(parent)
	s.running = true
	for _, e := range s.jobs {
		s.launchLocked(e)
	}
	logger.Info("[SCHED] started %d jobs", len(s.jobs))
}

// Stop отменяет все циклы и ждёт их завершения.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	logger.Info("[SCHED] stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) launchLocked(e entry) {
	s.wg.Add(1)
	go s.loop(s.ctx, e)
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	defer s.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		if err := runSafe(ctx, e.fn); err != nil {
			logger.Error("[SCHED] job %s failed: %v", e.name, err)
		}

		t := time.NewTimer(e.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func runSafe(ctx context.Context, fn Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return fn(ctx)
}
