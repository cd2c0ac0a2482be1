package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobRunsRepeatedly(t *testing.T) {
	s := New()
	var n atomic.Int32
	s.SchedulePeriodic("tick", 5*time.Millisecond, func(ctx context.Context) error {
		n.Add(1)
		return nil
	})
	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
}

func TestErrorAndPanicDoNotStopLoop(t *testing.T) {
	s := New()
	var failing, panicking, healthy atomic.Int32
	s.SchedulePeriodic("failing", 2*time.Millisecond, func(ctx context.Context) error {
		failing.Add(1)
		return errors.New("venue down")
	})
	s.SchedulePeriodic("panicking", 2*time.Millisecond, func(ctx context.Context) error {
		panicking.Add(1)
		panic("boom")
	})
	s.SchedulePeriodic("healthy", 2*time.Millisecond, func(ctx context.Context) error {
		healthy.Add(1)
		return nil
	})
	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return failing.Load() >= 3 && panicking.Load() >= 3 && healthy.Load() >= 3
	}, time.Second, time.Millisecond)
}

func TestStopCancelsLoops(t *testing.T) {
	s := New()
	var n atomic.Int32
	s.SchedulePeriodic("slow", time.Hour, func(ctx context.Context) error {
		n.Add(1)
		return nil
	})
	s.Start(context.Background())
	assert.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, time.Millisecond)
	assert.True(t, s.Running())

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}
	assert.False(t, s.Running())
	assert.Equal(t, int32(1), n.Load())
}

func TestScheduleAfterStart(t *testing.T) {
	s := New()
	s.Start(context.Background())
	defer s.Stop()

	ran := make(chan struct{}, 1)
	s.SchedulePeriodic("late", time.Hour, func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job registered after start did not run")
	}
}

func TestNothingRunsBeforeStart(t *testing.T) {
	s := New()
	var n atomic.Int32
	s.SchedulePeriodic("idle", time.Millisecond, func(ctx context.Context) error {
		n.Add(1)
		return nil
	})
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, n.Load())
	s.Stop()
}
