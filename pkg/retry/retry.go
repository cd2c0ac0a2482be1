package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy — экспоненциальный бэкофф с джиттером ±50%.
type Policy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Attempts: 3,
		Base:     500 * time.Millisecond,
		Max:      10 * time.Second,
	}
}

// Delay возвращает паузу перед повтором номер attempt (0-based):
// min(base*2^attempt, max) * [0.5, 1.5).
func (p Policy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	maxDelay := p.Max
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	if attempt < 0 {
		attempt = 0
	}

	wait := base
	for i := 0; i < attempt; i++ {
		wait *= 2
		if wait >= maxDelay {
			wait = maxDelay
			break
		}
	}
	if wait > maxDelay {
		wait = maxDelay
	}

	return time.Duration(float64(wait) * (0.5 + rand.Float64()))
}

// Do вызывает fn до p.Attempts раз. Повтор только если retryable(err) == true
// (nil retryable — повторяем любую ошибку). Наружу уходит ошибка последней попытки.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		t := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}
