package service

import (
	"context"
	"time"

	"scalp_engine/internal/exchange"
	"scalp_engine/internal/modules/config"
	"scalp_engine/pkg/logger"
)

const (
	defaultReadTimeout = 5 * time.Minute
	fatalBackoff       = 10 * time.Minute
)

// backoff — пауза перед переподключением в зависимости от класса ошибки.
type backoff struct {
	transient   time.Duration
	unsupported time.Duration
	fatal       time.Duration
}

func newBackoff(cfg *config.Config) backoff {
	b := backoff{
		transient:   cfg.Binance.ReconnectDelay,
		unsupported: cfg.Binance.UnsupportedBackoff,
		fatal:       fatalBackoff,
	}
	if b.transient <= 0 {
		b.transient = 5 * time.Second
	}
	if b.unsupported <= 0 {
		b.unsupported = 60 * time.Second
	}
	return b
}

func (b backoff) delay(tag string, err error) time.Duration {
	switch exchange.KindOf(err) {
	case exchange.KindUnsupported:
		logger.Warn("[%s] endpoint unsupported in this environment, retry in %s: %v", tag, b.unsupported, err)
		return b.unsupported
	case exchange.KindFatal:
		logger.Error("[%s] credentials rejected, retry in %s: %v", tag, b.fatal, err)
		return b.fatal
	default:
		logger.Warn("[%s] disconnected, reconnect in %s: %v", tag, b.transient, err)
		return b.transient
	}
}

// sleep возвращает false, если контекст отменён.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
