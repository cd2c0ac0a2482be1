package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"scalp_engine/internal/exchange"
	"scalp_engine/internal/models"
	"scalp_engine/internal/modules/config"
	"scalp_engine/pkg/logger"
)

// CandleSink получает исторические свечи; вызывается конкурентно для разных символов.
type CandleSink func(ctx context.Context, c models.Candle)

type Warmuper struct {
	md        exchange.MarketData
	intervals []models.Interval
	limit     int

	// ограничитель параллелизма, чтобы не словить rate limit
	concurrency int
}

func NewWarmuper(cfg *config.Config, md exchange.MarketData) *Warmuper {
	return &Warmuper{
		md:          md,
		intervals:   []models.Interval{cfg.SlowInterval(), cfg.FastInterval()},
		limit:       cfg.Strategy.BufferSize,
		concurrency: 8,
	}
}

// Warmup догружает историю по REST. Ошибка по одному символу не останавливает
// остальные; наружу уходит первая.
func (w *Warmuper) Warmup(ctx context.Context, symbols []string, sink CandleSink) error {
	if len(symbols) == 0 {
		return nil
	}
	logger.Info("[BOOT] REST warmup start: symbols=%d intervals=%v limit=%d", len(symbols), w.intervals, w.limit)

	var cnt atomic.Int64
	var g errgroup.Group
	g.SetLimit(w.concurrency)

	for _, sym := range symbols {
		g.Go(func() error {
			for _, iv := range w.intervals {
				candles, err := w.md.Klines(ctx, sym, iv, w.limit)
				if err != nil {
					return fmt.Errorf("warmup %s %s: %w", sym, iv, err)
				}
				for _, c := range candles {
					if !c.Closed {
						continue
					}
					cnt.Add(1)
					sink(ctx, c)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Warn("[BOOT] REST warmup finished with error: %v", err)
		return err
	}
	logger.Info("[BOOT] REST warmup finished: %d candles", cnt.Load())
	return nil
}
