package service

import (
	"context"
	"time"

	"github.com/bytedance/sonic"

	"scalp_engine/internal/models"
	"scalp_engine/pkg/logger"
)

// Sink принимает завершённые сделки. Повтор одной и той же сделки не должен
// создавать дубль.
type Sink interface {
	SaveTrade(ctx context.Context, tr models.TradeRecord) error
}

// Reader — выборки для отчётов stats и replay.
type Reader interface {
	TradesByDate(ctx context.Context, day time.Time) ([]models.TradeRecord, error)
	TradesBySymbol(ctx context.Context, symbol string, day time.Time) ([]models.TradeRecord, error)
	DailyStats(ctx context.Context, day time.Time) (models.DailyStats, error)
}

var _ Reader = (*PgStore)(nil)

// LogSink пишет сделку JSON-строкой в лог, когда базы нет.
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (LogSink) SaveTrade(_ context.Context, tr models.TradeRecord) error {
	b, err := sonic.Marshal(tr)
	if err != nil {
		return err
	}
	logger.Info("[TRADE] %s", b)
	return nil
}
