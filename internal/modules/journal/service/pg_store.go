package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"scalp_engine/internal/models"
	"scalp_engine/pkg/db"
)

const createTradesTable = `
CREATE TABLE IF NOT EXISTS trades (
	id                   BIGSERIAL PRIMARY KEY,
	symbol               TEXT        NOT NULL,
	side                 TEXT        NOT NULL,
	qty                  DOUBLE PRECISION NOT NULL,
	entry_price          DOUBLE PRECISION NOT NULL,
	exit_price           DOUBLE PRECISION NOT NULL,
	pnl_percent          DOUBLE PRECISION NOT NULL,
	spread_at_entry      DOUBLE PRECISION NOT NULL DEFAULT 0,
	atr_percent_at_entry DOUBLE PRECISION NOT NULL DEFAULT 0,
	result               TEXT        NOT NULL,
	reason               TEXT        NOT NULL DEFAULT '',
	open_time            TIMESTAMPTZ NOT NULL,
	close_time           TIMESTAMPTZ NOT NULL,
	UNIQUE (symbol, open_time)
);
CREATE INDEX IF NOT EXISTS trades_close_time_idx ON trades (close_time);
`

const insertTrade = `
INSERT INTO trades (symbol, side, qty, entry_price, exit_price, pnl_percent,
	spread_at_entry, atr_percent_at_entry, result, reason, open_time, close_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (symbol, open_time) DO NOTHING
`

const selectTradesByDate = `
SELECT symbol, side, qty, entry_price, exit_price, pnl_percent,
	spread_at_entry, atr_percent_at_entry, result, reason, open_time, close_time
FROM trades
WHERE close_time >= $1 AND close_time < $2
ORDER BY close_time
`

const selectTradesBySymbolDate = `
SELECT symbol, side, qty, entry_price, exit_price, pnl_percent,
	spread_at_entry, atr_percent_at_entry, result, reason, open_time, close_time
FROM trades
WHERE close_time >= $1 AND close_time < $2 AND symbol = $3
ORDER BY close_time
`

// PgStore — журнал сделок в Postgres.
type PgStore struct {
	tm db.TxManager
}

func NewPgStore(tm db.TxManager) *PgStore {
	return &PgStore{tm: tm}
}

func (s *PgStore) Migrate(ctx context.Context) error {
	return s.tm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, createTradesTable)
		return err
	})
}

// SaveTrade идемпотентен по (symbol, open_time): повтор после таймаута не дублирует сделку.
func (s *PgStore) SaveTrade(ctx context.Context, tr models.TradeRecord) error {
	return s.tm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, insertTrade,
			tr.Symbol, string(tr.Side), tr.Qty, tr.EntryPrice, tr.ExitPrice, tr.PnLPercent,
			tr.SpreadAtEntry, tr.ATRPercentAtEntry, string(tr.Result), tr.Reason,
			tr.OpenTime.UTC(), tr.CloseTime.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert trade %s: %w", tr.Symbol, err)
		}
		return nil
	})
}

// dayBounds — сутки UTC, в которые попадает day.
func dayBounds(day time.Time) (time.Time, time.Time) {
	day = day.UTC()
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1)
}

func (s *PgStore) TradesByDate(ctx context.Context, day time.Time) ([]models.TradeRecord, error) {
	from, to := dayBounds(day)
	return s.queryTrades(ctx, selectTradesByDate, from, to)
}

// TradesBySymbol — сделки одного символа за сутки, для replay.
func (s *PgStore) TradesBySymbol(ctx context.Context, symbol string, day time.Time) ([]models.TradeRecord, error) {
	from, to := dayBounds(day)
	return s.queryTrades(ctx, selectTradesBySymbolDate, from, to, symbol)
}

func (s *PgStore) queryTrades(ctx context.Context, query string, args ...any) ([]models.TradeRecord, error) {
	rows, err := s.tm.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select trades: %w", err)
	}
	defer rows.Close()

	var out []models.TradeRecord
	for rows.Next() {
		var (
			tr           models.TradeRecord
			side, result string
		)
		if err := rows.Scan(&tr.Symbol, &side, &tr.Qty, &tr.EntryPrice, &tr.ExitPrice, &tr.PnLPercent,
			&tr.SpreadAtEntry, &tr.ATRPercentAtEntry, &result, &tr.Reason, &tr.OpenTime, &tr.CloseTime); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		tr.Side = models.Side(side)
		tr.Result = models.TradeResult(result)
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (s *PgStore) DailyStats(ctx context.Context, day time.Time) (models.DailyStats, error) {
	trades, err := s.TradesByDate(ctx, day)
	if err != nil {
		return models.DailyStats{}, err
	}
	return ComputeDailyStats(day, trades), nil
}
