package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalp_engine/internal/models"
)

func trade(symbol string, pnl float64, closeMin int) models.TradeRecord {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	return models.TradeRecord{
		Symbol:     symbol,
		Side:       models.SideBuy,
		PnLPercent: pnl,
		Result:     models.ResultFromPnL(pnl),
		OpenTime:   day.Add(time.Duration(closeMin-5) * time.Minute),
		CloseTime:  day.Add(time.Duration(closeMin) * time.Minute),
	}
}

func TestComputeDailyStats(t *testing.T) {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	// порядок на входе не важен, сделки сортируются по времени закрытия
	trades := []models.TradeRecord{
		trade("ETHUSDT", -1.5, 30),
		trade("BTCUSDT", 2.0, 10),
		trade("BTCUSDT", 1.0, 20),
		trade("SOLUSDT", 0.5, 40),
		trade("ETHUSDT", -4.0, 50),
		trade("XRPUSDT", 0, 60),
	}

	st := ComputeDailyStats(day, trades)
	assert.Equal(t, "2024-03-10", st.Date)
	assert.Equal(t, 6, st.Trades)
	assert.Equal(t, 3, st.Wins)
	assert.Equal(t, 2, st.Losses)
	// BREAKEVEN в винрейт не входит: 3 из 5
	assert.InDelta(t, 60.0, st.Winrate, 1e-9)
	assert.InDelta(t, 9.0, st.GrossPnL, 1e-9)
	assert.InDelta(t, -2.0, st.NetPnL, 1e-9)
	// накопленный PnL: 2, 3, 1.5, 2, -2, -2
	assert.InDelta(t, 2.0, st.MaxDrawdown, 1e-9)
	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT", "XRPUSDT"}, st.BestSymbols)
	assert.Equal(t, []string{"SOLUSDT", "XRPUSDT", "ETHUSDT"}, st.WorstSymbols)
}

func TestComputeDailyStatsSymmetricDay(t *testing.T) {
	st := ComputeDailyStats(time.Now(), []models.TradeRecord{
		trade("AAAUSDT", 1, 1),
		trade("BBBUSDT", -1, 2),
	})
	assert.InDelta(t, 2.0, st.GrossPnL, 1e-9)
	assert.InDelta(t, 0.0, st.NetPnL, 1e-9)
	// накопленный PnL не уходил ниже нуля
	assert.Zero(t, st.MaxDrawdown)
	assert.InDelta(t, 50.0, st.Winrate, 1e-9)
	assert.Equal(t, []string{"AAAUSDT", "BBBUSDT"}, st.BestSymbols)
	assert.Equal(t, []string{"AAAUSDT", "BBBUSDT"}, st.WorstSymbols)
}

func TestComputeDailyStatsEmpty(t *testing.T) {
	st := ComputeDailyStats(time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC), nil)
	assert.Equal(t, "2024-03-10", st.Date)
	assert.Zero(t, st.Trades)
	assert.Zero(t, st.Winrate)
	assert.Empty(t, st.BestSymbols)
	assert.Empty(t, st.WorstSymbols)
}

func TestComputeDailyStatsOnlyBreakeven(t *testing.T) {
	st := ComputeDailyStats(time.Now(), []models.TradeRecord{
		trade("AAAUSDT", 0, 1),
	})
	assert.Equal(t, 1, st.Trades)
	assert.Zero(t, st.Winrate)
}

func TestComputeDailyStatsOnlyLosses(t *testing.T) {
	st := ComputeDailyStats(time.Now(), []models.TradeRecord{
		trade("AAAUSDT", -1, 1),
		trade("BBBUSDT", -2, 2),
	})
	assert.InDelta(t, 3.0, st.MaxDrawdown, 1e-9)
	assert.InDelta(t, 3.0, st.GrossPnL, 1e-9)
	assert.InDelta(t, -3.0, st.NetPnL, 1e-9)
	assert.Equal(t, []string{"AAAUSDT", "BBBUSDT"}, st.BestSymbols)
}

func TestLogSinkAcceptsTrade(t *testing.T) {
	require.NoError(t, NewLogSink().SaveTrade(context.Background(), trade("BTCUSDT", 1.2, 10)))
}
