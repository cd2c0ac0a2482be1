package service

import (
	"math"
	"sort"
	"time"

	"scalp_engine/internal/models"
)

// topSymbols — сколько лучших и худших символов попадает в отчёт.
const topSymbols = 3

// ComputeDailyStats агрегирует сделки за день в порядке закрытия.
// Gross — сумма модулей PnL, Net — сумма со знаком, просадка — модуль
// минимума накопленного PnL. Winrate считается только по WIN и LOSS.
func ComputeDailyStats(day time.Time, trades []models.TradeRecord) models.DailyStats {
	st := models.DailyStats{Date: day.Format(time.DateOnly), Trades: len(trades)}
	if len(trades) == 0 {
		return st
	}

	ordered := make([]models.TradeRecord, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].CloseTime.Before(ordered[j].CloseTime) })

	bySymbol := make(map[string]float64)
	var cum, low float64
	for _, tr := range ordered {
		switch tr.Result {
		case models.TradeWin:
			st.Wins++
		case models.TradeLoss:
			st.Losses++
		}
		st.GrossPnL += math.Abs(tr.PnLPercent)
		st.NetPnL += tr.PnLPercent
		bySymbol[tr.Symbol] += tr.PnLPercent

		cum += tr.PnLPercent
		low = math.Min(low, cum)
	}
	st.MaxDrawdown = math.Abs(low)

	if decided := st.Wins + st.Losses; decided > 0 {
		st.Winrate = float64(st.Wins) / float64(decided) * 100
	}

	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Slice(symbols, func(i, j int) bool {
		if bySymbol[symbols[i]] != bySymbol[symbols[j]] {
			return bySymbol[symbols[i]] > bySymbol[symbols[j]]
		}
		return symbols[i] < symbols[j]
	})
	n := min(topSymbols, len(symbols))
	st.BestSymbols = append([]string(nil), symbols[:n]...)
	st.WorstSymbols = append([]string(nil), symbols[len(symbols)-n:]...)
	return st
}
