package models

import "time"

type TradeResult string

const (
	TradeWin       TradeResult = "WIN"
	TradeLoss      TradeResult = "LOSS"
	TradeBreakeven TradeResult = "BREAKEVEN"
)

func ResultFromPnL(pnlPct float64) TradeResult {
	switch {
	case pnlPct > 0:
		return TradeWin
	case pnlPct < 0:
		return TradeLoss
	default:
		return TradeBreakeven
	}
}

// TradeRecord — завершённая сделка для журнала/отчётов.
type TradeRecord struct {
	OpenTime          time.Time   `json:"open_time"`
	CloseTime         time.Time   `json:"close_time"`
	Symbol            string      `json:"symbol"`
	Side              Side        `json:"side"`
	Qty               float64     `json:"qty"`
	EntryPrice        float64     `json:"entry_price"`
	ExitPrice         float64     `json:"exit_price"`
	PnLPercent        float64     `json:"pnl_percent"`
	SpreadAtEntry     float64     `json:"spread_at_entry"`
	ATRPercentAtEntry float64     `json:"atr_percent_at_entry"`
	Result            TradeResult `json:"result"`
	Reason            string      `json:"reason"`
}

// DailyStats — агрегат по сделкам за день.
type DailyStats struct {
	Date         string   `json:"date"`
	Trades       int      `json:"trades"`
	Wins         int      `json:"wins"`
	Losses       int      `json:"losses"`
	Winrate      float64  `json:"winrate"`
	GrossPnL     float64  `json:"gross_pnl"`
	NetPnL       float64  `json:"net_pnl"`
	MaxDrawdown  float64  `json:"max_drawdown"`
	BestSymbols  []string `json:"best_symbols"`
	WorstSymbols []string `json:"worst_symbols"`
}
