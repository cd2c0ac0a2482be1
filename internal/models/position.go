package models

import "time"

// Position — открытая позиция; живёт внутри FSM инструмента.
type Position struct {
	Symbol     string
	EntryPrice float64
	Qty        float64
	EntryTime  time.Time
	TakeProfit float64 // 0 — не задан
	StopLoss   float64 // 0 — не задан
}

// VenuePosition — позиция, как её видит биржа (только фьючерсы).
type VenuePosition struct {
	Symbol     string
	Amount     float64
	EntryPrice float64
	MarkPrice  float64
}
