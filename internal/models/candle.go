package models

import "time"

// Interval — таймфрейм свечи в нотации биржи ("1m", "5m").
type Interval string

const (
	Interval1m Interval = "1m"
	Interval5m Interval = "5m"
)

// Candle — закрытая (или ещё формирующаяся, Closed=false) свеча OHLCV.
type Candle struct {
	Symbol      string
	Interval    Interval
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	QuoteVolume float64
	OpenTime    time.Time
	CloseTime   time.Time
	Closed      bool
}

// Ticker24h — суточная статистика по символу.
type Ticker24h struct {
	Symbol             string
	LastPrice          float64
	PriceChangePercent float64
	QuoteVolume        float64
	Volume             float64
}

// BookTop — лучшие bid/ask из стакана.
type BookTop struct {
	Symbol string
	Bid    float64
	Ask    float64
}

// SpreadPercent возвращает (ask-bid)/bid. Если стакан пустой — ok=false.
func (b BookTop) SpreadPercent() (float64, bool) {
	if b.Bid <= 0 || b.Ask <= 0 {
		return 0, false
	}
	return (b.Ask - b.Bid) / b.Bid, true
}

// RankedSymbol — результат ранжирования кандидата в торговый список.
type RankedSymbol struct {
	Symbol             string  `yaml:"symbol"`
	Score              float64 `yaml:"score"`
	QuoteVolume        float64 `yaml:"quote_volume"`
	PriceChangePercent float64 `yaml:"price_change_percent"`
	SpreadPercent      float64 `yaml:"spread_percent"`
	ATRPercent         float64 `yaml:"atr_percent"`
}
