package service

import (
	"time"

	"scalp_engine/internal/models"
)

type Trend int

const (
	TrendNone Trend = iota
	TrendUp
	TrendDown
)

func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "UP"
	case TrendDown:
		return "DOWN"
	default:
		return "NONE"
	}
}

// Params — периоды индикаторов и размер буферов.
type Params struct {
	FastInterval models.Interval
	SlowInterval models.Interval
	EMAFast      int
	EMASlow      int
	T3Period     int
	ATRPeriod    int
	BufferSize   int
}

func DefaultParams() Params {
	return Params{
		FastInterval: models.Interval1m,
		SlowInterval: models.Interval5m,
		EMAFast:      9,
		EMASlow:      21,
		T3Period:     8,
		ATRPeriod:    14,
		BufferSize:   100,
	}
}

type indicator struct {
	v  float64
	ok bool
}

func (i indicator) get() (float64, bool) { return i.v, i.ok }

// MarketContext — свечи одного инструмента и производные индикаторы.
// Индикаторы всегда пересчитываются целиком по текущему содержимому буферов.
// Не потокобезопасен: владелец — воркер инструмента.
type MarketContext struct {
	Symbol string
	p      Params

	fast *ring[models.Candle]
	slow *ring[models.Candle]

	emaFast indicator
	emaSlow indicator
	t3      indicator
	atrFast indicator
	atrSlow indicator

	spread float64
}

func NewMarketContext(symbol string, p Params) *MarketContext {
	return &MarketContext{
		Symbol: symbol,
		p:      p,
		fast:   newRing[models.Candle](p.BufferSize),
		slow:   newRing[models.Candle](p.BufferSize),
	}
}

// Update кладёт свечу в буфер своего таймфрейма и пересчитывает индикаторы.
// false — таймфрейм не наш.
func (m *MarketContext) Update(c models.Candle, interval models.Interval) bool {
	switch interval {
	case m.p.FastInterval:
		m.fast.Push(c)
	case m.p.SlowInterval:
		m.slow.Push(c)
	default:
		return false
	}
	m.recalculate()
	return true
}

func (m *MarketContext) recalculate() {
	m.emaFast, m.emaSlow, m.t3, m.atrFast, m.atrSlow = indicator{}, indicator{}, indicator{}, indicator{}, indicator{}

	fast := m.fast.Slice()
	if len(fast) >= m.p.EMASlow {
		cl := closes(fast)
		m.emaFast.v, m.emaFast.ok = lastEMA(cl, m.p.EMAFast)
		m.emaSlow.v, m.emaSlow.ok = lastEMA(cl, m.p.EMASlow)
		m.t3.v, m.t3.ok = t3(cl, m.p.T3Period)
		m.atrFast.v, m.atrFast.ok = atr(fast, m.p.ATRPeriod)
	}

	m.atrSlow.v, m.atrSlow.ok = atr(m.slow.Slice(), m.p.ATRPeriod)
}

func (m *MarketContext) EMAFast() (float64, bool) { return m.emaFast.get() }
func (m *MarketContext) EMASlow() (float64, bool) { return m.emaSlow.get() }
func (m *MarketContext) T3() (float64, bool)      { return m.t3.get() }
func (m *MarketContext) ATRFast() (float64, bool) { return m.atrFast.get() }
func (m *MarketContext) ATRSlow() (float64, bool) { return m.atrSlow.get() }

func (m *MarketContext) SetSpread(pct float64) { m.spread = pct }
func (m *MarketContext) Spread() float64       { return m.spread }

// CurrentPrice — close последней быстрой свечи, 0 если свечей нет.
func (m *MarketContext) CurrentPrice() float64 {
	if c, ok := m.fast.Last(); ok {
		return c.Close
	}
	return 0
}

func (m *MarketContext) Trend() Trend {
	fast, ok1 := m.emaFast.get()
	slow, ok2 := m.emaSlow.get()
	if !ok1 || !ok2 {
		return TrendNone
	}
	switch {
	case fast > slow:
		return TrendUp
	case fast < slow:
		return TrendDown
	default:
		return TrendNone
	}
}

// ATRPercent — ATR быстрого таймфрейма к текущей цене (доля), 0 если не определён.
func (m *MarketContext) ATRPercent() float64 {
	a, ok := m.atrFast.get()
	price := m.CurrentPrice()
	if !ok || price <= 0 {
		return 0
	}
	return a / price
}

// RecentPullback — откат в процентах от максимального high последних n быстрых свечей
// до последнего close. ok=false, если истории мало или отката нет.
func (m *MarketContext) RecentPullback(n int) (float64, bool) {
	if n <= 0 || m.fast.Len() < n {
		return 0, false
	}
	var maxHigh float64
	for i := m.fast.Len() - n; i < m.fast.Len(); i++ {
		if h := m.fast.At(i).High; h > maxHigh {
			maxHigh = h
		}
	}
	current := m.CurrentPrice()
	if maxHigh <= 0 || current <= 0 {
		return 0, false
	}
	pct := (maxHigh - current) / maxHigh * 100
	if pct <= 0 {
		return 0, false
	}
	return pct, true
}

// AverageVolume — средний объём последних n быстрых свечей.
func (m *MarketContext) AverageVolume(n int) (float64, bool) {
	if n <= 0 || m.fast.Len() < n {
		return 0, false
	}
	var sum float64
	for i := m.fast.Len() - n; i < m.fast.Len(); i++ {
		sum += m.fast.At(i).Volume
	}
	return sum / float64(n), true
}

func (m *MarketContext) LastCandle() (models.Candle, bool) { return m.fast.Last() }

// LastOpenTime — время открытия последней свечи таймфрейма (нулевое, если пусто).
func (m *MarketContext) LastOpenTime(interval models.Interval) time.Time {
	var (
		c  models.Candle
		ok bool
	)
	switch interval {
	case m.p.FastInterval:
		c, ok = m.fast.Last()
	case m.p.SlowInterval:
		c, ok = m.slow.Last()
	}
	if !ok {
		return time.Time{}
	}
	return c.OpenTime
}

func (m *MarketContext) Candles(interval models.Interval) []models.Candle {
	switch interval {
	case m.p.FastInterval:
		return m.fast.Slice()
	case m.p.SlowInterval:
		return m.slow.Slice()
	}
	return nil
}

func (m *MarketContext) Len(interval models.Interval) int {
	switch interval {
	case m.p.FastInterval:
		return m.fast.Len()
	case m.p.SlowInterval:
		return m.slow.Len()
	}
	return 0
}
