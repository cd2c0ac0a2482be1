package service

import "fmt"

const donchianName = "donchian_breakout"

type DonchianConfig struct {
	Period            int     // N быстрых свечей канала, например 20
	MaxSpread         float64 // доля
	TakeProfitPercent float64 // доля
	StopLossPercent   float64 // доля
}

// DonchianBreakout — лонг на пробое верхней границы канала Дончиана по тренду.
// Выход — закрытие ниже нижней границы.
type DonchianBreakout struct {
	cfg DonchianConfig
}

func NewDonchianBreakout(cfg DonchianConfig) *DonchianBreakout {
	if cfg.Period <= 0 {
		cfg.Period = 20
	}
	return &DonchianBreakout{cfg: cfg}
}

func (s *DonchianBreakout) Name() string { return donchianName }

// channel — high/low N свечей перед последней.
func (s *DonchianBreakout) channel(mc *MarketContext) (hi, lo float64, ok bool) {
	n := mc.fast.Len()
	if n < s.cfg.Period+1 {
		return 0, 0, false
	}
	hi, lo = mc.fast.At(n-1-s.cfg.Period).High, mc.fast.At(n-1-s.cfg.Period).Low
	for i := n - s.cfg.Period; i < n-1; i++ {
		c := mc.fast.At(i)
		if c.High > hi {
			hi = c.High
		}
		if c.Low < lo {
			lo = c.Low
		}
	}
	return hi, lo, true
}

func (s *DonchianBreakout) ShouldEnter(mc *MarketContext) (bool, Signal) {
	sig := Signal{Trend: mc.Trend(), ATRPercent: mc.ATRPercent(), Spread: mc.Spread()}
	if sig.Trend != TrendUp {
		return false, sig
	}
	if s.cfg.MaxSpread > 0 && sig.Spread > s.cfg.MaxSpread {
		return false, sig
	}
	hi, _, ok := s.channel(mc)
	price := mc.CurrentPrice()
	if !ok || price <= hi {
		return false, sig
	}
	sig.Reason = fmt.Sprintf("donchian breakout close=%.5f > high=%.5f", price, hi)
	return true, sig
}

func (s *DonchianBreakout) CalculateTpSl(_ *MarketContext, entry float64) (float64, float64) {
	return entry * (1 + s.cfg.TakeProfitPercent), entry * (1 - s.cfg.StopLossPercent)
}

func (s *DonchianBreakout) ShouldExit(mc *MarketContext, _, current float64) (bool, string) {
	if _, lo, ok := s.channel(mc); ok && current < lo {
		return true, "channel_break"
	}
	return false, ""
}
