package service

import "fmt"

const (
	pullbackName = "basic_pullback"

	volumeLookback = 20
	// при высокой волатильности цели раздвигаются
	highVolatility = 0.01
	tpWiden        = 0.005
	slWiden        = 0.003
)

type PullbackConfig struct {
	PullbackCandles    int
	MinPullbackPercent float64 // в процентах: 1.2 = 1.2%
	MinVolatility      float64 // доля: 0.002 = 0.2%
	MaxSpread          float64 // доля
	VolumeRatio        float64
	TakeProfitPercent  float64 // доля
	StopLossPercent    float64 // доля
}

// BasicPullback: лонг на откате внутри восходящего тренда.
type BasicPullback struct {
	cfg PullbackConfig
}

func NewBasicPullback(cfg PullbackConfig) *BasicPullback {
	if cfg.PullbackCandles <= 0 {
		cfg.PullbackCandles = 5
	}
	return &BasicPullback{cfg: cfg}
}

func (s *BasicPullback) Name() string { return pullbackName }

func (s *BasicPullback) ShouldEnter(mc *MarketContext) (bool, Signal) {
	sig := Signal{Trend: mc.Trend(), ATRPercent: mc.ATRPercent(), Spread: mc.Spread()}
	if sig.Trend != TrendUp {
		return false, sig
	}

	pb, ok := mc.RecentPullback(s.cfg.PullbackCandles)
	if !ok || pb < s.cfg.MinPullbackPercent {
		return false, sig
	}
	sig.Pullback = pb

	if sig.ATRPercent < s.cfg.MinVolatility {
		return false, sig
	}
	if sig.Spread > s.cfg.MaxSpread {
		return false, sig
	}

	// объём последней свечи не должен проваливаться относительно среднего
	if avg, ok := mc.AverageVolume(volumeLookback); ok {
		last, _ := mc.LastCandle()
		if last.Volume < avg*s.cfg.VolumeRatio {
			return false, sig
		}
	}

	sig.Reason = fmt.Sprintf("pullback %.2f%% in uptrend, atr %.3f%%", pb, sig.ATRPercent*100)
	return true, sig
}

func (s *BasicPullback) CalculateTpSl(mc *MarketContext, entry float64) (float64, float64) {
	tpPct, slPct := s.cfg.TakeProfitPercent, s.cfg.StopLossPercent
	if mc != nil && mc.ATRPercent() > highVolatility {
		tpPct += tpWiden
		slPct += slWiden
	}
	return entry * (1 + tpPct), entry * (1 - slPct)
}

func (s *BasicPullback) ShouldExit(mc *MarketContext, entry, current float64) (bool, string) {
	if mc.Trend() == TrendDown {
		return true, "trend_reversal"
	}
	return false, ""
}
