package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalp_engine/internal/models"
)

func testPullback() *BasicPullback {
	return NewBasicPullback(PullbackConfig{
		PullbackCandles:    5,
		MinPullbackPercent: 1.2,
		MinVolatility:      0.002,
		MaxSpread:          0.001,
		VolumeRatio:        0.8,
		TakeProfitPercent:  0.03,
		StopLossPercent:    0.015,
	})
}

func TestShouldEnterOnPullbackInUptrend(t *testing.T) {
	mc := NewMarketContext("XYZUSDT", DefaultParams())
	feed(mc, pullbackCloses())

	ok, sig := testPullback().ShouldEnter(mc)
	require.True(t, ok)
	assert.Equal(t, TrendUp, sig.Trend)
	assert.InDelta(t, 2.479, sig.Pullback, 0.001)
	assert.NotEmpty(t, sig.Reason)
}

func TestShouldEnterRejects(t *testing.T) {
	s := testPullback()

	t.Run("wide spread", func(t *testing.T) {
		mc := NewMarketContext("XYZUSDT", DefaultParams())
		feed(mc, pullbackCloses())
		mc.SetSpread(0.002)
		ok, _ := s.ShouldEnter(mc)
		assert.False(t, ok)
	})

	t.Run("no pullback", func(t *testing.T) {
		mc := NewMarketContext("XYZUSDT", DefaultParams())
		closes := make([]float64, 21)
		for i := range closes {
			closes[i] = 100 + float64(i)
		}
		feed(mc, closes)
		ok, _ := s.ShouldEnter(mc)
		assert.False(t, ok)
	})

	t.Run("volume dried up", func(t *testing.T) {
		mc := NewMarketContext("XYZUSDT", DefaultParams())
		cl := pullbackCloses()
		for i, c := range cl {
			candle := candleAt(i, c)
			if i == len(cl)-1 {
				candle.Volume = 1
			}
			mc.Update(candle, models.Interval1m)
		}
		ok, _ := s.ShouldEnter(mc)
		assert.False(t, ok)
	})

	t.Run("not enough history", func(t *testing.T) {
		mc := NewMarketContext("XYZUSDT", DefaultParams())
		feed(mc, pullbackCloses()[:15])
		ok, sig := s.ShouldEnter(mc)
		assert.False(t, ok)
		assert.Equal(t, TrendNone, sig.Trend)
	})
}

func TestCalculateTpSl(t *testing.T) {
	s := testPullback()

	calm := NewMarketContext("XYZUSDT", DefaultParams())
	tp, sl := s.CalculateTpSl(calm, 100)
	assert.InDelta(t, 103, tp, 1e-9)
	assert.InDelta(t, 98.5, sl, 1e-9)

	// ATR% ≈ 1.8% > 1% — цели раздвигаются
	volatile := NewMarketContext("XYZUSDT", DefaultParams())
	feed(volatile, pullbackCloses())
	tp, sl = s.CalculateTpSl(volatile, 118)
	assert.InDelta(t, 118*1.035, tp, 1e-9)
	assert.InDelta(t, 118*0.982, sl, 1e-9)
}

func TestShouldExitOnTrendReversal(t *testing.T) {
	s := testPullback()
	mc := NewMarketContext("XYZUSDT", DefaultParams())
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 150 - float64(i)
	}
	feed(mc, closes)

	ok, reason := s.ShouldExit(mc, 140, mc.CurrentPrice())
	assert.True(t, ok)
	assert.Equal(t, "trend_reversal", reason)

	up := NewMarketContext("XYZUSDT", DefaultParams())
	feed(up, pullbackCloses())
	ok, _ = s.ShouldExit(up, 110, up.CurrentPrice())
	assert.False(t, ok)
}
