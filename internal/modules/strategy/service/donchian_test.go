package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDonchian() *DonchianBreakout {
	return NewDonchianBreakout(DonchianConfig{
		Period:            20,
		MaxSpread:         0.001,
		TakeProfitPercent: 0.03,
		StopLossPercent:   0.015,
	})
}

// 24 растущие свечи 100..123, последняя выбивает канал
func breakoutCloses(last float64) []float64 {
	out := make([]float64, 0, 25)
	for i := 0; i < 24; i++ {
		out = append(out, 100+float64(i))
	}
	return append(out, last)
}

func TestDonchianEntersOnBreakout(t *testing.T) {
	mc := NewMarketContext("XYZUSDT", DefaultParams())
	feed(mc, breakoutCloses(130))

	ok, sig := testDonchian().ShouldEnter(mc)
	require.True(t, ok)
	assert.Equal(t, TrendUp, sig.Trend)
	assert.Contains(t, sig.Reason, "donchian")
}

func TestDonchianRejects(t *testing.T) {
	s := testDonchian()

	t.Run("inside channel", func(t *testing.T) {
		mc := NewMarketContext("XYZUSDT", DefaultParams())
		// high канала = 123+1, close 124 его не пробивает
		feed(mc, breakoutCloses(124))
		ok, _ := s.ShouldEnter(mc)
		assert.False(t, ok)
	})

	t.Run("wide spread", func(t *testing.T) {
		mc := NewMarketContext("XYZUSDT", DefaultParams())
		feed(mc, breakoutCloses(130))
		mc.SetSpread(0.002)
		ok, _ := s.ShouldEnter(mc)
		assert.False(t, ok)
	})

	t.Run("short history", func(t *testing.T) {
		mc := NewMarketContext("XYZUSDT", DefaultParams())
		feed(mc, []float64{100, 101, 102, 110})
		ok, _ := s.ShouldEnter(mc)
		assert.False(t, ok)
	})
}

func TestDonchianExitBelowChannel(t *testing.T) {
	mc := NewMarketContext("XYZUSDT", DefaultParams())
	feed(mc, breakoutCloses(130))
	s := testDonchian()

	// low канала = 104-1
	exit, reason := s.ShouldExit(mc, 130, 102)
	assert.True(t, exit)
	assert.Equal(t, "channel_break", reason)

	exit, _ = s.ShouldExit(mc, 130, 110)
	assert.False(t, exit)

	tp, sl := s.CalculateTpSl(mc, 100)
	assert.InDelta(t, 103, tp, 1e-9)
	assert.InDelta(t, 98.5, sl, 1e-9)
}
