package risk

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxPositions(t *testing.T) {
	m := NewManager(3, 0.1)
	for i := 0; i < 3; i++ {
		sym := fmt.Sprintf("S%dUSDT", i)
		require.NoError(t, m.CanOpenPosition(sym))
		m.RegisterOpened(sym)
	}
	assert.Equal(t, 3, m.ActiveCount())

	err := m.CanOpenPosition("S9USDT")
	assert.ErrorIs(t, err, ErrMaxPositions)
	assert.Contains(t, err.Error(), "max positions reached")

	m.RegisterClosed("S0USDT", 1.5)
	assert.NoError(t, m.CanOpenPosition("S9USDT"))
}

func TestAlreadyOpen(t *testing.T) {
	m := NewManager(5, 0.1)
	m.RegisterOpened("ABCUSDT")
	assert.ErrorIs(t, m.CanOpenPosition("ABCUSDT"), ErrAlreadyOpen)
	assert.ErrorIs(t, m.TryOpen("ABCUSDT"), ErrAlreadyOpen)
}

func TestLossStreak(t *testing.T) {
	m := NewManager(5, 0.1)
	for i := 0; i < MaxLossStreak; i++ {
		require.NoError(t, m.TryOpen("ABCUSDT"))
		m.RegisterClosed("ABCUSDT", -1)
	}
	assert.Equal(t, 3, m.LossStreak("ABCUSDT"))
	err := m.CanOpenPosition("ABCUSDT")
	assert.ErrorIs(t, err, ErrLossStreak)
	assert.Contains(t, err.Error(), "loss streak exceeded")

	// другой символ не затронут
	assert.NoError(t, m.CanOpenPosition("XYZUSDT"))

	m.ResetLossStreak("ABCUSDT")
	assert.NoError(t, m.CanOpenPosition("ABCUSDT"))
}

func TestWinResetsStreak(t *testing.T) {
	m := NewManager(5, 0.1)
	m.RegisterOpened("ABCUSDT")
	m.RegisterClosed("ABCUSDT", -0.5)
	m.RegisterOpened("ABCUSDT")
	m.RegisterClosed("ABCUSDT", -0.5)
	assert.Equal(t, 2, m.LossStreak("ABCUSDT"))

	m.RegisterOpened("ABCUSDT")
	m.RegisterClosed("ABCUSDT", 2)
	assert.Equal(t, 0, m.LossStreak("ABCUSDT"))
}

func TestPositionSize(t *testing.T) {
	m := NewManager(5, 0.1)
	assert.InDelta(t, 100*0.1/118, m.PositionSize(100, 118), 1e-12)
	assert.Zero(t, m.PositionSize(100, 0))
	assert.Equal(t, 0, m.ActiveCount(), "sizing has no side effects")
}

func TestReleaseKeepsStreak(t *testing.T) {
	m := NewManager(1, 0.1)
	m.RegisterOpened("ABCUSDT")
	m.RegisterClosed("ABCUSDT", -1)

	require.NoError(t, m.TryOpen("ABCUSDT"))
	assert.ErrorIs(t, m.TryOpen("XYZUSDT"), ErrMaxPositions)
	m.Release("ABCUSDT")
	assert.Equal(t, 0, m.ActiveCount())
	assert.Equal(t, 1, m.LossStreak("ABCUSDT"))
}

func TestCleanupOldStreaks(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(5, 0.1, WithClock(func() time.Time { return now }))

	m.RegisterClosed("OLDUSDT", -1)
	now = now.Add(20 * time.Hour)
	m.RegisterClosed("NEWUSDT", -1)
	now = now.Add(5 * time.Hour)

	removed := m.CleanupOldStreaks(24 * time.Hour)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, m.LossStreak("OLDUSDT"))
	assert.Equal(t, 1, m.LossStreak("NEWUSDT"))
}

func TestTryOpenConcurrentNeverExceedsMax(t *testing.T) {
	m := NewManager(5, 0.1)
	var wg sync.WaitGroup
	var granted atomic.Int32
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if m.TryOpen(fmt.Sprintf("S%dUSDT", i)) == nil {
				granted.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(5), granted.Load())
	assert.Equal(t, 5, m.ActiveCount())
	assert.Len(t, m.OpenSymbols(), 5)
}
