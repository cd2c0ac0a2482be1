package risk

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"scalp_engine/pkg/logger"
)

// после стольких убыточных сделок подряд символ блокируется
const MaxLossStreak = 3

var (
	ErrMaxPositions = errors.New("max positions reached")
	ErrAlreadyOpen  = errors.New("already open")
	ErrLossStreak   = errors.New("loss streak exceeded")
)

type streak struct {
	count    int
	lastLoss time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager — глобальный риск-леджер. Всё состояние меняется только через его методы.
type Manager struct {
	maxPositions    int
	capitalFraction float64
	now             func() time.Time

	mu      sync.Mutex
	open    map[string]struct{}
	streaks map[string]*streak
}

func NewManager(maxPositions int, capitalFraction float64, opts ...Option) *Manager {
	m := &Manager{
		maxPositions:    maxPositions,
		capitalFraction: capitalFraction,
		now:             time.Now,
		open:            make(map[string]struct{}),
		streaks:         make(map[string]*streak),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// CanOpenPosition — только проверка, ничего не регистрирует.
func (m *Manager) CanOpenPosition(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkLocked(symbol)
}

// TryOpen — проверка и регистрация одной критической секцией:
// два инструмента не займут последний свободный слот одновременно.
func (m *Manager) TryOpen(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(symbol); err != nil {
		return err
	}
	m.open[symbol] = struct{}{}
	return nil
}

func (m *Manager) checkLocked(symbol string) error {
	if len(m.open) >= m.maxPositions {
		return fmt.Errorf("%w: %d/%d", ErrMaxPositions, len(m.open), m.maxPositions)
	}
	if _, ok := m.open[symbol]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyOpen, symbol)
	}
	if s, ok := m.streaks[symbol]; ok && s.count >= MaxLossStreak {
		return fmt.Errorf("%w: %s has %d losses in a row", ErrLossStreak, symbol, s.count)
	}
	return nil
}

// PositionSize — размер позиции в базовой валюте без округления под фильтры биржи.
func (m *Manager) PositionSize(bankroll, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return bankroll * m.capitalFraction / price
}

func (m *Manager) RegisterOpened(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[symbol] = struct{}{}
}

// RegisterClosed: убыток увеличивает серию, иначе серия обнуляется.
func (m *Manager) RegisterClosed(symbol string, pnlPercent float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, symbol)

	if pnlPercent < 0 {
		s, ok := m.streaks[symbol]
		if !ok {
			s = &streak{}
			m.streaks[symbol] = s
		}
		s.count++
		s.lastLoss = m.now()
		if s.count >= MaxLossStreak {
			logger.Warn("[RISK] %s blocked: %d losses in a row", symbol, s.count)
		}
		return
	}
	delete(m.streaks, symbol)
}

// Release снимает резерв без влияния на серию (вход не состоялся).
func (m *Manager) Release(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, symbol)
}

func (m *Manager) ResetLossStreak(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streaks, symbol)
}

func (m *Manager) LossStreak(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.streaks[symbol]; ok {
		return s.count
	}
	return 0
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

func (m *Manager) OpenSymbols() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.open))
	for s := range m.open {
		out = append(out, s)
	}
	m.mu.Unlock()
	sort.Strings(out)
	return out
}

// CleanupOldStreaks удаляет серии, последний убыток в которых старше maxAge.
func (m *Manager) CleanupOldStreaks(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-maxAge)
	removed := 0
	for sym, s := range m.streaks {
		if s.lastLoss.Before(cutoff) {
			delete(m.streaks, sym)
			removed++
		}
	}
	return removed
}
