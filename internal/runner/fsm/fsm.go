package fsm

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"scalp_engine/internal/models"
	"scalp_engine/pkg/logger"
)

var ErrInvalidTransition = errors.New("invalid fsm transition")

type State string

const (
	StateIdle     State = "IDLE"
	StateBuying   State = "BUYING"
	StatePosition State = "POSITION"
	StateExiting  State = "EXITING"
	StateCooldown State = "COOLDOWN"
)

type op string

const (
	opStartBuying   op = "start_buying"
	opEnterPosition op = "enter_position"
	opStartExiting  op = "start_exiting"
	opExitPosition  op = "exit_position"
)

// таблица переходов: операция -> допустимые исходные состояния.
// reset в таблице не нужен: он допустим из любого состояния.
var transitions = map[op][]State{
	opStartBuying:   {StateIdle},
	opEnterPosition: {StateBuying},
	opStartExiting:  {StatePosition},
	opExitPosition:  {StatePosition, StateExiting},
}

// TransitionError — вызов вне таблицы переходов. Состояние FSM не меняется.
type TransitionError struct {
	Symbol string
	Op     string
	From   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s not allowed from %s", e.Symbol, e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

type Option func(*SymbolFSM)

// WithClock подменяет часы (для тестов).
func WithClock(now func() time.Time) Option {
	return func(f *SymbolFSM) { f.now = now }
}

// SymbolFSM — жизненный цикл позиции по одному инструменту.
type SymbolFSM struct {
	symbol   string
	cooldown time.Duration
	now      func() time.Time

	mu            sync.Mutex
	state         State
	changedAt     time.Time
	orderRef      string
	position      *models.Position
	cooldownUntil time.Time
}

func New(symbol string, cooldown time.Duration, opts ...Option) *SymbolFSM {
	f := &SymbolFSM{
		symbol:   symbol,
		cooldown: cooldown,
		now:      time.Now,
		state:    StateIdle,
	}
	for _, o := range opts {
		o(f)
	}
	f.changedAt = f.now()
	return f
}

func (f *SymbolFSM) Symbol() string { return f.symbol }

func (f *SymbolFSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *SymbolFSM) ChangedAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changedAt
}

func (f *SymbolFSM) OrderRef() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orderRef
}

func (f *SymbolFSM) CooldownUntil() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cooldownUntil
}

// Position возвращает копию открытой позиции.
func (f *SymbolFSM) Position() (models.Position, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.position == nil {
		return models.Position{}, false
	}
	return *f.position, true
}

// CanEnter — можно ли открывать новую позицию. Сначала лениво снимает истёкший кулдаун.
func (f *SymbolFSM) CanEnter() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireCooldownLocked()
	if f.state != StateIdle {
		return false
	}
	return f.cooldownUntil.IsZero() || !f.now().Before(f.cooldownUntil)
}

func (f *SymbolFSM) IsInPosition() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == StatePosition
}

// IsInCooldown: если кулдаун истёк, сам вызов переводит FSM в IDLE.
func (f *SymbolFSM) IsInCooldown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expireCooldownLocked()
	return f.state == StateCooldown
}

func (f *SymbolFSM) StartBuying(orderRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkLocked(opStartBuying); err != nil {
		return err
	}
	f.orderRef = orderRef
	f.setLocked(StateBuying)
	return nil
}

func (f *SymbolFSM) EnterPosition(p models.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkLocked(opEnterPosition); err != nil {
		return err
	}
	f.position = &p
	f.setLocked(StatePosition)
	return nil
}

func (f *SymbolFSM) StartExiting() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkLocked(opStartExiting); err != nil {
		return err
	}
	f.setLocked(StateExiting)
	return nil
}

// ExitPosition закрывает позицию и ставит кулдаун now+cooldown.
func (f *SymbolFSM) ExitPosition() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkLocked(opExitPosition); err != nil {
		return err
	}
	f.position = nil
	f.orderRef = ""
	f.cooldownUntil = f.now().Add(f.cooldown)
	f.setLocked(StateCooldown)
	return nil
}

// Reset — принудительный возврат в IDLE из любого состояния.
func (f *SymbolFSM) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = nil
	f.orderRef = ""
	f.cooldownUntil = time.Time{}
	f.setLocked(StateIdle)
}

func (f *SymbolFSM) expireCooldownLocked() {
	if f.state != StateCooldown || f.cooldownUntil.IsZero() {
		return
	}
	if f.now().Before(f.cooldownUntil) {
		return
	}
	f.cooldownUntil = time.Time{}
	f.setLocked(StateIdle)
}

func (f *SymbolFSM) checkLocked(o op) error {
	for _, s := range transitions[o] {
		if s == f.state {
			return nil
		}
	}
	err := &TransitionError{Symbol: f.symbol, Op: string(o), From: f.state}
	logger.Warn("[FSM] %v", err)
	return err
}

func (f *SymbolFSM) setLocked(s State) {
	if f.state != s {
		logger.Debug("[FSM] %s %s -> %s", f.symbol, f.state, s)
	}
	f.state = s
	f.changedAt = f.now()
}
