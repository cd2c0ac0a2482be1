package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	strategy "scalp_engine/internal/modules/strategy/service"
	"scalp_engine/internal/runner/fsm"
	"scalp_engine/pkg/logger"
)

var ErrInstrumentRetired = errors.New("instrument retired")

// job выполняется воркером инструмента; события одного символа строго последовательны.
type job func(ctx context.Context, in *Instrument)

// entrySnapshot — рынок в момент входа, для журнала.
type entrySnapshot struct {
	spread float64
	atrPct float64
}

// Instrument — всё состояние символа. Market и entry трогает только воркер.
type Instrument struct {
	Symbol string
	FSM    *fsm.SymbolFSM
	Market *strategy.MarketContext

	entry entrySnapshot

	jobs     chan job
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newInstrument(symbol string, f *fsm.SymbolFSM, mc *strategy.MarketContext, queue int) *Instrument {
	if queue <= 0 {
		queue = 64
	}
	return &Instrument{
		Symbol: symbol,
		FSM:    f,
		Market: mc,
		jobs:   make(chan job, queue),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (in *Instrument) run(ctx context.Context) {
	defer close(in.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-in.quit:
			return
		case j := <-in.jobs:
			in.runJob(ctx, j)
		}
	}
}

func (in *Instrument) runJob(ctx context.Context, j job) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("[WORKER] %s job panic: %v\n%s", in.Symbol, p, debug.Stack())
		}
	}()
	j(ctx, in)
}

// Submit ставит задачу в очередь; блокируется, пока очередь полна.
func (in *Instrument) Submit(ctx context.Context, j job) error {
	select {
	case <-in.quit:
		return fmt.Errorf("%w: %s", ErrInstrumentRetired, in.Symbol)
	default:
	}
	select {
	case in.jobs <- j:
		return nil
	case <-in.quit:
		return fmt.Errorf("%w: %s", ErrInstrumentRetired, in.Symbol)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call ставит задачу и ждёт её выполнения.
func (in *Instrument) Call(ctx context.Context, j job) error {
	finished := make(chan struct{})
	err := in.Submit(ctx, func(ctx context.Context, in *Instrument) {
		defer close(finished)
		j(ctx, in)
	})
	if err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-in.done:
		// задача могла сама снять инструмент
		select {
		case <-finished:
			return nil
		default:
		}
		return fmt.Errorf("%w: %s", ErrInstrumentRetired, in.Symbol)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop не ждёт воркер: может вызываться из его же задачи.
func (in *Instrument) stop() {
	in.stopOnce.Do(func() { close(in.quit) })
}

func (in *Instrument) wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-in.done:
		return true
	case <-t.C:
		return false
	}
}
