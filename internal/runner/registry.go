package runner

import (
	"context"
	"sort"
	"sync"
	"time"

	"scalp_engine/internal/runner/fsm"
	"scalp_engine/pkg/logger"
)

const workerStopTimeout = 10 * time.Second

// Registry — символ -> инструмент. Инструменты создаются лениво при допуске
// и снимаются только из IDLE.
type Registry struct {
	ctx     context.Context
	factory func(symbol string) *Instrument

	mu       sync.RWMutex
	items    map[string]*Instrument
	admitted []string
	isAdmit  map[string]struct{}
}

func NewRegistry(ctx context.Context, factory func(symbol string) *Instrument) *Registry {
	return &Registry{
		ctx:     ctx,
		factory: factory,
		items:   make(map[string]*Instrument),
		isAdmit: make(map[string]struct{}),
	}
}

func (r *Registry) Get(symbol string) (*Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, ok := r.items[symbol]
	return in, ok
}

// Admit задаёт допущенный набор. Существующие инструменты сохраняют состояние.
// dropped — кандидаты на снятие; снимать их должен их же воркер (см. Retire).
func (r *Registry) Admit(symbols []string) (added, dropped []*Instrument) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]struct{}, len(symbols))
	order := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, dup := next[s]; dup {
			continue
		}
		next[s] = struct{}{}
		order = append(order, s)

		if _, ok := r.items[s]; ok {
			continue
		}
		in := r.factory(s)
		r.items[s] = in
		go in.run(r.ctx)
		added = append(added, in)
	}

	for s, in := range r.items {
		if _, ok := next[s]; !ok {
			dropped = append(dropped, in)
		}
	}
	sort.Slice(dropped, func(i, j int) bool { return dropped[i].Symbol < dropped[j].Symbol })

	r.admitted = order
	r.isAdmit = next
	return added, dropped
}

// Retire убирает инструмент, если он не допущен снова и всё ещё в реестре.
func (r *Registry) Retire(in *Instrument) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.isAdmit[in.Symbol]; ok {
		return false
	}
	if cur, ok := r.items[in.Symbol]; !ok || cur != in {
		return false
	}
	delete(r.items, in.Symbol)
	in.stop()
	return true
}

func (r *Registry) IsAdmitted(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.isAdmit[symbol]
	return ok
}

// Admitted — в порядке ранжирования.
func (r *Registry) Admitted() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.admitted))
	copy(out, r.admitted)
	return out
}

// Subscribed — допущенные плюс удерживаемые не-IDLE инструменты.
func (r *Registry) Subscribed() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.items))
	for s, in := range r.items {
		if _, ok := r.isAdmit[s]; ok || in.FSM.State() != fsm.StateIdle {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) All() []*Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instrument, 0, len(r.items))
	for _, in := range r.items {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Close останавливает все воркеры и ждёт их.
func (r *Registry) Close() {
	r.mu.Lock()
	items := make([]*Instrument, 0, len(r.items))
	for _, in := range r.items {
		items = append(items, in)
	}
	r.items = make(map[string]*Instrument)
	r.admitted = nil
	r.isAdmit = make(map[string]struct{})
	r.mu.Unlock()

	for _, in := range items {
		in.stop()
	}
	for _, in := range items {
		if !in.wait(workerStopTimeout) {
			logger.Warn("[REG] %s worker did not stop in %s", in.Symbol, workerStopTimeout)
		}
	}
}
