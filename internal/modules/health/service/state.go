package service

import (
	"sync/atomic"
	"time"
)

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected   atomic.Bool
	userConnected atomic.Bool
	lastTickUnix  atomic.Int64 // unix seconds

	admitted      atomic.Int64
	openPositions atomic.Int64
	tradesClosed  atomic.Int64
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

func (s *State) SetUserStreamConnected(v bool) { s.userConnected.Store(v) }
func (s *State) UserStreamConnected() bool     { return s.userConnected.Load() }

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) SetAdmitted(n int) { s.admitted.Store(int64(n)) }
func (s *State) Admitted() int     { return int(s.admitted.Load()) }

func (s *State) SetOpenPositions(n int) { s.openPositions.Store(int64(n)) }
func (s *State) OpenPositions() int     { return int(s.openPositions.Load()) }

func (s *State) IncTradesClosed()    { s.tradesClosed.Add(1) }
func (s *State) TradesClosed() int64 { return s.tradesClosed.Load() }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
