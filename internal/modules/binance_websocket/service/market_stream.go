package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"scalp_engine/internal/exchange"
	"scalp_engine/internal/models"
	bclient "scalp_engine/internal/modules/binance_client/service"
	"scalp_engine/internal/modules/config"
	"scalp_engine/pkg/logger"
)

var errResubscribe = errors.New("resubscribe requested")

type CandleHandler func(ctx context.Context, c models.Candle)

type StatusHandler func(connected bool)

// MarketStream — combined stream закрытых свечей по набору символов.
// Смена набора символов переоткрывает соединение.
type MarketStream struct {
	baseURL     string
	intervals   []models.Interval
	backoff     backoff
	dialer      *websocket.Dialer
	readTimeout time.Duration

	mu       sync.RWMutex
	symbols  []string
	onCandle CandleHandler
	onStatus StatusHandler

	resub     chan struct{}
	connected atomic.Bool
}

func NewMarketStream(cfg *config.Config) *MarketStream {
	return &MarketStream{
		baseURL:     strings.TrimRight(cfg.Binance.WSURL, "/"),
		intervals:   []models.Interval{cfg.FastInterval(), cfg.SlowInterval()},
		backoff:     newBackoff(cfg),
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		readTimeout: defaultReadTimeout,
		resub:       make(chan struct{}, 1),
	}
}

func (s *MarketStream) OnCandle(h CandleHandler) {
	s.mu.Lock()
	s.onCandle = h
	s.mu.Unlock()
}

func (s *MarketStream) OnStatus(h StatusHandler) {
	s.mu.Lock()
	s.onStatus = h
	s.mu.Unlock()
}

// SetSymbols задаёт набор символов; при изменении стрим переподписывается.
func (s *MarketStream) SetSymbols(symbols []string) {
	next := make([]string, len(symbols))
	copy(next, symbols)
	sort.Strings(next)

	s.mu.Lock()
	same := len(next) == len(s.symbols)
	if same {
		for i := range next {
			if next[i] != s.symbols[i] {
				same = false
				break
			}
		}
	}
	s.symbols = next
	s.mu.Unlock()

	if same {
		return
	}
	select {
	case s.resub <- struct{}{}:
	default:
	}
}

func (s *MarketStream) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

func (s *MarketStream) Connected() bool { return s.connected.Load() }

func (s *MarketStream) setConnected(v bool) {
	if s.connected.Swap(v) == v {
		return
	}
	s.mu.RLock()
	h := s.onStatus
	s.mu.RUnlock()
	if h != nil {
		h(v)
	}
}

// Run держит соединение до отмены контекста.
func (s *MarketStream) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		syms := s.Symbols()
		if len(syms) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-s.resub:
				continue
			}
		}

		err := s.session(ctx, syms)
		s.setConnected(false)
		if ctx.Err() != nil {
			logger.Info("[WS] market stream stopped")
			return
		}
		if errors.Is(err, errResubscribe) {
			logger.Info("[WS] market stream resubscribing")
			continue
		}
		if !sleep(ctx, s.backoff.delay("WS", err)) {
			return
		}
	}
}

func (s *MarketStream) session(ctx context.Context, syms []string) error {
	u := s.baseURL + "/stream?streams=" + strings.Join(streamNames(syms, s.intervals), "/")

	conn, resp, err := s.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return bclient.ClassifyHandshake("market stream dial", resp, err)
	}
	defer conn.Close()

	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	s.setConnected(true)
	logger.Info("[WS] market stream connected: symbols=%d intervals=%v", len(syms), s.intervals)

	var resubscribed atomic.Bool
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		case <-s.resub:
			resubscribed.Store(true)
		}
		_ = conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if resubscribed.Load() {
				return errResubscribe
			}
			return exchange.NewError(exchange.KindTransient, "market stream read", err)
		}

		c, ok, err := parseKline(msg)
		if err != nil {
			logger.Warn("[WS] bad kline message: %v", err)
			continue
		}
		if !ok || !c.Closed {
			continue
		}

		s.mu.RLock()
		h := s.onCandle
		s.mu.RUnlock()
		if h != nil {
			h(ctx, c)
		}
	}
}
