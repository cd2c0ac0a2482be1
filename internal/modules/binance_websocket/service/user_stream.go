package service

import (
	"context"
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

var errListenKeyExpired = errors.New("listen key expired")

type ListenKeyAPI interface {
	CreateListenKey(ctx context.Context) (string, error)
	KeepaliveListenKey(ctx context.Context, key string) error
	CloseListenKey(ctx context.Context, key string) error
}

type OrderUpdateHandler func(ctx context.Context, u models.OrderUpdate)

type AccountUpdateHandler func(u models.AccountUpdate)

// UserStream — поток событий аккаунта по listenKey.
type UserStream struct {
	baseURL     string
	keys        ListenKeyAPI
	keepalive   time.Duration
	backoff     backoff
	dialer      *websocket.Dialer
	readTimeout time.Duration

	mu        sync.RWMutex
	onOrder   OrderUpdateHandler
	onAccount AccountUpdateHandler
	onStatus  StatusHandler

	connected atomic.Bool
}

func NewUserStream(cfg *config.Config, keys ListenKeyAPI) *UserStream {
	keepalive := cfg.Binance.KeepaliveInterval
	if keepalive <= 0 {
		keepalive = 30 * time.Minute
	}
	return &UserStream{
		baseURL:     strings.TrimRight(cfg.Binance.WSURL, "/"),
		keys:        keys,
		keepalive:   keepalive,
		backoff:     newBackoff(cfg),
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		readTimeout: time.Hour,
	}
}

func (s *UserStream) OnOrderUpdate(h OrderUpdateHandler) {
	s.mu.Lock()
	s.onOrder = h
	s.mu.Unlock()
}

func (s *UserStream) OnAccountUpdate(h AccountUpdateHandler) {
	s.mu.Lock()
	s.onAccount = h
	s.mu.Unlock()
}

func (s *UserStream) OnStatus(h StatusHandler) {
	s.mu.Lock()
	s.onStatus = h
	s.mu.Unlock()
}

func (s *UserStream) Connected() bool { return s.connected.Load() }

func (s *UserStream) setConnected(v bool) {
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

func (s *UserStream) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		key, err := s.keys.CreateListenKey(ctx)
		if err == nil {
			err = s.session(ctx, key)
			s.setConnected(false)
			s.closeKey(key)
		}
		if ctx.Err() != nil {
			logger.Info("[USER] user stream stopped")
			return
		}
		if errors.Is(err, errListenKeyExpired) {
			logger.Warn("[USER] listen key expired, reopening")
			continue
		}
		if !sleep(ctx, s.backoff.delay("USER", err)) {
			return
		}
	}
}

func (s *UserStream) closeKey(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.keys.CloseListenKey(ctx, key); err != nil && !exchange.IsNotFound(err) {
		logger.Debug("[USER] close listen key: %v", err)
	}
}

func (s *UserStream) session(ctx context.Context, key string) error {
	conn, resp, err := s.dialer.DialContext(ctx, s.baseURL+"/ws/"+key, nil)
	if err != nil {
		return bclient.ClassifyHandshake("user stream dial", resp, err)
	}
	defer conn.Close()

	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	s.setConnected(true)
	logger.Info("[USER] user stream connected")

	done := make(chan struct{})
	defer close(done)
	go s.keepaliveLoop(ctx, key, conn, done)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return exchange.NewError(exchange.KindTransient, "user stream read", err)
		}

		ev, err := parseUserEvent(msg)
		if err != nil {
			logger.Warn("[USER] bad event: %v", err)
			continue
		}

		s.mu.RLock()
		onOrder, onAccount := s.onOrder, s.onAccount
		s.mu.RUnlock()

		switch {
		case ev.ListenKeyGone:
			return errListenKeyExpired
		case ev.Order != nil:
			logger.Debug("[USER] order update %s %s %s exec=%v",
				ev.Order.Symbol, ev.Order.ClientOrderID, ev.Order.Status, ev.Order.ExecutedQty)
			if onOrder != nil {
				onOrder(ctx, *ev.Order)
			}
		case ev.Account != nil:
			if onAccount != nil {
				onAccount(*ev.Account)
			}
		}
	}
}

// keepaliveLoop продлевает listenKey; если биржа его уже не знает — рвём соединение.
func (s *UserStream) keepaliveLoop(ctx context.Context, key string, conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(s.keepalive)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-t.C:
			err := s.keys.KeepaliveListenKey(ctx, key)
			switch {
			case err == nil:
				logger.Debug("[USER] listen key extended")
			case exchange.IsNotFound(err):
				logger.Warn("[USER] listen key unknown to venue, reconnecting")
				_ = conn.Close()
				return
			default:
				logger.Warn("[USER] keepalive failed: %v", err)
			}
		}
	}
}
