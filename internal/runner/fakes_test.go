package runner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scalp_engine/internal/models"
	ws "scalp_engine/internal/modules/binance_websocket/service"
	bootstrap "scalp_engine/internal/modules/bootstrap/service"
	health "scalp_engine/internal/modules/health/service"
	strategy "scalp_engine/internal/modules/strategy/service"
	"scalp_engine/internal/runner/executor"
	"scalp_engine/internal/runner/risk"
	"scalp_engine/internal/runner/scheduler"
)

var base = time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// anyFilters — одинаковые фильтры для любого символа.
type anyFilters struct{}

func (anyFilters) Filters(symbol string) (models.SymbolFilters, bool) {
	return models.SymbolFilters{
		Symbol:      symbol,
		HasPrice:    true,
		MinPrice:    0.01,
		TickSize:    0.01,
		HasLot:      true,
		MinQty:      0.001,
		StepSize:    0.001,
		HasNotional: true,
		MinNotional: 5,
	}, true
}

type fakeVenue struct {
	mu         sync.Mutex
	orders     []models.OrderRequest
	protective []models.ProtectiveRequest
	cancels    []int64
	nextID     int64

	createErr   error
	entryStatus models.OrderStatus
	entryExec   float64
	entryAvg    float64

	openOrders []models.OpenOrder
	positions  []models.VenuePosition
	query      models.OrderStatusInfo
	queryErr   error
}

func (v *fakeVenue) CreateOrder(_ context.Context, req models.OrderRequest) (models.OrderAck, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.createErr != nil {
		return models.OrderAck{}, v.createErr
	}
	v.orders = append(v.orders, req)
	v.nextID++
	ack := models.OrderAck{
		Symbol:        req.Symbol,
		OrderID:       v.nextID,
		ClientOrderID: req.ClientOrderID,
		Price:         req.Price,
	}
	if req.Side == models.SideBuy {
		ack.Status = v.entryStatus
		ack.ExecutedQty = v.entryExec
		ack.AvgPrice = v.entryAvg
		return ack, nil
	}
	ack.Status = models.OrderStatusFilled
	ack.ExecutedQty = req.Quantity
	return ack, nil
}

func (v *fakeVenue) CreateProtectiveOrder(_ context.Context, req models.ProtectiveRequest) (models.OrderAck, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.protective = append(v.protective, req)
	v.nextID++
	return models.OrderAck{Symbol: req.Symbol, OrderID: v.nextID, Status: models.OrderStatusNew}, nil
}

func (v *fakeVenue) CancelOrder(_ context.Context, _ string, orderID int64, _ string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cancels = append(v.cancels, orderID)
	return nil
}

func (v *fakeVenue) QueryOrder(context.Context, string, string) (models.OrderStatusInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.query, v.queryErr
}

func (v *fakeVenue) OpenOrders(context.Context, string) ([]models.OpenOrder, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.openOrders, nil
}

func (v *fakeVenue) Positions(context.Context, string) ([]models.VenuePosition, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.positions, nil
}

func (v *fakeVenue) Cancels() []int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]int64(nil), v.cancels...)
}

type fakeMarket struct {
	mu     sync.Mutex
	klines []models.Candle
	calls  int
}

func (m *fakeMarket) Ticker24h(context.Context) ([]models.Ticker24h, error) { return nil, nil }

func (m *fakeMarket) BookTop(_ context.Context, symbol string, _ int) (models.BookTop, error) {
	return models.BookTop{Symbol: symbol, Bid: 99.99, Ask: 100.01}, nil
}

func (m *fakeMarket) Klines(_ context.Context, symbol string, _ models.Interval, _ int) ([]models.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	out := make([]models.Candle, len(m.klines))
	for i, c := range m.klines {
		c.Symbol = symbol
		out[i] = c
	}
	return out, nil
}

func (m *fakeMarket) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakeStrategy struct {
	mu         sync.Mutex
	enter      bool
	exit       bool
	exitReason string
	enterCalls int
}

func (s *fakeStrategy) Name() string { return "fake" }

func (s *fakeStrategy) ShouldEnter(*strategy.MarketContext) (bool, strategy.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enterCalls++
	return s.enter, strategy.Signal{Trend: strategy.TrendUp, Spread: 0.0005, ATRPercent: 0.004, Reason: "test"}
}

func (s *fakeStrategy) CalculateTpSl(_ *strategy.MarketContext, entry float64) (float64, float64) {
	return entry * 1.03, entry * 0.985
}

func (s *fakeStrategy) ShouldExit(*strategy.MarketContext, float64, float64) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exit, s.exitReason
}

func (s *fakeStrategy) set(enter, exit bool, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enter, s.exit, s.exitReason = enter, exit, reason
}

func (s *fakeStrategy) EnterCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enterCalls
}

type fakeJournal struct {
	mu     sync.Mutex
	trades []models.TradeRecord
	fails  int
}

func (j *fakeJournal) SaveTrade(_ context.Context, tr models.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fails > 0 {
		j.fails--
		return fmt.Errorf("db unavailable")
	}
	j.trades = append(j.trades, tr)
	return nil
}

func (j *fakeJournal) Trades() []models.TradeRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]models.TradeRecord(nil), j.trades...)
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *fakeNotifier) SendService(_ context.Context, format string, args ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, fmt.Sprintf(format, args...))
}

func (n *fakeNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

type fakeStream struct {
	mu        sync.Mutex
	subs      [][]string
	connected bool
}

func (s *fakeStream) OnCandle(ws.CandleHandler) {}
func (s *fakeStream) OnStatus(ws.StatusHandler) {}

func (s *fakeStream) SetSymbols(symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, append([]string(nil), symbols...))
}

func (s *fakeStream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeStream) Run(ctx context.Context) { <-ctx.Done() }

func (s *fakeStream) LastSubscription() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return nil
	}
	return s.subs[len(s.subs)-1]
}

type fakeRanker struct {
	mu     sync.Mutex
	result []models.RankedSymbol
	err    error
}

func (f *fakeRanker) Rank(context.Context) ([]models.RankedSymbol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeRanker) set(symbols ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = nil
	for _, s := range symbols {
		f.result = append(f.result, models.RankedSymbol{Symbol: s, SpreadPercent: 0.0007})
	}
}

// fakeWarmup отдаёт по одной закрытой быстрой свече на символ.
type fakeWarmup struct {
	mu    sync.Mutex
	calls [][]string
}

func (w *fakeWarmup) Warmup(ctx context.Context, symbols []string, sink bootstrap.CandleSink) error {
	w.mu.Lock()
	w.calls = append(w.calls, append([]string(nil), symbols...))
	w.mu.Unlock()
	for _, s := range symbols {
		sink(ctx, candle(s, 0, 100))
	}
	return nil
}

func (w *fakeWarmup) Calls() [][]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]string(nil), w.calls...)
}

type noopSymbols struct{}

func (noopSymbols) EnsureFresh(context.Context) error { return nil }

func candle(symbol string, i int, closePrice float64) models.Candle {
	open := base.Add(time.Duration(i) * time.Minute)
	return models.Candle{
		Symbol:    symbol,
		Interval:  models.Interval1m,
		Open:      closePrice,
		High:      closePrice,
		Low:       closePrice,
		Close:     closePrice,
		Volume:    10,
		OpenTime:  open,
		CloseTime: open.Add(time.Minute - time.Millisecond),
		Closed:    true,
	}
}

type harness struct {
	r        *Runner
	clock    *testClock
	venue    *fakeVenue
	market   *fakeMarket
	strat    *fakeStrategy
	journal  *fakeJournal
	notifier *fakeNotifier
	stream   *fakeStream
	ranker   *fakeRanker
	warmup   *fakeWarmup
	risk     *risk.Manager
	exec     *executor.Executor
	health   *health.State
}

func newHarness(t *testing.T, mode models.Mode, dryRun bool) *harness {
	t.Helper()
	h := &harness{
		clock:    &testClock{t: base},
		venue:    &fakeVenue{entryStatus: models.OrderStatusFilled},
		market:   &fakeMarket{},
		strat:    &fakeStrategy{},
		journal:  &fakeJournal{},
		notifier: &fakeNotifier{},
		stream:   &fakeStream{},
		ranker:   &fakeRanker{},
		warmup:   &fakeWarmup{},
		health:   health.NewState(),
	}
	h.exec = executor.New(h.venue, anyFilters{}, mode, dryRun, executor.WithClock(h.clock.Now))
	h.risk = risk.NewManager(2, 0.1, risk.WithClock(h.clock.Now))

	cfg := Config{
		Mode:                mode,
		DryRun:              dryRun,
		QuoteAsset:          "USDT",
		StartingBankroll:    1000,
		Cooldown:            10 * time.Minute,
		Leverage:            1,
		QueueSize:           16,
		LossStreakRetention: 24 * time.Hour,
		RankInterval:        15 * time.Minute,
		ReconcileInterval:   5 * time.Minute,
		PollInterval:        time.Minute,
		CleanupInterval:     time.Hour,
		PollSymbols:         5,
		FastInterval:        models.Interval1m,
		SlowInterval:        models.Interval5m,
	}
	h.r = New(cfg, Deps{
		Market:    h.market,
		Exec:      h.exec,
		Risk:      h.risk,
		Strategy:  h.strat,
		Params:    strategy.DefaultParams(),
		Ranker:    h.ranker,
		Warmup:    h.warmup,
		Symbols:   noopSymbols{},
		Stream:    h.stream,
		Journal:   h.journal,
		Notifier:  h.notifier,
		Health:    h.health,
		Scheduler: scheduler.New(),
	}, WithClock(h.clock.Now))
	t.Cleanup(func() { _ = h.r.Stop(context.Background()) })
	return h
}

// admit допускает символы и возвращает инструмент первого.
func (h *harness) admit(t *testing.T, symbols ...string) *Instrument {
	t.Helper()
	h.r.reg.Admit(symbols)
	in, ok := h.r.reg.Get(symbols[0])
	require.True(t, ok)
	return in
}

// on выполняет j на воркере инструмента и ждёт завершения.
func on(t *testing.T, in *Instrument, j job) {
	t.Helper()
	require.NoError(t, in.Call(context.Background(), j))
}

func (h *harness) feed(t *testing.T, in *Instrument, c models.Candle) {
	t.Helper()
	on(t, in, func(ctx context.Context, in *Instrument) { h.r.onCandle(ctx, in, c, true) })
}
