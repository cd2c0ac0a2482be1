package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"scalp_engine/internal/exchange"
	"scalp_engine/internal/helper"
	"scalp_engine/internal/models"
	"scalp_engine/pkg/logger"
)

var (
	ErrNoFilters     = errors.New("symbol filters unavailable")
	ErrNoActiveOrder = errors.New("no active order")
)

type Option func(*Executor)

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// Executor — проверка ордеров по фильтрам биржи, отправка и учёт активных ордеров.
// Таблица активных ордеров под мьютексом; сетевые вызовы идут без блокировки.
type Executor struct {
	venue   exchange.Trading
	filters exchange.FilterSource
	mode    models.Mode
	dryRun  bool
	now     func() time.Time

	dryID atomic.Int64

	mu     sync.Mutex
	active map[string]models.ActiveOrder
}

func New(venue exchange.Trading, filters exchange.FilterSource, mode models.Mode, dryRun bool, opts ...Option) *Executor {
	e := &Executor{
		venue:   venue,
		filters: filters,
		mode:    mode,
		dryRun:  dryRun,
		now:     time.Now,
		active:  make(map[string]models.ActiveOrder),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Executor) DryRun() bool      { return e.dryRun }
func (e *Executor) Mode() models.Mode { return e.mode }

// ValidateOrder — цена и количество, округлённые под фильтры символа.
func (e *Executor) ValidateOrder(symbol string, price, qty float64) (float64, float64, error) {
	f, ok := e.filters.Filters(symbol)
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrNoFilters, symbol)
	}
	return f.Validate(price, qty)
}

// EnterLong выставляет вход в лонг. На фьючерсах — MARKET + TP/SL (closePosition),
// на споте — LIMIT IOC по расчётной цене.
func (e *Executor) EnterLong(ctx context.Context, symbol string, price, qty, tp, sl float64) (models.OrderAck, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "executor.enter_long")
	defer span.Finish()
	span.SetTag("symbol", symbol)

	p, q, err := e.ValidateOrder(symbol, price, qty)
	if err != nil {
		ext.LogError(span, err)
		return models.OrderAck{}, err
	}
	if f, ok := e.filters.Filters(symbol); ok {
		if tp > 0 {
			tp = helper.RoundToStep(tp, f.TickSize)
		}
		if sl > 0 {
			sl = helper.RoundToStep(sl, f.TickSize)
		}
	}

	clientID := helper.NewClientOrderID(symbol, e.now())
	order := models.ActiveOrder{
		Symbol:        symbol,
		ClientOrderID: clientID,
		Side:          models.SideBuy,
		Price:         p,
		Qty:           q,
		TakeProfit:    tp,
		StopLoss:      sl,
		CreatedAt:     e.now(),
	}

	if e.dryRun {
		order.OrderID = e.dryID.Add(1)
		order.Filled = true
		e.track(order)
		logger.Info("[EXEC] DRY-RUN buy %s qty=%s @ %s tp=%s sl=%s",
			symbol, helper.FormatDecimal(q), helper.FormatDecimal(p), helper.FormatDecimal(tp), helper.FormatDecimal(sl))
		return models.OrderAck{
			Symbol:        symbol,
			OrderID:       order.OrderID,
			ClientOrderID: clientID,
			Status:        models.OrderStatusFilled,
			Price:         p,
			ExecutedQty:   q,
			DryRun:        true,
		}, nil
	}

	req := models.OrderRequest{
		Symbol:        symbol,
		Side:          models.SideBuy,
		Quantity:      q,
		ClientOrderID: clientID,
	}
	if e.mode.IsFutures() {
		req.Type = models.OrderTypeMarket
	} else {
		req.Type = models.OrderTypeLimit
		req.Price = p
		req.TimeInForce = models.TimeInForceIOC
	}

	ack, err := e.venue.CreateOrder(ctx, req)
	if err != nil {
		ext.LogError(span, err)
		return models.OrderAck{}, fmt.Errorf("enter %s: %w", symbol, err)
	}
	order.OrderID = ack.OrderID
	span.SetTag("order_id", ack.OrderID)

	if e.mode.IsFutures() {
		order.ProtectiveIDs = e.placeProtective(ctx, symbol, tp, sl)
	}

	e.track(order)
	logger.Info("[EXEC] buy %s %s qty=%s @ %s status=%s id=%d",
		symbol, req.Type, helper.FormatDecimal(q), helper.FormatDecimal(p), ack.Status, ack.OrderID)
	return ack, nil
}

// placeProtective — TP/SL на фьючерсах. Ошибка не отменяет вход.
func (e *Executor) placeProtective(ctx context.Context, symbol string, tp, sl float64) []int64 {
	var ids []int64
	legs := []struct {
		typ   models.OrderType
		price float64
	}{
		{models.OrderTypeTakeProfitMarket, tp},
		{models.OrderTypeStopMarket, sl},
	}
	for _, leg := range legs {
		if leg.price <= 0 {
			continue
		}
		ack, err := e.venue.CreateProtectiveOrder(ctx, models.ProtectiveRequest{
			Symbol:        symbol,
			Side:          models.SideSell,
			Type:          leg.typ,
			StopPrice:     leg.price,
			ClientOrderID: helper.NewClientOrderID(symbol, e.now()),
		})
		if err != nil {
			logger.Warn("[EXEC] %s %s @ %s not placed: %v", symbol, leg.typ, helper.FormatDecimal(leg.price), err)
			continue
		}
		ids = append(ids, ack.OrderID)
	}
	return ids
}

// ExitPosition закрывает отслеживаемое количество: LIMIT IOC при price>0, иначе MARKET.
// После успешной отправки активный ордер снимается с учёта, не дожидаясь исполнения.
func (e *Executor) ExitPosition(ctx context.Context, symbol string, price float64, reason string) (models.OrderAck, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "executor.exit_position")
	defer span.Finish()
	span.SetTag("symbol", symbol)
	span.SetTag("reason", reason)

	order, ok := e.Active(symbol)
	if !ok {
		return models.OrderAck{}, fmt.Errorf("%w: %s", ErrNoActiveOrder, symbol)
	}

	if e.dryRun {
		e.Drop(symbol)
		logger.Info("[EXEC] DRY-RUN sell %s qty=%s @ %s reason=%s",
			symbol, helper.FormatDecimal(order.Qty), helper.FormatDecimal(price), reason)
		return models.OrderAck{
			Symbol:      symbol,
			OrderID:     e.dryID.Add(1),
			Status:      models.OrderStatusFilled,
			Price:       price,
			ExecutedQty: order.Qty,
			DryRun:      true,
		}, nil
	}

	if e.mode.IsFutures() {
		e.cancelProtective(ctx, order, 0)
		e.setProtective(symbol, nil)
	}

	req := models.OrderRequest{
		Symbol:        symbol,
		Side:          models.SideSell,
		Quantity:      order.Qty,
		ClientOrderID: helper.NewClientOrderID(symbol, e.now()),
		ReduceOnly:    e.mode.IsFutures(),
	}
	if price > 0 {
		if f, ok := e.filters.Filters(symbol); ok {
			price = helper.RoundToStep(price, f.TickSize)
		}
		req.Type = models.OrderTypeLimit
		req.Price = price
		req.TimeInForce = models.TimeInForceIOC
	} else {
		req.Type = models.OrderTypeMarket
	}

	ack, err := e.venue.CreateOrder(ctx, req)
	if err != nil {
		ext.LogError(span, err)
		// позиция осталась: возвращаем TP/SL до следующей попытки выхода
		if e.mode.IsFutures() {
			e.setProtective(symbol, e.placeProtective(ctx, symbol, order.TakeProfit, order.StopLoss))
		}
		return models.OrderAck{}, fmt.Errorf("exit %s: %w", symbol, err)
	}
	e.Drop(symbol)
	logger.Info("[EXEC] sell %s %s qty=%s status=%s reason=%s",
		symbol, req.Type, helper.FormatDecimal(order.Qty), ack.Status, reason)
	return ack, nil
}

// CancelProtective снимает защитные ордера, кроме except (уже исполненного).
func (e *Executor) CancelProtective(ctx context.Context, symbol string, except int64) {
	if order, ok := e.Active(symbol); ok && !e.dryRun {
		e.cancelProtective(ctx, order, except)
	}
}

func (e *Executor) cancelProtective(ctx context.Context, order models.ActiveOrder, except int64) {
	for _, id := range order.ProtectiveIDs {
		if id == except {
			continue
		}
		if err := e.venue.CancelOrder(ctx, order.Symbol, id, ""); err != nil && !exchange.IsNotFound(err) {
			logger.Warn("[EXEC] cancel protective %s #%d: %v", order.Symbol, id, err)
		}
	}
}

// CancelOrder отменяет отслеживаемый ордер. «Уже нет на бирже» — тоже успех.
func (e *Executor) CancelOrder(ctx context.Context, symbol string) bool {
	order, ok := e.Active(symbol)
	if !ok {
		return false
	}
	if !e.dryRun {
		err := e.venue.CancelOrder(ctx, symbol, order.OrderID, order.ClientOrderID)
		if err != nil && !exchange.IsNotFound(err) {
			logger.Warn("[EXEC] cancel %s #%d: %v", symbol, order.OrderID, err)
			return false
		}
	}
	e.Drop(symbol)
	return true
}

// ReconcileResult — как биржа видит символ. OK=false — биржа не ответила, решения не принимаем.
type ReconcileResult struct {
	OpenOrders []models.OpenOrder
	Positions  []models.VenuePosition
	Tracked    *models.OrderStatusInfo
	MarkPrice  float64 // 0 — биржа не отдала
	OK         bool
}

// TrackedOpen — висит ли наш ордер среди открытых.
func (r ReconcileResult) TrackedOpen(order models.ActiveOrder) bool {
	for _, o := range r.OpenOrders {
		if (order.OrderID != 0 && o.OrderID == order.OrderID) ||
			(order.ClientOrderID != "" && o.ClientOrderID == order.ClientOrderID) {
			return true
		}
	}
	return false
}

// PositionAmount — суммарный объём позиции по символу (фьючерсы).
func (r ReconcileResult) PositionAmount() float64 {
	var amt float64
	for _, p := range r.Positions {
		amt += p.Amount
	}
	return amt
}

// Reconcile никогда не возвращает ошибку: NotFound — пустой успешный ответ,
// остальное логируется и даёт пустой результат с OK=false.
func (e *Executor) Reconcile(ctx context.Context, symbol string) ReconcileResult {
	if e.dryRun {
		return ReconcileResult{OK: true}
	}

	var res ReconcileResult
	orders, err := e.venue.OpenOrders(ctx, symbol)
	switch {
	case err == nil:
		res.OpenOrders = orders
	case exchange.IsNotFound(err):
	default:
		logger.Warn("[EXEC] reconcile %s open orders: %v", symbol, err)
		return ReconcileResult{}
	}

	if e.mode.IsFutures() {
		positions, err := e.venue.Positions(ctx, symbol)
		switch {
		case err == nil:
			for _, p := range positions {
				if p.MarkPrice > 0 {
					res.MarkPrice = p.MarkPrice
				}
				if p.Amount != 0 {
					res.Positions = append(res.Positions, p)
				}
			}
		case exchange.IsNotFound(err):
		default:
			logger.Warn("[EXEC] reconcile %s positions: %v", symbol, err)
			return ReconcileResult{}
		}
	}

	if order, ok := e.Active(symbol); ok && !order.Filled && !res.TrackedOpen(order) {
		st, err := e.venue.QueryOrder(ctx, symbol, order.ClientOrderID)
		switch {
		case err == nil:
			res.Tracked = &st
		case exchange.IsNotFound(err):
		default:
			logger.Warn("[EXEC] reconcile %s query %s: %v", symbol, order.ClientOrderID, err)
			return ReconcileResult{}
		}
	}

	res.OK = true
	return res
}

func (e *Executor) track(o models.ActiveOrder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active[o.Symbol] = o
}

func (e *Executor) Active(symbol string) (models.ActiveOrder, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.active[symbol]
	return o, ok
}

// MarkFilled фиксирует исполнение входа: фактическое количество и цену.
func (e *Executor) MarkFilled(symbol string, qty, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.active[symbol]
	if !ok {
		return
	}
	if qty > 0 {
		o.Qty = qty
	}
	if price > 0 {
		o.Price = price
	}
	o.Filled = true
	e.active[symbol] = o
}

func (e *Executor) setProtective(symbol string, ids []int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o, ok := e.active[symbol]; ok {
		o.ProtectiveIDs = ids
		e.active[symbol] = o
	}
}

func (e *Executor) Drop(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, symbol)
}

func (e *Executor) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}
