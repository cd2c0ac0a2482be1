package runner

import (
	"context"

	"scalp_engine/internal/models"
	"scalp_engine/internal/runner/fsm"
	"scalp_engine/pkg/logger"
)

func (r *Runner) dispatchOrderUpdate(ctx context.Context, u models.OrderUpdate) {
	in, ok := r.reg.Get(u.Symbol)
	if !ok {
		logger.Debug("[ORDER] %s #%d %s: symbol not tracked", u.Symbol, u.OrderID, u.Status)
		return
	}
	if err := in.Submit(ctx, func(ctx context.Context, in *Instrument) {
		r.onOrderUpdate(ctx, in, u)
	}); err != nil {
		logger.Warn("[ORDER] %s #%d %s lost: %v", u.Symbol, u.OrderID, u.Status, err)
	}
}

func (r *Runner) onOrderUpdate(ctx context.Context, in *Instrument, u models.OrderUpdate) {
	switch in.FSM.State() {
	case fsm.StateBuying:
		if u.ClientOrderID == "" || u.ClientOrderID != in.FSM.OrderRef() {
			break
		}
		r.applyEntryFill(ctx, in, u.Status, u.ExecutedQty, u.FillPrice())
		return

	case fsm.StatePosition:
		order, ok := r.d.Exec.Active(in.Symbol)
		if !ok || u.Status != models.OrderStatusFilled || !order.IsProtective(u.OrderID) {
			break
		}
		pos, _ := in.FSM.Position()
		reason := "stop_loss"
		if u.Type == models.OrderTypeTakeProfitMarket {
			reason = "take_profit"
		}
		if err := in.FSM.StartExiting(); err != nil {
			return
		}
		r.d.Exec.CancelProtective(ctx, in.Symbol, u.OrderID)

		price := u.FillPrice()
		if price <= 0 {
			price = in.Market.CurrentPrice()
		}
		r.finalize(ctx, in, pos, price, reason)
		return
	}
	logger.Debug("[ORDER] %s #%d %s ignored in %s", in.Symbol, u.OrderID, u.Status, in.FSM.State())
}
