package service

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"scalp_engine/internal/exchange"
	"scalp_engine/internal/helper"
	"scalp_engine/internal/models"
)

// orderDTO покрывает ответы spot и futures: у спота нет avgPrice,
// зато есть cummulativeQuoteQty.
type orderDTO struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	Price               string `json:"price"`
	AvgPrice            string `json:"avgPrice"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	Type                string `json:"type"`
	Side                string `json:"side"`
}

func (d orderDTO) avgPrice() float64 {
	if avg := parseFloat(d.AvgPrice); avg > 0 {
		return avg
	}
	exec := parseFloat(d.ExecutedQty)
	quote := parseFloat(d.CummulativeQuoteQty)
	if exec > 0 && quote > 0 {
		return quote / exec
	}
	return 0
}

func (d orderDTO) ack() models.OrderAck {
	return models.OrderAck{
		Symbol:        d.Symbol,
		OrderID:       d.OrderID,
		ClientOrderID: d.ClientOrderID,
		Status:        models.OrderStatus(d.Status),
		Price:         parseFloat(d.Price),
		AvgPrice:      d.avgPrice(),
		ExecutedQty:   parseFloat(d.ExecutedQty),
	}
}

func (c *Client) orderPath() string { return c.path("/api/v3/order", "/fapi/v1/order") }

func (c *Client) CreateOrder(ctx context.Context, req models.OrderRequest) (models.OrderAck, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", helper.FormatDecimal(req.Quantity))
	if req.Type == models.OrderTypeLimit {
		tif := req.TimeInForce
		if tif == "" {
			tif = models.TimeInForceGTC
		}
		params.Set("price", helper.FormatDecimal(req.Price))
		params.Set("timeInForce", string(tif))
	}
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}
	if c.mode.IsFutures() && req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	params.Set("newOrderRespType", "RESULT")

	var raw orderDTO
	// POST не повторяем: повтор может выставить второй ордер
	if err := c.do(ctx, "create order", http.MethodPost, c.orderPath(), params, authSigned, &raw); err != nil {
		return models.OrderAck{}, err
	}
	return raw.ack(), nil
}

// CreateProtectiveOrder — TP/SL на фьючерсах, закрывают всю позицию по mark price.
func (c *Client) CreateProtectiveOrder(ctx context.Context, req models.ProtectiveRequest) (models.OrderAck, error) {
	if !c.mode.IsFutures() {
		return models.OrderAck{}, &exchange.Error{
			Kind: exchange.KindUnsupported,
			Op:   "create protective order",
			Msg:  "protective orders are futures only",
		}
	}
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("stopPrice", helper.FormatDecimal(req.StopPrice))
	params.Set("closePosition", "true")
	params.Set("workingType", "MARK_PRICE")
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}

	var raw orderDTO
	if err := c.do(ctx, "create protective order", http.MethodPost, c.orderPath(), params, authSigned, &raw); err != nil {
		return models.OrderAck{}, err
	}
	return raw.ack(), nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64, clientOrderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	switch {
	case orderID > 0:
		params.Set("orderId", strconv.FormatInt(orderID, 10))
	case clientOrderID != "":
		params.Set("origClientOrderId", clientOrderID)
	}
	return c.do(ctx, "cancel order", http.MethodDelete, c.orderPath(), params, authSigned, nil)
}

func (c *Client) QueryOrder(ctx context.Context, symbol string, clientOrderID string) (models.OrderStatusInfo, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientOrderID)

	var raw orderDTO
	if err := c.get(ctx, "query order", c.orderPath(), params, authSigned, &raw); err != nil {
		return models.OrderStatusInfo{}, err
	}
	return models.OrderStatusInfo{
		Symbol:        raw.Symbol,
		OrderID:       raw.OrderID,
		ClientOrderID: raw.ClientOrderID,
		Status:        models.OrderStatus(raw.Status),
		Price:         parseFloat(raw.Price),
		AvgPrice:      raw.avgPrice(),
		ExecutedQty:   parseFloat(raw.ExecutedQty),
	}, nil
}

func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	var raw []orderDTO
	path := c.path("/api/v3/openOrders", "/fapi/v1/openOrders")
	if err := c.get(ctx, "open orders", path, params, authSigned, &raw); err != nil {
		return nil, err
	}

	out := make([]models.OpenOrder, 0, len(raw))
	for _, o := range raw {
		out = append(out, models.OpenOrder{
			Symbol:        o.Symbol,
			OrderID:       o.OrderID,
			ClientOrderID: o.ClientOrderID,
			Side:          models.Side(o.Side),
			Type:          models.OrderType(o.Type),
			Price:         parseFloat(o.Price),
			Qty:           parseFloat(o.OrigQty),
			Status:        models.OrderStatus(o.Status),
		})
	}
	return out, nil
}

type positionRiskDTO struct {
	Symbol      string `json:"symbol"`
	PositionAmt string `json:"positionAmt"`
	EntryPrice  string `json:"entryPrice"`
	MarkPrice   string `json:"markPrice"`
}

// Positions — только фьючерсы; на споте позиций у биржи нет.
func (c *Client) Positions(ctx context.Context, symbol string) ([]models.VenuePosition, error) {
	if !c.mode.IsFutures() {
		return nil, nil
	}
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	var raw []positionRiskDTO
	if err := c.get(ctx, "positions", "/fapi/v2/positionRisk", params, authSigned, &raw); err != nil {
		return nil, err
	}

	out := make([]models.VenuePosition, 0, len(raw))
	for _, p := range raw {
		out = append(out, models.VenuePosition{
			Symbol:     p.Symbol,
			Amount:     parseFloat(p.PositionAmt),
			EntryPrice: parseFloat(p.EntryPrice),
			MarkPrice:  parseFloat(p.MarkPrice),
		})
	}
	return out, nil
}

// SetLeverage — плечо на символ (фьючерсы). На споте ничего не делает.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if !c.mode.IsFutures() || leverage <= 0 {
		return nil
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))
	return c.do(ctx, "set leverage", http.MethodPost, "/fapi/v1/leverage", params, authSigned, nil)
}
