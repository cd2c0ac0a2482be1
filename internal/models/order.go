package models

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderType string

const (
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
)

type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// Terminal — ордер больше не изменится.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// OrderRequest — команда на выставление ордера.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      float64
	Price         float64 // 0 для MARKET
	TimeInForce   TimeInForce
	ClientOrderID string
	ReduceOnly    bool
}

// ProtectiveRequest — TP/SL на фьючерсах (closePosition=true).
type ProtectiveRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	StopPrice     float64
	ClientOrderID string
}

// OrderAck — ответ биржи (или синтетический ответ в dry-run).
type OrderAck struct {
	Symbol        string
	OrderID       int64
	ClientOrderID string
	Status        OrderStatus
	Price         float64
	AvgPrice      float64
	ExecutedQty   float64
	DryRun        bool
}

// FillPrice — лучшая известная цена исполнения.
func (a OrderAck) FillPrice() float64 {
	if a.AvgPrice > 0 {
		return a.AvgPrice
	}
	return a.Price
}

// OrderStatusInfo — состояние конкретного ордера по запросу /order.
type OrderStatusInfo struct {
	Symbol        string
	OrderID       int64
	ClientOrderID string
	Status        OrderStatus
	Price         float64
	AvgPrice      float64
	ExecutedQty   float64
}

// OpenOrder — ордер, который биржа считает открытым.
type OpenOrder struct {
	Symbol        string
	OrderID       int64
	ClientOrderID string
	Side          Side
	Type          OrderType
	Price         float64
	Qty           float64
	Status        OrderStatus
}

// OrderUpdate — событие из user data stream.
type OrderUpdate struct {
	Symbol        string
	ClientOrderID string
	OrderID       int64
	Side          Side
	Type          OrderType
	Status        OrderStatus
	ExecutedQty   float64
	Price         float64
	AvgPrice      float64
	LastPrice     float64
	EventTime     time.Time
}

// FillPrice: avg > last > price.
func (u OrderUpdate) FillPrice() float64 {
	switch {
	case u.AvgPrice > 0:
		return u.AvgPrice
	case u.LastPrice > 0:
		return u.LastPrice
	default:
		return u.Price
	}
}

// AccountUpdate — информационное событие об изменении балансов.
type AccountUpdate struct {
	EventTime time.Time
	Balances  map[string]float64
}

// ActiveOrder — ордер, который мы считаем живым на бирже (один на символ).
type ActiveOrder struct {
	Symbol        string
	OrderID       int64
	ClientOrderID string
	Side          Side
	Price         float64
	Qty           float64
	TakeProfit    float64
	StopLoss      float64
	ProtectiveIDs []int64
	Filled        bool
	CreatedAt     time.Time
}

func (o ActiveOrder) IsProtective(orderID int64) bool {
	for _, id := range o.ProtectiveIDs {
		if id == orderID {
			return true
		}
	}
	return false
}
