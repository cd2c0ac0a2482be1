package exchange

import (
	"context"

	"scalp_engine/internal/models"
)

// MarketData — публичные запросы к бирже.
type MarketData interface {
	Ticker24h(ctx context.Context) ([]models.Ticker24h, error)
	BookTop(ctx context.Context, symbol string, depth int) (models.BookTop, error)
	Klines(ctx context.Context, symbol string, interval models.Interval, limit int) ([]models.Candle, error)
}

// Trading — команды и запросы по ордерам и позициям.
type Trading interface {
	CreateOrder(ctx context.Context, req models.OrderRequest) (models.OrderAck, error)
	CreateProtectiveOrder(ctx context.Context, req models.ProtectiveRequest) (models.OrderAck, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64, clientOrderID string) error
	QueryOrder(ctx context.Context, symbol string, clientOrderID string) (models.OrderStatusInfo, error)
	OpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error)
	Positions(ctx context.Context, symbol string) ([]models.VenuePosition, error)
}

type Account interface {
	Balance(ctx context.Context, asset string) (float64, error)
}

// FilterSource — кэш метаданных инструментов.
type FilterSource interface {
	Filters(symbol string) (models.SymbolFilters, bool)
}
