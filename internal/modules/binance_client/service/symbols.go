package service

import (
	"context"
	"sync"
	"time"

	"scalp_engine/internal/models"
	"scalp_engine/pkg/logger"
)

type exchangeInfoDTO struct {
	Symbols []struct {
		Symbol       string `json:"symbol"`
		Status       string `json:"status"`
		BaseAsset    string `json:"baseAsset"`
		QuoteAsset   string `json:"quoteAsset"`
		ContractType string `json:"contractType"`
		Filters      []struct {
			FilterType  string `json:"filterType"`
			MinPrice    string `json:"minPrice"`
			MaxPrice    string `json:"maxPrice"`
			TickSize    string `json:"tickSize"`
			MinQty      string `json:"minQty"`
			MaxQty      string `json:"maxQty"`
			StepSize    string `json:"stepSize"`
			MinNotional string `json:"minNotional"`
			Notional    string `json:"notional"`
		} `json:"filters"`
	} `json:"symbols"`
}

// ExchangeInfo — фильтры всех торгуемых символов.
// На фьючерсах берём только бессрочные контракты.
func (c *Client) ExchangeInfo(ctx context.Context) (map[string]models.SymbolFilters, error) {
	var raw exchangeInfoDTO
	path := c.path("/api/v3/exchangeInfo", "/fapi/v1/exchangeInfo")
	if err := c.get(ctx, "exchange info", path, nil, authNone, &raw); err != nil {
		return nil, err
	}

	out := make(map[string]models.SymbolFilters, len(raw.Symbols))
	for _, s := range raw.Symbols {
		if c.mode.IsFutures() && s.ContractType != "" && s.ContractType != "PERPETUAL" {
			continue
		}
		f := models.SymbolFilters{
			Symbol:     s.Symbol,
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
			Status:     s.Status,
		}
		for _, flt := range s.Filters {
			switch flt.FilterType {
			case "PRICE_FILTER":
				f.HasPrice = true
				f.MinPrice = parseFloat(flt.MinPrice)
				f.MaxPrice = parseFloat(flt.MaxPrice)
				f.TickSize = parseFloat(flt.TickSize)
			case "LOT_SIZE":
				f.HasLot = true
				f.MinQty = parseFloat(flt.MinQty)
				f.MaxQty = parseFloat(flt.MaxQty)
				f.StepSize = parseFloat(flt.StepSize)
			case "MIN_NOTIONAL", "NOTIONAL":
				// spot: minNotional, futures: notional
				v := parseFloat(flt.MinNotional)
				if v == 0 {
					v = parseFloat(flt.Notional)
				}
				if v > 0 {
					f.HasNotional = true
					f.MinNotional = v
				}
			}
		}
		out[s.Symbol] = f
	}
	return out, nil
}

// SymbolCache — кэш фильтров с периодическим обновлением.
type SymbolCache struct {
	client *Client
	ttl    time.Duration

	mu        sync.RWMutex
	filters   map[string]models.SymbolFilters
	fetchedAt time.Time
}

func NewSymbolCache(client *Client, ttl time.Duration) *SymbolCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SymbolCache{
		client:  client,
		ttl:     ttl,
		filters: make(map[string]models.SymbolFilters),
	}
}

func (s *SymbolCache) Refresh(ctx context.Context) error {
	filters, err := s.client.ExchangeInfo(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.filters = filters
	s.fetchedAt = time.Now()
	s.mu.Unlock()

	logger.Info("[SYMBOLS] cache refreshed: %d symbols", len(filters))
	return nil
}

// EnsureFresh обновляет кэш, если он пуст или устарел.
func (s *SymbolCache) EnsureFresh(ctx context.Context) error {
	s.mu.RLock()
	stale := len(s.filters) == 0 || time.Since(s.fetchedAt) > s.ttl
	s.mu.RUnlock()
	if !stale {
		return nil
	}
	return s.Refresh(ctx)
}

func (s *SymbolCache) Filters(symbol string) (models.SymbolFilters, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.filters[symbol]
	return f, ok
}

func (s *SymbolCache) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filters)
}

// Set подменяет содержимое кэша (тесты, dry-run без сети).
func (s *SymbolCache) Set(filters map[string]models.SymbolFilters) {
	s.mu.Lock()
	s.filters = filters
	s.fetchedAt = time.Now()
	s.mu.Unlock()
}

// Run обновляет кэш раз в ttl до отмены контекста.
func (s *SymbolCache) Run(ctx context.Context) {
	t := time.NewTicker(s.ttl)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.Refresh(ctx); err != nil {
				logger.Warn("[SYMBOLS] refresh failed: %v", err)
			}
		}
	}
}
