package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"scalp_engine/internal/models"
)

type ticker24hDTO struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
}

func (c *Client) Ticker24h(ctx context.Context) ([]models.Ticker24h, error) {
	var raw []ticker24hDTO
	path := c.path("/api/v3/ticker/24hr", "/fapi/v1/ticker/24hr")
	if err := c.get(ctx, "ticker24h", path, nil, authNone, &raw); err != nil {
		return nil, err
	}

	out := make([]models.Ticker24h, 0, len(raw))
	for _, t := range raw {
		out = append(out, models.Ticker24h{
			Symbol:             t.Symbol,
			LastPrice:          parseFloat(t.LastPrice),
			PriceChangePercent: parseFloat(t.PriceChangePercent),
			Volume:             parseFloat(t.Volume),
			QuoteVolume:        parseFloat(t.QuoteVolume),
		})
	}
	return out, nil
}

type depthDTO struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

func (c *Client) BookTop(ctx context.Context, symbol string, depth int) (models.BookTop, error) {
	if depth <= 0 {
		depth = 5
	}
	// фьючерсы принимают только 5/10/20/50/...
	if c.mode.IsFutures() && depth < 5 {
		depth = 5
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(depth))

	var raw depthDTO
	path := c.path("/api/v3/depth", "/fapi/v1/depth")
	if err := c.get(ctx, "depth", path, params, authNone, &raw); err != nil {
		return models.BookTop{}, err
	}

	top := models.BookTop{Symbol: symbol}
	if len(raw.Bids) > 0 && len(raw.Bids[0]) > 0 {
		top.Bid = parseFloat(raw.Bids[0][0])
	}
	if len(raw.Asks) > 0 && len(raw.Asks[0]) > 0 {
		top.Ask = parseFloat(raw.Asks[0][0])
	}
	return top, nil
}

func (c *Client) Klines(ctx context.Context, symbol string, interval models.Interval, limit int) ([]models.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(interval))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var raw [][]any
	path := c.path("/api/v3/klines", "/fapi/v1/klines")
	if err := c.get(ctx, "klines", path, params, authNone, &raw); err != nil {
		return nil, err
	}

	now := c.now()
	out := make([]models.Candle, 0, len(raw))
	for i, row := range raw {
		cd, err := parseKlineRow(symbol, interval, row)
		if err != nil {
			return nil, errors.Wrapf(err, "klines %s row %d", symbol, i)
		}
		cd.Closed = !cd.CloseTime.After(now)
		out = append(out, cd)
	}
	return out, nil
}

// parseKlineRow разбирает строку вида
// [openTime, "o", "h", "l", "c", "v", closeTime, "quoteVolume", ...].
func parseKlineRow(symbol string, interval models.Interval, row []any) (models.Candle, error) {
	if len(row) < 8 {
		return models.Candle{}, fmt.Errorf("short kline row: %d fields", len(row))
	}
	openMs, ok := anyToInt64(row[0])
	if !ok {
		return models.Candle{}, fmt.Errorf("bad open time %v", row[0])
	}
	closeMs, ok := anyToInt64(row[6])
	if !ok {
		return models.Candle{}, fmt.Errorf("bad close time %v", row[6])
	}
	return models.Candle{
		Symbol:      symbol,
		Interval:    interval,
		Open:        anyToFloat(row[1]),
		High:        anyToFloat(row[2]),
		Low:         anyToFloat(row[3]),
		Close:       anyToFloat(row[4]),
		Volume:      anyToFloat(row[5]),
		QuoteVolume: anyToFloat(row[7]),
		OpenTime:    time.UnixMilli(openMs).UTC(),
		CloseTime:   time.UnixMilli(closeMs).UTC(),
	}, nil
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func anyToFloat(v any) float64 {
	switch x := v.(type) {
	case string:
		return parseFloat(x)
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	}
	return 0
}

func anyToInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(x), true
	case int64:
		return x, true
	case int:
		return int64(x), true
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	}
	return 0, false
}
