package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"scalp_engine/internal/exchange"
	"scalp_engine/internal/models"
	"scalp_engine/pkg/retry"
)

func newTestClient(t *testing.T, mode models.Mode, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &Client{
		baseURL:    srv.URL,
		apiKey:     "key",
		apiSecret:  "secret",
		mode:       mode,
		recvWindow: 5000,
		http:       srv.Client(),
		limiter:    rate.NewLimiter(rate.Inf, 1),
		retry:      retry.Policy{Attempts: 3, Base: time.Millisecond, Max: 5 * time.Millisecond},
		now:        func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   exchange.Kind
	}{
		{"rate limited", 429, `{"code":-1003,"msg":"Too many requests"}`, exchange.KindTransient},
		{"banned", 418, ``, exchange.KindTransient},
		{"server error", 502, `bad gateway`, exchange.KindTransient},
		{"not available", 404, ``, exchange.KindUnsupported},
		{"restricted location", 451, ``, exchange.KindUnsupported},
		{"unknown order", 400, `{"code":-2011,"msg":"Unknown order sent."}`, exchange.KindNotFound},
		{"no such order", 400, `{"code":-2013,"msg":"Order does not exist."}`, exchange.KindNotFound},
		{"bad symbol", 400, `{"code":-1121,"msg":"Invalid symbol."}`, exchange.KindNotFound},
		{"unauthorized", 401, `{"code":-2015,"msg":"Invalid API-key"}`, exchange.KindFatal},
		{"bad key code", 400, `{"code":-2014,"msg":"API-key format invalid."}`, exchange.KindFatal},
		{"filter failure", 400, `{"code":-1013,"msg":"Filter failure: LOT_SIZE"}`, exchange.KindRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := classify("op", tc.status, []byte(tc.body))
			assert.Equal(t, tc.want, e.Kind)
			assert.Equal(t, tc.status, e.Status)
		})
	}
}

func TestSignedRequestCarriesKeyAndSignature(t *testing.T) {
	c := newTestClient(t, models.ModeSpot, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
		q := r.URL.Query()
		assert.Equal(t, "1700000000000", q.Get("timestamp"))
		assert.Equal(t, "5000", q.Get("recvWindow"))
		assert.Len(t, q.Get("signature"), 64)
		_, _ = w.Write([]byte(`{"balances":[{"asset":"USDT","free":"123.5","locked":"0"}]}`))
	})

	bal, err := c.Balance(context.Background(), "usdt")
	require.NoError(t, err)
	assert.InDelta(t, 123.5, bal, 1e-9)
}

func TestSignedRequestWithoutCredentialsIsFatal(t *testing.T) {
	c := newTestClient(t, models.ModeSpot, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent")
	})
	c.apiKey, c.apiSecret = "", ""

	_, err := c.Balance(context.Background(), "USDT")
	require.Error(t, err)
	assert.Equal(t, exchange.KindFatal, exchange.KindOf(err))
}

func TestGetRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, models.ModeSpot, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"bids":[["100.1","2"]],"asks":[["100.3","1"]]}`))
	})

	top, err := c.BookTop(context.Background(), "BTCUSDT", 5)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.InDelta(t, 100.1, top.Bid, 1e-9)
	assert.InDelta(t, 100.3, top.Ask, 1e-9)
}

func TestPostIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, models.ModeSpot, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.CreateOrder(context.Background(), models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.SideBuy, Type: models.OrderTypeMarket, Quantity: 0.01,
	})
	require.Error(t, err)
	assert.True(t, exchange.IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueryOrderNotFound(t *testing.T) {
	c := newTestClient(t, models.ModeFutures, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/order", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2013,"msg":"Order does not exist."}`))
	})

	_, err := c.QueryOrder(context.Background(), "BTCUSDT", "BTCUSDT_x")
	require.Error(t, err)
	assert.True(t, exchange.IsNotFound(err))
}

func TestCreateOrderSpotAvgPrice(t *testing.T) {
	c := newTestClient(t, models.ModeSpot, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "LIMIT", q.Get("type"))
		assert.Equal(t, "GTC", q.Get("timeInForce"))
		assert.Equal(t, "101.5", q.Get("price"))
		assert.Equal(t, "cid-1", q.Get("newClientOrderId"))
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":42,"clientOrderId":"cid-1","price":"101.5",
			"origQty":"2","executedQty":"2","cummulativeQuoteQty":"202","status":"FILLED"}`))
	})

	ack, err := c.CreateOrder(context.Background(), models.OrderRequest{
		Symbol: "BTCUSDT", Side: models.SideBuy, Type: models.OrderTypeLimit,
		Quantity: 2, Price: 101.5, ClientOrderID: "cid-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), ack.OrderID)
	assert.Equal(t, models.OrderStatusFilled, ack.Status)
	assert.InDelta(t, 101.0, ack.AvgPrice, 1e-9)
	assert.InDelta(t, 2.0, ack.ExecutedQty, 1e-9)
}

func TestKlinesParsing(t *testing.T) {
	c := newTestClient(t, models.ModeSpot, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(`[
			[1699999880000,"10","12","9","11","100",1699999939999,"1100",5,"1","1","0"],
			[1699999940000,"11","13","10","12","50",1699999999999,"600",3,"1","1","0"],
			[1700000000000,"12","12","12","12","1",1700000059999,"12",1,"1","1","0"]
		]`))
	})

	candles, err := c.Klines(context.Background(), "BTCUSDT", models.Interval1m, 3)
	require.NoError(t, err)
	require.Len(t, candles, 3)

	assert.Equal(t, time.UnixMilli(1699999880000).UTC(), candles[0].OpenTime)
	assert.InDelta(t, 11.0, candles[0].Close, 1e-9)
	assert.InDelta(t, 1100.0, candles[0].QuoteVolume, 1e-9)
	assert.True(t, candles[0].Closed)
	assert.True(t, candles[1].Closed)
	// последняя ещё формируется
	assert.False(t, candles[2].Closed)
}

func TestExchangeInfoFilters(t *testing.T) {
	c := newTestClient(t, models.ModeFutures, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbols":[
			{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT","contractType":"PERPETUAL",
			 "filters":[
				{"filterType":"PRICE_FILTER","minPrice":"0.10","maxPrice":"1000000","tickSize":"0.10"},
				{"filterType":"LOT_SIZE","minQty":"0.001","maxQty":"1000","stepSize":"0.001"},
				{"filterType":"MIN_NOTIONAL","notional":"100"}]},
			{"symbol":"BTCUSDT_251226","status":"TRADING","contractType":"CURRENT_QUARTER","filters":[]}
		]}`))
	})

	filters, err := c.ExchangeInfo(context.Background())
	require.NoError(t, err)
	require.Len(t, filters, 1)

	f := filters["BTCUSDT"]
	assert.True(t, f.HasPrice)
	assert.InDelta(t, 0.1, f.TickSize, 1e-12)
	assert.True(t, f.HasLot)
	assert.InDelta(t, 0.001, f.StepSize, 1e-12)
	assert.True(t, f.HasNotional)
	assert.InDelta(t, 100.0, f.MinNotional, 1e-9)

	cache := NewSymbolCache(c, time.Hour)
	require.NoError(t, cache.EnsureFresh(context.Background()))
	got, ok := cache.Filters("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "USDT", got.QuoteAsset)
	_, ok = cache.Filters("ETHUSDT")
	assert.False(t, ok)
}

func TestPositionsSpotIsEmpty(t *testing.T) {
	c := newTestClient(t, models.ModeSpot, func(w http.ResponseWriter, r *http.Request) {
		t.Error("spot has no positions endpoint")
	})
	pos, err := c.Positions(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Empty(t, pos)
}
