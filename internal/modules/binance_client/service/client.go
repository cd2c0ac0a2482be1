package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"scalp_engine/internal/exchange"
	"scalp_engine/internal/models"
	"scalp_engine/internal/modules/config"
	"scalp_engine/pkg/retry"
)

type authType int

const (
	authNone   authType = iota
	authKey             // только X-MBX-APIKEY (listenKey)
	authSigned          // timestamp + signature
)

// Client — REST Binance (spot или USDⓈ-M futures, в зависимости от режима).
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	mode       models.Mode
	recvWindow int
	quoteAsset string

	http    *http.Client
	limiter *rate.Limiter
	retry   retry.Policy
	now     func() time.Time
}

func NewClient(cfg *config.Config) *Client {
	timeout := cfg.Binance.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.Binance.RateLimitPerSec
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Binance.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL:    cfg.Binance.RestURL,
		apiKey:     cfg.Binance.APIKey,
		apiSecret:  cfg.Binance.APISecret,
		mode:       cfg.TradingMode(),
		recvWindow: cfg.Binance.RecvWindow,
		quoteAsset: cfg.Trading.QuoteAsset,
		http:       &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		retry:      retry.DefaultPolicy(),
		now:        time.Now,
	}
}

func (c *Client) Mode() models.Mode { return c.mode }

// HasCredentials — заданы ли ключи (без них только публичные запросы).
func (c *Client) HasCredentials() bool { return c.apiKey != "" && c.apiSecret != "" }

// path выбирает эндпоинт под режим.
func (c *Client) path(spot, futures string) string {
	if c.mode.IsFutures() {
		return futures
	}
	return spot
}

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, op, method, path string, params url.Values, auth authType, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, op+" rate limiter")
	}

	q := url.Values{}
	for k, vs := range params {
		q[k] = append([]string(nil), vs...)
	}

	var query string
	switch auth {
	case authSigned:
		if !c.HasCredentials() {
			return &exchange.Error{Kind: exchange.KindFatal, Op: op, Msg: "api credentials are not configured"}
		}
		q.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		if c.recvWindow > 0 {
			q.Set("recvWindow", strconv.Itoa(c.recvWindow))
		}
		query = q.Encode()
		query += "&signature=" + c.sign(query)
	default:
		query = q.Encode()
	}

	u := c.baseURL + path
	if query != "" {
		u += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return errors.Wrap(err, op+" new request")
	}
	if auth != authNone {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return exchange.NewError(exchange.KindTransient, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return exchange.NewError(exchange.KindTransient, op, err)
	}
	if resp.StatusCode/100 != 2 {
		return classify(op, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "%s decode: body=%s", op, truncate(string(body), 256))
	}
	return nil
}

// get — идемпотентные запросы повторяем при временных ошибках.
func (c *Client) get(ctx context.Context, op, path string, params url.Values, auth authType, out any) error {
	return retry.Do(ctx, c.retry, exchange.IsTransient, func(ctx context.Context) error {
		return c.do(ctx, op, http.MethodGet, path, params, auth, out)
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
