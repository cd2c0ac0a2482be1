package service

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

type spotAccountDTO struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

type futuresBalanceDTO struct {
	Asset            string `json:"asset"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"availableBalance"`
}

// Balance — свободный остаток актива. Нет актива в ответе — 0.
func (c *Client) Balance(ctx context.Context, asset string) (float64, error) {
	asset = strings.ToUpper(asset)

	if c.mode.IsFutures() {
		var raw []futuresBalanceDTO
		if err := c.get(ctx, "balance", "/fapi/v2/balance", nil, authSigned, &raw); err != nil {
			return 0, err
		}
		for _, b := range raw {
			if b.Asset == asset {
				return parseFloat(b.AvailableBalance), nil
			}
		}
		return 0, nil
	}

	var raw spotAccountDTO
	if err := c.get(ctx, "account", "/api/v3/account", nil, authSigned, &raw); err != nil {
		return 0, err
	}
	for _, b := range raw.Balances {
		if b.Asset == asset {
			return parseFloat(b.Free), nil
		}
	}
	return 0, nil
}

func (c *Client) listenKeyPath() string {
	return c.path("/api/v3/userDataStream", "/fapi/v1/listenKey")
}

// CreateListenKey открывает user data stream.
func (c *Client) CreateListenKey(ctx context.Context) (string, error) {
	var raw struct {
		ListenKey string `json:"listenKey"`
	}
	if err := c.do(ctx, "create listen key", http.MethodPost, c.listenKeyPath(), nil, authKey, &raw); err != nil {
		return "", err
	}
	return raw.ListenKey, nil
}

// KeepaliveListenKey продлевает ключ (биржа гасит его через 60 минут без продления).
func (c *Client) KeepaliveListenKey(ctx context.Context, key string) error {
	params := url.Values{}
	params.Set("listenKey", key)
	return c.do(ctx, "keepalive listen key", http.MethodPut, c.listenKeyPath(), params, authKey, nil)
}

func (c *Client) CloseListenKey(ctx context.Context, key string) error {
	params := url.Values{}
	params.Set("listenKey", key)
	return c.do(ctx, "close listen key", http.MethodDelete, c.listenKeyPath(), params, authKey, nil)
}
