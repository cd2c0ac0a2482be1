package service

import (
	"net/http"

	"github.com/bytedance/sonic"

	"scalp_engine/internal/exchange"
)

// коды ошибок Binance, которые значат «такого нет»
const (
	codeUnknownOrder   = -2011 // cancel: Unknown order sent
	codeNoSuchOrder    = -2013 // Order does not exist
	codeInvalidSymbol  = -1121
	codeRejectedAPIKey = -2014
	codeBadAPIKey      = -2015
)

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// classify переводит HTTP-статус и код биржи в exchange.Kind.
func classify(op string, status int, body []byte) *exchange.Error {
	var ae apiError
	_ = sonic.Unmarshal(body, &ae)

	e := &exchange.Error{Op: op, Status: status, Code: ae.Code, Msg: ae.Msg}
	if e.Msg == "" {
		e.Msg = truncate(string(body), 256)
	}

	switch {
	case status == http.StatusTooManyRequests || status == http.StatusTeapot || status >= 500:
		e.Kind = exchange.KindTransient
	case status == http.StatusNotFound || status == http.StatusUnavailableForLegalReasons:
		e.Kind = exchange.KindUnsupported
	case ae.Code == codeUnknownOrder || ae.Code == codeNoSuchOrder || ae.Code == codeInvalidSymbol:
		e.Kind = exchange.KindNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		ae.Code == codeRejectedAPIKey || ae.Code == codeBadAPIKey:
		e.Kind = exchange.KindFatal
	default:
		e.Kind = exchange.KindRejected
	}
	return e
}

// ClassifyHandshake — ошибка ws-рукопожатия по HTTP-ответу (resp может быть nil).
func ClassifyHandshake(op string, resp *http.Response, err error) *exchange.Error {
	if resp == nil {
		return exchange.NewError(exchange.KindTransient, op, err)
	}
	e := classify(op, resp.StatusCode, nil)
	e.Err = err
	return e
}
