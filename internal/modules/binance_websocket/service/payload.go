package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"scalp_engine/internal/models"
)

// combined stream: {"stream":"btcusdt@kline_1m","data":{...}}
type streamEnvelope struct {
	Stream string       `json:"stream"`
	Data   klineMessage `json:"data"`
}

type klineMessage struct {
	Event     string   `json:"e"`
	EventTime int64    `json:"E"`
	Symbol    string   `json:"s"`
	Kline     klineDTO `json:"k"`
}

type klineDTO struct {
	OpenTime    int64  `json:"t"`
	CloseTime   int64  `json:"T"`
	Symbol      string `json:"s"`
	Interval    string `json:"i"`
	Open        string `json:"o"`
	Close       string `json:"c"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Volume      string `json:"v"`
	QuoteVolume string `json:"q"`
	Closed      bool   `json:"x"`
}

// parseKline разбирает сообщение combined stream. ok=false — это не свеча
// (ответы на служебные запросы и т.п.).
func parseKline(raw []byte) (models.Candle, bool, error) {
	var env streamEnvelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return models.Candle{}, false, errors.Wrap(err, "decode kline envelope")
	}
	if env.Data.Event != "kline" {
		return models.Candle{}, false, nil
	}
	k := env.Data.Kline
	sym := k.Symbol
	if sym == "" {
		sym = env.Data.Symbol
	}
	return models.Candle{
		Symbol:      strings.ToUpper(sym),
		Interval:    models.Interval(k.Interval),
		Open:        parseFloat(k.Open),
		High:        parseFloat(k.High),
		Low:         parseFloat(k.Low),
		Close:       parseFloat(k.Close),
		Volume:      parseFloat(k.Volume),
		QuoteVolume: parseFloat(k.QuoteVolume),
		OpenTime:    time.UnixMilli(k.OpenTime).UTC(),
		CloseTime:   time.UnixMilli(k.CloseTime).UTC(),
		Closed:      k.Closed,
	}, true, nil
}

type eventHeader struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
}

// spot executionReport
type executionReport struct {
	EventTime         int64  `json:"E"`
	Symbol            string `json:"s"`
	ClientOrderID     string `json:"c"`
	OrigClientOrderID string `json:"C"`
	Side              string `json:"S"`
	Type              string `json:"o"`
	Price             string `json:"p"`
	Status            string `json:"X"`
	OrderID           int64  `json:"i"`
	LastPrice         string `json:"L"`
	CumQty            string `json:"z"`
	CumQuote          string `json:"Z"`
}

// futures ORDER_TRADE_UPDATE
type futuresOrderEvent struct {
	EventTime int64 `json:"E"`
	Order     struct {
		Symbol        string `json:"s"`
		ClientOrderID string `json:"c"`
		Side          string `json:"S"`
		Type          string `json:"o"`
		Price         string `json:"p"`
		AvgPrice      string `json:"ap"`
		Status        string `json:"X"`
		OrderID       int64  `json:"i"`
		LastPrice     string `json:"L"`
		CumQty        string `json:"z"`
	} `json:"o"`
}

// spot outboundAccountPosition
type spotAccountEvent struct {
	EventTime int64 `json:"E"`
	Balances  []struct {
		Asset string `json:"a"`
		Free  string `json:"f"`
	} `json:"B"`
}

// futures ACCOUNT_UPDATE
type futuresAccountEvent struct {
	EventTime int64 `json:"E"`
	Account   struct {
		Balances []struct {
			Asset         string `json:"a"`
			WalletBalance string `json:"wb"`
		} `json:"B"`
	} `json:"a"`
}

// userEvent — результат разбора одного сообщения user data stream.
type userEvent struct {
	Order         *models.OrderUpdate
	Account       *models.AccountUpdate
	ListenKeyGone bool
	Ignored       string
}

func parseUserEvent(raw []byte) (userEvent, error) {
	var h eventHeader
	if err := sonic.Unmarshal(raw, &h); err != nil {
		return userEvent{}, errors.Wrap(err, "decode user event header")
	}

	switch h.Event {
	case "executionReport":
		var r executionReport
		if err := sonic.Unmarshal(raw, &r); err != nil {
			return userEvent{}, errors.Wrap(err, "decode executionReport")
		}
		clientID := r.ClientOrderID
		// при отмене в "c" лежит id запроса отмены, исходный — в "C"
		if r.Status == string(models.OrderStatusCanceled) && r.OrigClientOrderID != "" {
			clientID = r.OrigClientOrderID
		}
		cum := parseFloat(r.CumQty)
		var avg float64
		if cum > 0 {
			avg = parseFloat(r.CumQuote) / cum
		}
		return userEvent{Order: &models.OrderUpdate{
			Symbol:        r.Symbol,
			ClientOrderID: clientID,
			OrderID:       r.OrderID,
			Side:          models.Side(r.Side),
			Type:          models.OrderType(r.Type),
			Status:        models.OrderStatus(r.Status),
			ExecutedQty:   cum,
			Price:         parseFloat(r.Price),
			AvgPrice:      avg,
			LastPrice:     parseFloat(r.LastPrice),
			EventTime:     time.UnixMilli(r.EventTime).UTC(),
		}}, nil

	case "ORDER_TRADE_UPDATE":
		var r futuresOrderEvent
		if err := sonic.Unmarshal(raw, &r); err != nil {
			return userEvent{}, errors.Wrap(err, "decode ORDER_TRADE_UPDATE")
		}
		o := r.Order
		return userEvent{Order: &models.OrderUpdate{
			Symbol:        o.Symbol,
			ClientOrderID: o.ClientOrderID,
			OrderID:       o.OrderID,
			Side:          models.Side(o.Side),
			Type:          models.OrderType(o.Type),
			Status:        models.OrderStatus(o.Status),
			ExecutedQty:   parseFloat(o.CumQty),
			Price:         parseFloat(o.Price),
			AvgPrice:      parseFloat(o.AvgPrice),
			LastPrice:     parseFloat(o.LastPrice),
			EventTime:     time.UnixMilli(r.EventTime).UTC(),
		}}, nil

	case "outboundAccountPosition":
		var r spotAccountEvent
		if err := sonic.Unmarshal(raw, &r); err != nil {
			return userEvent{}, errors.Wrap(err, "decode outboundAccountPosition")
		}
		upd := &models.AccountUpdate{EventTime: time.UnixMilli(r.EventTime).UTC(), Balances: map[string]float64{}}
		for _, b := range r.Balances {
			upd.Balances[b.Asset] = parseFloat(b.Free)
		}
		return userEvent{Account: upd}, nil

	case "ACCOUNT_UPDATE":
		var r futuresAccountEvent
		if err := sonic.Unmarshal(raw, &r); err != nil {
			return userEvent{}, errors.Wrap(err, "decode ACCOUNT_UPDATE")
		}
		upd := &models.AccountUpdate{EventTime: time.UnixMilli(r.EventTime).UTC(), Balances: map[string]float64{}}
		for _, b := range r.Account.Balances {
			upd.Balances[b.Asset] = parseFloat(b.WalletBalance)
		}
		return userEvent{Account: upd}, nil

	case "listenKeyExpired":
		return userEvent{ListenKeyGone: true}, nil
	}
	return userEvent{Ignored: h.Event}, nil
}

// streamNames — имена потоков свечей для combined stream.
func streamNames(symbols []string, intervals []models.Interval) []string {
	out := make([]string, 0, len(symbols)*len(intervals))
	for _, s := range symbols {
		low := strings.ToLower(s)
		for _, iv := range intervals {
			out = append(out, low+"@kline_"+string(iv))
		}
	}
	return out
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
