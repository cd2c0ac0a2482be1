package exchange

import (
	"errors"
	"fmt"
)

// Kind — класс ошибки биржи; политика ретраев/бэкоффа ветвится по нему, а не по тексту.
type Kind int

const (
	KindUnknown Kind = iota
	// таймауты, 429/418, 5xx, обрыв соединения
	KindTransient
	// эндпоинт недоступен в этом окружении (404/451)
	KindUnsupported
	// «нет такого ордера/позиции» — для сверки это пустой ответ
	KindNotFound
	// биржа отклонила запрос (фильтры, баланс и т.п.)
	KindRejected
	// ключи/права: без вмешательства оператора не исправится
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindUnsupported:
		return "unsupported"
	case KindNotFound:
		return "not_found"
	case KindRejected:
		return "rejected"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind   Kind
	Op     string
	Status int // HTTP статус, 0 для ws/сети
	Code   int // код ошибки биржи
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Code != 0:
		return fmt.Sprintf("%s: %s: http %d code=%d msg=%s", e.Op, e.Kind, e.Status, e.Code, e.Msg)
	default:
		return fmt.Sprintf("%s: %s: http %d %s", e.Op, e.Kind, e.Status, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf достаёт Kind из цепочки ошибок. Неизвестные ошибки — KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool  { return KindOf(err) == KindNotFound }
func IsTransient(err error) bool { return KindOf(err) == KindTransient }
