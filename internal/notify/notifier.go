package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scalp_engine/pkg/logger"
)

// Notifier — служебные сообщения оператору. Не блокирует вызывающего.
type Notifier interface {
	SendService(ctx context.Context, format string, args ...any)
}

// StatusProvider отдаёт текст для команды /status.
type StatusProvider interface {
	StatusReport() string
}

const outboxSize = 64

// Telegram — пассивный нотифайер в один чат + команда /status.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64

	outbox  chan string
	dropped atomic.Int64

	mu     sync.RWMutex
	status StatusProvider

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newTelegram(b, chatID), nil
}

func newTelegram(bot *tgbot.BotAPI, chatID int64) *Telegram {
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		outbox: make(chan string, outboxSize),
	}
}

func (t *Telegram) SetStatusProvider(p StatusProvider) {
	t.mu.Lock()
	t.status = p
	t.mu.Unlock()
}

// SendService ставит сообщение в очередь; при переполнении сообщение теряется.
func (t *Telegram) SendService(_ context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	select {
	case t.outbox <- msg:
	default:
		t.dropped.Add(1)
		logger.Warn("[NOTIFY] outbox full, dropped: %s", msg)
	}
}

func (t *Telegram) Dropped() int64 { return t.dropped.Load() }

func (t *Telegram) send(text string) {
	if t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, text)); err != nil {
		logger.Warn("[NOTIFY] telegram send failed: %v", err)
	}
}

// Start: отправка очереди + long-polling команд.
func (t *Telegram) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-t.outbox:
				t.send(msg)
			}
		}
	}()

	if t.bot == nil {
		return
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}
	updates := t.bot.GetUpdatesChan(u)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				t.bot.StopReceivingUpdates()
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(upd)
			}
		}
	}()
}

func (t *Telegram) handleUpdate(upd tgbot.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || msg.Chat.ID != t.chatID || !msg.IsCommand() {
		return
	}
	switch msg.Command() {
	case "status", "positions":
		t.mu.RLock()
		p := t.status
		t.mu.RUnlock()
		if p == nil {
			t.send("⏳ Движок ещё стартует")
			return
		}
		t.send(p.StatusReport())
	}
}

// Stop дожидается отправки уже взятого сообщения; остаток очереди теряется.
func (t *Telegram) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}

// Stdout — всё в лог.
type Stdout struct{}

func NewStdout() *Stdout { return &Stdout{} }

func (s *Stdout) SendService(_ context.Context, format string, args ...any) {
	logger.Info("[NOTIFY] "+format, args...)
}
