package fleet

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramConnector opens long-polling Telegram Bot API sessions.
type TelegramConnector struct {
	// PollTimeout is the long-poll timeout in seconds. Zero means 60.
	PollTimeout int

	// APIEndpoint overrides the Bot API endpoint, in the
	// "https://host/bot%s/%s" form. Empty means the production endpoint.
	APIEndpoint string
}

// Connect validates the token against the Bot API and starts long polling.
func (c *TelegramConnector) Connect(token string) (Session, error) {
	pollTimeout := c.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 60
	}
	endpoint := c.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	// The client timeout bounds every outbound call, replies included, so
	// a hung send cannot stall the receive loop past a stop request. It
	// must outlast the long poll itself.
	client := &http.Client{Timeout: time.Duration(pollTimeout+10) * time.Second}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	bot.Debug = false

	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := bot.GetUpdatesChan(u)

	s := &telegramSession{
		bot:    bot,
		out:    make(chan Message),
		closed: make(chan struct{}),
	}
	go s.pump(updates)
	return s, nil
}

// telegramSession adapts a tgbotapi update channel to Session.
type telegramSession struct {
	bot       *tgbotapi.BotAPI
	out       chan Message
	closed    chan struct{}
	closeOnce sync.Once
}

// pump converts updates to Messages. Updates without a text payload come
// through with empty Text so the worker can ignore them uniformly.
func (s *telegramSession) pump(updates tgbotapi.UpdatesChannel) {
	defer close(s.out)
	for update := range updates {
		var msg Message
		if update.Message != nil {
			msg.ChatID = update.Message.Chat.ID
			msg.MessageID = update.Message.MessageID
			msg.Text = update.Message.Text
		}
		select {
		case s.out <- msg:
		case <-s.closed:
			return
		}
	}
}

func (s *telegramSession) Updates() <-chan Message { return s.out }

func (s *telegramSession) Reply(ctx context.Context, msg Message, text string) error {
	_, err := s.bot.Send(tgbotapi.NewMessage(msg.ChatID, text))
	return err
}

func (s *telegramSession) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.bot.StopReceivingUpdates()
	})
}
