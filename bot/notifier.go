package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Notifier pushes fired-action and failure notices to a Telegram chat.
// Optional: a nil *Notifier is safe to call and does nothing.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewNotifier returns nil (disabled) when token is empty.
func NewNotifier(token string, chatID int64) (*Notifier, error) {
	if token == "" {
		return nil, nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	log.Info().Str("bot", api.Self.UserName).Msg("🔔 Telegram notifier enabled")
	return &Notifier{api: api, chatID: chatID}, nil
}

// NotifyAction reports a fired on-chain action.
func (n *Notifier) NotifyAction(action, address string) {
	if n == nil {
		return
	}
	n.send(fmt.Sprintf("✅ %s fired for `%s`", action, address))
}

// NotifyFatal reports an unrecoverable pipeline failure.
func (n *Notifier) NotifyFatal(err error) {
	if n == nil {
		return
	}
	n.send(fmt.Sprintf("🛑 sentinel stopped: %v", err))
}

func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.api.Send(msg); err != nil {
		log.Warn().Err(err).Msg("telegram notification failed")
	}
}
