package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageLength is the Bot API limit for a single text message.
const maxMessageLength = 4096

// Sender is the part of the Bot API used to deliver messages.
// *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends agent replies to Telegram chats.
type Notifier struct {
	bot Sender
}

// NewNotifier authenticates against the Bot API with token.
func NewNotifier(token string) (*Notifier, error) {
	if token == "" {
		return nil, errors.New("NewNotifier: bot token is required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("NewNotifier: connecting to bot API: %w", err)
	}
	return &Notifier{bot: bot}, nil
}

// NewNotifierWithSender wraps an existing sender.
func NewNotifierWithSender(s Sender) *Notifier {
	return &Notifier{bot: s}
}

// Send implements agent.Notifier. The Bot API client has no context support,
// so the call runs in its own goroutine and Send returns when ctx is done.
func (n *Notifier) Send(ctx context.Context, chatID, text string) error {
	id, err := ParseChatID(chatID)
	if err != nil {
		return fmt.Errorf("Send: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("Send: empty text")
	}

	done := make(chan error, 1)
	go func() {
		_, err := n.bot.Send(tgbotapi.NewMessage(id, truncate(text)))
		done <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("Send: chat %d: %w", id, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("Send: chat %d: %w", id, err)
		}
		return nil
	}
}

// ParseChatID converts a chat identifier to the Bot API's numeric form.
func ParseChatID(chatID string) (int64, error) {
	if chatID == "" {
		return 0, errors.New("chat ID is required")
	}
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat ID %q: %w", chatID, err)
	}
	return id, nil
}

func truncate(text string) string {
	r := []rune(text)
	if len(r) <= maxMessageLength {
		return text
	}
	return string(r[:maxMessageLength-1]) + "…"
}
