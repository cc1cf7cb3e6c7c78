package telegram

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SecretHeader carries the secret token configured with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

var (
	// ErrNoMessage is returned for updates that carry no chat message,
	// such as callback queries or membership changes.
	ErrNoMessage = errors.New("update has no message")
	// ErrUnknownChat is returned when a chat is not linked to any user.
	ErrUnknownChat = errors.New("chat is not linked to a user")
)

// VerifySecret reports whether r carries the expected secret token.
// An empty secret disables the check.
func VerifySecret(r *http.Request, secret string) bool {
	if secret == "" {
		return true
	}
	got := r.Header.Get(SecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}

// Inbound is a decoded webhook update addressed to a known user.
type Inbound struct {
	UpdateID int
	UserID   string
	ChatID   string
	// Raw is the update body as received; it is the turn payload.
	Raw json.RawMessage
}

// Linker maps Telegram chats to application users.
type Linker struct {
	users map[string]string
}

// NewLinker creates a Linker from a chat ID to user ID map.
func NewLinker(users map[string]string) *Linker {
	m := make(map[string]string, len(users))
	for chat, user := range users {
		m[chat] = user
	}
	return &Linker{users: m}
}

// UserFor returns the user linked to chatID.
func (l *Linker) UserFor(chatID string) (string, bool) {
	uid, ok := l.users[chatID]
	return uid, ok && uid != ""
}

// Decode parses a webhook body and resolves its chat to a user.
func (l *Linker) Decode(body []byte) (*Inbound, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, fmt.Errorf("Decode: invalid update: %w", err)
	}

	msg := update.Message
	if msg == nil {
		msg = update.EditedMessage
	}
	if msg == nil || msg.Chat == nil {
		return nil, fmt.Errorf("Decode: update %d: %w", update.UpdateID, ErrNoMessage)
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	userID, ok := l.UserFor(chatID)
	if !ok {
		return nil, fmt.Errorf("Decode: chat %s: %w", chatID, ErrUnknownChat)
	}

	return &Inbound{
		UpdateID: update.UpdateID,
		UserID:   userID,
		ChatID:   chatID,
		Raw:      json.RawMessage(body),
	}, nil
}
