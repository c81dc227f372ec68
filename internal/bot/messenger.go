package bot

import (
	"context"

	"github.com/lojf/storebot/internal/broadcast"
)

// Messenger is the outbound side of the chat transport.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, kb *Keyboard) error
	SendDocument(ctx context.Context, chatID int64, fileID, caption string) error
	SendPhoto(ctx context.Context, chatID int64, filename string, img []byte, caption string) error
	EditText(ctx context.Context, chatID, messageID int64, text string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

var _ Messenger = (*Client)(nil)

type textSender struct{ m Messenger }

func (t textSender) SendText(ctx context.Context, chatID int64, text string) error {
	return t.m.SendMessage(ctx, chatID, text, nil)
}

// TextSender adapts a Messenger to the broadcaster.
func TextSender(m Messenger) broadcast.Sender { return textSender{m: m} }
