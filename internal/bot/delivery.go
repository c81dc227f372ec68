package bot

import (
	"context"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/lojf/storebot/internal/models"
)

// deliver sends a catalog entry to a user. Files go out by their stored file
// id; text goes out as a message plus a scannable QR code of the same text.
func (b *Bot) deliver(ctx context.Context, chatID int64, svc models.Service, caption string) error {
	if svc.IsFile {
		return b.msg.SendDocument(ctx, chatID, svc.Content, caption)
	}
	text := caption + "\n\n<code>" + esc(svc.Content) + "</code>"
	if err := b.msg.SendMessage(ctx, chatID, text, nil); err != nil {
		return err
	}
	png, err := qrcode.Encode(svc.Content, qrcode.Medium, 512)
	if err != nil {
		// content longer than a QR code can hold; the text already went out
		b.log.Info("qr skipped", zap.String("service", svc.Type), zap.Error(err))
		return nil
	}
	return b.msg.SendPhoto(ctx, chatID, svc.Type+".png", png, "")
}
