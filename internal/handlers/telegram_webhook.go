package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/lojf/storebot/internal/bot"
)

const maxUpdateBytes = 1 << 20

// UpdateHandler consumes one decoded Bot API update.
type UpdateHandler interface {
	Handle(ctx context.Context, u *bot.Update)
}

// TelegramWebhook accepts updates pushed by the Bot API. The secret is read
// from the X-Telegram-Bot-Api-Secret-Token header, or ?secret= for webhooks
// registered without one. An empty secret disables the check.
func TelegramWebhook(secret string, h UpdateHandler, log *zap.Logger) http.HandlerFunc {
	log = log.Named("webhook")
	return func(w http.ResponseWriter, r *http.Request) {
		if secret != "" {
			got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
			if got == "" {
				got = r.URL.Query().Get("secret")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}
		defer r.Body.Close()

		var up bot.Update
		if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBytes)).Decode(&up); err != nil {
			log.Debug("bad update", zap.Error(err))
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		// the Bot API may hang up before the flow finishes
		h.Handle(context.WithoutCancel(r.Context()), &up)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Health reports liveness and whether the database answers.
func Health(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
