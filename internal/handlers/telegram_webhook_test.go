package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lojf/storebot/internal/bot"
)

type recordingHandler struct {
	mu      sync.Mutex
	updates []*bot.Update
}

func (r *recordingHandler) Handle(_ context.Context, u *bot.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

const sampleUpdate = `{"update_id":7,"message":{"message_id":1,"from":{"id":42,"first_name":"A"},"chat":{"id":42,"type":"private"},"text":"/start"}}`

func TestTelegramWebhookSecret(t *testing.T) {
	rec := &recordingHandler{}
	h := TelegramWebhook("s3cret", rec, zaptest.NewLogger(t))

	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"header", "s3cret", "", http.StatusOK},
		{"query", "", "?secret=s3cret", http.StatusOK},
		{"wrong", "nope", "", http.StatusForbidden},
		{"missing", "", "", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/tg/webhook"+tc.query, strings.NewReader(sampleUpdate))
			if tc.header != "" {
				req.Header.Set("X-Telegram-Bot-Api-Secret-Token", tc.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			require.Equal(t, tc.want, w.Code)
		})
	}

	require.Len(t, rec.updates, 2)
	u := rec.updates[0]
	require.EqualValues(t, 7, u.UpdateID)
	require.NotNil(t, u.Message)
	require.EqualValues(t, 42, u.Message.From.ID)
	require.Equal(t, "/start", u.Message.Text)
}

func TestTelegramWebhookRejectsGarbage(t *testing.T) {
	rec := &recordingHandler{}
	h := TelegramWebhook("", rec, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/tg/webhook", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, rec.updates)
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	Health(func(context.Context) error { return nil }).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	Health(func(context.Context) error { return errors.New("db down") }).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "db down")
}
