package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lojf/storebot/internal/bot"
	"github.com/lojf/storebot/internal/metrics"
)

type countingBot struct{ n int }

func (c *countingBot) Handle(context.Context, *bot.Update) { c.n++ }

func newTestRouter(t *testing.T, b *countingBot) http.Handler {
	reg := prometheus.NewRegistry()
	metrics.New(reg).Broadcast(1, 0)
	return Router(Deps{
		Bot:           b,
		WebhookSecret: "s3cret",
		Ping:          func(context.Context) error { return nil },
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Log:           zaptest.NewLogger(t),
	})
}

func TestRouterHealthz(t *testing.T) {
	r := newTestRouter(t, &countingBot{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterWebhook(t *testing.T) {
	b := &countingBot{}
	r := newTestRouter(t, b)

	req := httptest.NewRequest(http.MethodPost, "/tg/webhook", strings.NewReader(`{"update_id":1}`))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, b.n)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tg/webhook", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouterMetrics(t *testing.T) {
	r := newTestRouter(t, &countingBot{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "storebot_broadcast")
}
