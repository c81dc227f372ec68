package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lojf/storebot/internal/handlers"
)

type Deps struct {
	Bot           handlers.UpdateHandler
	WebhookSecret string
	// Ping checks the database for /healthz.
	Ping    func(ctx context.Context) error
	Metrics http.Handler
	Log     *zap.Logger
}

func Router(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log.Named("http")))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handlers.Health(d.Ping))
	r.Post("/tg/webhook", handlers.TelegramWebhook(d.WebhookSecret, d.Bot, d.Log))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
