package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lojf/storebot/internal/bot"
	"github.com/lojf/storebot/internal/broadcast"
	"github.com/lojf/storebot/internal/catalog"
	"github.com/lojf/storebot/internal/config"
	"github.com/lojf/storebot/internal/conversation"
	"github.com/lojf/storebot/internal/db"
	"github.com/lojf/storebot/internal/discount"
	"github.com/lojf/storebot/internal/ledger"
	"github.com/lojf/storebot/internal/logging"
	"github.com/lojf/storebot/internal/metrics"
	"github.com/lojf/storebot/internal/purchase"
	"github.com/lojf/storebot/internal/services"
	"github.com/lojf/storebot/internal/web"
)

const pollTimeout = 50 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("storebot stopped", zap.Error(err))
	}
}

func run(cfg config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Init(cfg, lg); err != nil {
		return err
	}
	gdb := db.Conn()
	m := metrics.New(nil)

	users := services.NewUsers(gdb, lg)
	l := ledger.New(gdb, lg, m)
	cat := catalog.New(gdb, cfg.Catalog)
	client := bot.NewClient(cfg.APIURL, cfg.BotToken)

	deps := bot.Deps{
		Config:    cfg,
		Messenger: client,
		DB:        gdb,
		Users:     users,
		Support:   services.NewSupport(gdb),
		Ledger:    l,
		Discounts: discount.New(gdb, l, discount.Policy(cfg.DiscountPolicy), lg, m),
		Catalog:   cat,
		Purchases: purchase.New(gdb, l, cat, lg, m),
		Broadcast: broadcast.New(users, bot.TextSender(client), cfg.BroadcastConcurrency, lg, m),
		Log:       lg,
		Metrics:   m,
	}

	switch cfg.SessionStore {
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		deps.Store = conversation.NewRedisStore[bot.Scratch](rdb, cfg.SessionTTL)
		deps.Locker = conversation.NewRedisLocker(rdb, 30*time.Second)
	default:
		store := conversation.NewMemoryStore[bot.Scratch](cfg.SessionTTL)
		conversation.StartReaper(ctx, store, cfg.SessionReapInterval, lg, m)
		deps.Store = store
	}

	b, err := bot.New(deps)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: web.Router(web.Deps{
			Bot:           b,
			WebhookSecret: cfg.WebhookSecret,
			Ping: func(ctx context.Context) error {
				sqlDB, err := gdb.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			Metrics: promhttp.Handler(),
			Log:     lg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		lg.Info("listening", zap.String("addr", cfg.Addr), zap.String("mode", cfg.UpdateMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	if cfg.UpdateMode == config.ModePolling {
		if err := client.DeleteWebhook(ctx); err != nil {
			lg.Warn("delete webhook", zap.Error(err))
		}
		go b.Poll(ctx, client, pollTimeout)
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
