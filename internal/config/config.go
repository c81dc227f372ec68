package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Telegram update modes.
const (
	ModeWebhook = "webhook"
	ModePolling = "polling"
)

// Session stores.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Discount policies.
const (
	DiscountSingle  = "single"
	DiscountCounted = "counted"
)

type Config struct {
	Addr string

	DBDriver string
	DBDSN    string

	BotToken      string
	WebhookSecret string
	UpdateMode    string
	APIURL        string

	AdminIDs []int64

	DiscountPolicy string

	SessionStore        string
	SessionTTL          time.Duration
	SessionReapInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	BroadcastConcurrency int
	DefaultCountryCode   string

	LogLevel  string
	LogFormat string

	Catalog Catalog
}

// Option is one selectable entry of a fixed enumeration (account type, service, device).
type Option struct {
	Key   string   `mapstructure:"key"`
	Label string   `mapstructure:"label"`
	Price int64    `mapstructure:"price"`
	Links []string `mapstructure:"links"`
}

type Catalog struct {
	AccountTypes []Option `mapstructure:"account_types"`
	ServiceTypes []Option `mapstructure:"service_types"`
	DeviceTypes  []Option `mapstructure:"device_types"`
}

// Find returns the option with the given key.
func Find(opts []Option, key string) (Option, bool) {
	for _, o := range opts {
		if o.Key == key {
			return o, true
		}
	}
	return Option{}, false
}

// Match resolves free text against option keys and labels, case-insensitively.
func Match(opts []Option, text string) (Option, bool) {
	t := strings.TrimSpace(text)
	if t == "" {
		return Option{}, false
	}
	for _, o := range opts {
		if strings.EqualFold(o.Key, t) || strings.EqualFold(o.Label, t) {
			return o, true
		}
	}
	return Option{}, false
}

// Load reads .env, an optional YAML file (CONFIG_PATH, default ./config.yaml) and
// the environment, in increasing order of precedence.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	path := strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	if path == "" {
		path = "config.yaml"
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// env names kept from the first deployment
	_ = v.BindEnv("addr", "ADDR")
	_ = v.BindEnv("telegram.token", "TG_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("telegram.webhook_secret", "TG_WEBHOOK_SECRET")
	_ = v.BindEnv("admin_ids", "ADMIN_TELEGRAM_IDS", "ADMIN_TELEGRAM_ID")

	return FromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "storebot.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	v.SetDefault("telegram.mode", ModeWebhook)
	v.SetDefault("telegram.api_url", "https://api.telegram.org")
	v.SetDefault("discount.policy", DiscountSingle)
	v.SetDefault("session.store", StoreMemory)
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.reap_interval", "5m")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("broadcast.concurrency", 8)
	v.SetDefault("phone.default_country_code", "98")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// FromViper resolves and validates a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Addr:                 v.GetString("addr"),
		DBDriver:             strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DBDSN:                strings.TrimSpace(v.GetString("database.dsn")),
		BotToken:             strings.TrimSpace(v.GetString("telegram.token")),
		WebhookSecret:        v.GetString("telegram.webhook_secret"),
		UpdateMode:           strings.ToLower(strings.TrimSpace(v.GetString("telegram.mode"))),
		APIURL:               strings.TrimRight(v.GetString("telegram.api_url"), "/"),
		DiscountPolicy:       strings.ToLower(strings.TrimSpace(v.GetString("discount.policy"))),
		SessionStore:         strings.ToLower(strings.TrimSpace(v.GetString("session.store"))),
		SessionTTL:           v.GetDuration("session.ttl"),
		SessionReapInterval:  v.GetDuration("session.reap_interval"),
		RedisAddr:            v.GetString("redis.addr"),
		RedisPassword:        v.GetString("redis.password"),
		RedisDB:              v.GetInt("redis.db"),
		BroadcastConcurrency: v.GetInt("broadcast.concurrency"),
		DefaultCountryCode:   strings.TrimPrefix(strings.TrimSpace(v.GetString("phone.default_country_code")), "+"),
		LogLevel:             v.GetString("log.level"),
		LogFormat:            v.GetString("log.format"),
	}

	ids, err := parseIDs(v.Get("admin_ids"))
	if err != nil {
		return Config{}, err
	}
	cfg.AdminIDs = ids

	if err := v.UnmarshalKey("catalog", &cfg.Catalog); err != nil {
		return Config{}, fmt.Errorf("catalog: %w", err)
	}
	cfg.Catalog = withCatalogDefaults(cfg.Catalog)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the closed-set values and required fields.
func (c Config) Validate() error {
	if len(c.AdminIDs) == 0 {
		return errors.New("config: at least one admin id is required (admin_ids / ADMIN_TELEGRAM_ID)")
	}
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.DBDriver)
	}
	switch c.UpdateMode {
	case ModeWebhook, ModePolling:
	default:
		return fmt.Errorf("config: unsupported telegram mode %q", c.UpdateMode)
	}
	if c.UpdateMode == ModePolling && c.BotToken == "" {
		return errors.New("config: telegram.token is required for polling mode")
	}
	switch c.DiscountPolicy {
	case DiscountSingle, DiscountCounted:
	default:
		return fmt.Errorf("config: unsupported discount policy %q", c.DiscountPolicy)
	}
	switch c.SessionStore {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("config: unsupported session store %q", c.SessionStore)
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: session.ttl must be positive")
	}
	if c.BroadcastConcurrency <= 0 {
		return errors.New("config: broadcast.concurrency must be positive")
	}
	return nil
}

// IsAdmin reports whether the external user id is a configured operator.
func (c Config) IsAdmin(id int64) bool {
	for _, a := range c.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}

// parseIDs accepts a YAML list, a single number, or a comma separated string.
func parseIDs(raw any) ([]int64, error) {
	var parts []string
	switch x := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		for _, p := range x {
			parts = append(parts, fmt.Sprint(p))
		}
	case []string:
		parts = x
	case int:
		parts = []string{strconv.Itoa(x)}
	case int64:
		parts = []string{strconv.FormatInt(x, 10)}
	default:
		parts = strings.Split(fmt.Sprint(x), ",")
	}
	var out []int64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: invalid admin id %q", p)
		}
		if id != 0 {
			out = append(out, id)
		}
	}
	return out, nil
}
