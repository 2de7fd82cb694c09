// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/event-ticketing/internal/database"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env  string // APP_ENV, e.g. "dev" or "prod"
	Port string // APP_PORT

	DB database.Options

	JWTSecret string

	OfferTTL           time.Duration
	PendingTTL         time.Duration
	OfferSweepInterval time.Duration
	TxSweepInterval    time.Duration
	NotifyTimeout      time.Duration

	RabbitURL   string // empty disables the broker; notifications are logged
	NotifyQueue string
	SMTP        SMTPConfig
	BaseURL     string

	MetricsEnabled bool
}

// SMTPConfig is the outgoing mail relay used by the notification consumer.
type SMTPConfig struct {
	Host string
	Port string
	User string
	Pass string
	From string
}

// Addr returns host:port.
func (s SMTPConfig) Addr() string { return s.Host + ":" + s.Port }

// Load reads an optional .env file, then the environment.  Missing
// required values halt the program.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: .env ignored: %v", err)
	}
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// Parse builds a Config from the current environment.
func Parse() (Config, error) {
	cfg := Config{
		Env:  getenv("APP_ENV", "dev"),
		Port: getenv("APP_PORT", "8080"),
		DB: database.Options{
			Driver:     strings.ToLower(getenv("DB_DRIVER", database.DriverMySQL)),
			User:       os.Getenv("DB_USER"),
			Pass:       os.Getenv("DB_PASS"),
			Host:       getenv("DB_HOST", "127.0.0.1"),
			Port:       getenv("DB_PORT", "3306"),
			Name:       os.Getenv("DB_NAME"),
			SQLitePath: getenv("SQLITE_PATH", "ticketing.db"),
		},
		JWTSecret:          os.Getenv("JWT_SECRET"),
		OfferTTL:           envDur("OFFER_TTL", 10*time.Minute),
		PendingTTL:         envDur("PENDING_TTL", 10*time.Minute),
		OfferSweepInterval: envDur("OFFER_SWEEP_INTERVAL", 30*time.Second),
		TxSweepInterval:    envDur("TX_SWEEP_INTERVAL", time.Hour),
		NotifyTimeout:      envDur("NOTIFY_TIMEOUT", 10*time.Second),
		RabbitURL:          os.Getenv("RABBITMQ_URL"),
		NotifyQueue:        getenv("NOTIFY_QUEUE", "ticketing.notifications"),
		SMTP: SMTPConfig{
			Host: os.Getenv("SMTP_HOST"),
			Port: getenv("SMTP_PORT", "587"),
			User: os.Getenv("SMTP_USER"),
			Pass: os.Getenv("SMTP_PASS"),
			From: getenv("MAIL_FROM", "tickets@localhost"),
		},
		BaseURL:        strings.TrimRight(os.Getenv("APP_BASE_URL"), "/"),
		MetricsEnabled: envBool("METRICS_ENABLED", true),
	}

	var missing []string
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	switch cfg.DB.Driver {
	case database.DriverMySQL:
		if cfg.DB.User == "" {
			missing = append(missing, "DB_USER")
		}
		if cfg.DB.Name == "" {
			missing = append(missing, "DB_NAME")
		}
	case database.DriverSQLite:
	default:
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if cfg.OfferTTL <= 0 || cfg.PendingTTL <= 0 {
		return Config{}, errors.New("OFFER_TTL and PENDING_TTL must be positive")
	}
	return cfg, nil
}

// IsProd reports whether the service runs in production mode.
func (c Config) IsProd() bool { return strings.EqualFold(c.Env, "prod") }
