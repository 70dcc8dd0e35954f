// Package config loads process settings from defaults, an optional YAML file,
// a .env file and the environment, in that order of precedence (last wins).
//
// Durations are Go duration strings ("30s", "5m").
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v3"

	"github.com/unclebandit/mail-dispatch/internal/model"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Mail     MailConfig     `yaml:"mail"`
	Alert    AlertConfig    `yaml:"alert"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig selects the queue store backend.
//
// Driver values:
//   - "postgres": URL is a lib/pq DSN
//   - "sqlite": Path is a database file (":memory:" for tests)
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
	Path   string `yaml:"path"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// DispatchConfig holds first-boot defaults for the persisted dispatch settings
// (daily_limit, schedule, enabled) plus process-level knobs that are not persisted.
type DispatchConfig struct {
	DailyLimit  int    `yaml:"daily_limit"`
	Schedule    string `yaml:"schedule"`
	Enabled     *bool  `yaml:"enabled"`
	Timezone    string `yaml:"timezone"`
	StaleAfter  string `yaml:"stale_after"`
	ResumeAt    string `yaml:"resume_at"`
	MaxAttempts int    `yaml:"max_attempts"`
}

type MailConfig struct {
	From       string `yaml:"from"`
	Provider   string `yaml:"provider"` // "http" or "log"
	APIURL     string `yaml:"api_url"`
	APIKey     string `yaml:"api_key"`
	RatePerSec int    `yaml:"rate_per_sec"`
	Timeout    string `yaml:"timeout"`
}

type AlertConfig struct {
	Telegram    TelegramConfig `yaml:"telegram"`
	AMQP        AMQPConfig     `yaml:"amqp"`
	DedupWindow string         `yaml:"dedup_window"`
}

type TelegramConfig struct {
	Token    string `yaml:"token"`
	ChatID   int64  `yaml:"chat_id"`
	ThreadID int    `yaml:"thread_id"`
}

type AMQPConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

type IngestConfig struct {
	AMQP AMQPConfig `yaml:"amqp"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	enabled := true
	return &Config{
		Database: DatabaseConfig{Driver: "postgres"},
		HTTP:     HTTPConfig{Addr: ":8080"},
		Dispatch: DispatchConfig{
			DailyLimit:  model.DefaultDailyLimit,
			Schedule:    model.DefaultScheduleExpression,
			Enabled:     &enabled,
			StaleAfter:  "5m",
			ResumeAt:    "09:00",
			MaxAttempts: model.DefaultMaxAttempts,
		},
		Mail: MailConfig{
			Provider:   "log",
			RatePerSec: 5,
			Timeout:    "30s",
		},
		Alert: AlertConfig{
			AMQP:        AMQPConfig{Queue: "dispatch_summaries"},
			DedupWindow: "24h",
		},
		Ingest:  IngestConfig{AMQP: AMQPConfig{Queue: "email_enqueue"}},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads path (optional, may be empty) and the environment.
func Load(path string) (*Config, error) {
	// .env is optional; OS environment still applies.
	_ = godotenv.Load()

	cfg := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}

	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_URL", &c.Database.URL)
	str("SQLITE_PATH", &c.Database.Path)
	if c.Database.URL == "" {
		c.Database.URL = dsnFromParts(lookup)
	}
	str("HTTP_ADDR", &c.HTTP.Addr)

	num("DISPATCH_DAILY_LIMIT", &c.Dispatch.DailyLimit)
	str("DISPATCH_SCHEDULE", &c.Dispatch.Schedule)
	if v, ok := lookup("DISPATCH_ENABLED"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("DISPATCH_ENABLED: %w", err))
		} else {
			c.Dispatch.Enabled = &b
		}
	}
	str("DISPATCH_TIMEZONE", &c.Dispatch.Timezone)
	str("DISPATCH_STALE_AFTER", &c.Dispatch.StaleAfter)
	str("DISPATCH_RESUME_AT", &c.Dispatch.ResumeAt)
	num("DISPATCH_MAX_ATTEMPTS", &c.Dispatch.MaxAttempts)

	str("MAIL_FROM", &c.Mail.From)
	str("MAIL_PROVIDER", &c.Mail.Provider)
	str("MAIL_API_URL", &c.Mail.APIURL)
	str("MAIL_API_KEY", &c.Mail.APIKey)
	num("MAIL_RATE_PER_SEC", &c.Mail.RatePerSec)
	str("MAIL_TIMEOUT", &c.Mail.Timeout)

	str("TELEGRAM_TOKEN", &c.Alert.Telegram.Token)
	if v, ok := lookup("TELEGRAM_CHAT_ID"); ok && strings.TrimSpace(v) != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err))
		} else {
			c.Alert.Telegram.ChatID = id
		}
	}
	num("TELEGRAM_THREAD_ID", &c.Alert.Telegram.ThreadID)
	str("ALERT_AMQP_URL", &c.Alert.AMQP.URL)
	str("ALERT_AMQP_QUEUE", &c.Alert.AMQP.Queue)
	str("ALERT_DEDUP_WINDOW", &c.Alert.DedupWindow)
	str("INGEST_AMQP_URL", &c.Ingest.AMQP.URL)
	str("INGEST_AMQP_QUEUE", &c.Ingest.AMQP.Queue)
	// AMQP_URL is shorthand for both ingest and alert brokers.
	if v, ok := lookup("AMQP_URL"); ok && strings.TrimSpace(v) != "" {
		if c.Ingest.AMQP.URL == "" {
			c.Ingest.AMQP.URL = strings.TrimSpace(v)
		}
		if c.Alert.AMQP.URL == "" {
			c.Alert.AMQP.URL = strings.TrimSpace(v)
		}
	}

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	return errors.Join(errs...)
}

// dsnFromParts keeps the DB_USER/DB_PASSWORD/DB_HOST/DB_PORT/DB_NAME convention.
func dsnFromParts(lookup func(string) (string, bool)) string {
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}
	host := get("DB_HOST")
	if host == "" {
		return ""
	}
	port := get("DB_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		get("DB_USER"), get("DB_PASSWORD"), host, port, get("DB_NAME"),
	)
}

func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Database.Driver) {
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver))
	}
	if c.Dispatch.DailyLimit < 0 {
		errs = append(errs, errors.New("dispatch.daily_limit must be >= 0"))
	}
	if c.Dispatch.MaxAttempts < 1 {
		errs = append(errs, errors.New("dispatch.max_attempts must be >= 1"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := model.ParseClock(c.Dispatch.ResumeAt); err != nil {
		errs = append(errs, fmt.Errorf("dispatch.resume_at: %w", err))
	}
	for path, raw := range map[string]string{
		"dispatch.stale_after": c.Dispatch.StaleAfter,
		"mail.timeout":         c.Mail.Timeout,
		"alert.dedup_window":   c.Alert.DedupWindow,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	switch strings.ToLower(c.Mail.Provider) {
	case "log":
	case "http":
		if c.Mail.APIURL == "" {
			errs = append(errs, errors.New("mail.api_url is required for the http provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("mail.provider: unknown provider %q", c.Mail.Provider))
	}
	return errors.Join(errs...)
}

// Location resolves dispatch.timezone; empty means the process local zone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Dispatch.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("dispatch.timezone: %w", err)
	}
	return loc, nil
}

// DispatchDefaults is the configuration persisted on first boot.
func (c *Config) DispatchDefaults() model.DispatchConfig {
	d := model.DefaultDispatchConfig()
	d.DailyLimit = c.Dispatch.DailyLimit
	if s := strings.TrimSpace(c.Dispatch.Schedule); s != "" {
		d.ScheduleExpression = s
	}
	if c.Dispatch.Enabled != nil {
		d.Enabled = *c.Dispatch.Enabled
	}
	return d
}

func (c *Config) StaleAfter() time.Duration {
	d, _ := ParseDurationOrDefault("dispatch.stale_after", c.Dispatch.StaleAfter, 5*time.Minute)
	return d
}

func (c *Config) MailTimeout() time.Duration {
	d, _ := ParseDurationOrDefault("mail.timeout", c.Mail.Timeout, 30*time.Second)
	return d
}

func (c *Config) DedupWindow() time.Duration {
	d, _ := ParseDurationField("alert.dedup_window", c.Alert.DedupWindow)
	return d
}
