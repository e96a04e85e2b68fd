package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Slack     SlackConfig
	Routing   RoutingConfig
	Business  BusinessConfig
	Reminders ReminderConfig
	Dedup     DedupConfig
}

// AppConfig controls the admin HTTP server.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN           string
	MaxConns      int32
	MinConns      int32
	RunMigrations bool
	MigrationsDir string
	ConnMaxIdle   time.Duration
	ConnMaxLife   time.Duration
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines admin API token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// SlackConfig carries the socket mode credentials. Without both tokens the
// bot runs with the log-only transport.
type SlackConfig struct {
	BotToken string
	AppToken string
	Debug    bool
}

// Enabled reports whether the Slack transport can be started.
func (s SlackConfig) Enabled() bool {
	return s.BotToken != "" && s.AppToken != ""
}

// RoutingConfig points at the category/dictionary/user file.
type RoutingConfig struct {
	File string
}

// BusinessConfig bounds when reminders may be sent.
type BusinessConfig struct {
	Timezone  string
	StartHour int
	EndHour   int
}

// Location loads the configured timezone.
func (b BusinessConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid BUSINESS_TIMEZONE %q: %w", b.Timezone, err)
	}
	return loc, nil
}

// ReminderConfig drives the reminder scheduler.
type ReminderConfig struct {
	Interval     time.Duration
	OverdueAfter time.Duration
}

// DedupConfig controls how long inbound message ids are remembered.
type DedupConfig struct {
	TTL time.Duration
}

// Load reads configuration from the environment after applying envFiles
// (or ./.env when none are given). Missing files are not an error.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "incidence-bot"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:           os.Getenv("POSTGRES_DSN"),
			MaxConns:      int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:      int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations: getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir: getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdle:   getEnvAsDuration("POSTGRES_CONN_MAX_IDLE", 30*time.Second),
			ConnMaxLife:   getEnvAsDuration("POSTGRES_CONN_MAX_LIFE", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Slack: SlackConfig{
			BotToken: os.Getenv("SLACK_BOT_TOKEN"),
			AppToken: os.Getenv("SLACK_APP_TOKEN"),
			Debug:    getEnvAsBool("SLACK_DEBUG", false),
		},
		Routing: RoutingConfig{
			File: getEnv("ROUTING_FILE", "config/routing.yaml"),
		},
		Business: BusinessConfig{
			Timezone:  getEnv("BUSINESS_TIMEZONE", "America/Mexico_City"),
			StartHour: getEnvAsInt("BUSINESS_HOURS_START", 8),
			EndHour:   getEnvAsInt("BUSINESS_HOURS_END", 21),
		},
		Reminders: ReminderConfig{
			Interval:     getEnvAsDuration("REMINDER_INTERVAL", time.Hour),
			OverdueAfter: getEnvAsDuration("REMINDER_OVERDUE_AFTER", 24*time.Hour),
		},
		Dedup: DedupConfig{
			TTL: getEnvAsDuration("DEDUP_TTL", 24*time.Hour),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	b := c.Business
	if b.StartHour < 0 || b.EndHour > 24 || b.StartHour >= b.EndHour {
		return fmt.Errorf("invalid business hours [%d, %d)", b.StartHour, b.EndHour)
	}
	if _, err := b.Location(); err != nil {
		return err
	}
	if c.Reminders.Interval <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL must be positive")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
