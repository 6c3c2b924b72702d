package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/punchamoorthee/bankportal/internal/pagination"
	"github.com/punchamoorthee/bankportal/internal/pool"
)

type Config struct {
	Env      string `envconfig:"ENVIRONMENT" default:"development"`
	Port     string `envconfig:"SERVER_PORT" default:"8080"`
	DBSource string `envconfig:"DB_SOURCE" required:"true"`
	// MigrateOnStart applies embedded migrations before serving.
	MigrateOnStart bool `envconfig:"MIGRATE_ON_START" default:"true"`
	OtelEnabled    bool `envconfig:"OTEL_ENABLED" default:"false"`

	Pool   Pool   `envconfig:"POOL"`
	Paging Paging `envconfig:"PAGING"`
	Log    Log    `envconfig:"LOG"`
}

type Pool struct {
	MinIdle             int32         `envconfig:"MIN_IDLE" default:"5"`
	MaxTotal            int32         `envconfig:"MAX_TOTAL" default:"20"`
	WaitTimeout         time.Duration `envconfig:"WAIT_TIMEOUT" default:"10s"`
	AbandonTimeout      time.Duration `envconfig:"ABANDON_TIMEOUT" default:"5m"`
	MaxIdleTime         time.Duration `envconfig:"MAX_IDLE_TIME" default:"10m"`
	MaintenanceInterval time.Duration `envconfig:"MAINTENANCE_INTERVAL" default:"30s"`
}

// PoolConfig converts to the pool package's config.
func (p Pool) PoolConfig() pool.Config {
	return pool.Config{
		MinIdle:             p.MinIdle,
		MaxTotal:            p.MaxTotal,
		WaitTimeout:         p.WaitTimeout,
		AbandonTimeout:      p.AbandonTimeout,
		MaxIdleTime:         p.MaxIdleTime,
		MaintenanceInterval: p.MaintenanceInterval,
	}
}

type Paging struct {
	DisplayedPages  int `envconfig:"DISPLAYED_PAGES" default:"5"`
	DefaultPageSize int `envconfig:"DEFAULT_SIZE" default:"10"`
	DefaultPage     int `envconfig:"DEFAULT_PAGE" default:"1"`
	MaxPageSize     int `envconfig:"MAX_SIZE" default:"100"`
}

type Log struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"text"`
	Prefix string `envconfig:"PREFIX" default:"bankportal"`
	// TimeFormat is a Go reference-time layout.
	TimeFormat string `envconfig:"TIME_FORMAT" default:"2006-01-02 15:04:05"`
}

// Load reads the first env file found among paths (or .env), then the
// process environment. Missing files are not an error.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err == nil {
			slog.Debug("loaded environment file", "path", path)
			break
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Pool.PoolConfig().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := pagination.New(c.Paging.DisplayedPages); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	p := c.Paging
	if p.DefaultPageSize < 1 || p.DefaultPage < 1 || p.MaxPageSize < p.DefaultPageSize {
		return errors.New("config: paging defaults must be positive and within the max page size")
	}
	return nil
}

// LogValue masks the database password when the config is logged.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("env", c.Env),
		slog.String("port", c.Port),
		slog.String("db", maskValue(c.DBSource)),
		slog.Int("pool_min_idle", int(c.Pool.MinIdle)),
		slog.Int("pool_max_total", int(c.Pool.MaxTotal)),
		slog.Duration("pool_abandon_timeout", c.Pool.AbandonTimeout),
		slog.Int("displayed_pages", c.Paging.DisplayedPages),
		slog.Bool("otel", c.OtelEnabled),
	)
}

func maskValue(s string) string {
	if len(s) <= 6 {
		return "****"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
