package pool

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidConfig = errors.New("invalid pool config")

// Config bounds the pool. Durations must be positive.
type Config struct {
	MinIdle             int32
	MaxTotal            int32
	WaitTimeout         time.Duration
	AbandonTimeout      time.Duration
	MaxIdleTime         time.Duration
	MaintenanceInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinIdle:             5,
		MaxTotal:            20,
		WaitTimeout:         10 * time.Second,
		AbandonTimeout:      5 * time.Minute,
		MaxIdleTime:         10 * time.Minute,
		MaintenanceInterval: 30 * time.Second,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MaxTotal < 1:
		return fmt.Errorf("%w: max total %d < 1", ErrInvalidConfig, c.MaxTotal)
	case c.MinIdle < 0 || c.MinIdle > c.MaxTotal:
		return fmt.Errorf("%w: min idle %d outside [0, %d]", ErrInvalidConfig, c.MinIdle, c.MaxTotal)
	case c.WaitTimeout <= 0, c.AbandonTimeout <= 0, c.MaxIdleTime <= 0, c.MaintenanceInterval <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	return nil
}
