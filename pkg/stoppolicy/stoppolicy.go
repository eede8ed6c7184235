// Package stoppolicy validates and evaluates the stopping conditions of a
// bounded streaming pull.
package stoppolicy

import (
	"fmt"
	"time"

	"github.com/illmade-knight/go-alertstream/pkg/types"
)

// DefaultMaxBacklog matches the Pub/Sub client's default flow control.
const DefaultMaxBacklog = 1000

// RawConfig is the caller-facing stop configuration. Nil means unset.
type RawConfig struct {
	MaxResults  *int
	IdleTimeout *time.Duration
	MaxBacklog  *int
}

// Config is a validated stop configuration. Zero MaxResults or IdleTimeout
// means the condition is unset; MaxBacklog is always positive.
type Config struct {
	MaxResults  int
	IdleTimeout time.Duration
	MaxBacklog  int
}

// Bounded reports whether a result ceiling is set.
func (c Config) Bounded() bool { return c.MaxResults > 0 }

// RunState is the driver's view of a run. Only the driver mutates it.
type RunState struct {
	// Accepted counts messages accepted with a result.
	Accepted int
	// LastActivity is when the driver last received an increment (or when the
	// run started).
	LastActivity time.Time
}

// Validate applies defaults and checks the bounds of raw.
func Validate(raw RawConfig) (Config, error) {
	var cfg Config

	if raw.MaxResults == nil && raw.IdleTimeout == nil {
		return Config{}, fmt.Errorf("%w: at least one stopping condition is required; max results and idle timeout cannot both be unset", types.ErrConfiguration)
	}
	if raw.MaxResults != nil {
		if *raw.MaxResults <= 0 {
			return Config{}, fmt.Errorf("%w: max results must be positive, got %d", types.ErrConfiguration, *raw.MaxResults)
		}
		cfg.MaxResults = *raw.MaxResults
	}
	if raw.IdleTimeout != nil {
		if *raw.IdleTimeout <= 0 {
			return Config{}, fmt.Errorf("%w: idle timeout must be positive, got %s", types.ErrConfiguration, *raw.IdleTimeout)
		}
		cfg.IdleTimeout = *raw.IdleTimeout
	}

	cfg.MaxBacklog = DefaultMaxBacklog
	if raw.MaxBacklog != nil {
		if *raw.MaxBacklog <= 0 {
			return Config{}, fmt.Errorf("%w: max backlog must be positive, got %d", types.ErrConfiguration, *raw.MaxBacklog)
		}
		cfg.MaxBacklog = *raw.MaxBacklog
	}
	// Never pull down more than could be accepted.
	if cfg.Bounded() && cfg.MaxBacklog > cfg.MaxResults {
		cfg.MaxBacklog = cfg.MaxResults
	}
	return cfg, nil
}

// ShouldContinue reports whether a run in state should keep pulling at now.
func ShouldContinue(state RunState, cfg Config, now time.Time) bool {
	underCeiling := !cfg.Bounded() || state.Accepted < cfg.MaxResults
	active := cfg.IdleTimeout <= 0 || now.Sub(state.LastActivity) < cfg.IdleTimeout
	return underCeiling && active
}

// Int returns a pointer to v, for building a RawConfig.
func Int(v int) *int { return &v }

// Duration returns a pointer to d, for building a RawConfig.
func Duration(d time.Duration) *time.Duration { return &d }
