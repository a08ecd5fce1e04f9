package socleer

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/signalsfoundry/socleer/internal/logging"
	"github.com/signalsfoundry/socleer/routing"
	"github.com/signalsfoundry/socleer/routing/centrality"
	"github.com/signalsfoundry/socleer/routing/community"
	"github.com/signalsfoundry/socleer/routing/pool"
	"github.com/signalsfoundry/socleer/timectrl"
)

// Pool policy defaults. The whole ranked pool is the draw window and five
// entries are drawn per decision.
const (
	DefaultPoolSize  = pool.Unbounded
	DefaultDrawCount = 5
)

// Config configures a prototype engine.
type Config struct {
	Community  community.Strategy
	Centrality centrality.Strategy

	// PoolSize bounds the ranked window entries are drawn from.
	// pool.Unbounded uses the whole pool.
	PoolSize int
	// DrawCount is how many entries each ShouldForward draws.
	DrawCount int
	// MaxPoolSamples caps pool growth. Zero or pool.Unbounded keeps every sample.
	MaxPoolSamples int
	// Seed roots every replica's random stream.
	Seed uint64

	Directory routing.Directory
	Clock     timectrl.SimClock

	Log     logging.Logger
	Metrics MetricsRecorder
}

// DefaultConfig returns the default pool policy with the given strategies
// and host services.
func DefaultConfig(c community.Strategy, cs centrality.Strategy, dir routing.Directory, clock timectrl.SimClock) Config {
	return Config{
		Community:  c,
		Centrality: cs,
		PoolSize:   DefaultPoolSize,
		DrawCount:  DefaultDrawCount,
		Directory:  dir,
		Clock:      clock,
	}
}

func (c Config) validate() error {
	var err error
	if c.Community == nil {
		err = multierr.Append(err, fmt.Errorf("%w: community strategy is required", routing.ErrConfiguration))
	}
	if c.Centrality == nil {
		err = multierr.Append(err, fmt.Errorf("%w: centrality strategy is required", routing.ErrConfiguration))
	}
	if c.Directory == nil {
		err = multierr.Append(err, fmt.Errorf("%w: engine directory is required", routing.ErrConfiguration))
	}
	if c.Clock == nil {
		err = multierr.Append(err, fmt.Errorf("%w: clock is required", routing.ErrConfiguration))
	}
	if c.DrawCount < 1 {
		err = multierr.Append(err, fmt.Errorf("%w: draw count %d must be at least 1", routing.ErrConfiguration, c.DrawCount))
	}
	switch {
	case c.PoolSize == 0 || c.PoolSize < pool.Unbounded:
		err = multierr.Append(err, fmt.Errorf("%w: pool size %d must be positive or unbounded", routing.ErrConfiguration, c.PoolSize))
	case c.PoolSize > 0 && c.DrawCount > c.PoolSize:
		err = multierr.Append(err, fmt.Errorf("%w: draw count %d exceeds pool size %d", routing.ErrConfiguration, c.DrawCount, c.PoolSize))
	}
	if c.MaxPoolSamples < pool.Unbounded {
		err = multierr.Append(err, fmt.Errorf("%w: max pool samples %d is negative", routing.ErrConfiguration, c.MaxPoolSamples))
	}
	return err
}
