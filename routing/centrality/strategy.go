// Package centrality estimates how well connected a node is from its
// contact history.
package centrality

import (
	"fmt"
	"strings"
	"time"

	"github.com/signalsfoundry/socleer/routing"
	"github.com/signalsfoundry/socleer/routing/community"
	"github.com/signalsfoundry/socleer/routing/history"
	"github.com/signalsfoundry/socleer/timectrl"
)

// Strategy computes local and global centrality scores.
// Scores are only comparable between strategies of the same family.
type Strategy interface {
	// Local scores the node within its local community.
	Local(h history.History, c community.Strategy) float64
	// Global scores the node within the whole network.
	Global(h history.History) float64
	// Replicate returns an identically configured strategy with empty state.
	Replicate() Strategy
}

// Settings configures the window-based strategies.
type Settings struct {
	TimeWindow      time.Duration
	ComputeInterval time.Duration
	EpochCount      int
}

const (
	DefaultTimeWindow      = 6 * time.Hour
	DefaultComputeInterval = 10 * time.Minute
	DefaultEpochCount      = 5
)

func (s Settings) withDefaults() Settings {
	if s.TimeWindow <= 0 {
		s.TimeWindow = DefaultTimeWindow
	}
	// A negative interval disables caching.
	if s.ComputeInterval == 0 {
		s.ComputeInterval = DefaultComputeInterval
	}
	if s.EpochCount <= 0 {
		s.EpochCount = DefaultEpochCount
	}
	return s
}

// Names of the built-in strategies accepted by New.
const (
	DegreeName  = "degree"
	SWindowName = "swindow"
	CWindowName = "cwindow"
)

// Canonical maps a strategy selector to its built-in name.
// An empty name selects the sliding window strategy.
func Canonical(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case DegreeName, "degreecentrality":
		return DegreeName, nil
	case "", SWindowName, "s-window", "swindowcentrality":
		return SWindowName, nil
	case CWindowName, "c-window", "cwindowcentrality":
		return CWindowName, nil
	default:
		return "", fmt.Errorf("%w: unknown centrality algorithm %q", routing.ErrConfiguration, name)
	}
}

// New resolves a strategy selector.
// Window strategies read simulation time from clock.
func New(name string, s Settings, clock timectrl.SimClock) (Strategy, error) {
	canonical, err := Canonical(name)
	if err != nil {
		return nil, err
	}
	if canonical == DegreeName {
		return Degree{}, nil
	}
	if clock == nil {
		return nil, fmt.Errorf("%w: %s centrality needs a simulation clock", routing.ErrConfiguration, canonical)
	}
	s = s.withDefaults()
	if canonical == CWindowName {
		return NewCWindow(clock, s), nil
	}
	return NewSWindow(clock, s), nil
}
