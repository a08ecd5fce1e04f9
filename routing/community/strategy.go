// Package community holds the local-community detection strategies a
// decision engine can be configured with.
//
// A strategy only ever mutates its own state. The peer's strategy passed to
// the contact hooks is read-only input.
package community

import (
	"fmt"
	"strings"
	"time"

	"github.com/signalsfoundry/socleer/model"
	"github.com/signalsfoundry/socleer/routing"
	"github.com/signalsfoundry/socleer/routing/history"
)

// Strategy maintains and answers local-community membership for one node.
type Strategy interface {
	// OnNewContact is invoked once per new contact with the peer's strategy.
	OnNewContact(self, peer model.NodeID, peerCommunity Strategy)

	// OnContactEnded is invoked after a contact closes, with every
	// interval recorded so far for that peer.
	OnContactEnded(self, peer model.NodeID, peerCommunity Strategy, hist []history.Interval)

	// Contains reports whether id is in the local community.
	Contains(id model.NodeID) bool

	// LocalCommunity returns a copy of the local community.
	LocalCommunity() model.NodeSet

	// Replicate returns an identically configured strategy with empty state.
	Replicate() Strategy
}

// FamiliarSetter is implemented by strategies that track a familiar set,
// the peers whose cumulative contact time crossed the familiarity threshold.
type FamiliarSetter interface {
	FamiliarSet() model.NodeSet
}

func familiarOf(s Strategy) model.NodeSet {
	if f, ok := s.(FamiliarSetter); ok {
		return f.FamiliarSet()
	}
	return model.NodeSet{}
}

// Settings configures the built-in strategies.
// Zero fields fall back to the defaults below.
type Settings struct {
	// FamiliarThreshold is the cumulative contact time after which a peer
	// becomes familiar.
	FamiliarThreshold time.Duration
	// Lambda is the fraction of a peer's familiar set that must already be
	// in our community for the simple strategy to admit the peer on contact.
	Lambda float64
	// K is the clique size for the k-clique strategy.
	K int
}

const (
	DefaultFamiliarThreshold = 700 * time.Second
	DefaultLambda            = 0.6
	DefaultK                 = 5
)

func (s Settings) withDefaults() Settings {
	if s.FamiliarThreshold <= 0 {
		s.FamiliarThreshold = DefaultFamiliarThreshold
	}
	if s.Lambda <= 0 {
		s.Lambda = DefaultLambda
	}
	if s.K <= 0 {
		s.K = DefaultK
	}
	return s
}

// Names of the built-in strategies accepted by New.
const (
	SimpleName  = "simple"
	KCliqueName = "kclique"
)

// Canonical maps a strategy selector to its built-in name.
// An empty name selects the simple strategy.
func Canonical(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SimpleName, "simplecommunitydetection":
		return SimpleName, nil
	case KCliqueName, "k-clique", "kcliquecommunitydetection":
		return KCliqueName, nil
	default:
		return "", fmt.Errorf("%w: unknown community detection algorithm %q", routing.ErrConfiguration, name)
	}
}

// New resolves a strategy selector.
func New(name string, s Settings) (Strategy, error) {
	canonical, err := Canonical(name)
	if err != nil {
		return nil, err
	}
	s = s.withDefaults()
	if canonical == KCliqueName {
		return NewKClique(s.FamiliarThreshold, s.K), nil
	}
	return NewSimple(s.FamiliarThreshold, s.Lambda), nil
}
