// Package socleer implements the Socleer forwarding decision engine.
//
// Every contact adds the peer's local and global centrality to an
// ever-growing neighbor pool. A message is forwarded to a peer when the peer
// is drawn at random from the top of the ranked pool, and the local copy is
// dropped once it has reached a node in the destination's community
// (the Bubble Rap deletion rule).
package socleer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"github.com/signalsfoundry/socleer/internal/logging"
	"github.com/signalsfoundry/socleer/model"
	"github.com/signalsfoundry/socleer/routing"
	"github.com/signalsfoundry/socleer/routing/centrality"
	"github.com/signalsfoundry/socleer/routing/community"
	"github.com/signalsfoundry/socleer/routing/history"
	"github.com/signalsfoundry/socleer/routing/pool"
)

// Forward decision outcomes reported to the MetricsRecorder.
const (
	OutcomeDestination = "destination"
	OutcomeForward     = "forward"
	OutcomeKeep        = "keep"
)

// MetricsRecorder receives engine events.
// The observability package's DecisionCollector satisfies it.
type MetricsRecorder interface {
	ObserveContact(event string)
	ObserveForwardDecision(outcome string)
	ObserveFault(kind string)
	ObservePoolSize(samples int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveContact(string)         {}
func (nopRecorder) ObserveForwardDecision(string) {}
func (nopRecorder) ObserveFault(string)           {}
func (nopRecorder) ObservePoolSize(int)           {}

// Engine is one node's decision engine.
//
// Build one configured prototype with New and call Replicate once per node.
// Engines are driven one event at a time by the host and are not safe for
// concurrent use.
type Engine struct {
	cfg Config

	community  community.Strategy
	centrality centrality.Strategy
	contacts   *history.Tracker
	pool       *pool.Pool
	rng        *rand.Rand

	// Shared by a prototype and all of its replicas,
	// so every replica gets its own random stream.
	replicas *atomic.Uint64
}

var (
	_ routing.DecisionEngine    = (*Engine)(nil)
	_ routing.CommunityDetector = (*Engine)(nil)
)

// New validates cfg and returns a prototype engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Log == nil {
		cfg.Log = logging.Noop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopRecorder{}
	}

	e := &Engine{
		cfg:      cfg,
		replicas: new(atomic.Uint64),
	}
	e.reset(cfg.Community, cfg.Centrality, 0)
	return e, nil
}

func (e *Engine) reset(c community.Strategy, cs centrality.Strategy, stream uint64) {
	e.community = c
	e.centrality = cs
	e.contacts = history.NewTracker()
	e.pool = pool.New(pool.WithMaxSamples(e.cfg.MaxPoolSamples))
	e.rng = rand.New(rand.NewPCG(e.cfg.Seed, stream))
}

// Replicate returns a new engine with the same configuration, freshly
// replicated strategies, and empty history, pool, and pending contacts.
func (e *Engine) Replicate() routing.DecisionEngine {
	return e.replicate()
}

func (e *Engine) replicate() *Engine {
	r := &Engine{
		cfg:      e.cfg,
		replicas: e.replicas,
	}
	r.reset(e.community.Replicate(), e.centrality.Replicate(), e.replicas.Add(1))
	return r
}

// peer returns the live engine installed at id.
func (e *Engine) peer(id model.NodeID) (*Engine, error) {
	de, ok := e.cfg.Directory.Engine(id)
	if !ok || de == nil {
		return nil, fmt.Errorf("%w: no decision engine installed at %s", routing.ErrProtocolViolation, id)
	}
	other, ok := de.(*Engine)
	if !ok {
		return nil, fmt.Errorf("%w: %s runs %T, not a socleer engine", routing.ErrTypeMismatch, id, de)
	}
	return other, nil
}

// fault records err and returns it unchanged.
func (e *Engine) fault(op string, err error, fields ...logging.Field) error {
	kind := routing.FaultKind(err)
	e.cfg.Metrics.ObserveFault(kind)
	e.cfg.Log.Warn(context.Background(), "decision engine fault", append(fields,
		logging.String("op", op),
		logging.String("kind", kind),
		logging.Err(err),
	)...)
	return err
}

// ExchangeOnNewContact starts timing the contact on both engines and lets
// both community strategies see each other.
// The host calls it once per contact, before ContactUp on either side.
func (e *Engine) ExchangeOnNewContact(self, peer model.NodeID) error {
	other, err := e.peer(peer)
	if err != nil {
		return e.fault("exchange", err, logging.Node("self", self), logging.Node("peer", peer))
	}

	now := e.cfg.Clock.Now()
	e.contacts.Start(peer, now)
	other.contacts.Start(self, now)

	e.community.OnNewContact(self, peer, other.community)
	other.community.OnNewContact(peer, self, e.community)
	return nil
}

// ContactUp samples the peer's current centralities into the neighbor pool.
func (e *Engine) ContactUp(self, peer model.NodeID) error {
	other, err := e.peer(peer)
	if err != nil {
		return e.fault("contact_up", err, logging.Node("self", self), logging.Node("peer", peer))
	}

	local := other.LocalCentrality()
	global := other.GlobalCentrality()
	e.pool.Add(pool.Sample{Peer: peer, Score: local, Kind: pool.Local})
	e.pool.Add(pool.Sample{Peer: peer, Score: global, Kind: pool.Global})

	e.cfg.Metrics.ObserveContact("up")
	e.cfg.Metrics.ObservePoolSize(e.pool.Len())
	e.cfg.Log.Debug(context.Background(), "contact up",
		logging.Node("self", self),
		logging.Node("peer", peer),
		logging.Float("local_centrality", local),
		logging.Float("global_centrality", global),
		logging.Int("pool_samples", e.pool.Len()),
	)
	return nil
}

// ContactDown closes the contact interval and lets the community strategy
// react to the peer's updated history. The pool is left untouched.
func (e *Engine) ContactDown(self, peer model.NodeID) error {
	other, err := e.peer(peer)
	if err != nil {
		return e.fault("contact_down", err, logging.Node("self", self), logging.Node("peer", peer))
	}

	hist, err := e.contacts.End(peer, e.cfg.Clock.Now())
	if err != nil {
		return e.fault("contact_down", err, logging.Node("self", self), logging.Node("peer", peer))
	}
	e.community.OnContactEnded(self, peer, other.community, hist)

	e.cfg.Metrics.ObserveContact("down")
	e.cfg.Log.Debug(context.Background(), "contact down",
		logging.Node("self", self),
		logging.Node("peer", peer),
		logging.Int("intervals", len(hist)),
		logging.Bool("in_community", e.community.Contains(peer)),
	)
	return nil
}

// OnNewMessage always keeps newly created messages.
func (e *Engine) OnNewMessage(model.Message) bool {
	return true
}

// IsFinalDestination reports whether node is m's destination.
func (e *Engine) IsFinalDestination(m model.Message, node model.NodeID) bool {
	return m.To == node
}

// ShouldBuffer keeps every received message not addressed to self.
func (e *Engine) ShouldBuffer(m model.Message, self model.NodeID) bool {
	return m.To != self
}

// ShouldForward reports whether m should be copied to other.
//
// The destination always gets the message. Otherwise DrawCount entries are
// drawn at random from the PoolSize highest ranked pool samples, and other
// gets a copy if it was drawn. Nothing is memoized: asking twice may give
// different answers.
func (e *Engine) ShouldForward(m model.Message, other model.NodeID) (bool, error) {
	if m.To == other {
		e.cfg.Metrics.ObserveForwardDecision(OutcomeDestination)
		return true, nil
	}

	window := e.pool.TopWindow(e.cfg.PoolSize)
	drawn, err := pool.DrawWithoutReplacement(window, e.cfg.DrawCount, e.rng)
	if err != nil {
		return false, e.fault("should_forward", err, logging.String("message", m.ID), logging.Node("peer", other))
	}

	if pool.ContainsPeer(drawn, other) {
		e.cfg.Metrics.ObserveForwardDecision(OutcomeForward)
		return true, nil
	}
	e.cfg.Metrics.ObserveForwardDecision(OutcomeKeep)
	return false, nil
}

// ShouldDeleteAfterSend reports whether m was just handed into its
// destination's community from outside it.
func (e *Engine) ShouldDeleteAfterSend(m model.Message, other model.NodeID) (bool, error) {
	return e.shouldDelete("delete_after_send", m, other)
}

// ShouldDeleteWhenReportedOld applies the same rule as ShouldDeleteAfterSend
// when other reports already holding m.
func (e *Engine) ShouldDeleteWhenReportedOld(m model.Message, other model.NodeID) (bool, error) {
	return e.shouldDelete("delete_reported_old", m, other)
}

func (e *Engine) shouldDelete(op string, m model.Message, other model.NodeID) (bool, error) {
	o, err := e.peer(other)
	if err != nil {
		return false, e.fault(op, err, logging.String("message", m.ID), logging.Node("peer", other))
	}
	return o.community.Contains(m.To) && !e.community.Contains(m.To), nil
}

// LocalCommunity returns a copy of this node's local community.
func (e *Engine) LocalCommunity() model.NodeSet {
	return e.community.LocalCommunity()
}

// InCommunity reports whether id is in this node's local community.
func (e *Engine) InCommunity(id model.NodeID) bool {
	return e.community.Contains(id)
}

// LocalCentrality is this node's centrality within its local community.
func (e *Engine) LocalCentrality() float64 {
	return e.centrality.Local(e.contacts.History(), e.community)
}

// GlobalCentrality is this node's centrality within the whole network.
func (e *Engine) GlobalCentrality() float64 {
	return e.centrality.Global(e.contacts.History())
}

// Pool returns the neighbor pool samples in insertion order.
func (e *Engine) Pool() []pool.Sample {
	return e.pool.Snapshot()
}

// RankedPool returns the neighbor pool sorted by descending score.
func (e *Engine) RankedPool() []pool.Sample {
	return e.pool.Ranked()
}

// PoolPeers returns the distinct peers sampled into the pool, in first-seen order.
func (e *Engine) PoolPeers() []model.NodeID {
	return e.pool.Peers()
}

// Contacts returns every peer with a closed contact, in ascending order.
func (e *Engine) Contacts() []model.NodeID {
	return e.contacts.Peers()
}

// History returns a copy of the closed contact history.
func (e *Engine) History() history.History {
	return e.contacts.Snapshot()
}

// InContact reports whether a contact with peer is currently open.
func (e *Engine) InContact(peer model.NodeID) bool {
	_, ok := e.contacts.Pending(peer)
	return ok
}

// Policy returns the configured pool size bound and draw count.
func (e *Engine) Policy() (poolSize, drawCount int) {
	return e.cfg.PoolSize, e.cfg.DrawCount
}
