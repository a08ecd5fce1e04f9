package socleer_test

import (
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/signalsfoundry/socleer/internal/logging"
	"github.com/signalsfoundry/socleer/internal/observability"
	"github.com/signalsfoundry/socleer/model"
	"github.com/signalsfoundry/socleer/routing"
	"github.com/signalsfoundry/socleer/routing/centrality"
	"github.com/signalsfoundry/socleer/routing/community"
	"github.com/signalsfoundry/socleer/routing/history"
	"github.com/signalsfoundry/socleer/routing/pool"
	"github.com/signalsfoundry/socleer/routing/socleer"
	"github.com/signalsfoundry/socleer/timectrl"
)

const (
	nodeA model.NodeID = 1
	nodeB model.NodeID = 2
	nodeC model.NodeID = 3
)

var epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return epoch.Add(time.Duration(sec) * time.Second) }

// fixedCentrality reports constant scores.
type fixedCentrality struct{ local, global float64 }

func (f fixedCentrality) Local(history.History, community.Strategy) float64 { return f.local }
func (f fixedCentrality) Global(history.History) float64                    { return f.global }
func (f fixedCentrality) Replicate() centrality.Strategy                    { return f }

// fixedCommunity is a community with a constant membership.
type fixedCommunity struct{ members model.NodeSet }

func (f fixedCommunity) OnNewContact(model.NodeID, model.NodeID, community.Strategy) {}
func (f fixedCommunity) OnContactEnded(model.NodeID, model.NodeID, community.Strategy, []history.Interval) {
}
func (f fixedCommunity) Contains(id model.NodeID) bool { return f.members.Contains(id) }
func (f fixedCommunity) LocalCommunity() model.NodeSet { return f.members.Clone() }
func (f fixedCommunity) Replicate() community.Strategy { return f }

// foreignEngine is a decision engine of another family.
type foreignEngine struct{ routing.DecisionEngine }

// network is a minimal host: a clock and one engine per node.
type network struct {
	clock   *timectrl.TimeController
	engines map[model.NodeID]routing.DecisionEngine
}

func (n *network) Engine(id model.NodeID) (routing.DecisionEngine, bool) {
	e, ok := n.engines[id]
	return e, ok
}

func (n *network) get(id model.NodeID) *socleer.Engine {
	return n.engines[id].(*socleer.Engine)
}

// newNetwork installs a replica of one prototype at every id.
func newNetwork(t *testing.T, mutate func(*socleer.Config), ids ...model.NodeID) *network {
	t.Helper()

	n := &network{
		clock:   timectrl.NewTimeController(epoch, time.Second, timectrl.Discrete),
		engines: make(map[model.NodeID]routing.DecisionEngine),
	}
	cfg := socleer.DefaultConfig(
		community.NewSimple(community.DefaultFamiliarThreshold, community.DefaultLambda),
		fixedCentrality{local: 2, global: 5},
		n,
		n.clock,
	)
	cfg.Log = logging.FromSlog(slogt.New(t))
	if mutate != nil {
		mutate(&cfg)
	}

	proto, err := socleer.New(cfg)
	require.NoError(t, err)
	for _, id := range ids {
		n.engines[id] = proto.Replicate()
	}
	return n
}

// connect drives one full contact up between a and b at the current time.
func (n *network) connect(t *testing.T, a, b model.NodeID) {
	t.Helper()
	require.NoError(t, n.engines[a].ExchangeOnNewContact(a, b))
	require.NoError(t, n.engines[a].ContactUp(a, b))
	require.NoError(t, n.engines[b].ContactUp(b, a))
}

func (n *network) disconnect(t *testing.T, a, b model.NodeID) {
	t.Helper()
	require.NoError(t, n.engines[a].ContactDown(a, b))
	require.NoError(t, n.engines[b].ContactDown(b, a))
}

func (n *network) advanceTo(t *testing.T, sec int) {
	t.Helper()
	require.NoError(t, n.clock.AdvanceTo(at(sec)))
}

func TestEngine_SingleContactScenario(t *testing.T) {
	t.Parallel()

	n := newNetwork(t, func(c *socleer.Config) {
		c.PoolSize = 2
		c.DrawCount = 1
	}, nodeA, nodeB)

	n.advanceTo(t, 10)
	n.connect(t, nodeA, nodeB)

	a := n.get(nodeA)
	require.Equal(t, []pool.Sample{
		{Peer: nodeB, Score: 2, Kind: pool.Local},
		{Peer: nodeB, Score: 5, Kind: pool.Global},
	}, a.Pool())
	require.True(t, a.InContact(nodeB))
	require.Equal(t, []model.NodeID{nodeB}, a.PoolPeers())
	require.Empty(t, a.Contacts(), "an open contact has no closed interval yet")

	n.advanceTo(t, 15)
	n.disconnect(t, nodeA, nodeB)

	require.False(t, a.InContact(nodeB))
	require.Equal(t, history.History{
		nodeB: {{Start: at(10), End: at(15)}},
	}, a.History())
	require.Len(t, a.Pool(), 2, "contact down must not touch the pool")
	require.Equal(t, []model.NodeID{nodeB}, a.Contacts())

	m := model.Message{ID: "m1", From: nodeA, To: nodeC}
	for range 20 {
		ok, err := a.ShouldForward(m, nodeB)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestEngine_DrawCountExceedsWindow(t *testing.T) {
	t.Parallel()

	n := newNetwork(t, func(c *socleer.Config) {
		c.PoolSize = 10
		c.DrawCount = 5
		c.MaxPoolSamples = 3
	}, nodeA, nodeB, nodeC)

	n.connect(t, nodeA, nodeB)
	n.connect(t, nodeA, nodeC)
	a := n.get(nodeA)
	require.Len(t, a.Pool(), 3)

	ok, err := a.ShouldForward(model.Message{ID: "m1", To: 9}, nodeB)
	require.ErrorIs(t, err, routing.ErrBounds)
	require.False(t, ok)
	require.True(t, routing.IsFault(err))
}

func TestEngine_DestinationAlwaysForwarded(t *testing.T) {
	t.Parallel()

	n := newNetwork(t, nil, nodeA, nodeB)
	a := n.get(nodeA)
	require.Empty(t, a.Pool())

	ok, err := a.ShouldForward(model.Message{ID: "m1", From: nodeA, To: nodeB}, nodeB)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, a.IsFinalDestination(model.Message{To: nodeB}, nodeB))
	require.False(t, a.IsFinalDestination(model.Message{To: nodeB}, nodeA))
}

func TestEngine_MessageHooks(t *testing.T) {
	t.Parallel()

	n := newNetwork(t, nil, nodeA)
	a := n.get(nodeA)

	require.True(t, a.OnNewMessage(model.Message{ID: "m1", From: nodeA, To: nodeB}))
	require.True(t, a.ShouldBuffer(model.Message{To: nodeB}, nodeA))
	require.False(t, a.ShouldBuffer(model.Message{To: nodeA}, nodeA))
}

func TestEngine_DeletionTruthTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		otherHasDest   bool
		selfHasDest    bool
		wantDeleteCopy bool
	}{
		{"handed into community", true, false, true},
		{"both in community", true, true, false},
		{"leaving community", false, true, false},
		{"neither in community", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			n := &network{
				clock:   timectrl.NewTimeController(epoch, time.Second, timectrl.Discrete),
				engines: make(map[model.NodeID]routing.DecisionEngine),
			}
			install := func(id model.NodeID, hasDest bool) *socleer.Engine {
				members := model.NewNodeSet(id)
				if hasDest {
					members.Add(nodeC)
				}
				e, err := socleer.New(socleer.DefaultConfig(fixedCommunity{members: members}, centrality.Degree{}, n, n.clock))
				require.NoError(t, err)
				n.engines[id] = e
				return e
			}
			self := install(nodeA, tt.selfHasDest)
			install(nodeB, tt.otherHasDest)

			m := model.Message{ID: "m1", From: nodeA, To: nodeC}
			got, err := self.ShouldDeleteAfterSend(m, nodeB)
			require.NoError(t, err)
			require.Equal(t, tt.wantDeleteCopy, got)

			got, err = self.ShouldDeleteWhenReportedOld(m, nodeB)
			require.NoError(t, err)
			require.Equal(t, tt.wantDeleteCopy, got)
		})
	}
}

func TestEngine_ContactDownWithoutContactUp(t *testing.T) {
	t.Parallel()

	n := newNetwork(t, nil, nodeA, nodeB)
	err := n.get(nodeA).ContactDown(nodeA, nodeB)
	require.ErrorIs(t, err, routing.ErrProtocolViolation)
	require.Equal(t, "protocol_violation", routing.FaultKind(err))
}

func TestEngine_PeerLookupFaults(t *testing.T) {
	t.Parallel()

	n := newNetwork(t, nil, nodeA)
	n.engines[nodeB] = foreignEngine{}
	a := n.get(nodeA)

	err := a.ExchangeOnNewContact(nodeA, nodeB)
	require.ErrorIs(t, err, routing.ErrTypeMismatch)
	require.ErrorIs(t, err, routing.ErrProtocolViolation)

	err = a.ContactUp(nodeA, nodeB)
	require.ErrorIs(t, err, routing.ErrTypeMismatch)

	_, err = a.ShouldDeleteAfterSend(model.Message{To: nodeC}, nodeB)
	require.ErrorIs(t, err, routing.ErrTypeMismatch)

	err = a.ContactUp(nodeA, nodeC)
	require.ErrorIs(t, err, routing.ErrProtocolViolation)
	require.NotErrorIs(t, err, routing.ErrTypeMismatch)
}

func TestEngine_ExchangeIsBilateral(t *testing.T) {
	t.Parallel()

	n := newNetwork(t, nil, nodeA, nodeB)
	n.advanceTo(t, 100)
	require.NoError(t, n.engines[nodeA].ExchangeOnNewContact(nodeA, nodeB))

	require.True(t, n.get(nodeA).InContact(nodeB))
	require.True(t, n.get(nodeB).InContact(nodeA))
	require.True(t, n.get(nodeA).InCommunity(nodeA))
	require.True(t, n.get(nodeB).InCommunity(nodeB))

	// A long contact makes the peers familiar to each other.
	n.advanceTo(t, 100+int(community.DefaultFamiliarThreshold/time.Second)+1)
	n.disconnect(t, nodeA, nodeB)
	require.True(t, n.get(nodeA).InCommunity(nodeB))
	require.True(t, n.get(nodeB).InCommunity(nodeA))
	require.Equal(t, []model.NodeID{nodeA, nodeB}, n.get(nodeA).LocalCommunity().Members())
}

func TestEngine_ReplicateHasFreshState(t *testing.T) {
	t.Parallel()

	n := newNetwork(t, nil, nodeA, nodeB)
	n.connect(t, nodeA, nodeB)
	n.advanceTo(t, 1000)
	n.disconnect(t, nodeA, nodeB)

	a := n.get(nodeA)
	require.NotEmpty(t, a.Pool())
	require.NotEmpty(t, a.History())
	require.True(t, a.InCommunity(nodeB))

	r, ok := a.Replicate().(*socleer.Engine)
	require.True(t, ok)
	require.Empty(t, r.Pool())
	require.Empty(t, r.History())
	require.False(t, r.InCommunity(nodeB))
	require.False(t, r.InContact(nodeB))

	k, d := r.Policy()
	require.Equal(t, socleer.DefaultPoolSize, k)
	require.Equal(t, socleer.DefaultDrawCount, d)

	// The original keeps its state.
	require.Len(t, a.Pool(), 2)
}

func TestEngine_PoolGrowsWithEveryContact(t *testing.T) {
	t.Parallel()

	n := newNetwork(t, nil, nodeA, nodeB, nodeC)
	a := n.get(nodeA)

	for i := 1; i <= 50; i++ {
		peer := nodeB
		if i%2 == 0 {
			peer = nodeC
		}
		n.advanceTo(t, i*10)
		n.connect(t, nodeA, peer)
		require.Equal(t, 2*i, len(a.Pool()))

		n.advanceTo(t, i*10+5)
		n.disconnect(t, nodeA, peer)
		require.Equal(t, 2*i, len(a.Pool()), "pool shrank on contact down")
	}

	ranked := a.RankedPool()
	for i := 1; i < len(ranked); i++ {
		require.GreaterOrEqual(t, ranked[i-1].Score, ranked[i].Score)
	}
}

func TestEngine_ShouldForwardRedrawsEveryCall(t *testing.T) {
	t.Parallel()

	peers := []model.NodeID{2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	n := newNetwork(t, func(c *socleer.Config) {
		c.DrawCount = 1
		c.Seed = 7
	}, append([]model.NodeID{nodeA}, peers...)...)
	for _, p := range peers {
		n.connect(t, nodeA, p)
	}

	a := n.get(nodeA)
	m := model.Message{ID: "m1", From: nodeA, To: 99}
	var forwarded, kept int
	for range 500 {
		ok, err := a.ShouldForward(m, nodeB)
		require.NoError(t, err)
		if ok {
			forwarded++
		} else {
			kept++
		}
	}
	require.Positive(t, forwarded)
	require.Positive(t, kept)
}

func TestEngine_MetricsRecorded(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector, err := observability.NewDecisionCollector(reg)
	require.NoError(t, err)

	n := newNetwork(t, func(c *socleer.Config) {
		c.Metrics = collector
		c.PoolSize = 2
		c.DrawCount = 1
	}, nodeA, nodeB)

	n.connect(t, nodeA, nodeB)
	n.advanceTo(t, 5)
	n.disconnect(t, nodeA, nodeB)

	a := n.get(nodeA)
	_, err = a.ShouldForward(model.Message{ID: "m1", To: nodeC}, nodeB)
	require.NoError(t, err)
	_, err = a.ShouldForward(model.Message{ID: "m2", To: nodeB}, nodeB)
	require.NoError(t, err)
	err = a.ContactDown(nodeA, nodeB)
	require.Error(t, err)

	require.Equal(t, 2.0, testutil.ToFloat64(collector.Contacts.WithLabelValues("up")))
	require.Equal(t, 2.0, testutil.ToFloat64(collector.Contacts.WithLabelValues("down")))
	require.Equal(t, 1.0, testutil.ToFloat64(collector.ForwardDecisions.WithLabelValues(socleer.OutcomeForward)))
	require.Equal(t, 1.0, testutil.ToFloat64(collector.ForwardDecisions.WithLabelValues(socleer.OutcomeDestination)))
	require.Equal(t, 1.0, testutil.ToFloat64(collector.Faults.WithLabelValues("protocol_violation")))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	clock := timectrl.NewTimeController(epoch, time.Second, timectrl.Discrete)
	dir := routing.DirectoryFunc(func(model.NodeID) (routing.DecisionEngine, bool) { return nil, false })
	valid := socleer.DefaultConfig(community.NewSimple(time.Minute, 0.6), centrality.Degree{}, dir, clock)

	tests := []struct {
		name   string
		mutate func(*socleer.Config)
	}{
		{"missing community", func(c *socleer.Config) { c.Community = nil }},
		{"missing centrality", func(c *socleer.Config) { c.Centrality = nil }},
		{"missing directory", func(c *socleer.Config) { c.Directory = nil }},
		{"missing clock", func(c *socleer.Config) { c.Clock = nil }},
		{"zero draw count", func(c *socleer.Config) { c.DrawCount = 0 }},
		{"zero pool size", func(c *socleer.Config) { c.PoolSize = 0 }},
		{"pool size below unbounded", func(c *socleer.Config) { c.PoolSize = -2 }},
		{"draw count above pool size", func(c *socleer.Config) { c.PoolSize = 3; c.DrawCount = 5 }},
		{"negative max samples", func(c *socleer.Config) { c.MaxPoolSamples = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := socleer.New(cfg)
			require.ErrorIs(t, err, routing.ErrConfiguration)
		})
	}

	_, err := socleer.New(valid)
	require.NoError(t, err)

	// The deterministic take-all policy.
	det := valid
	det.PoolSize, det.DrawCount = 10, 10
	_, err = socleer.New(det)
	require.NoError(t, err)
}

func TestNew_ReportsEveryProblem(t *testing.T) {
	t.Parallel()

	_, err := socleer.New(socleer.Config{})
	require.ErrorIs(t, err, routing.ErrConfiguration)

	errs := multierr.Errors(err)
	require.Len(t, errs, 6, "got %v", err)
	for _, want := range []string{"community", "centrality", "directory", "clock", "draw count", "pool size"} {
		require.ErrorContains(t, err, want)
	}
}
