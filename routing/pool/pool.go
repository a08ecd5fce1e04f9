// Package pool holds the centrality samples a node collects from the peers
// it meets, and ranks and samples them for forwarding decisions.
package pool

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/signalsfoundry/socleer/model"
	"github.com/signalsfoundry/socleer/routing"
)

// Unbounded is the window size that selects the whole ranked pool.
const Unbounded = -1

// Pool is an append-only, duplicate-tolerant collection of samples.
//
// By default a Pool is never pruned: it grows with every contact for the
// lifetime of the node. WithMaxSamples opts into keeping only the most
// recent samples.
//
// Pool is not safe for concurrent use.
type Pool struct {
	samples    []Sample
	maxSamples int
}

// Option customises a Pool.
type Option func(*Pool)

// WithMaxSamples keeps at most n samples, discarding the oldest first.
// Zero or negative n means unbounded.
func WithMaxSamples(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxSamples = n
		}
	}
}

// New returns an empty Pool.
func New(opts ...Option) *Pool {
	p := &Pool{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Add appends s without deduplication.
func (p *Pool) Add(s Sample) {
	p.samples = append(p.samples, s)
	if p.maxSamples > 0 && len(p.samples) > p.maxSamples {
		n := copy(p.samples, p.samples[len(p.samples)-p.maxSamples:])
		p.samples = p.samples[:n]
	}
}

// Len returns the number of samples held.
func (p *Pool) Len() int {
	return len(p.samples)
}

// MaxSamples returns the pruning bound, or 0 when unbounded.
func (p *Pool) MaxSamples() int {
	return p.maxSamples
}

// Snapshot returns the samples in insertion order.
func (p *Pool) Snapshot() []Sample {
	return slices.Clone(p.samples)
}

// Peers returns the distinct peers sampled, in first-seen order.
func (p *Pool) Peers() []model.NodeID {
	var seen model.NodeSet
	var out []model.NodeID
	for _, s := range p.samples {
		if seen.Contains(s.Peer) {
			continue
		}
		seen.Add(s.Peer)
		out = append(out, s.Peer)
	}
	return out
}

// Ranked returns every sample sorted by descending score.
// Equal scores keep insertion order.
func (p *Pool) Ranked() []Sample {
	out := slices.Clone(p.samples)
	slices.SortStableFunc(out, func(a, b Sample) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return out
}

// TopWindow returns the first k entries of Ranked,
// or all of them when k is Unbounded or exceeds the pool size.
func (p *Pool) TopWindow(k int) []Sample {
	ranked := p.Ranked()
	if k == Unbounded || k > len(ranked) {
		return ranked
	}
	if k < 0 {
		k = 0
	}
	return ranked[:k]
}

// DrawWithoutReplacement picks d distinct entries of window uniformly at random.
// window itself is not modified.
// Asking for more entries than window holds is a bounds fault.
func DrawWithoutReplacement(window []Sample, d int, rng *rand.Rand) ([]Sample, error) {
	if d > len(window) {
		return nil, fmt.Errorf("%w: cannot draw %d from a window of %d", routing.ErrBounds, d, len(window))
	}
	if d <= 0 {
		return nil, nil
	}

	candidates := slices.Clone(window)
	drawn := make([]Sample, 0, d)
	for range d {
		i := rng.IntN(len(candidates))
		drawn = append(drawn, candidates[i])

		last := len(candidates) - 1
		candidates[i] = candidates[last]
		candidates = candidates[:last]
	}
	return drawn, nil
}
