// Package history records when a node is in contact with each peer.
package history

import (
	"fmt"
	"slices"
	"time"

	"github.com/signalsfoundry/socleer/model"
	"github.com/signalsfoundry/socleer/routing"
)

// Interval is one closed contact period. End is never before Start.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// History maps each peer to its contact intervals in chronological order.
type History map[model.NodeID][]Interval

// Tracker accumulates a node's contact history.
// Between Start(p) and End(p) it holds a pending start time for p.
//
// Tracker is not safe for concurrent use.
type Tracker struct {
	pending map[model.NodeID]time.Time
	closed  History
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		pending: make(map[model.NodeID]time.Time),
		closed:  make(History),
	}
}

// Start records now as the start of a contact with peer.
// A pending start for the same peer is overwritten.
func (t *Tracker) Start(peer model.NodeID, now time.Time) {
	t.pending[peer] = now
}

// End closes the pending contact with peer at now and returns peer's full history.
// Contacts of zero or negative duration are discarded.
// Ending a contact that was never started is a protocol violation.
func (t *Tracker) End(peer model.NodeID, now time.Time) ([]Interval, error) {
	start, ok := t.pending[peer]
	if !ok {
		return nil, fmt.Errorf("%w: contact with %s ended without a start", routing.ErrProtocolViolation, peer)
	}
	delete(t.pending, peer)

	if now.Sub(start) > 0 {
		t.closed[peer] = append(t.closed[peer], Interval{Start: start, End: now})
	}
	return t.closed[peer], nil
}

// Pending returns the start time of the open contact with peer, if any.
func (t *Tracker) Pending(peer model.NodeID) (time.Time, bool) {
	start, ok := t.pending[peer]
	return start, ok
}

// For returns peer's closed intervals.
// The slice is owned by the Tracker and must not be modified.
func (t *Tracker) For(peer model.NodeID) []Interval {
	return t.closed[peer]
}

// History returns the full closed history.
// The map is owned by the Tracker and must be treated as read-only.
func (t *Tracker) History() History {
	return t.closed
}

// Peers returns every peer with at least one closed interval, in ascending order.
func (t *Tracker) Peers() []model.NodeID {
	out := make([]model.NodeID, 0, len(t.closed))
	for p, ivs := range t.closed {
		if len(ivs) > 0 {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

// TotalDuration returns the summed length of all closed contacts with peer.
func (t *Tracker) TotalDuration(peer model.NodeID) time.Duration {
	return TotalDuration(t.closed[peer])
}

// TotalDuration sums the lengths of ivs.
func TotalDuration(ivs []Interval) time.Duration {
	var d time.Duration
	for _, iv := range ivs {
		d += iv.Duration()
	}
	return d
}

// Snapshot returns a deep copy of the closed history.
func (t *Tracker) Snapshot() History {
	out := make(History, len(t.closed))
	for p, ivs := range t.closed {
		out[p] = slices.Clone(ivs)
	}
	return out
}
