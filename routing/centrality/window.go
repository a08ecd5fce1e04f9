package centrality

import (
	"time"

	"github.com/signalsfoundry/socleer/model"
	"github.com/signalsfoundry/socleer/routing/community"
	"github.com/signalsfoundry/socleer/routing/history"
	"github.com/signalsfoundry/socleer/timectrl"
)

// cached holds a score and the simulation time it was computed at.
type cached struct {
	at    time.Time
	value float64
	valid bool
}

func (c cached) fresh(now time.Time, interval time.Duration) bool {
	return c.valid && now.Sub(c.at) < interval
}

// windowed carries what both window strategies share:
// the clock, the settings, and one cache per score.
type windowed struct {
	clock    timectrl.SimClock
	settings Settings

	global cached
	local  cached
}

func (w *windowed) score(c *cached, compute func(now time.Time) float64) float64 {
	now := w.clock.Now()
	if c.fresh(now, w.settings.ComputeInterval) {
		return c.value
	}
	v := compute(now)
	*c = cached{at: now, value: v, valid: true}
	return v
}

// epochOf returns how many whole windows before now iv ended.
// Intervals ending in the future count as the current epoch.
func epochOf(now time.Time, iv history.Interval, window time.Duration) int {
	ago := now.Sub(iv.End)
	if ago < 0 {
		return 0
	}
	return int(ago / window)
}

func inCommunity(c community.Strategy) func(model.NodeID) bool {
	return func(id model.NodeID) bool {
		return c != nil && c.Contains(id)
	}
}

// SWindow is the sliding-window (S-WINDOW) centrality.
// Contacts are bucketed into epochs of TimeWindow by how long ago they
// ended, and the score is the mean number of distinct peers per epoch over
// the last EpochCount epochs. Scores are recomputed at most once per
// ComputeInterval of simulation time.
type SWindow struct {
	windowed
}

// NewSWindow returns an SWindow reading time from clock.
func NewSWindow(clock timectrl.SimClock, s Settings) *SWindow {
	return &SWindow{windowed{clock: clock, settings: s.withDefaults()}}
}

func (w *SWindow) Global(h history.History) float64 {
	return w.score(&w.global, func(now time.Time) float64 {
		return w.compute(now, h, nil)
	})
}

func (w *SWindow) Local(h history.History, c community.Strategy) float64 {
	return w.score(&w.local, func(now time.Time) float64 {
		return w.compute(now, h, inCommunity(c))
	})
}

func (w *SWindow) compute(now time.Time, h history.History, keep func(model.NodeID) bool) float64 {
	epochs := make([]model.NodeSet, w.settings.EpochCount)
	for peer, ivs := range h {
		if keep != nil && !keep(peer) {
			continue
		}
		for _, iv := range ivs {
			if e := epochOf(now, iv, w.settings.TimeWindow); e < len(epochs) {
				epochs[e].Add(peer)
			}
		}
	}

	total := 0
	for _, s := range epochs {
		total += s.Len()
	}
	return float64(total) / float64(len(epochs))
}

func (w *SWindow) Replicate() Strategy {
	return NewSWindow(w.clock, w.settings)
}

// CWindow is the cumulative-window (C-WINDOW) centrality.
// It is the mean number of distinct peers per TimeWindow epoch over every
// epoch since the node's first recorded contact.
type CWindow struct {
	windowed
}

// NewCWindow returns a CWindow reading time from clock.
func NewCWindow(clock timectrl.SimClock, s Settings) *CWindow {
	return &CWindow{windowed{clock: clock, settings: s.withDefaults()}}
}

func (w *CWindow) Global(h history.History) float64 {
	return w.score(&w.global, func(now time.Time) float64 {
		return w.compute(now, h, nil)
	})
}

func (w *CWindow) Local(h history.History, c community.Strategy) float64 {
	return w.score(&w.local, func(now time.Time) float64 {
		return w.compute(now, h, inCommunity(c))
	})
}

func (w *CWindow) compute(now time.Time, h history.History, keep func(model.NodeID) bool) float64 {
	var first time.Time
	for peer, ivs := range h {
		if keep != nil && !keep(peer) {
			continue
		}
		if len(ivs) > 0 && (first.IsZero() || ivs[0].Start.Before(first)) {
			first = ivs[0].Start
		}
	}
	if first.IsZero() {
		return 0
	}

	n := 1
	if span := now.Sub(first); span > 0 {
		n = int(span/w.settings.TimeWindow) + 1
	}
	epochs := make([]model.NodeSet, n)
	for peer, ivs := range h {
		if keep != nil && !keep(peer) {
			continue
		}
		for _, iv := range ivs {
			e := epochOf(now, iv, w.settings.TimeWindow)
			if e >= n {
				e = n - 1
			}
			epochs[e].Add(peer)
		}
	}

	total := 0
	for _, s := range epochs {
		total += s.Len()
	}
	return float64(total) / float64(n)
}

func (w *CWindow) Replicate() Strategy {
	return NewCWindow(w.clock, w.settings)
}
