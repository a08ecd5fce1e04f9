package timectrl

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// SimClock is an interface for accessing simulation time. Decision engines
// and centrality strategies depend on this abstraction rather than on a
// concrete controller so tests can pin time exactly.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// After returns a channel that receives the simulation time once d has
	// elapsed in simulation time.
	After(d time.Duration) <-chan time.Time
}

// Mode describes how the TimeController advances simulation time when
// driven by Start.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
	// Discrete never advances on its own; the host moves time with
	// AdvanceTo as it delivers events.
	Discrete
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	case Discrete:
		return "discrete"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

type timer struct {
	at time.Time
	ch chan time.Time
}

// TimeController drives simulation time and notifies registered listeners.
// It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	// wall paces RealTime ticks. Tests swap in a mock.
	wall clock.Clock

	currentTime time.Time

	timers    []timer
	listeners []func(time.Time)
}

// Option customises a TimeController.
type Option func(*TimeController)

// WithWallClock overrides the wall clock used to pace ticks.
func WithWallClock(c clock.Clock) Option {
	return func(tc *TimeController) {
		tc.wall = c
	}
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode, opts ...Option) *TimeController {
	tc := &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		wall:        clock.New(),
		currentTime: start,
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Elapsed returns the simulation time passed since StartTime.
func (tc *TimeController) Elapsed() time.Duration {
	return tc.Now().Sub(tc.StartTime)
}

// After returns a channel that receives the simulation time once d has
// elapsed. Implements SimClock. Non-positive durations fire immediately.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)

	tc.mu.Lock()
	defer tc.mu.Unlock()

	at := tc.currentTime.Add(d)
	if d <= 0 {
		ch <- tc.currentTime
		return ch
	}
	tc.timers = append(tc.timers, timer{at: at, ch: ch})
	sort.SliceStable(tc.timers, func(i, j int) bool {
		return tc.timers[i].at.Before(tc.timers[j].at)
	})
	return ch
}

// AddListener registers a callback invoked every time simulation time moves.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// SetTime jumps simulation time to t without firing listeners.
// Pending timers due at or before t still fire.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.fireTimersLocked()
	tc.mu.Unlock()
}

// AdvanceTo moves simulation time forward to t, firing due timers and then
// listeners. Moving backwards is an error: the event stream delivered by
// the host must be ordered.
func (tc *TimeController) AdvanceTo(t time.Time) error {
	tc.mu.Lock()
	if t.Before(tc.currentTime) {
		now := tc.currentTime
		tc.mu.Unlock()
		return fmt.Errorf("cannot move simulation time backwards from %s to %s",
			now.Format(time.RFC3339Nano), t.Format(time.RFC3339Nano))
	}
	tc.currentTime = t
	tc.fireTimersLocked()
	listeners := slices.Clone(tc.listeners)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(t)
	}
	return nil
}

// Advance moves simulation time forward by d.
func (tc *TimeController) Advance(d time.Duration) error {
	return tc.AdvanceTo(tc.Now().Add(d))
}

func (tc *TimeController) fireTimersLocked() {
	n := 0
	for _, tm := range tc.timers {
		if tm.at.After(tc.currentTime) {
			break
		}
		tm.ch <- tc.currentTime
		n++
	}
	tc.timers = tc.timers[n:]
}

// Start runs the controller for the specified duration in a separate goroutine.
// It returns a channel that is closed when the controller finishes.
// In Discrete mode Start returns an already closed channel.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if tc.Mode == Discrete {
		close(done)
		return done
	}

	go func() {
		defer close(done)

		tc.SetTime(tc.StartTime)
		elapsed := time.Duration(0)

		var ticker *clock.Ticker
		if tc.Mode == RealTime {
			ticker = tc.wall.Ticker(tc.Tick)
			defer ticker.Stop()
		}

		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			if ticker != nil {
				<-ticker.C
			}
			elapsed += tc.Tick

			// AdvanceTo only fails when moving backwards, which a positive
			// tick never does.
			_ = tc.AdvanceTo(tc.StartTime.Add(elapsed))
		}
	}()
	return done
}
