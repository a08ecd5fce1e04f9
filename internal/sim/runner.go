package sim

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/signalsfoundry/socleer/internal/logging"
	"github.com/signalsfoundry/socleer/internal/observability"
	"github.com/signalsfoundry/socleer/model"
	"github.com/signalsfoundry/socleer/routing"
	"github.com/signalsfoundry/socleer/timectrl"
)

const tracerName = "github.com/signalsfoundry/socleer/internal/sim"

// Stats summarises a run.
type Stats struct {
	Events    int
	Created   int
	Delivered int
	Relayed   int
	Dropped   int
	// Faults counts events an engine rejected with a routing fault.
	Faults int
	// Errors counts events the host itself could not apply, such as
	// events naming an uninstalled node.
	Errors int
}

// EventRecorder receives per-event host metrics.
// observability.SimCollector satisfies it.
type EventRecorder interface {
	ObserveEvent(eventType string, err error, d time.Duration)
	SetBuffered(count int)
	SetElapsed(d time.Duration)
}

// DeliveryRecorder counts delivered messages.
// observability.DecisionCollector satisfies it.
type DeliveryRecorder interface {
	IncDelivered()
}

// RunnerOption customises Runner construction.
type RunnerOption func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l logging.Logger) RunnerOption {
	return func(r *Runner) { r.log = logging.OrNoop(l) }
}

// WithEventRecorder attaches host metrics.
func WithEventRecorder(m EventRecorder) RunnerOption {
	return func(r *Runner) { r.events = m }
}

// WithDeliveryRecorder attaches a delivery counter.
func WithDeliveryRecorder(m DeliveryRecorder) RunnerOption {
	return func(r *Runner) { r.deliveries = m }
}

// WithTracer overrides the tracer used for event spans.
func WithTracer(t trace.Tracer) RunnerOption {
	return func(r *Runner) { r.tracer = t }
}

// StopOnFault makes Run return at the first engine fault instead of
// abandoning the event and carrying on.
func StopOnFault() RunnerOption {
	return func(r *Runner) { r.stopOnFault = true }
}

type contactKey struct{ a, b model.NodeID }

func keyOf(a, b model.NodeID) contactKey {
	if b < a {
		a, b = b, a
	}
	return contactKey{a, b}
}

// Runner replays trace events against the engines in a Directory.
//
// Events are applied one at a time under the runner's lock. Readers that
// inspect engine state take the read lock through WithReadLock.
//
// A fault from one engine decision does not stop the rest of the event:
// both sides of a contact still see ContactDown, and a message whose
// ShouldForward faults is skipped while the remaining buffered messages
// are still offered. The event then counts once in Stats.Faults.
type Runner struct {
	mu sync.RWMutex

	clock *timectrl.TimeController
	dir   *Directory
	store *Store

	log         logging.Logger
	tracer      trace.Tracer
	events      EventRecorder
	deliveries  DeliveryRecorder
	stopOnFault bool

	open      map[contactKey]struct{}
	delivered map[string]time.Time
	stats     Stats
}

// NewRunner constructs a runner over dir driven by clock.
func NewRunner(clock *timectrl.TimeController, dir *Directory, opts ...RunnerOption) *Runner {
	r := &Runner{
		clock:     clock,
		dir:       dir,
		store:     NewStore(),
		log:       logging.Noop(),
		tracer:    observability.Tracer(tracerName),
		open:      make(map[contactKey]struct{}),
		delivered: make(map[string]time.Time),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Store exposes the node buffers.
func (r *Runner) Store() *Store { return r.store }

// Directory exposes the installed engines.
func (r *Runner) Directory() *Directory { return r.dir }

// Clock exposes the simulation clock.
func (r *Runner) Clock() *timectrl.TimeController { return r.clock }

// Stats returns the counters accumulated so far.
func (r *Runner) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// Delivered reports when message id reached its destination.
func (r *Runner) Delivered(id string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	at, ok := r.delivered[id]
	return at, ok
}

// WithReadLock executes fn between events.
// fn must not call back into methods that take the runner lock.
func (r *Runner) WithReadLock(fn func() error) error {
	if fn == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn()
}

// Run applies every event of tr in order. Faults abandon the offending
// event and are counted in Stats unless StopOnFault is set.
func (r *Runner) Run(ctx context.Context, tr *Trace) (Stats, error) {
	ctx, log := logging.WithRunLogger(ctx, r.log)
	log.Info(ctx, "simulation starting",
		logging.Int("nodes", len(tr.Nodes)),
		logging.Int("events", len(tr.Events)),
		logging.String("sim_start", tr.Start.Format(time.RFC3339)),
	)

	ctx, span := r.tracer.Start(ctx, "sim.Run", trace.WithAttributes(
		attribute.String("run.id", logging.RunIDFromContext(ctx)),
		attribute.Int("trace.events", len(tr.Events)),
	))
	defer span.End()

	r.clock.SetTime(tr.Start)
	r.clock.StartTime = tr.Start

	for _, ev := range tr.Events {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return r.Stats(), err
		}
		if err := r.Step(ctx, tr.Start.Add(ev.At), ev); err != nil && r.stopOnFault {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stopped on fault")
			return r.Stats(), err
		}
	}

	stats := r.Stats()
	log.Info(ctx, "simulation finished",
		logging.Int("events", stats.Events),
		logging.Int("created", stats.Created),
		logging.Int("delivered", stats.Delivered),
		logging.Int("relayed", stats.Relayed),
		logging.Int("dropped", stats.Dropped),
		logging.Int("faults", stats.Faults),
	)
	return stats, nil
}

// Step advances the clock to at and applies ev.
func (r *Runner) Step(ctx context.Context, at time.Time, ev Event) (err error) {
	log := r.logger(ctx)

	ctx, span := r.tracer.Start(ctx, "sim.Event", trace.WithAttributes(
		attribute.String("event.type", string(ev.Type)),
		attribute.Int64("node.a", int64(ev.A)),
		attribute.Int64("node.b", int64(ev.B)),
		attribute.Float64("sim.seconds", ev.At.Seconds()),
	))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	started := time.Now()
	defer func() {
		r.stats.Events++
		if err != nil {
			if routing.IsFault(err) {
				r.stats.Faults++
			} else {
				r.stats.Errors++
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, routing.FaultKind(err))
			log.Warn(ctx, "event faulted",
				logging.String("type", string(ev.Type)),
				logging.Node("a", ev.A),
				logging.Node("b", ev.B),
				logging.String("fault", routing.FaultKind(err)),
				logging.Err(err),
			)
		}
		if r.events != nil {
			r.events.ObserveEvent(string(ev.Type), err, time.Since(started))
			r.events.SetBuffered(r.store.Total())
			r.events.SetElapsed(r.clock.Elapsed())
		}
	}()

	if err := r.clock.AdvanceTo(at); err != nil {
		return err
	}

	switch ev.Type {
	case EventUp:
		return r.contactUp(ctx, ev.A, ev.B)
	case EventDown:
		return r.contactDown(ev.A, ev.B)
	case EventMessage:
		return r.createMessage(ctx, ev)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

// logger prefers the run-scoped logger carried by ctx.
func (r *Runner) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return r.log
}

func (r *Runner) engines(a, b model.NodeID) (routing.DecisionEngine, routing.DecisionEngine, error) {
	ea, err := r.dir.Lookup(a)
	if err != nil {
		return nil, nil, err
	}
	eb, err := r.dir.Lookup(b)
	if err != nil {
		return nil, nil, err
	}
	return ea, eb, nil
}

func (r *Runner) contactUp(ctx context.Context, a, b model.NodeID) error {
	ea, eb, err := r.engines(a, b)
	if err != nil {
		return err
	}
	if err := ea.ExchangeOnNewContact(a, b); err != nil {
		return err
	}
	if err := ea.ContactUp(a, b); err != nil {
		return err
	}
	if err := eb.ContactUp(b, a); err != nil {
		return err
	}
	r.open[keyOf(a, b)] = struct{}{}

	return multierr.Combine(r.offer(ctx, a, b), r.offer(ctx, b, a))
}

func (r *Runner) contactDown(a, b model.NodeID) error {
	ea, eb, err := r.engines(a, b)
	if err != nil {
		return err
	}
	delete(r.open, keyOf(a, b))
	return multierr.Combine(ea.ContactDown(a, b), eb.ContactDown(b, a))
}

func (r *Runner) createMessage(ctx context.Context, ev Event) error {
	e, err := r.dir.Lookup(ev.A)
	if err != nil {
		return err
	}
	m := model.Message{ID: ev.ID, From: ev.A, To: ev.B, Created: r.clock.Now()}
	if !e.OnNewMessage(m) {
		return nil
	}
	r.store.Put(ev.A, m)
	r.stats.Created++

	var faults error
	for _, peer := range r.peersOf(ev.A) {
		faults = multierr.Append(faults, r.offer(ctx, ev.A, peer))
	}
	return faults
}

// peersOf lists the nodes currently in contact with id, ascending.
func (r *Runner) peersOf(id model.NodeID) []model.NodeID {
	var peers []model.NodeID
	for k := range r.open {
		switch id {
		case k.a:
			peers = append(peers, k.b)
		case k.b:
			peers = append(peers, k.a)
		}
	}
	slices.Sort(peers)
	return peers
}

// offer lets from hand its buffered messages to to. Decision faults are
// collected per message and returned together.
func (r *Runner) offer(ctx context.Context, from, to model.NodeID) error {
	ef, et, err := r.engines(from, to)
	if err != nil {
		return err
	}

	var faults error
	for _, m := range r.store.Messages(from) {
		faults = multierr.Append(faults, r.offerOne(ctx, ef, et, from, to, m))
	}
	return faults
}

func (r *Runner) offerOne(ctx context.Context, ef, et routing.DecisionEngine, from, to model.NodeID, m model.Message) error {
	log := r.logger(ctx)

	if r.holds(to, m) {
		drop, err := ef.ShouldDeleteWhenReportedOld(m, to)
		if err != nil {
			return err
		}
		if drop && r.store.Remove(from, m.ID) {
			r.stats.Dropped++
		}
		return nil
	}

	send, err := ef.ShouldForward(m, to)
	if err != nil {
		return fmt.Errorf("offer %s from %s to %s: %w", m.ID, from, to, err)
	}
	if !send {
		return nil
	}

	switch {
	case et.IsFinalDestination(m, to):
		r.delivered[m.ID] = r.clock.Now()
		r.stats.Delivered++
		if r.deliveries != nil {
			r.deliveries.IncDelivered()
		}
		log.Info(ctx, "message delivered",
			logging.String("message", m.ID),
			logging.Node("from", from),
			logging.Node("to", to),
			logging.Float("latency_seconds", r.clock.Now().Sub(m.Created).Seconds()),
		)
	case et.ShouldBuffer(m, to):
		if r.store.Put(to, m) {
			r.stats.Relayed++
		}
	}

	drop, err := ef.ShouldDeleteAfterSend(m, to)
	if err != nil {
		return err
	}
	if drop && r.store.Remove(from, m.ID) {
		r.stats.Dropped++
	}
	return nil
}

// holds reports whether to already has m, either buffered or delivered.
func (r *Runner) holds(to model.NodeID, m model.Message) bool {
	if r.store.Has(to, m.ID) {
		return true
	}
	_, done := r.delivered[m.ID]
	return done && m.To == to
}
