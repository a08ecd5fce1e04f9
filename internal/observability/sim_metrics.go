package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SimCollector exposes host-runtime metrics for a simulation run.
type SimCollector struct {
	gatherer prometheus.Gatherer

	EventDuration    prometheus.Histogram
	EventsTotal      *prometheus.CounterVec
	MessagesBuffered prometheus.Gauge
	SimulatedSeconds prometheus.Gauge
}

// NewSimCollector registers simulation metrics against the provided registerer.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	eventHistogram, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "socleer_sim_event_duration_seconds",
		Help:    "Wall-clock time spent handling one simulation event.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}), "socleer_sim_event_duration_seconds")
	if err != nil {
		return nil, err
	}

	events, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socleer_sim_events_total",
		Help: "Simulation events processed, labeled by event type and result.",
	}, []string{"type", "result"}), "socleer_sim_events_total")
	if err != nil {
		return nil, err
	}

	buffered, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "socleer_sim_messages_buffered",
		Help: "Message copies currently buffered across all nodes.",
	}), "socleer_sim_messages_buffered")
	if err != nil {
		return nil, err
	}

	simSeconds, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "socleer_sim_time_seconds",
		Help: "Simulation time elapsed since the start of the run.",
	}), "socleer_sim_time_seconds")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:         gatherer,
		EventDuration:    eventHistogram,
		EventsTotal:      events,
		MessagesBuffered: buffered,
		SimulatedSeconds: simSeconds,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveEvent records one handled event and how long it took.
func (c *SimCollector) ObserveEvent(eventType string, err error, d time.Duration) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "fault"
	}
	if c.EventsTotal != nil {
		c.EventsTotal.WithLabelValues(eventType, result).Inc()
	}
	if c.EventDuration != nil {
		c.EventDuration.Observe(d.Seconds())
	}
}

// SetBuffered updates the buffered message gauge.
func (c *SimCollector) SetBuffered(count int) {
	if c == nil || c.MessagesBuffered == nil {
		return
	}
	c.MessagesBuffered.Set(float64(count))
}

// SetElapsed updates the simulated time gauge.
func (c *SimCollector) SetElapsed(d time.Duration) {
	if c == nil || c.SimulatedSeconds == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	c.SimulatedSeconds.Set(d.Seconds())
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
