package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// DecisionCollector bundles Prometheus metrics for decision engines and the
// inspection RPC surface. It satisfies socleer.MetricsRecorder.
type DecisionCollector struct {
	gatherer prometheus.Gatherer

	Contacts          *prometheus.CounterVec
	ForwardDecisions  *prometheus.CounterVec
	Faults            *prometheus.CounterVec
	MessagesDelivered prometheus.Counter
	PoolSamples       prometheus.Histogram

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
}

// NewDecisionCollector registers decision metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewDecisionCollector(reg prometheus.Registerer) (*DecisionCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	contacts, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socleer_contacts_total",
		Help: "Contact events handled by decision engines, labeled by event (up or down).",
	}, []string{"event"}), "socleer_contacts_total")
	if err != nil {
		return nil, err
	}

	decisions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socleer_forward_decisions_total",
		Help: "Forwarding decisions, labeled by outcome (destination, forward, keep).",
	}, []string{"outcome"}), "socleer_forward_decisions_total")
	if err != nil {
		return nil, err
	}

	faults, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socleer_faults_total",
		Help: "Faults raised by decision engines, labeled by kind.",
	}, []string{"kind"}), "socleer_faults_total")
	if err != nil {
		return nil, err
	}

	delivered, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socleer_messages_delivered_total",
		Help: "Messages that reached their final destination.",
	}), "socleer_messages_delivered_total")
	if err != nil {
		return nil, err
	}

	poolSamples, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "socleer_neighbor_pool_samples",
		Help:    "Neighbor pool size observed after each contact up.",
		Buckets: prometheus.ExponentialBuckets(2, 2, 12),
	}), "socleer_neighbor_pool_samples")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socleer_inspect_requests_total",
		Help: "Inspection RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "socleer_inspect_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "socleer_inspect_request_duration_seconds",
		Help:    "Inspection RPC latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"service", "method"}), "socleer_inspect_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &DecisionCollector{
		gatherer:          gatherer,
		Contacts:          contacts,
		ForwardDecisions:  decisions,
		Faults:            faults,
		MessagesDelivered: delivered,
		PoolSamples:       poolSamples,
		RPCRequests:       requests,
		RPCDurations:      durations,
	}, nil
}

// ObserveContact counts a contact up or down event.
func (c *DecisionCollector) ObserveContact(event string) {
	if c == nil || c.Contacts == nil {
		return
	}
	c.Contacts.WithLabelValues(event).Inc()
}

// ObserveForwardDecision counts one ShouldForward answer.
func (c *DecisionCollector) ObserveForwardDecision(outcome string) {
	if c == nil || c.ForwardDecisions == nil {
		return
	}
	c.ForwardDecisions.WithLabelValues(outcome).Inc()
}

// ObserveFault counts a fault of the given kind.
func (c *DecisionCollector) ObserveFault(kind string) {
	if c == nil || c.Faults == nil {
		return
	}
	c.Faults.WithLabelValues(kind).Inc()
}

// ObservePoolSize records the neighbor pool size after a contact.
func (c *DecisionCollector) ObservePoolSize(samples int) {
	if c == nil || c.PoolSamples == nil {
		return
	}
	c.PoolSamples.Observe(float64(samples))
}

// IncDelivered counts a delivered message.
func (c *DecisionCollector) IncDelivered() {
	if c == nil || c.MessagesDelivered == nil {
		return
	}
	c.MessagesDelivered.Inc()
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *DecisionCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *DecisionCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
