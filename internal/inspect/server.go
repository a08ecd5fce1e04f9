package inspect

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/socleer/internal/logging"
	"github.com/signalsfoundry/socleer/internal/sim"
	"github.com/signalsfoundry/socleer/model"
	"github.com/signalsfoundry/socleer/routing"
	"github.com/signalsfoundry/socleer/routing/socleer"
)

// Server implements InspectorServer over a sim.Runner.
// Reads are taken between events under the runner's read lock.
type Server struct {
	runner *sim.Runner
	log    logging.Logger
}

var _ InspectorServer = (*Server)(nil)

// NewServer constructs a Server bound to runner.
func NewServer(runner *sim.Runner, log logging.Logger) *Server {
	return &Server{runner: runner, log: logging.OrNoop(log)}
}

// GetNode describes the engine installed at the requested node.
func (s *Server) GetNode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := nodeFromRequest(req)
	if err != nil {
		return nil, ToStatusError(err)
	}

	var desc map[string]any
	err = s.runner.WithReadLock(func() error {
		de, err := s.runner.Directory().Lookup(id)
		if err != nil {
			return err
		}
		e, ok := de.(*socleer.Engine)
		if !ok {
			return fmt.Errorf("%w: %s runs %T", routing.ErrTypeMismatch, id, de)
		}
		desc = describe(id, e, s.runner.Store().Messages(id))
		return nil
	})
	if err != nil {
		s.log.Debug(ctx, "GetNode failed", logging.Node("node", id), logging.Err(err))
		return nil, ToStatusError(err)
	}

	out, err := structpb.NewStruct(desc)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

// ListNodes returns the installed nodes.
func (s *Server) ListNodes(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	ids := s.runner.Directory().Nodes()
	nodes := make([]any, len(ids))
	for i, id := range ids {
		nodes[i] = uint(id)
	}
	out, err := structpb.NewStruct(map[string]any{"nodes": nodes})
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

// GetStats returns the run counters and the current simulation time.
func (s *Server) GetStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st := s.runner.Stats()
	out, err := structpb.NewStruct(map[string]any{
		"events":      st.Events,
		"created":     st.Created,
		"delivered":   st.Delivered,
		"relayed":     st.Relayed,
		"dropped":     st.Dropped,
		"faults":      st.Faults,
		"errors":      st.Errors,
		"buffered":    s.runner.Store().Total(),
		"sim_time":    s.runner.Clock().Now().Format(time.RFC3339Nano),
		"sim_seconds": s.runner.Clock().Elapsed().Seconds(),
	})
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

func nodeFromRequest(req *structpb.Struct) (model.NodeID, error) {
	v, ok := req.GetFields()["node"]
	if !ok {
		return 0, fmt.Errorf("%w: node is required", ErrInvalidRequest)
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if n < 0 || n != math.Trunc(n) || n > math.MaxUint32 {
			return 0, fmt.Errorf("%w: node %v is not a node id", ErrInvalidRequest, n)
		}
		return model.NodeID(n), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseUint(k.StringValue, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: node %q is not a node id", ErrInvalidRequest, k.StringValue)
		}
		return model.NodeID(n), nil
	default:
		return 0, fmt.Errorf("%w: node must be a number", ErrInvalidRequest)
	}
}

func describe(id model.NodeID, e *socleer.Engine, buffered []model.Message) map[string]any {
	poolSize, drawCount := e.Policy()

	community := []any{}
	for _, m := range e.LocalCommunity().Members() {
		community = append(community, uint(m))
	}

	ranked := []any{}
	for _, smp := range e.RankedPool() {
		ranked = append(ranked, map[string]any{
			"peer":  uint(smp.Peer),
			"score": smp.Score,
			"kind":  smp.Kind.String(),
		})
	}

	all := e.History()
	contacts := []any{}
	hist := map[string]any{}
	for _, peer := range e.Contacts() {
		contacts = append(contacts, uint(peer))
		ivs := all[peer]
		list := make([]any, 0, len(ivs))
		for _, iv := range ivs {
			list = append(list, map[string]any{
				"start": iv.Start.Format(time.RFC3339Nano),
				"end":   iv.End.Format(time.RFC3339Nano),
			})
		}
		hist[peer.String()] = list
	}

	poolPeers := []any{}
	for _, p := range e.PoolPeers() {
		poolPeers = append(poolPeers, uint(p))
	}

	messages := []any{}
	for _, m := range buffered {
		messages = append(messages, m.ID)
	}

	return map[string]any{
		"node":              uint(id),
		"local_centrality":  e.LocalCentrality(),
		"global_centrality": e.GlobalCentrality(),
		"local_community":   community,
		"pool_samples":      len(ranked),
		"ranked_pool":       ranked,
		"pool_peers":        poolPeers,
		"contacts":          contacts,
		"history":           hist,
		"buffered":          messages,
		"policy": map[string]any{
			"pool_size":  poolSize,
			"draw_count": drawCount,
		},
	}
}

// UnaryInterceptor is satisfied by observability.DecisionCollector.
type UnaryInterceptor interface {
	UnaryServerInterceptor() grpc.UnaryServerInterceptor
}

// NewGRPCServer builds a grpc.Server exposing srv, traced with otelgrpc.
// metrics may be nil.
func NewGRPCServer(srv InspectorServer, log logging.Logger, metrics UnaryInterceptor) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{loggingInterceptor(logging.OrNoop(log))}
	if metrics != nil {
		interceptors = append(interceptors, metrics.UnaryServerInterceptor())
	}
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	)
	RegisterInspectorServer(server, srv)
	return server
}

// loggingInterceptor attaches a per-request logger and logs each call.
func loggingInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		reqLog := base.With(logging.String("method", info.FullMethod))
		ctx = logging.ContextWithLogger(ctx, reqLog)

		start := time.Now()
		resp, err := handler(ctx, req)
		reqLog.Debug(ctx, "inspect request",
			logging.String("code", status.Code(err).String()),
			logging.Float("duration_ms", float64(time.Since(start).Microseconds())/1000),
		)
		return resp, err
	}
}
