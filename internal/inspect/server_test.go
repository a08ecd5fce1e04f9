package inspect_test

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/socleer/internal/inspect"
	"github.com/signalsfoundry/socleer/internal/logging"
	"github.com/signalsfoundry/socleer/internal/observability"
	"github.com/signalsfoundry/socleer/internal/sim"
	"github.com/signalsfoundry/socleer/routing"
	"github.com/signalsfoundry/socleer/routing/centrality"
	"github.com/signalsfoundry/socleer/routing/community"
	"github.com/signalsfoundry/socleer/routing/socleer"
	"github.com/signalsfoundry/socleer/timectrl"
)

const trace = `{
	"start": "2025-01-01T00:00:00Z",
	"nodes": [1, 2, 3],
	"events": [
		{"time": 1,  "type": "message", "a": 1, "b": 3, "id": "m1"},
		{"time": 10, "type": "up",      "a": 1, "b": 2},
		{"time": 20, "type": "down",    "a": 1, "b": 2}
	]
}`

// foreignEngine is a decision engine of another family.
type foreignEngine struct{ routing.DecisionEngine }

type env struct {
	conn      *grpc.ClientConn
	client    *inspect.Client
	runner    *sim.Runner
	collector *observability.DecisionCollector
}

func newEnv(t *testing.T) *env {
	t.Helper()

	tr, err := sim.LoadTrace(strings.NewReader(trace))
	require.NoError(t, err)

	clock := timectrl.NewTimeController(tr.Start, time.Second, timectrl.Discrete)
	dir := sim.NewDirectory()
	cfg := socleer.DefaultConfig(
		community.NewSimple(community.DefaultFamiliarThreshold, community.DefaultLambda),
		centrality.Degree{},
		dir,
		clock,
	)
	cfg.DrawCount = 1
	proto, err := socleer.New(cfg)
	require.NoError(t, err)
	require.NoError(t, dir.Populate(proto, tr.Nodes...))
	require.NoError(t, dir.Install(9, foreignEngine{}))

	runner := sim.NewRunner(clock, dir)
	_, err = runner.Run(context.Background(), tr)
	require.NoError(t, err)

	collector, err := observability.NewDecisionCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	server := inspect.NewGRPCServer(inspect.NewServer(runner, logging.Noop()), logging.Noop(), collector)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &env{conn: conn, client: inspect.NewClient(conn), runner: runner, collector: collector}
}

func TestGetNode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	out, err := e.client.GetNode(ctx, 1)
	require.NoError(t, err)

	got := out.AsMap()
	require.Equal(t, 1.0, got["node"])
	require.Equal(t, 2.0, got["pool_samples"])
	require.Equal(t, []any{1.0}, got["local_community"])
	require.Equal(t, []any{"m1"}, got["buffered"])
	require.Equal(t, map[string]any{"pool_size": -1.0, "draw_count": 1.0}, got["policy"])

	hist := got["history"].(map[string]any)
	require.Len(t, hist["n2"], 1)
	require.Equal(t, []any{2.0}, got["contacts"])
	require.Equal(t, []any{2.0}, got["pool_peers"])

	ranked := got["ranked_pool"].([]any)
	require.Len(t, ranked, 2)
	require.Equal(t, 2.0, ranked[0].(map[string]any)["peer"])

	// Node 2 got a relayed copy.
	out, err = e.client.GetNode(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, []any{"m1"}, out.AsMap()["buffered"])

	require.Equal(t, 2.0, testutil.ToFloat64(e.collector.RPCRequests.WithLabelValues("Inspector", "GetNode", "OK")))
}

func TestGetNodeErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.client.GetNode(ctx, 42)
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = e.client.GetNode(ctx, 9)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	out := new(structpb.Struct)
	err = grpcInvoke(ctx, e, map[string]any{"node": "abc"}, out)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	err = grpcInvoke(ctx, e, map[string]any{}, out)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestListNodesAndStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	nodes, err := e.client.ListNodes(ctx)
	require.NoError(t, err)
	require.Equal(t, []any{1.0, 2.0, 3.0, 9.0}, nodes.AsMap()["nodes"])

	stats, err := e.client.GetStats(ctx)
	require.NoError(t, err)
	got := stats.AsMap()
	require.Equal(t, 3.0, got["events"])
	require.Equal(t, 1.0, got["created"])
	require.Equal(t, 1.0, got["relayed"])
	require.Equal(t, 2.0, got["buffered"])
	require.Equal(t, 20.0, got["sim_seconds"])
	require.Equal(t, 0.0, got["faults"])
	require.Equal(t, 0.0, got["errors"])
}

func TestToStatusError(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{sim.ErrNodeNotFound, codes.NotFound},
		{inspect.ErrInvalidRequest, codes.InvalidArgument},
		{routing.ErrTypeMismatch, codes.FailedPrecondition},
		{routing.ErrProtocolViolation, codes.FailedPrecondition},
		{routing.ErrBounds, codes.OutOfRange},
		{errors.New("boom"), codes.Internal},
		{status.Error(codes.Unavailable, "down"), codes.Unavailable},
	}
	for _, tt := range tests {
		if got := status.Code(inspect.ToStatusError(tt.err)); got != tt.want {
			t.Fatalf("ToStatusError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
	if inspect.ToStatusError(nil) != nil {
		t.Fatalf("ToStatusError(nil) != nil")
	}
}

// grpcInvoke sends a raw GetNode request body.
func grpcInvoke(ctx context.Context, e *env, body map[string]any, out *structpb.Struct) error {
	in, err := structpb.NewStruct(body)
	if err != nil {
		return err
	}
	return e.conn.Invoke(ctx, "/"+inspect.ServiceName+"/GetNode", in, out)
}
