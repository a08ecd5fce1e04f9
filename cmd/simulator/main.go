package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/socleer/internal/config"
	"github.com/signalsfoundry/socleer/internal/inspect"
	"github.com/signalsfoundry/socleer/internal/logging"
	"github.com/signalsfoundry/socleer/internal/observability"
	"github.com/signalsfoundry/socleer/internal/sim"
	"github.com/signalsfoundry/socleer/timectrl"
)

// Options are the simulator's command line settings.
type Options struct {
	ConfigPath  string
	TracePath   string
	MetricsAddr string
	GRPCAddr    string
	// Serve keeps the inspection and metrics servers up after the run
	// until the context is cancelled.
	Serve bool
}

func main() {
	var opts Options
	flag.StringVar(&opts.ConfigPath, "config", "", "path to a JSON settings file (defaults when empty)")
	flag.StringVar(&opts.TracePath, "trace", "", "path to a JSON contact trace")
	flag.StringVar(&opts.MetricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics (disabled when empty)")
	flag.StringVar(&opts.GRPCAddr, "grpc-addr", "", "TCP address for the inspection gRPC service (disabled when empty)")
	flag.BoolVar(&opts.Serve, "serve", false, "keep serving inspection and metrics after the run until interrupted")
	flag.Parse()

	log := logging.NewFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var lis net.Listener
	if opts.GRPCAddr != "" {
		var err error
		lis, err = net.Listen("tcp", opts.GRPCAddr)
		if err != nil {
			log.Error(ctx, "failed to listen for gRPC", logging.String("addr", opts.GRPCAddr), logging.Err(err))
			os.Exit(1)
		}
	}

	if _, err := run(ctx, opts, log, lis); err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
}

// run executes one simulation. When lis is non-nil the inspection service
// is served on it for the duration of the run.
func run(ctx context.Context, opts Options, log logging.Logger, lis net.Listener) (sim.Stats, error) {
	log = logging.OrNoop(log)
	if opts.TracePath == "" {
		return sim.Stats{}, errors.New("a contact trace is required (-trace)")
	}

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return sim.Stats{}, fmt.Errorf("load settings: %w", err)
	}
	tr, err := sim.LoadTraceFile(opts.TracePath)
	if err != nil {
		return sim.Stats{}, err
	}

	shutdownTracing, err := observability.InitTracing(ctx, settings.TracingConfig(), log)
	if err != nil {
		return sim.Stats{}, fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	decisions, err := observability.NewDecisionCollector(reg)
	if err != nil {
		return sim.Stats{}, err
	}
	events, err := observability.NewSimCollector(reg)
	if err != nil {
		return sim.Stats{}, err
	}

	clock := timectrl.NewTimeController(tr.Start, time.Second, timectrl.Discrete)
	dir := sim.NewDirectory()
	proto, err := settings.Prototype(dir, clock, log, decisions)
	if err != nil {
		return sim.Stats{}, err
	}
	if err := dir.Populate(proto, tr.Nodes...); err != nil {
		return sim.Stats{}, err
	}

	log.Info(ctx, "engine configured",
		logging.String("community", settings.CommunityDetectAlg),
		logging.String("centrality", settings.CentralityAlg),
		logging.String("pool_size", settings.PoolSize.String()),
		logging.Int("draw_count", settings.DrawCount),
		logging.Int("nodes", dir.Len()),
	)

	runner := sim.NewRunner(clock, dir,
		sim.WithLogger(log),
		sim.WithEventRecorder(events),
		sim.WithDeliveryRecorder(decisions),
	)

	metricsSrv := serveMetrics(opts.MetricsAddr, decisions, log)
	var grpcSrv *grpc.Server
	if lis != nil {
		grpcSrv = inspect.NewGRPCServer(inspect.NewServer(runner, log), log, decisions)
		log.Info(ctx, "serving inspection gRPC", logging.String("addr", lis.Addr().String()))
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Warn(context.Background(), "gRPC server exited", logging.Err(err))
			}
		}()
	}
	defer func() {
		if grpcSrv != nil {
			grpcSrv.GracefulStop()
		}
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
	}()

	stats, err := runner.Run(ctx, tr)
	if err != nil {
		return stats, err
	}

	if opts.Serve {
		log.Info(ctx, "run complete; serving until interrupted")
		<-ctx.Done()
	}
	return stats, nil
}

func serveMetrics(addr string, collector *observability.DecisionCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
