package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/signalsfoundry/socleer/internal/logging"
)

func TestEngineInfoAttributes(t *testing.T) {
	info := EngineInfo{Community: "kclique", PoolSize: "unbounded", DrawCount: 5, Seed: 1 << 63}

	got := map[string]string{}
	for _, kv := range info.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	want := map[string]string{
		"socleer.community":  "kclique",
		"socleer.pool_size":  "unbounded",
		"socleer.draw_count": "5",
		"socleer.seed":       "9223372036854775808",
	}
	if len(got) != len(want) {
		t.Fatalf("Attributes() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("Attributes()[%s] = %q, want %q", k, got[k], v)
		}
	}
}

func TestInitTracingTagsResourceWithEnginePolicy(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	var out bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		Exporter:    "stdout",
		SampleRatio: 1,
		Writer:      &out,
		Engine: EngineInfo{
			Community:  "simple",
			Centrality: "swindow",
			PoolSize:   "10",
			DrawCount:  10,
			Seed:       42,
		},
	}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}

	_, span := Tracer("test").Start(context.Background(), "sim.Run")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	got := out.String()
	for _, want := range []string{`"sim.Run"`, `"socleer.centrality"`, `"swindow"`, `"socleer.pool_size"`, `"socleer-simulator"`} {
		if !strings.Contains(got, want) {
			t.Fatalf("exported span missing %s:\n%s", want, got)
		}
	}
}

func TestInitTracingDisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	ShutdownWithTimeout(context.Background(), shutdown, nil)
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil)
	if err == nil {
		t.Fatalf("InitTracing with unknown exporter succeeded, want error")
	}
}
