// Package config loads simulation settings for the Socleer engine.
//
// Settings are read from a JSON file whose keys follow the engine's
// setting names, then overridden from SOCLEER_* environment variables.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/signalsfoundry/socleer/internal/logging"
	"github.com/signalsfoundry/socleer/internal/observability"
	"github.com/signalsfoundry/socleer/routing"
	"github.com/signalsfoundry/socleer/routing/centrality"
	"github.com/signalsfoundry/socleer/routing/community"
	"github.com/signalsfoundry/socleer/routing/pool"
	"github.com/signalsfoundry/socleer/routing/socleer"
	"github.com/signalsfoundry/socleer/timectrl"
)

// Environment overrides applied by Load.
const (
	EnvCommunityAlg  = "SOCLEER_COMMUNITY_ALG"
	EnvCentralityAlg = "SOCLEER_CENTRALITY_ALG"
	EnvPoolSize      = "SOCLEER_POOL_SIZE"
	EnvDrawCount     = "SOCLEER_DRAW_COUNT"
	EnvSeed          = "SOCLEER_SEED"

	EnvTracingEnabled     = "SOCLEER_TRACING_ENABLED"
	EnvTracingExporter    = "SOCLEER_TRACING_EXPORTER"
	EnvTracingServiceName = "SOCLEER_TRACING_SERVICE_NAME"
	EnvTracingSampleRatio = "SOCLEER_TRACING_SAMPLE_RATIO"
	EnvOTLPEndpoint       = "SOCLEER_OTLP_ENDPOINT"
)

// Settings is the full engine configuration.
type Settings struct {
	CommunityDetectAlg string `json:"communityDetectAlg"`
	CentralityAlg      string `json:"centralityAlg"`

	PoolSize       PoolSize `json:"poolSize"`
	DrawCount      int      `json:"drawCount"`
	MaxPoolSamples int      `json:"maxPoolSamples"`
	Seed           uint64   `json:"seed"`

	FamiliarThreshold Duration `json:"familiarThreshold"`
	Lambda            float64  `json:"lambda"`
	K                 int      `json:"k"`

	TimeWindow      Duration `json:"timeWindow"`
	ComputeInterval Duration `json:"computeInterval"`
	EpochCount      int      `json:"epochCount"`

	Tracing Tracing `json:"tracing"`
}

// Tracing selects how run spans are exported.
type Tracing struct {
	Enabled     bool    `json:"enabled"`
	Exporter    string  `json:"exporter"` // stdout | otlp
	Endpoint    string  `json:"endpoint"`
	ServiceName string  `json:"serviceName"`
	SampleRatio float64 `json:"sampleRatio"`
}

// Defaults returns the randomized pool policy with the default strategies.
func Defaults() Settings {
	return Settings{
		CommunityDetectAlg: community.SimpleName,
		CentralityAlg:      centrality.SWindowName,
		PoolSize:           PoolSize(socleer.DefaultPoolSize),
		DrawCount:          socleer.DefaultDrawCount,
		FamiliarThreshold:  Duration(community.DefaultFamiliarThreshold),
		Lambda:             community.DefaultLambda,
		K:                  community.DefaultK,
		TimeWindow:         Duration(centrality.DefaultTimeWindow),
		ComputeInterval:    Duration(centrality.DefaultComputeInterval),
		EpochCount:         centrality.DefaultEpochCount,
		Tracing: Tracing{
			Exporter:    "stdout",
			ServiceName: "socleer-simulator",
			SampleRatio: 1,
		},
	}
}

// Load reads settings from path, applies environment overrides, and
// validates the result. An empty path starts from Defaults.
func Load(path string) (Settings, error) {
	s := Defaults()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Settings{}, fmt.Errorf("open settings: %w", err)
		}
		defer f.Close()

		s, err = Parse(f)
		if err != nil {
			return Settings{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Parse decodes JSON settings over Defaults. Unknown keys are rejected.
func Parse(r io.Reader) (Settings, error) {
	s := Defaults()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("%w: decode settings: %v", routing.ErrConfiguration, err)
	}
	return s, nil
}

// ApplyEnv overrides settings from the environment.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	var err error
	if v, ok := lookup(EnvCommunityAlg); ok {
		s.CommunityDetectAlg = v
	}
	if v, ok := lookup(EnvCentralityAlg); ok {
		s.CentralityAlg = v
	}
	if v, ok := lookup(EnvPoolSize); ok {
		n, perr := parsePoolSize(v)
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("%w: %s: %v", routing.ErrConfiguration, EnvPoolSize, perr))
		} else {
			s.PoolSize = n
		}
	}
	if v, ok := lookup(EnvDrawCount); ok {
		n, perr := strconv.Atoi(strings.TrimSpace(v))
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("%w: %s: %v", routing.ErrConfiguration, EnvDrawCount, perr))
		} else {
			s.DrawCount = n
		}
	}
	if v, ok := lookup(EnvSeed); ok {
		n, perr := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("%w: %s: %v", routing.ErrConfiguration, EnvSeed, perr))
		} else {
			s.Seed = n
		}
	}

	if v, ok := lookup(EnvTracingEnabled); ok && v != "" {
		b, perr := strconv.ParseBool(strings.TrimSpace(v))
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("%w: %s: %v", routing.ErrConfiguration, EnvTracingEnabled, perr))
		} else {
			s.Tracing.Enabled = b
		}
	}
	if v, ok := lookup(EnvTracingExporter); ok && v != "" {
		s.Tracing.Exporter = strings.ToLower(v)
	}
	if v, ok := lookup(EnvTracingServiceName); ok && v != "" {
		s.Tracing.ServiceName = v
	}
	if v, ok := lookup(EnvOTLPEndpoint); ok && v != "" {
		s.Tracing.Endpoint = v
	}
	if v, ok := lookup(EnvTracingSampleRatio); ok && v != "" {
		f, perr := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("%w: %s: %v", routing.ErrConfiguration, EnvTracingSampleRatio, perr))
		} else {
			s.Tracing.SampleRatio = f
		}
	}
	return err
}

// Validate reports every problem with s.
func (s Settings) Validate() error {
	var err error
	if _, cerr := community.Canonical(s.CommunityDetectAlg); cerr != nil {
		err = multierr.Append(err, cerr)
	}
	if _, cerr := centrality.Canonical(s.CentralityAlg); cerr != nil {
		err = multierr.Append(err, cerr)
	}

	invalid := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf("%w: "+format, append([]any{routing.ErrConfiguration}, args...)...))
	}
	if s.PoolSize == 0 || s.PoolSize < PoolSize(pool.Unbounded) {
		invalid("poolSize %d must be positive or unbounded", s.PoolSize)
	}
	if s.DrawCount < 1 {
		invalid("drawCount %d must be at least 1", s.DrawCount)
	}
	if s.PoolSize > 0 && s.DrawCount > int(s.PoolSize) {
		invalid("drawCount %d exceeds poolSize %d", s.DrawCount, s.PoolSize)
	}
	if s.MaxPoolSamples < pool.Unbounded {
		invalid("maxPoolSamples %d must be non-negative or %d for unbounded", s.MaxPoolSamples, pool.Unbounded)
	}
	if s.FamiliarThreshold <= 0 {
		invalid("familiarThreshold %s must be positive", time.Duration(s.FamiliarThreshold))
	}
	if s.Lambda <= 0 || s.Lambda > 1 {
		invalid("lambda %v must be in (0, 1]", s.Lambda)
	}
	if s.K < 2 {
		invalid("k %d must be at least 2", s.K)
	}
	if s.TimeWindow <= 0 {
		invalid("timeWindow %s must be positive", time.Duration(s.TimeWindow))
	}
	if s.EpochCount < 1 {
		invalid("epochCount %d must be at least 1", s.EpochCount)
	}
	switch strings.ToLower(s.Tracing.Exporter) {
	case "stdout", "otlp", "otlpgrpc":
	default:
		invalid("tracing exporter %q is not stdout or otlp", s.Tracing.Exporter)
	}
	if s.Tracing.SampleRatio < 0 || s.Tracing.SampleRatio > 1 {
		invalid("tracing sampleRatio %v must be in [0, 1]", s.Tracing.SampleRatio)
	}
	return err
}

// TracingConfig returns the tracing setup for a run under s. Spans are
// tagged with the canonical strategy names and the pool policy.
func (s Settings) TracingConfig() observability.TracingConfig {
	comm, _ := community.Canonical(s.CommunityDetectAlg)
	cent, _ := centrality.Canonical(s.CentralityAlg)
	return observability.TracingConfig{
		Enabled:     s.Tracing.Enabled,
		ServiceName: s.Tracing.ServiceName,
		Exporter:    s.Tracing.Exporter,
		Endpoint:    s.Tracing.Endpoint,
		SampleRatio: s.Tracing.SampleRatio,
		Engine: observability.EngineInfo{
			Community:  comm,
			Centrality: cent,
			PoolSize:   s.PoolSize.String(),
			DrawCount:  s.DrawCount,
			Seed:       s.Seed,
		},
	}
}

// CommunitySettings returns the community strategy settings.
func (s Settings) CommunitySettings() community.Settings {
	return community.Settings{
		FamiliarThreshold: time.Duration(s.FamiliarThreshold),
		Lambda:            s.Lambda,
		K:                 s.K,
	}
}

// CentralitySettings returns the centrality strategy settings.
func (s Settings) CentralitySettings() centrality.Settings {
	return centrality.Settings{
		TimeWindow:      time.Duration(s.TimeWindow),
		ComputeInterval: time.Duration(s.ComputeInterval),
		EpochCount:      s.EpochCount,
	}
}

// Prototype builds the configured engine every node replicates.
func (s Settings) Prototype(dir routing.Directory, clock timectrl.SimClock, log logging.Logger, metrics socleer.MetricsRecorder) (*socleer.Engine, error) {
	cs, err := community.New(s.CommunityDetectAlg, s.CommunitySettings())
	if err != nil {
		return nil, err
	}
	ct, err := centrality.New(s.CentralityAlg, s.CentralitySettings(), clock)
	if err != nil {
		return nil, err
	}
	return socleer.New(socleer.Config{
		Community:      cs,
		Centrality:     ct,
		PoolSize:       int(s.PoolSize),
		DrawCount:      s.DrawCount,
		MaxPoolSamples: s.MaxPoolSamples,
		Seed:           s.Seed,
		Directory:      dir,
		Clock:          clock,
		Log:            log,
		Metrics:        metrics,
	})
}

// PoolSize is a pool window bound. In JSON it is a positive number or the
// string "unbounded".
type PoolSize int

func (p PoolSize) String() string {
	if p == PoolSize(pool.Unbounded) {
		return "unbounded"
	}
	return strconv.Itoa(int(p))
}

func (p PoolSize) MarshalJSON() ([]byte, error) {
	if p == PoolSize(pool.Unbounded) {
		return []byte(`"unbounded"`), nil
	}
	return []byte(strconv.Itoa(int(p))), nil
}

func (p *PoolSize) UnmarshalJSON(b []byte) error {
	raw := string(bytes.Trim(b, `"`))
	n, err := parsePoolSize(raw)
	if err != nil {
		return fmt.Errorf("poolSize: %w", err)
	}
	*p = n
	return nil
}

func parsePoolSize(raw string) (PoolSize, error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "unbounded") {
		return PoolSize(pool.Unbounded), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("want a number or \"unbounded\", got %q", raw)
	}
	return PoolSize(n), nil
}

// Duration accepts either a Go duration string ("700s", "6h") or a number
// of seconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(x * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}
