// Package logging provides structured logging for the policy history service.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/policy-history/history"
)

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // console output for development
	Output     io.Writer
	WithCaller bool
}

// New creates the service logger. Unknown levels fall back to info.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "policy-history").
		Logger()
	if cfg.WithCaller {
		l = l.With().Caller().Logger()
	}
	return l
}

// Component returns a sub-logger tagged with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// =============================================================================
// DIAGNOSTIC REPORTER
// =============================================================================

// Reporter logs engine diagnostics as warnings.
type Reporter struct {
	log zerolog.Logger
}

func NewReporter(l zerolog.Logger) *Reporter {
	return &Reporter{log: Component(l, "engine")}
}

// WithBatch returns a reporter whose entries carry the batch id.
func (r *Reporter) WithBatch(batchID string) *Reporter {
	return &Reporter{log: r.log.With().Str("batch_id", batchID).Logger()}
}

func (r *Reporter) Report(d history.Diagnostic) {
	ev := r.log.Warn().
		Str("kind", string(d.Kind)).
		Str("event_kind", string(d.EventKind)).
		Str("policy_id", string(d.PolicyID))
	if d.Reference != "" {
		ev = ev.Str("reference", string(d.Reference))
	}
	ev.Msg("event dropped from reconstruction")
}

// LogIngest records the outcome of one batch.
func LogIngest(l zerolog.Logger, batchID string, s history.IngestSummary, took time.Duration) {
	l.Info().
		Str("event", "ingest").
		Str("batch_id", batchID).
		Int("events", s.Events).
		Int("vehicles", s.Vehicles).
		Int("policies", s.Policies).
		Int("dropped", s.Dropped).
		Dur("duration_ms", took).
		Msg("index rebuilt")
}
