package history

import (
	"fmt"
	"sync"
)

// =============================================================================
// DIAGNOSTICS - Out-of-band channel for dropped or unresolved events
// =============================================================================

type DiagnosticKind string

const (
	DiagMissingVehicle        DiagnosticKind = "missing_vehicle"
	DiagMissingOriginalPolicy DiagnosticKind = "missing_original_policy"
	DiagUnmatchedReference    DiagnosticKind = "unmatched_reference"
	DiagMissingTerm           DiagnosticKind = "missing_term"
	DiagUnknownKind           DiagnosticKind = "unknown_kind"
)

// Diagnostic describes one event the engine could not fully use.
// It is an error so it can travel through error-shaped plumbing, but the
// engine never returns it: it is handed to a Reporter.
type Diagnostic struct {
	Kind      DiagnosticKind
	EventKind EventKind
	PolicyID  PolicyID

	// Reference is the policy id the event pointed at, when relevant.
	Reference PolicyID
}

func (d Diagnostic) Error() string {
	if d.Reference != "" {
		return fmt.Sprintf("%s: %s %s -> %s", d.Unwrap(), d.EventKind, d.PolicyID, d.Reference)
	}
	return fmt.Sprintf("%s: %s %s", d.Unwrap(), d.EventKind, d.PolicyID)
}

func (d Diagnostic) Unwrap() error {
	switch d.Kind {
	case DiagMissingVehicle:
		return ErrMissingVehicle
	case DiagMissingOriginalPolicy:
		return ErrMissingOriginalPolicy
	case DiagUnmatchedReference:
		return ErrUnmatchedReference
	case DiagMissingTerm:
		return ErrMissingTerm
	case DiagUnknownKind:
		return ErrUnknownEventKind
	}
	return nil
}

// Reporter receives diagnostics during ingestion.
// Report is called synchronously from Store; implementations must not block.
type Reporter interface {
	Report(d Diagnostic)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Diagnostic)

func (f ReporterFunc) Report(d Diagnostic) { f(d) }

// MultiReporter fans a diagnostic out to several reporters.
type MultiReporter []Reporter

func (m MultiReporter) Report(d Diagnostic) {
	for _, r := range m {
		if r != nil {
			r.Report(d)
		}
	}
}

type nopReporter struct{}

func (nopReporter) Report(Diagnostic) {}

// Collector keeps every diagnostic it receives. Safe for concurrent use.
type Collector struct {
	mu          sync.Mutex
	diagnostics []Diagnostic
}

func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diagnostics = append(c.diagnostics, d)
}

// Diagnostics returns a copy of everything collected so far.
func (c *Collector) Diagnostics() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.diagnostics))
	copy(out, c.diagnostics)
	return out
}

// Count returns how many diagnostics of the given kind were collected.
func (c *Collector) Count(kind DiagnosticKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.diagnostics {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Reset discards collected diagnostics.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diagnostics = nil
}
