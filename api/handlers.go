/*
handlers.go - HTTP API handlers for the policy history service

PURPOSE:
  Exposes the reconstruction engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to history.Engine.

ENDPOINTS:
  Ingestion:
    POST   /api/events                 Ingest a feed document from the body
    POST   /api/reload                 Fetch the remote feed and ingest it

  Queries:
    GET    /api/policies?as_of=        Active policies and historic vehicles
    GET    /api/vehicles/{id}?as_of=   One vehicle's view

  Archive:
    GET    /api/batches?limit=         Archived batches, newest first
    GET    /api/batches/{id}           One archived batch with its events

  Scenarios:
    GET    /api/scenarios              List demo batches
    GET    /api/scenarios/current      Last loaded demo batch
    POST   /api/scenarios/load         Ingest a demo batch

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Engine: the in-memory index (rebuilt on every ingestion)
  - Archive: durable record of every ingested batch
  - Source: remote feed, nil in the mock environment

CONCURRENCY:
  The engine is not safe for concurrent use. Ingestion holds the write
  lock from archiving through the index swap, queries hold the read lock.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed feed document, bad as_of
  - 404: Vehicle, batch or scenario not found
  - 409: Reload requested without a configured feed
  - 502: Remote feed failed
  - 500: Archive errors
  - 501: Archive cannot enumerate batches

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo batches
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/warp/policy-history/feed"
	"github.com/warp/policy-history/format"
	"github.com/warp/policy-history/history"
	"github.com/warp/policy-history/logging"
	"github.com/warp/policy-history/metrics"
)

const (
	// maxBodyBytes bounds POST /api/events.
	maxBodyBytes = 32 << 20

	defaultBatchLimit = 20
	maxBatchLimit     = 500
)

// EventSource supplies a full event document. *feed.Client implements it.
type EventSource interface {
	Events(ctx context.Context) ([]history.Event, error)
}

// Options configures a Handler. Archive, Source, Metrics and Gatherer are
// optional.
type Options struct {
	Archive   history.Archive
	Source    EventSource
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Logger    zerolog.Logger
	Formatter format.TermFormatter
	Rule      history.ActivityRule
	Now       func() time.Time
}

// Handler contains all HTTP handlers and their dependencies.
type Handler struct {
	mu     sync.RWMutex
	engine *history.Engine

	archive  history.Archive
	source   EventSource
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	log      zerolog.Logger
	format   format.TermFormatter
	now      func() time.Time

	// batchLog is swapped per ingestion so diagnostics carry the batch id.
	baseLog  *logging.Reporter
	batchLog *logging.Reporter

	lastBatchID     string
	currentScenario string
}

// NewHandler creates a handler with an empty engine.
func NewHandler(opts Options) *Handler {
	h := &Handler{
		archive:  opts.Archive,
		source:   opts.Source,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		log:      logging.Component(opts.Logger, "api"),
		format:   opts.Formatter,
		now:      opts.Now,
		baseLog:  logging.NewReporter(opts.Logger),
	}
	if h.now == nil {
		h.now = time.Now
	}
	h.batchLog = h.baseLog
	h.engine = history.NewEngine(
		history.WithReporter(history.ReporterFunc(h.report)),
		history.WithActivityRule(opts.Rule),
	)
	return h
}

// report fans a diagnostic out to the log and metrics. Called with mu held.
func (h *Handler) report(d history.Diagnostic) {
	h.batchLog.Report(d)
	if h.metrics != nil {
		h.metrics.Report(d)
	}
}

// Replay rebuilds the engine from the latest archived batch.
func (h *Handler) Replay(ctx context.Context) (bool, error) {
	if h.archive == nil {
		return false, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	latest, err := h.archive.Latest(ctx)
	if err != nil {
		if history.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	h.batchLog = h.baseLog.WithBatch(latest.ID)
	start := time.Now()
	summary := h.engine.Ingest(latest.Events)
	h.observeIngest(latest.ID, summary, time.Since(start))
	return true, nil
}

// ingest archives a batch and rebuilds the index from it. scenarioID is
// empty unless the batch comes from a demo scenario.
//
// Stamping, archiving and ingesting share one critical section, so the
// served index is always the archive's latest batch.
func (h *Handler) ingest(ctx context.Context, source, scenarioID string, events []history.Event) (IngestResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	batch := history.NewBatch(source, events)
	if h.archive != nil {
		if err := h.archive.Append(ctx, batch); err != nil {
			return IngestResponse{}, err
		}
	}

	h.batchLog = h.baseLog.WithBatch(batch.ID)
	h.currentScenario = scenarioID
	start := time.Now()
	summary := h.engine.Ingest(events)
	h.observeIngest(batch.ID, summary, time.Since(start))
	return toIngestResponse(batch, summary), nil
}

func (h *Handler) observeIngest(batchID string, s history.IngestSummary, took time.Duration) {
	h.lastBatchID = batchID
	logging.LogIngest(h.log, batchID, s, took)
	if h.metrics != nil {
		h.metrics.ObserveIngest(s, took)
	}
}

func (h *Handler) retrieve(asOf time.Time) history.PolicyData {
	h.mu.RLock()
	defer h.mu.RUnlock()
	start := time.Now()
	data := h.engine.Retrieve(asOf)
	if h.metrics != nil {
		h.metrics.ObserveRetrieve(data, time.Since(start))
	}
	return data
}

// =============================================================================
// INGESTION
// =============================================================================

// IngestEvents handles POST /api/events
func (h *Handler) IngestEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body", err)
		return
	}
	events, err := feed.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event document", err)
		return
	}

	resp, err := h.ingest(r.Context(), "api", "", events)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to archive batch", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ErrNoFeed is returned by ReloadFeed in the mock environment.
var ErrNoFeed = errors.New("no feed configured")

// FetchError wraps a failure of the remote feed.
type FetchError struct{ Err error }

func (e *FetchError) Error() string { return "feed unavailable: " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// ReloadFeed fetches the remote feed and ingests it. On any failure the
// previous index stays in place.
func (h *Handler) ReloadFeed(ctx context.Context) (IngestResponse, error) {
	if h.source == nil {
		return IngestResponse{}, ErrNoFeed
	}

	events, err := h.source.Events(ctx)
	if h.metrics != nil {
		h.metrics.ObserveFetch(err)
	}
	if err != nil {
		return IngestResponse{}, &FetchError{Err: err}
	}
	return h.ingest(ctx, "feed", "", events)
}

// Reload handles POST /api/reload
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	resp, err := h.ReloadFeed(r.Context())
	if err != nil {
		var fetchErr *FetchError
		switch {
		case errors.Is(err, ErrNoFeed):
			writeError(w, http.StatusConflict, "no feed configured", nil)
		case errors.As(err, &fetchErr):
			h.log.Error().Err(err).Msg("feed fetch failed")
			writeError(w, http.StatusBadGateway, "failed to fetch feed", fetchErr.Err)
		default:
			writeError(w, http.StatusInternalServerError, "failed to archive batch", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// QUERIES
// =============================================================================

// GetPolicies handles GET /api/policies
func (h *Handler) GetPolicies(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.parseAsOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid as_of", err)
		return
	}

	data := h.retrieve(asOf)
	writeJSON(w, http.StatusOK, toPolicyDataDTO(h.format, data, h.engine.ActivityRule()))
}

// GetVehicle handles GET /api/vehicles/{id}
func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	id := history.VehicleID(chi.URLParam(r, "id"))

	asOf, err := h.parseAsOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid as_of", err)
		return
	}

	data := h.retrieve(asOf)
	view, ok := data.View(id)
	if !ok {
		writeError(w, http.StatusNotFound, "vehicle not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toVehicleDTO(h.format, view, data.AsOf))
}

// =============================================================================
// ARCHIVE
// =============================================================================

// ListBatches handles GET /api/batches
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	lister, ok := h.archive.(history.Lister)
	if !ok {
		writeError(w, http.StatusNotImplemented, "archive cannot list batches", nil)
		return
	}

	limit := defaultBatchLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxBatchLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxBatchLimit), err)
			return
		}
		limit = n
	}

	headers, err := lister.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list batches", err)
		return
	}

	batches := make([]BatchDTO, 0, len(headers))
	for _, hd := range headers {
		batches = append(batches, toBatchDTO(hd))
	}
	writeJSON(w, http.StatusOK, batches)
}

// GetBatch handles GET /api/batches/{id}
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "batch not found", nil)
		return
	}

	batch, err := h.archive.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if history.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "batch not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load batch", err)
		return
	}

	dto := toBatchDTO(history.BatchHeader{
		ID:         batch.ID,
		Source:     batch.Source,
		ReceivedAt: batch.ReceivedAt,
		EventCount: len(batch.Events),
	})
	dto.Events = feed.ToWire(batch.Events)
	writeJSON(w, http.StatusOK, dto)
}

// parseAsOf reads ?as_of= in the feed layout or RFC 3339. Defaults to now.
func (h *Handler) parseAsOf(r *http.Request) (time.Time, error) {
	s := r.URL.Query().Get("as_of")
	if s == "" {
		return h.now().UTC(), nil
	}
	if t, err := feed.ParseTime(s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New("expected " + feed.TimeLayout + " or RFC 3339")
	}
	return t.UTC(), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
