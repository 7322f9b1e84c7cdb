/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. The engine's types
  carry time.Time and time.Duration; DTOs carry feed-formatted instants and
  the display strings produced by format.TermFormatter.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

SEE ALSO:
  - handlers.go: Uses these types
  - format/term.go: Display strings
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/policy-history/feed"
	"github.com/warp/policy-history/format"
	"github.com/warp/policy-history/history"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// PolicyDTO is one policy snapshot.
type PolicyDTO struct {
	ID               string          `json:"id"`
	VehicleID        string          `json:"vehicle_id"`
	StartDate        string          `json:"start_date"`
	EndDate          string          `json:"end_date"`
	DurationSeconds  int64           `json:"duration_seconds"`
	DurationLabel    string          `json:"duration_label"`
	Remaining        string          `json:"remaining"`
	RemainingPercent decimal.Decimal `json:"remaining_percent"`
	StartDisplay     string          `json:"start_display"`
}

// VehicleDTO is one vehicle with its policies as of the query.
type VehicleDTO struct {
	ID                 string      `json:"id"`
	DisplayVRM         string      `json:"display_vrm"`
	MakeModel          string      `json:"make_model"`
	ActivePolicy       *PolicyDTO  `json:"active_policy,omitempty"`
	HistoricalPolicies []PolicyDTO `json:"historical_policies"`
}

// PolicyDataDTO is the point-in-time query result.
type PolicyDataDTO struct {
	AsOf             string       `json:"as_of"`
	ActivityRule     string       `json:"activity_rule"`
	ActivePolicies   []PolicyDTO  `json:"active_policies"`
	HistoricVehicles []VehicleDTO `json:"historic_vehicles"`
	Vehicles         []VehicleDTO `json:"vehicles"`
}

// DiagnosticDTO is one reported event problem.
type DiagnosticDTO struct {
	Kind      string `json:"kind"`
	EventKind string `json:"event_kind"`
	PolicyID  string `json:"policy_id"`
	Reference string `json:"reference,omitempty"`
	Message   string `json:"message"`
}

// IngestResponse summarizes an ingestion.
type IngestResponse struct {
	BatchID     string          `json:"batch_id"`
	Source      string          `json:"source"`
	Events      int             `json:"events"`
	Created     int             `json:"created"`
	Extended    int             `json:"extended"`
	Cancelled   int             `json:"cancelled"`
	Vehicles    int             `json:"vehicles"`
	Policies    int             `json:"policies"`
	Dropped     int             `json:"dropped"`
	Diagnostics []DiagnosticDTO `json:"diagnostics"`
}

// BatchDTO is an archived batch. Events is set only for single-batch lookups.
type BatchDTO struct {
	ID         string           `json:"id"`
	Source     string           `json:"source"`
	ReceivedAt string           `json:"received_at"`
	EventCount int              `json:"event_count"`
	Events     []feed.EventJSON `json:"events,omitempty"`
}

// ScenarioDTO describes a canned event batch.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to ingest.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPolicyDTO(f format.TermFormatter, p history.Policy, asOf time.Time) PolicyDTO {
	return PolicyDTO{
		ID:               string(p.ID),
		VehicleID:        string(p.VehicleID),
		StartDate:        feed.FormatTime(p.Term.StartDate),
		EndDate:          feed.FormatTime(p.Term.EndDate()),
		DurationSeconds:  int64(p.Term.Duration / time.Second),
		DurationLabel:    f.DurationString(p.Term.Duration),
		Remaining:        f.DurationRemainingString(p.Term, asOf),
		RemainingPercent: f.DurationRemainingPercent(p.Term, asOf).Round(4),
		StartDisplay:     f.PolicyDateString(p.Term.StartDate),
	}
}

func toVehicleDTO(f format.TermFormatter, v history.VehicleView, asOf time.Time) VehicleDTO {
	dto := VehicleDTO{
		ID:                 string(v.Vehicle.ID),
		DisplayVRM:         v.Vehicle.DisplayVRM,
		MakeModel:          v.Vehicle.MakeModel,
		HistoricalPolicies: make([]PolicyDTO, 0, len(v.Historical)),
	}
	if v.Active != nil {
		active := toPolicyDTO(f, *v.Active, asOf)
		dto.ActivePolicy = &active
	}
	for _, p := range v.Historical {
		dto.HistoricalPolicies = append(dto.HistoricalPolicies, toPolicyDTO(f, p, asOf))
	}
	return dto
}

func toPolicyDataDTO(f format.TermFormatter, data history.PolicyData, rule history.ActivityRule) PolicyDataDTO {
	dto := PolicyDataDTO{
		AsOf:             feed.FormatTime(data.AsOf),
		ActivityRule:     rule.String(),
		ActivePolicies:   make([]PolicyDTO, 0, len(data.ActivePolicies)),
		HistoricVehicles: make([]VehicleDTO, 0, len(data.HistoricVehicles)),
		Vehicles:         make([]VehicleDTO, 0, len(data.Views)),
	}
	for _, p := range data.ActivePolicies {
		dto.ActivePolicies = append(dto.ActivePolicies, toPolicyDTO(f, p, data.AsOf))
	}
	for _, v := range data.Views {
		vd := toVehicleDTO(f, v, data.AsOf)
		if !v.HasActivePolicy() {
			dto.HistoricVehicles = append(dto.HistoricVehicles, vd)
		}
		dto.Vehicles = append(dto.Vehicles, vd)
	}
	return dto
}

func toBatchDTO(h history.BatchHeader) BatchDTO {
	return BatchDTO{
		ID:         h.ID,
		Source:     h.Source,
		ReceivedAt: feed.FormatTime(h.ReceivedAt),
		EventCount: h.EventCount,
	}
}

func toIngestResponse(batch history.Batch, s history.IngestSummary) IngestResponse {
	resp := IngestResponse{
		BatchID:     batch.ID,
		Source:      batch.Source,
		Events:      s.Events,
		Created:     s.Created,
		Extended:    s.Extended,
		Cancelled:   s.Cancelled,
		Vehicles:    s.Vehicles,
		Policies:    s.Policies,
		Dropped:     s.Dropped,
		Diagnostics: make([]DiagnosticDTO, 0, len(s.Diagnostics)),
	}
	for _, d := range s.Diagnostics {
		resp.Diagnostics = append(resp.Diagnostics, DiagnosticDTO{
			Kind:      string(d.Kind),
			EventKind: string(d.EventKind),
			PolicyID:  string(d.PolicyID),
			Reference: string(d.Reference),
			Message:   d.Error(),
		})
	}
	return resp
}
