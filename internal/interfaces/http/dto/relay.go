package dto

import (
	"time"

	"github.com/erp/mikrosync/internal/infrastructure/scheduler"
)

// CycleResponse is one entry of the relay history
type CycleResponse struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Outcome    string    `json:"outcome"`
	OrderCode  string    `json:"order_code,omitempty"`
	Lines      int       `json:"lines"`
	Error      string    `json:"error,omitempty"`
	Retryable  bool      `json:"retryable,omitempty"`
}

// RelayStatusResponse describes the relay loop
type RelayStatusResponse struct {
	Running      bool            `json:"running"`
	Phase        string          `json:"phase"`
	PollInterval string          `json:"poll_interval"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	Cycles       int64           `json:"cycles"`
	History      []CycleResponse `json:"history"`
}

// HealthResponse is returned by the health probe
type HealthResponse struct {
	Status   string    `json:"status"`
	Time     time.Time `json:"time"`
	Database string    `json:"database"`
	Relay    string    `json:"relay"`
}

// NewCycleResponse converts a scheduler record
func NewCycleResponse(r scheduler.CycleRecord) CycleResponse {
	return CycleResponse{
		ID:         r.ID.String(),
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
		Outcome:    string(r.Outcome),
		OrderCode:  r.OrderCode,
		Lines:      r.Lines,
		Error:      r.Error,
		Retryable:  r.Retryable,
	}
}

// NewRelayStatusResponse builds the status payload from a snapshot and its history
func NewRelayStatusResponse(st scheduler.Status, history []scheduler.CycleRecord) RelayStatusResponse {
	resp := RelayStatusResponse{
		Running:      st.Running,
		Phase:        st.Phase,
		PollInterval: st.PollInterval.String(),
		StartedAt:    st.StartedAt,
		Cycles:       st.Cycles,
		History:      make([]CycleResponse, 0, len(history)),
	}
	for _, r := range history {
		resp.History = append(resp.History, NewCycleResponse(r))
	}
	return resp
}
