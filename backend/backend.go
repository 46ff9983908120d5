package backend

import (
	"context"

	"github.com/hupe1980/convopipe/core"
)

// Stage names used in error values and logs.
const (
	StageStateSelector = "state_selector"
	StageComposer      = "response_composer"
	StageArbiter       = "final_arbiter"
)

// StateSelectionRequest is the first stage's structured context.
type StateSelectionRequest struct {
	ConversationID  string       `json:"conversation_id"`
	CurrentState    core.State   `json:"current_state"`
	CandidateStates []core.State `json:"candidate_states"`
	MessageText     string       `json:"message_text"`
	HistorySummary  []string     `json:"history_summary,omitempty"`
	PendingIntents  []string     `json:"pending_intents,omitempty"`
}

// StateSelectionResponse is the backend's verdict on the next state.
type StateSelectionResponse struct {
	TargetState core.State `json:"target_state"`
	Confidence  float64    `json:"confidence"`
	Reason      string     `json:"reason,omitempty"`
}

// CompositionRequest is the second stage's structured context.
type CompositionRequest struct {
	ConversationID string     `json:"conversation_id"`
	CurrentState   core.State `json:"current_state"`
	TargetState    core.State `json:"target_state"`
	MessageText    string     `json:"message_text"`
	HistorySummary []string   `json:"history_summary,omitempty"`
	// Clarify steers candidates toward confirmation phrasing when the
	// state selection was not accepted.
	Clarify      bool   `json:"clarify"`
	ResponseHint string `json:"response_hint,omitempty"`
}

// CompositionResponse carries candidate response texts. PIIRisk is aligned
// index-wise with Candidates when present.
type CompositionResponse struct {
	Candidates  []string `json:"candidates"`
	ChosenIndex int      `json:"chosen_index"`
	PIIRisk     []bool   `json:"pii_risk,omitempty"`
}

// ArbitrationRequest hands the arbiter both prior stage results in full.
type ArbitrationRequest struct {
	ConversationID string              `json:"conversation_id"`
	Selection      core.StateSelection `json:"selection"`
	Plan           core.ResponsePlan   `json:"plan"`
	MessageText    string              `json:"message_text"`
}

// ArbitrationResponse is the backend's proposed final decision. The
// pipeline clamps it against its invariants before anything acts on it.
type ArbitrationResponse struct {
	ApplyStateTransition bool    `json:"apply_state_transition"`
	SelectedContentRef   int     `json:"selected_content_ref"`
	ContentShape         string  `json:"content_shape"`
	Reason               string  `json:"reason"`
	Confidence           float64 `json:"confidence"`
}

// Backend is the minimal interface the pipeline drives, one call per
// stage. Callers supply the timeout through ctx; implementations must
// return *core.BackendError for every failure mode.
type Backend interface {
	SelectState(ctx context.Context, req StateSelectionRequest) (StateSelectionResponse, error)
	ComposeResponses(ctx context.Context, req CompositionRequest) (CompositionResponse, error)
	Arbitrate(ctx context.Context, req ArbitrationRequest) (ArbitrationResponse, error)
}
