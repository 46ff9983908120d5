package core

// StageStatus annotates a state-selection result with the deterministic
// pre-check verdict.
type StageStatus string

const (
	StatusOK                 StageStatus = "ok"
	StatusNeedsClarification StageStatus = "needs_clarification"
	StatusNewRequestDetected StageStatus = "new_request_detected"
)

// StateSelection is the concrete result of the first pipeline stage. It is
// passed by value into the second stage; later stages never mutate it.
type StateSelection struct {
	Accepted     bool        `json:"accepted"`
	Confidence   float64     `json:"confidence"`
	UsedFallback bool        `json:"used_fallback"`
	CurrentState State       `json:"current_state"`
	TargetState  State       `json:"target_state"`
	Status       StageStatus `json:"status"`
	// ResponseHint is populated whenever the selection was not accepted,
	// steering the composer toward explicit confirmation.
	ResponseHint string `json:"response_hint,omitempty"`
}

// Candidate is one composed response option with its safety annotation.
type Candidate struct {
	Text    string `json:"text"`
	PIIRisk bool   `json:"pii_risk"`
}

// ResponsePlan is the concrete result of the second pipeline stage.
// Invariant (holds under fallback too): at least three distinct candidates
// and a ChosenIndex inside their bounds.
type ResponsePlan struct {
	Accepted     bool        `json:"accepted"`
	Confidence   float64     `json:"confidence"`
	UsedFallback bool        `json:"used_fallback"`
	Candidates   []Candidate `json:"candidates"`
	ChosenIndex  int         `json:"chosen_index"`
}

// Chosen returns the currently chosen candidate.
func (p ResponsePlan) Chosen() Candidate {
	if p.ChosenIndex < 0 || p.ChosenIndex >= len(p.Candidates) {
		return Candidate{}
	}
	return p.Candidates[p.ChosenIndex]
}

// ContentShape is the closed set of abstract presentation shapes. The
// concrete wire payload per shape is built by the (out of scope)
// transport layer via exhaustive matching on this tag.
type ContentShape string

const (
	ShapeText       ContentShape = "text"
	ShapeChoiceSet  ContentShape = "choice_set"
	ShapeStructured ContentShape = "structured"
)

// ParseContentShape maps a backend-supplied string onto the closed shape
// set, reporting false for anything outside it.
func ParseContentShape(s string) (ContentShape, bool) {
	switch ContentShape(s) {
	case ShapeText, ShapeChoiceSet, ShapeStructured:
		return ContentShape(s), true
	}
	return ShapeText, false
}

// OutboundDecision is the final arbiter's output: the single externally
// visible action a decision may produce.
type OutboundDecision struct {
	// ApplyStateTransition is only ever true when the state selection was
	// accepted.
	ApplyStateTransition bool         `json:"apply_state_transition"`
	TargetState          State        `json:"target_state"`
	SelectedContentRef   int          `json:"selected_content_ref"`
	ContentShape         ContentShape `json:"content_shape"`
	Reason               string       `json:"reason"`
	Confidence           float64      `json:"confidence"`
	UsedFallback         bool         `json:"used_fallback"`
}

// OutboundMessage is what crosses the outbound boundary to the (out of
// scope) transport layer.
type OutboundMessage struct {
	ConversationID     string       `json:"conversation_id"`
	ContentShape       ContentShape `json:"content_shape"`
	SelectedContentRef int          `json:"selected_content_ref"`
	Text               string       `json:"text"`
	Candidates         []Candidate  `json:"candidates,omitempty"`
	IdempotencyKey     string       `json:"idempotency_key"`
}
