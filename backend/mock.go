package backend

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/convopipe/core"
)

// MockBackend is a lightweight in-memory Backend useful for tests and
// local runs. Responses and errors can be scripted per stage; an optional
// delay simulates backend latency against stage timeouts.
type MockBackend struct {
	mu sync.Mutex

	SelectionResponse   StateSelectionResponse
	SelectionErr        error
	CompositionResponse CompositionResponse
	CompositionErr      error
	ArbitrationResponse ArbitrationResponse
	ArbitrationErr      error

	Delay time.Duration

	SelectCalls    int
	ComposeCalls   int
	ArbitrateCalls int
}

// NewMockBackend constructs a mock with sensible happy-path defaults: the
// first candidate state is selected with high confidence, three canned
// candidates are composed, and the arbiter follows the composer's choice.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		SelectionResponse: StateSelectionResponse{Confidence: 0.9, Reason: "scripted"},
		CompositionResponse: CompositionResponse{
			Candidates: []string{
				"Claro! Posso ajudar com isso.",
				"Certo, vou verificar para você.",
				"Perfeito, me conta um pouco mais?",
			},
			ChosenIndex: 0,
		},
		ArbitrationResponse: ArbitrationResponse{
			ApplyStateTransition: true,
			SelectedContentRef:   0,
			ContentShape:         string(core.ShapeText),
			Reason:               "scripted",
			Confidence:           0.9,
		},
	}
}

func (m *MockBackend) wait(ctx context.Context, stage string) error {
	if m.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(m.Delay):
		return nil
	case <-ctx.Done():
		return &core.BackendError{Kind: core.BackendTimeout, Stage: stage, Err: ctx.Err()}
	}
}

// SelectState implements Backend. When no target state was scripted the
// first candidate is used.
func (m *MockBackend) SelectState(ctx context.Context, req StateSelectionRequest) (StateSelectionResponse, error) {
	m.mu.Lock()
	m.SelectCalls++
	resp, scripted := m.SelectionResponse, m.SelectionErr
	m.mu.Unlock()

	if err := m.wait(ctx, StageStateSelector); err != nil {
		return StateSelectionResponse{}, err
	}
	if scripted != nil {
		return StateSelectionResponse{}, scripted
	}
	if resp.TargetState == "" && len(req.CandidateStates) > 0 {
		resp.TargetState = req.CandidateStates[0]
	}
	return resp, nil
}

// ComposeResponses implements Backend.
func (m *MockBackend) ComposeResponses(ctx context.Context, req CompositionRequest) (CompositionResponse, error) {
	m.mu.Lock()
	m.ComposeCalls++
	resp, scripted := m.CompositionResponse, m.CompositionErr
	m.mu.Unlock()

	if err := m.wait(ctx, StageComposer); err != nil {
		return CompositionResponse{}, err
	}
	if scripted != nil {
		return CompositionResponse{}, scripted
	}
	return resp, nil
}

// Arbitrate implements Backend.
func (m *MockBackend) Arbitrate(ctx context.Context, req ArbitrationRequest) (ArbitrationResponse, error) {
	m.mu.Lock()
	m.ArbitrateCalls++
	resp, scripted := m.ArbitrationResponse, m.ArbitrationErr
	m.mu.Unlock()

	if err := m.wait(ctx, StageArbiter); err != nil {
		return ArbitrationResponse{}, err
	}
	if scripted != nil {
		return ArbitrationResponse{}, scripted
	}
	return resp, nil
}

var _ Backend = (*MockBackend)(nil)
