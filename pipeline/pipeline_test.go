package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/convopipe/backend"
	"github.com/hupe1980/convopipe/config"
	"github.com/hupe1980/convopipe/core"
)

func newConv() *core.Conversation {
	return core.NewConversation("c1", 2*time.Hour)
}

func newEvent(text string) core.InboundEvent {
	return core.InboundEvent{ConversationID: "c1", Text: text, Timestamp: time.Now(), CorrelationID: "corr-1"}
}

func TestSelectState_AcceptsAboveThreshold(t *testing.T) {
	mock := backend.NewMockBackend()
	mock.SelectionResponse = backend.StateSelectionResponse{TargetState: core.StateQualifying, Confidence: 0.85}
	p := New(mock)

	sel := p.SelectState(context.Background(), newConv(), newEvent("quero saber sobre entregas"))

	assert.True(t, sel.Accepted)
	assert.Equal(t, 0.85, sel.Confidence)
	assert.Equal(t, core.StateQualifying, sel.TargetState)
	assert.Equal(t, core.StatusOK, sel.Status)
	assert.False(t, sel.UsedFallback)
}

func TestSelectState_GateInvariant(t *testing.T) {
	// accepted == true implies confidence >= 0.70; accepted == false
	// implies the target state is held.
	for _, confidence := range []float64{0.0, 0.3, 0.69, 0.7, 0.71, 0.99} {
		mock := backend.NewMockBackend()
		mock.SelectionResponse = backend.StateSelectionResponse{TargetState: core.StateQualifying, Confidence: confidence}
		p := New(mock)
		conv := newConv()

		sel := p.SelectState(context.Background(), conv, newEvent("mensagem qualquer"))

		if sel.Accepted {
			assert.GreaterOrEqual(t, sel.Confidence, 0.70)
		} else {
			assert.Equal(t, conv.CurrentState, sel.TargetState)
			assert.NotEmpty(t, sel.ResponseHint)
		}
	}
}

func TestSelectState_ClosingPhraseCapsConfidence(t *testing.T) {
	mock := backend.NewMockBackend()
	mock.SelectionResponse = backend.StateSelectionResponse{TargetState: core.StateQualifying, Confidence: 0.95}
	p := New(mock)
	conv := newConv()

	sel := p.SelectState(context.Background(), conv, newEvent("obrigado, era só isso"))

	assert.False(t, sel.Accepted, "capped confidence must stay below the gate")
	assert.Equal(t, preCheckCap, sel.Confidence)
	assert.Equal(t, core.StatusNeedsClarification, sel.Status)
	assert.Equal(t, conv.CurrentState, sel.TargetState)
}

func TestSelectState_PivotPhraseDetected(t *testing.T) {
	mock := backend.NewMockBackend()
	mock.SelectionResponse = backend.StateSelectionResponse{TargetState: core.StateQualifying, Confidence: 0.9}
	p := New(mock)

	sel := p.SelectState(context.Background(), newConv(), newEvent("na verdade quero falar de outra coisa"))

	assert.Equal(t, core.StatusNewRequestDetected, sel.Status)
	assert.False(t, sel.Accepted)
}

func TestSelectState_BackendTimeoutFallsBack(t *testing.T) {
	mock := backend.NewMockBackend()
	mock.SelectionErr = &core.BackendError{Kind: core.BackendTimeout, Stage: backend.StageStateSelector}
	p := New(mock)
	conv := newConv()

	sel := p.SelectState(context.Background(), conv, newEvent("oi"))

	assert.False(t, sel.Accepted)
	assert.Zero(t, sel.Confidence)
	assert.Equal(t, conv.CurrentState, sel.TargetState)
	assert.True(t, sel.UsedFallback)
	assert.NotEmpty(t, sel.ResponseHint)
}

func TestSelectState_InvalidTargetStateFallsBack(t *testing.T) {
	mock := backend.NewMockBackend()
	// EXPIRED is never reachable from NEW; the response is out of contract.
	mock.SelectionResponse = backend.StateSelectionResponse{TargetState: core.StateExpired, Confidence: 0.9}
	p := New(mock)

	sel := p.SelectState(context.Background(), newConv(), newEvent("oi"))

	assert.True(t, sel.UsedFallback)
	assert.False(t, sel.Accepted)
}

func TestCompose_FloorHoldsOnBackendError(t *testing.T) {
	mock := backend.NewMockBackend()
	mock.CompositionErr = &core.BackendError{Kind: core.BackendTimeout, Stage: backend.StageComposer}
	p := New(mock)
	conv := newConv()
	sel := p.SelectState(context.Background(), conv, newEvent("oi"))

	plan := p.Compose(context.Background(), sel, conv, newEvent("oi"))

	require.GreaterOrEqual(t, len(plan.Candidates), 3)
	assert.Equal(t, 0, plan.ChosenIndex)
	assert.True(t, plan.UsedFallback)
	for _, c := range plan.Candidates {
		assert.False(t, containsPII(c.Text))
		assert.NotEmpty(t, c.Text)
	}
}

func TestCompose_TooFewCandidatesFallsBack(t *testing.T) {
	mock := backend.NewMockBackend()
	mock.CompositionResponse = backend.CompositionResponse{Candidates: []string{"a", "b"}, ChosenIndex: 0}
	p := New(mock)
	conv := newConv()

	plan := p.Compose(context.Background(), core.StateSelection{Accepted: true, CurrentState: conv.CurrentState}, conv, newEvent("oi"))

	assert.True(t, plan.UsedFallback)
	assert.GreaterOrEqual(t, len(plan.Candidates), 3)
}

func TestCompose_DuplicateCandidatesCollapse(t *testing.T) {
	mock := backend.NewMockBackend()
	mock.CompositionResponse = backend.CompositionResponse{
		Candidates:  []string{"mesma resposta", "mesma resposta", "outra"},
		ChosenIndex: 0,
	}
	p := New(mock)
	conv := newConv()

	plan := p.Compose(context.Background(), core.StateSelection{Accepted: true}, conv, newEvent("oi"))

	// Two distinct texts are below the floor: fallback.
	assert.True(t, plan.UsedFallback)
	assert.GreaterOrEqual(t, len(plan.Candidates), 3)
}

func TestCompose_PIICandidateVoidsResponse(t *testing.T) {
	mock := backend.NewMockBackend()
	mock.CompositionResponse = backend.CompositionResponse{
		Candidates: []string{
			"Ligue para 11 98765-4321 para confirmar.",
			"Posso ajudar com mais alguma coisa?",
			"Certo, vou verificar.",
		},
		ChosenIndex: 0,
	}
	p := New(mock)
	conv := newConv()

	plan := p.Compose(context.Background(), core.StateSelection{Accepted: true}, conv, newEvent("oi"))

	assert.True(t, plan.UsedFallback)
	for _, c := range plan.Candidates {
		assert.False(t, containsPII(c.Text))
	}
}

func TestCompose_ClarifyTemplatesWhenNotAccepted(t *testing.T) {
	mock := backend.NewMockBackend()
	mock.CompositionErr = &core.BackendError{Kind: core.BackendMalformed, Stage: backend.StageComposer}
	p := New(mock)
	conv := newConv()

	plan := p.Compose(context.Background(), core.StateSelection{Accepted: false, CurrentState: conv.CurrentState}, conv, newEvent("oi"))

	require.True(t, plan.UsedFallback)
	assert.Equal(t, clarifyTemplates[0], plan.Candidates[0].Text)
}

func TestArbitrate_TransitionRequiresAcceptedSelection(t *testing.T) {
	mock := backend.NewMockBackend()
	mock.ArbitrationResponse = backend.ArbitrationResponse{
		ApplyStateTransition: true,
		SelectedContentRef:   1,
		ContentShape:         "text",
		Reason:               "advance",
		Confidence:           0.8,
	}
	p := New(mock)
	plan := planFallback(core.StateSelection{Accepted: true})

	// Selection not accepted: the arbiter may never transition.
	sel := core.StateSelection{Accepted: false, CurrentState: core.StateQualifying, TargetState: core.StateQualifying}
	dec := p.Arbitrate(context.Background(), sel, plan, newEvent("oi"))

	assert.False(t, dec.ApplyStateTransition)
	assert.Equal(t, core.StateQualifying, dec.TargetState)
	assert.Equal(t, 1, dec.SelectedContentRef, "arbiter may still override the content choice")
}

func TestArbitrate_FallbackRule(t *testing.T) {
	mock := backend.NewMockBackend()
	mock.ArbitrationErr = &core.BackendError{Kind: core.BackendTimeout, Stage: backend.StageArbiter}
	p := New(mock)

	sel := core.StateSelection{Accepted: true, CurrentState: core.StateNew, TargetState: core.StateQualifying}
	plan := core.ResponsePlan{Candidates: []core.Candidate{{Text: "a"}, {Text: "b"}, {Text: "c"}}, ChosenIndex: 2}

	dec := p.Arbitrate(context.Background(), sel, plan, newEvent("oi"))

	assert.False(t, dec.ApplyStateTransition)
	assert.Equal(t, 2, dec.SelectedContentRef, "fallback selects the composer's chosen index")
	assert.Equal(t, core.ShapeText, dec.ContentShape)
	assert.True(t, dec.UsedFallback)
}

func TestArbitrate_OutOfRangeRefFallsBack(t *testing.T) {
	mock := backend.NewMockBackend()
	mock.ArbitrationResponse = backend.ArbitrationResponse{
		ApplyStateTransition: true,
		SelectedContentRef:   9,
		ContentShape:         "text",
		Confidence:           0.8,
	}
	p := New(mock)

	sel := core.StateSelection{Accepted: true, CurrentState: core.StateNew, TargetState: core.StateQualifying}
	plan := core.ResponsePlan{Candidates: []core.Candidate{{Text: "a"}, {Text: "b"}, {Text: "c"}}, ChosenIndex: 1}

	dec := p.Arbitrate(context.Background(), sel, plan, newEvent("oi"))

	assert.True(t, dec.UsedFallback)
	assert.Equal(t, 1, dec.SelectedContentRef)
	assert.False(t, dec.ApplyStateTransition)
}

func TestRun_BackendDisabledUsesEveryFallback(t *testing.T) {
	cfg := config.Default()
	cfg.BackendEnabled = false
	mock := backend.NewMockBackend()
	p := New(mock, func(o *Options) { o.Config = cfg })
	conv := newConv()

	sel, plan, dec := p.Run(context.Background(), conv, newEvent("oi"))

	assert.True(t, sel.UsedFallback)
	assert.True(t, plan.UsedFallback)
	assert.True(t, dec.UsedFallback)
	assert.Zero(t, mock.SelectCalls)
	assert.Zero(t, mock.ComposeCalls)
	assert.Zero(t, mock.ArbitrateCalls)
	require.GreaterOrEqual(t, len(plan.Candidates), 3)
	assert.False(t, dec.ApplyStateTransition)
}

func TestRun_FullFallbackIsStillSuccess(t *testing.T) {
	mock := backend.NewMockBackend()
	mock.SelectionErr = &core.BackendError{Kind: core.BackendUnavailable, Stage: backend.StageStateSelector}
	mock.CompositionErr = &core.BackendError{Kind: core.BackendUnavailable, Stage: backend.StageComposer}
	mock.ArbitrationErr = &core.BackendError{Kind: core.BackendUnavailable, Stage: backend.StageArbiter}
	p := New(mock)
	conv := newConv()

	sel, plan, dec := p.Run(context.Background(), conv, newEvent("oi"))

	assert.False(t, sel.Accepted)
	assert.GreaterOrEqual(t, len(plan.Candidates), 3)
	assert.False(t, dec.ApplyStateTransition)
	assert.Equal(t, plan.ChosenIndex, dec.SelectedContentRef)
}
