package pipeline

import (
	"context"
	"time"

	"github.com/hupe1980/convopipe/backend"
	"github.com/hupe1980/convopipe/config"
	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/logging"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	Config *config.Config
	Logger logging.Logger
}

// Pipeline drives the three decision stages against a reasoning backend.
// Run is a pure function of (conversation, event): it never mutates the
// conversation and has no side effects, so a worker that loses the
// optimistic version race can simply re-run it against fresh state.
type Pipeline struct {
	backend backend.Backend
	cfg     *config.Config
	logger  logging.Logger
}

// New constructs a Pipeline with optional overrides.
func New(b backend.Backend, optFns ...func(o *Options)) *Pipeline {
	opts := Options{
		Config: config.Default(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Pipeline{backend: b, cfg: opts.Config, logger: opts.Logger}
}

// Run executes all three stages in order and returns every stage result.
// It never returns an error: a run in which every stage used its fallback
// is still a successful run.
func (p *Pipeline) Run(ctx context.Context, conv *core.Conversation, ev core.InboundEvent) (core.StateSelection, core.ResponsePlan, core.OutboundDecision) {
	sel := p.SelectState(ctx, conv, ev)
	plan := p.Compose(ctx, sel, conv, ev)
	dec := p.Arbitrate(ctx, sel, plan, ev)
	return sel, plan, dec
}

// SelectState runs stage one. The deterministic pre-check runs before the
// backend call; when it matches, the eventual confidence is capped below
// the acceptance threshold no matter what the backend returned.
func (p *Pipeline) SelectState(ctx context.Context, conv *core.Conversation, ev core.InboundEvent) core.StateSelection {
	status := preCheck(ev.Text)

	if !p.cfg.BackendEnabled || p.backend == nil {
		sel := selectionFallback(conv, status)
		p.logStage(backend.StageStateSelector, sel.Accepted, sel.Confidence, true)
		return sel
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.StateSelectorTimeout.Std())
	defer cancel()

	start := time.Now()
	resp, err := p.backend.SelectState(callCtx, backend.StateSelectionRequest{
		ConversationID:  conv.ID,
		CurrentState:    conv.CurrentState,
		CandidateStates: conv.CandidateStates(),
		MessageText:     ev.Text,
		HistorySummary:  conv.HistorySummary(),
		PendingIntents:  conv.PendingIntents,
	})
	p.logBackend(backend.StageStateSelector, time.Since(start), err)
	if err != nil {
		sel := selectionFallback(conv, status)
		p.logStage(backend.StageStateSelector, sel.Accepted, sel.Confidence, true)
		return sel
	}

	// Out-of-contract values are a malformed response in disguise.
	if resp.Confidence < 0 || resp.Confidence > 1 || !conv.ValidTransition(resp.TargetState) {
		sel := selectionFallback(conv, status)
		p.logStage(backend.StageStateSelector, sel.Accepted, sel.Confidence, true)
		return sel
	}

	confidence := resp.Confidence
	if status != "" && confidence > preCheckCap {
		confidence = preCheckCap
	}
	if status == "" {
		status = core.StatusOK
	}

	sel := core.StateSelection{
		Accepted:     confidence >= p.cfg.ConfidenceThreshold,
		Confidence:   confidence,
		CurrentState: conv.CurrentState,
		TargetState:  resp.TargetState,
		Status:       status,
	}
	if !sel.Accepted {
		sel.TargetState = conv.CurrentState
		sel.ResponseHint = hintFor(status)
	}
	p.logStage(backend.StageStateSelector, sel.Accepted, sel.Confidence, false)
	return sel
}

// Compose runs stage two against stage one's concrete result. The output
// floor holds unconditionally: at least three distinct PII-free candidates
// with a chosen index inside their bounds.
func (p *Pipeline) Compose(ctx context.Context, sel core.StateSelection, conv *core.Conversation, ev core.InboundEvent) core.ResponsePlan {
	if !p.cfg.BackendEnabled || p.backend == nil {
		plan := planFallback(sel)
		p.logStage(backend.StageComposer, plan.Accepted, plan.Confidence, true)
		return plan
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.ComposerTimeout.Std())
	defer cancel()

	start := time.Now()
	resp, err := p.backend.ComposeResponses(callCtx, backend.CompositionRequest{
		ConversationID: conv.ID,
		CurrentState:   conv.CurrentState,
		TargetState:    sel.TargetState,
		MessageText:    ev.Text,
		HistorySummary: conv.HistorySummary(),
		Clarify:        !sel.Accepted,
		ResponseHint:   sel.ResponseHint,
	})
	p.logBackend(backend.StageComposer, time.Since(start), err)
	if err != nil {
		plan := planFallback(sel)
		p.logStage(backend.StageComposer, plan.Accepted, plan.Confidence, true)
		return plan
	}

	candidates, ok := vetCandidates(resp)
	if !ok {
		plan := planFallback(sel)
		p.logStage(backend.StageComposer, plan.Accepted, plan.Confidence, true)
		return plan
	}

	chosen := resp.ChosenIndex
	if chosen < 0 || chosen >= len(candidates) {
		chosen = 0
	}

	plan := core.ResponsePlan{
		Accepted:    true,
		Confidence:  sel.Confidence,
		Candidates:  candidates,
		ChosenIndex: chosen,
	}
	p.logStage(backend.StageComposer, plan.Accepted, plan.Confidence, false)
	return plan
}

// vetCandidates enforces the composer contract on a backend response:
// at least three distinct candidates, none carrying a recognizable PII
// pattern. A violation voids the whole response.
func vetCandidates(resp backend.CompositionResponse) ([]core.Candidate, bool) {
	seen := make(map[string]bool, len(resp.Candidates))
	out := make([]core.Candidate, 0, len(resp.Candidates))
	for i, text := range resp.Candidates {
		if text == "" || seen[text] {
			continue
		}
		if containsPII(text) {
			return nil, false
		}
		seen[text] = true
		c := core.Candidate{Text: text}
		if i < len(resp.PIIRisk) {
			c.PIIRisk = resp.PIIRisk[i]
		}
		out = append(out, c)
	}
	if len(out) < 3 {
		return nil, false
	}
	return out, true
}

// Arbitrate runs stage three against both prior results. A state
// transition is only ever applied when stage one accepted; everything the
// backend proposes is clamped against that invariant.
func (p *Pipeline) Arbitrate(ctx context.Context, sel core.StateSelection, plan core.ResponsePlan, ev core.InboundEvent) core.OutboundDecision {
	if !p.cfg.BackendEnabled || p.backend == nil {
		dec := decisionFallback(sel, plan)
		p.logStage(backend.StageArbiter, true, dec.Confidence, true)
		return dec
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.ArbiterTimeout.Std())
	defer cancel()

	start := time.Now()
	resp, err := p.backend.Arbitrate(callCtx, backend.ArbitrationRequest{
		ConversationID: ev.ConversationID,
		Selection:      sel,
		Plan:           plan,
		MessageText:    ev.Text,
	})
	p.logBackend(backend.StageArbiter, time.Since(start), err)
	if err != nil {
		dec := decisionFallback(sel, plan)
		p.logStage(backend.StageArbiter, true, dec.Confidence, true)
		return dec
	}

	shape, shapeOK := core.ParseContentShape(resp.ContentShape)
	refOK := resp.SelectedContentRef >= 0 && resp.SelectedContentRef < len(plan.Candidates)
	confOK := resp.Confidence >= 0 && resp.Confidence <= 1
	if !shapeOK || !refOK || !confOK {
		dec := decisionFallback(sel, plan)
		p.logStage(backend.StageArbiter, true, dec.Confidence, true)
		return dec
	}

	apply := resp.ApplyStateTransition && sel.Accepted
	target := sel.CurrentState
	if apply {
		target = sel.TargetState
	}

	dec := core.OutboundDecision{
		ApplyStateTransition: apply,
		TargetState:          target,
		SelectedContentRef:   resp.SelectedContentRef,
		ContentShape:         shape,
		Reason:               resp.Reason,
		Confidence:           resp.Confidence,
	}
	p.logStage(backend.StageArbiter, true, dec.Confidence, false)
	return dec
}

func (p *Pipeline) logBackend(stage string, dur time.Duration, err error) {
	if pl, ok := p.logger.(*logging.PipelineLogger); ok {
		pl.LogBackendCall(stage, dur, err == nil, err)
		return
	}
	if err != nil {
		p.logger.Warn("backend call failed stage=%s duration=%s err=%v", stage, dur, err)
	}
}

func (p *Pipeline) logStage(stage string, accepted bool, confidence float64, usedFallback bool) {
	if pl, ok := p.logger.(*logging.PipelineLogger); ok {
		pl.LogStageResult(stage, accepted, confidence, usedFallback)
		return
	}
	p.logger.Debug("stage completed stage=%s accepted=%t confidence=%.2f fallback=%t", stage, accepted, confidence, usedFallback)
}
