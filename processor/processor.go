package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hupe1980/convopipe/config"
	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/dispatch"
	"github.com/hupe1980/convopipe/fingerprint"
	"github.com/hupe1980/convopipe/logging"
	"github.com/hupe1980/convopipe/pipeline"
)

// Audit actions emitted by the processor.
const (
	ActionDecisionCommitted = "decision_committed"
	ActionAbuseRejected     = "abuse_rejected"
)

// Stores bundles the persistence dependencies of a Processor.
type Stores struct {
	Conversations core.ConversationStore
	Audit         core.AuditChain
	Admission     core.FingerprintStore
	Gate          core.AbuseGate
}

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	Config *config.Config
	Logger logging.Logger
}

// Result reports what one Process call did for a delivery.
type Result struct {
	ConversationID string

	// Duplicate marks a redelivery that was dropped at admission.
	Duplicate bool
	// Terminal marks an event acknowledged against an already-closed
	// conversation; nothing was changed.
	Terminal bool
	// Flooded marks an event that tripped the abuse gate and closed the
	// conversation with the REJECTED_ABUSE outcome.
	Flooded bool

	// Processed is true once the conversation save committed.
	Processed bool
	// AuditDropped is true when the committed decision's audit event could
	// not be appended within the retry budget. The decision itself is
	// durable; operators reconcile the chain from this flag.
	AuditDropped bool
	// Dispatched is true when an outbound message crossed the transport.
	Dispatched bool
	// AlreadySent marks a dispatch deduplicated by the send-guard.
	AlreadySent bool
	// Retryable is set alongside a returned error when a redelivery of
	// the same event can be expected to succeed.
	Retryable bool

	// Version is the conversation version the decision committed as.
	Version   int64
	Selection core.StateSelection
	Plan      core.ResponsePlan
	Decision  core.OutboundDecision
}

// Processor executes one inbound delivery end to end.
type Processor struct {
	stores     Stores
	pipeline   *pipeline.Pipeline
	dispatcher *dispatch.Dispatcher
	cfg        *config.Config
	logger     logging.Logger
}

// New constructs a Processor with optional overrides.
func New(stores Stores, pipe *pipeline.Pipeline, dispatcher *dispatch.Dispatcher, optFns ...func(o *Options)) *Processor {
	opts := Options{
		Config: config.Default(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Processor{
		stores:     stores,
		pipeline:   pipe,
		dispatcher: dispatcher,
		cfg:        opts.Config,
		logger:     opts.Logger,
	}
}

// Process runs one delivery. Exactly-once semantics hang on the admission
// step: concurrent or later redeliveries of the same logical event observe
// admitted == false and return a Duplicate no-op. An unreachable admission
// store fails closed with an error so the queue redelivers instead of
// risking double processing.
func (p *Processor) Process(ctx context.Context, ev core.InboundEvent) (Result, error) {
	res := Result{ConversationID: ev.ConversationID}

	fp := fingerprint.Inbound(ev)
	admitted, err := p.stores.Admission.Admit(ctx, fp, p.cfg.InboundFingerprintTTL.Std())
	if err != nil {
		res.Retryable = true
		return res, fmt.Errorf("inbound admission: %w", err)
	}
	if !admitted {
		res.Duplicate = true
		p.logger.Debug("duplicate delivery dropped conversation=%s fingerprint=%s", ev.ConversationID, fp)
		return res, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProcessTimeout.Std())
	defer cancel()

	saved, err := p.commit(ctx, ev, &res)
	if err != nil {
		// Nothing committed: withdraw the admission so the redelivery is
		// not mistaken for a duplicate.
		if relErr := p.stores.Admission.Release(context.WithoutCancel(ctx), fp); relErr != nil {
			p.logger.Warn("admission release failed conversation=%s err=%v", ev.ConversationID, relErr)
		}
		res.Retryable = true
		return res, err
	}
	if res.Terminal {
		return res, nil
	}

	res.Processed = true
	res.Version = saved.Version
	res.AuditDropped = !p.appendAudit(ctx, ev, res)

	if res.Flooded {
		return res, nil
	}
	return p.dispatchDecision(ctx, res)
}

// commit runs the load-decide-save loop under optimistic concurrency. A
// lost version race reloads and recomputes the full decision against the
// fresh state; it never merges. The flood window counts events, not save
// attempts, so the gate is consulted exactly once and its verdict is
// reused across recomputes.
func (p *Processor) commit(ctx context.Context, ev core.InboundEvent, res *Result) (*core.Conversation, error) {
	flooded, gateErr := p.stores.Gate.Check(ctx, ev.ConversationID)
	if gateErr != nil {
		// Fail open: a missed flood check must not block traffic.
		p.logger.Warn("abuse gate unavailable, continuing conversation=%s err=%v", ev.ConversationID, gateErr)
		flooded = false
	}

	for attempt := 0; attempt < p.cfg.MaxVersionRetries; attempt++ {
		conv, err := p.stores.Conversations.LoadOrCreate(ctx, ev.ConversationID, p.cfg.ConversationTTL.Std())
		if err != nil {
			return nil, fmt.Errorf("load conversation: %w", err)
		}
		if conv.Terminal() {
			res.Terminal = true
			return conv, nil
		}

		work := conv.Clone()
		if flooded {
			if err := work.SetOutcome(core.OutcomeRejectedAbuse); err != nil {
				res.Terminal = true
				return conv, nil
			}
		} else {
			sel, plan, dec := p.pipeline.Run(ctx, work, ev)
			applyDecision(work, ev, sel, plan, dec)
			work.Touch(p.cfg.ConversationTTL.Std())
			res.Selection, res.Plan, res.Decision = sel, plan, dec
		}
		res.Flooded = flooded

		saved, err := p.stores.Conversations.Save(ctx, work, conv.Version)
		if err == nil {
			return saved, nil
		}
		if core.IsVersionConflict(err) {
			p.logger.Debug("version conflict, recomputing conversation=%s attempt=%d", conv.ID, attempt+1)
			continue
		}
		if errors.Is(err, core.ErrConversationClosed) {
			res.Terminal = true
			return conv, nil
		}
		return nil, fmt.Errorf("save conversation: %w", err)
	}
	return nil, fmt.Errorf("save conversation %s: %w", ev.ConversationID, &core.VersionConflictError{ConversationID: ev.ConversationID})
}

// applyDecision folds the stage results into the working copy.
func applyDecision(work *core.Conversation, ev core.InboundEvent, sel core.StateSelection, plan core.ResponsePlan, dec core.OutboundDecision) {
	work.AddTurn("user", ev.Text)
	if c := candidateAt(plan, dec.SelectedContentRef); c.Text != "" {
		work.AddTurn("assistant", c.Text)
	}
	if sel.Status == core.StatusNewRequestDetected {
		work.PushIntent(ev.Text)
	}
	if dec.ApplyStateTransition {
		work.CurrentState = dec.TargetState
		if dec.TargetState == core.StateClosing {
			_ = work.SetOutcome(core.OutcomeCompleted)
		}
	}
}

func candidateAt(plan core.ResponsePlan, ref int) core.Candidate {
	if ref < 0 || ref >= len(plan.Candidates) {
		return plan.Chosen()
	}
	return plan.Candidates[ref]
}

// appendAudit writes exactly one event for the committed decision,
// retrying a bounded number of times when another append wins the race for
// the chain head. It reports whether the event landed. The decision itself
// is already durable and a redelivery would be dropped at admission, so an
// unextendable chain is flagged on the Result instead of failing the
// delivery.
func (p *Processor) appendAudit(ctx context.Context, ev core.InboundEvent, res Result) bool {
	event := core.AuditEvent{
		ConversationID: ev.ConversationID,
		Actor:          core.ActorSystem,
		Action:         ActionAbuseRejected,
		CorrelationID:  ev.CorrelationID,
		Detail: map[string]string{
			"outcome": string(core.OutcomeRejectedAbuse),
			"version": strconv.FormatInt(res.Version, 10),
		},
	}
	if !res.Flooded {
		event.Action = ActionDecisionCommitted
		if !res.Decision.UsedFallback {
			event.Actor = core.ActorBackend
		}
		event.Detail = map[string]string{
			"from_state":             string(res.Selection.CurrentState),
			"target_state":           string(res.Decision.TargetState),
			"apply_state_transition": strconv.FormatBool(res.Decision.ApplyStateTransition),
			"selected_content_ref":   strconv.Itoa(res.Decision.SelectedContentRef),
			"content_shape":          string(res.Decision.ContentShape),
			"confidence":             strconv.FormatFloat(res.Decision.Confidence, 'f', 2, 64),
			"used_fallback":          strconv.FormatBool(res.Decision.UsedFallback),
			"status":                 string(res.Selection.Status),
			"version":                strconv.FormatInt(res.Version, 10),
		}
	}

	for attempt := 0; attempt < p.cfg.MaxChainRetries; attempt++ {
		head, err := p.stores.Audit.Head(ctx, ev.ConversationID)
		if err != nil {
			p.logger.Error("audit head lookup failed conversation=%s err=%v", ev.ConversationID, err)
			return false
		}
		if _, err := p.stores.Audit.Append(ctx, event, head); err == nil {
			return true
		} else if !core.IsChainConflict(err) {
			p.logger.Error("audit append failed conversation=%s err=%v", ev.ConversationID, err)
			return false
		}
	}
	p.logger.Error("audit append gave up after head races conversation=%s", ev.ConversationID)
	return false
}

// dispatchDecision hands the committed decision to the outbound boundary.
// The idempotency key binds (conversation, content ref, committed version)
// so a redelivered decision reuses its key while a recomputed decision for
// the same conversation gets a fresh one.
func (p *Processor) dispatchDecision(ctx context.Context, res Result) (Result, error) {
	key := fingerprint.Outbound(res.ConversationID, res.Decision.SelectedContentRef, res.Version)
	msg := core.OutboundMessage{
		ConversationID:     res.ConversationID,
		ContentShape:       res.Decision.ContentShape,
		SelectedContentRef: res.Decision.SelectedContentRef,
		Text:               candidateAt(res.Plan, res.Decision.SelectedContentRef).Text,
		IdempotencyKey:     key,
	}
	if res.Decision.ContentShape == core.ShapeChoiceSet {
		msg.Candidates = append([]core.Candidate(nil), res.Plan.Candidates...)
	}

	dres, err := p.dispatcher.Dispatch(ctx, msg)
	if err != nil {
		res.Retryable = core.IsRetryableDispatch(err)
		return res, fmt.Errorf("dispatch: %w", err)
	}
	res.Dispatched = dres.Status == dispatch.StatusSent && !dres.AlreadySent
	res.AlreadySent = dres.AlreadySent
	return res, nil
}
