// Package convopipe provides a high-level façade over the message decision
// pipeline: exactly-once admission of inbound conversational events, a
// versioned conversation store, a hash-linked audit trail, a flood gate and
// a three-stage confidence-gated reasoning pipeline feeding an idempotent
// outbound dispatcher. Most applications interact with this package by:
//  1. Creating a ConvoPipe via New() (optionally overriding the default
//     in-memory stores, the reasoning backend and the transport)
//  2. Feeding normalized inbound events through Process or ProcessAll
//  3. Exporting or verifying audit chains for compliance readers
//
// The façade delegates orchestration to processor.Processor while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply the
// SQLite-backed stores, a real backend adapter and a structured logger.
package convopipe

import (
	"context"

	"github.com/hupe1980/convopipe/abuse"
	"github.com/hupe1980/convopipe/audit"
	"github.com/hupe1980/convopipe/backend"
	"github.com/hupe1980/convopipe/config"
	"github.com/hupe1980/convopipe/conversation"
	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/dispatch"
	"github.com/hupe1980/convopipe/fingerprint"
	"github.com/hupe1980/convopipe/logging"
	"github.com/hupe1980/convopipe/pipeline"
	"github.com/hupe1980/convopipe/processor"
)

// Options configures the ConvoPipe instance.
type Options struct {
	// Config holds thresholds, timeouts and retry caps.
	Config *config.Config

	// Backend is the reasoning backend driving the three decision stages.
	// Nil keeps the backend disabled; every stage then uses its
	// deterministic fallback.
	Backend backend.Backend

	// Transport carries outbound messages to the messaging provider.
	Transport core.Transport

	// Stores (defaults to in-memory implementations if not provided)
	ConversationStore core.ConversationStore
	AuditChain        core.AuditChain
	AdmissionStore    core.FingerprintStore
	SendGuard         core.FingerprintStore
	AbuseGate         core.AbuseGate

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// ConvoPipe is the high-level façade aggregating the processor and stores.
type ConvoPipe struct {
	opts  Options
	proc  *processor.Processor
	pool  *processor.Pool
	chain core.AuditChain
}

// New creates a new ConvoPipe instance with optional overrides. Any unset
// store is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *ConvoPipe {
	opts := Options{
		Config:    config.Default(),
		Transport: dispatch.NopTransport{},
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.ConversationStore == nil {
		opts.ConversationStore = conversation.NewInMemoryStore()
	}
	if opts.AuditChain == nil {
		opts.AuditChain = audit.NewInMemoryChain()
	}
	if opts.AdmissionStore == nil {
		opts.AdmissionStore = fingerprint.NewInMemoryStore()
	}
	if opts.SendGuard == nil {
		opts.SendGuard = fingerprint.NewInMemoryStore()
	}
	if opts.AbuseGate == nil {
		opts.AbuseGate = abuse.NewWindowGate(opts.Config.AbuseThreshold, opts.Config.AbuseWindow.Std())
	}

	pipe := pipeline.New(opts.Backend, func(o *pipeline.Options) {
		o.Config = opts.Config
		o.Logger = opts.Logger
	})
	dispatcher := dispatch.New(opts.SendGuard, opts.Transport, func(o *dispatch.Options) {
		o.GuardTTL = opts.Config.OutboundFingerprintTTL.Std()
		o.Logger = opts.Logger
	})
	proc := processor.New(processor.Stores{
		Conversations: opts.ConversationStore,
		Audit:         opts.AuditChain,
		Admission:     opts.AdmissionStore,
		Gate:          opts.AbuseGate,
	}, pipe, dispatcher, func(o *processor.Options) {
		o.Config = opts.Config
		o.Logger = opts.Logger
	})

	return &ConvoPipe{
		opts:  opts,
		proc:  proc,
		pool:  processor.NewPool(proc),
		chain: opts.AuditChain,
	}
}

// Process runs one inbound delivery end to end.
func (p *ConvoPipe) Process(ctx context.Context, ev core.InboundEvent) (processor.Result, error) {
	return p.proc.Process(ctx, ev)
}

// ProcessAll fans a batch of deliveries out over the bounded worker pool,
// returning per-event results in input order.
func (p *ConvoPipe) ProcessAll(ctx context.Context, events []core.InboundEvent) ([]processor.Result, error) {
	return p.pool.ProcessAll(ctx, events)
}

// Conversation returns the current stored state of a conversation.
func (p *ConvoPipe) Conversation(ctx context.Context, id string) (*core.Conversation, error) {
	return p.opts.ConversationStore.LoadOrCreate(ctx, id, p.opts.Config.ConversationTTL.Std())
}

// AuditEvents exports the ordered audit chain of a conversation.
func (p *ConvoPipe) AuditEvents(ctx context.Context, conversationID string) ([]core.AuditEvent, error) {
	return p.chain.Events(ctx, conversationID)
}

// VerifyAudit recomputes every hash of a conversation's chain. It returns
// false plus the index of the first broken link when the chain has been
// tampered with; the index is -1 on success.
func (p *ConvoPipe) VerifyAudit(ctx context.Context, conversationID string) (bool, int, error) {
	return p.chain.VerifyChain(ctx, conversationID)
}
