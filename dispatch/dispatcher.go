// Package dispatch turns a pipeline decision into at most one externally
// visible send. The fingerprint store acts as the send-guard: redeliveries
// reuse the decision's idempotency key, so a decision that already went
// out degrades to a no-op success. Retryable transport failures release
// the guard so a later redelivery may try again (at-most-one successful
// send); permanent failures keep it, making the failure terminal.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/logging"
)

// Status tracks the lifecycle of a dispatch attempt.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Result describes the outcome of one Dispatch call.
type Result struct {
	Status Status
	// AlreadySent is true when the send-guard recognized the idempotency
	// key and no transport call was made.
	AlreadySent bool
}

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// GuardTTL bounds how long an idempotency key blocks re-sending.
	GuardTTL time.Duration
	Logger   logging.Logger
}

// Dispatcher guards the outbound boundary.
type Dispatcher struct {
	guard     core.FingerprintStore
	transport core.Transport
	guardTTL  time.Duration
	logger    logging.Logger
}

// New constructs a Dispatcher with optional overrides.
func New(guard core.FingerprintStore, transport core.Transport, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		GuardTTL: 24 * time.Hour,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Dispatcher{guard: guard, transport: transport, guardTTL: opts.GuardTTL, logger: opts.Logger}
}

// Dispatch sends msg at most once per idempotency key. A guard-store
// outage fails closed: the error is surfaced for the queue to redeliver
// rather than risking a duplicate send.
func (d *Dispatcher) Dispatch(ctx context.Context, msg core.OutboundMessage) (Result, error) {
	start := time.Now()

	admitted, err := d.guard.Admit(ctx, msg.IdempotencyKey, d.guardTTL)
	if err != nil {
		return Result{Status: StatusPending}, fmt.Errorf("send-guard admit: %w", err)
	}
	if !admitted {
		d.logDispatch(msg.IdempotencyKey, string(StatusSent)+" (deduplicated)", time.Since(start), nil)
		return Result{Status: StatusSent, AlreadySent: true}, nil
	}

	if err := d.transport.Send(ctx, msg); err != nil {
		if core.IsRetryableDispatch(err) {
			// Withdraw the admission so the next redelivery of the same
			// decision can attempt the send again.
			if relErr := d.guard.Release(ctx, msg.IdempotencyKey); relErr != nil {
				d.logger.Warn("send-guard release failed key=%s err=%v", msg.IdempotencyKey, relErr)
			}
		}
		d.logDispatch(msg.IdempotencyKey, string(StatusFailed), time.Since(start), err)
		return Result{Status: StatusFailed}, err
	}

	d.logDispatch(msg.IdempotencyKey, string(StatusSent), time.Since(start), nil)
	return Result{Status: StatusSent}, nil
}

func (d *Dispatcher) logDispatch(key, status string, dur time.Duration, err error) {
	if pl, ok := d.logger.(*logging.PipelineLogger); ok {
		pl.LogDispatch(key, status, dur, err)
		return
	}
	if err != nil {
		d.logger.Error("dispatch failed key=%s err=%v", key, err)
	} else {
		d.logger.Debug("dispatch completed key=%s status=%s", key, status)
	}
}

// NopTransport accepts every message and does nothing. Default for local
// development and tests.
type NopTransport struct{}

// Send implements core.Transport.
func (NopTransport) Send(context.Context, core.OutboundMessage) error { return nil }

var _ core.Transport = NopTransport{}
