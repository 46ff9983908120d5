// Package anthropic provides a reasoning-backend adapter for the Anthropic
// Messages API. Each stage call sends the stage's structured context as a
// JSON user message and expects a single JSON object back; anything else
// is surfaced as a malformed-backend error and handled by the stage's
// deterministic fallback.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/convopipe/backend"
	"github.com/hupe1980/convopipe/core"
)

const (
	selectorPrompt = "You route a customer conversation through a state machine. " +
		"Given the JSON context, answer with one JSON object: " +
		`{"target_state": "<one of candidate_states>", "confidence": <0..1>, "reason": "<short>"}. ` +
		"No prose, JSON only."

	composerPrompt = "You draft reply options for a customer conversation. " +
		"Given the JSON context, answer with one JSON object: " +
		`{"candidates": ["<reply>", "<reply>", "<reply>"], "chosen_index": <int>, "pii_risk": [<bool>, ...]}. ` +
		"At least three distinct candidates, no personal data, same language as the customer. " +
		"When clarify is true, prefer confirmation questions over forward progress. No prose, JSON only."

	arbiterPrompt = "You are the final arbiter of a decision pipeline. " +
		"Given the JSON context with both prior stage results, answer with one JSON object: " +
		`{"apply_state_transition": <bool>, "selected_content_ref": <int>, "content_shape": "text|choice_set|structured", "reason": "<short>", "confidence": <0..1>}. ` +
		"Never apply a transition the selection stage did not accept. No prose, JSON only."
)

// Options configures the Anthropic backend adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Backend wraps the Anthropic Messages API behind the backend.Backend interface.
type Backend struct {
	client *anthropic.Client
	opts   Options
}

// New creates a new Anthropic backend using the official client.
func New(optFns ...func(o *Options)) *Backend {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.2,
		MaxTokens:   1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Backend{client: &client, opts: opts}
}

// NewFromClient creates a new Anthropic backend from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Backend {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.2,
		MaxTokens:   1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

// SelectState implements backend.Backend.
func (b *Backend) SelectState(ctx context.Context, req backend.StateSelectionRequest) (backend.StateSelectionResponse, error) {
	var resp backend.StateSelectionResponse
	if err := b.call(ctx, backend.StageStateSelector, selectorPrompt, req, &resp); err != nil {
		return backend.StateSelectionResponse{}, err
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return backend.StateSelectionResponse{}, malformed(backend.StageStateSelector, fmt.Errorf("confidence %v out of range", resp.Confidence))
	}
	return resp, nil
}

// ComposeResponses implements backend.Backend.
func (b *Backend) ComposeResponses(ctx context.Context, req backend.CompositionRequest) (backend.CompositionResponse, error) {
	var resp backend.CompositionResponse
	if err := b.call(ctx, backend.StageComposer, composerPrompt, req, &resp); err != nil {
		return backend.CompositionResponse{}, err
	}
	return resp, nil
}

// Arbitrate implements backend.Backend.
func (b *Backend) Arbitrate(ctx context.Context, req backend.ArbitrationRequest) (backend.ArbitrationResponse, error) {
	var resp backend.ArbitrationResponse
	if err := b.call(ctx, backend.StageArbiter, arbiterPrompt, req, &resp); err != nil {
		return backend.ArbitrationResponse{}, err
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		return backend.ArbitrationResponse{}, malformed(backend.StageArbiter, fmt.Errorf("confidence %v out of range", resp.Confidence))
	}
	return resp, nil
}

// call sends one request/response round trip and decodes the JSON answer
// into out.
func (b *Backend) call(ctx context.Context, stage, system string, input any, out any) error {
	payload, err := json.Marshal(input)
	if err != nil {
		return malformed(stage, fmt.Errorf("marshal request: %w", err))
	}

	msg, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       b.opts.Model,
		MaxTokens:   b.opts.MaxTokens,
		Temperature: anthropic.Float(b.opts.Temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(string(payload))),
		},
	})
	if err != nil {
		return transportError(stage, err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	return decodeJSON(stage, text, out)
}

func decodeJSON(stage, text string, out any) error {
	text = strings.TrimSpace(text)
	// Tolerate fenced output; everything else is out of contract.
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(text)))
	if err := dec.Decode(out); err != nil {
		return malformed(stage, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func transportError(stage string, err error) error {
	kind := core.BackendUnavailable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = core.BackendTimeout
	}
	return &core.BackendError{Kind: kind, Stage: stage, Err: err}
}

func malformed(stage string, err error) error {
	return &core.BackendError{Kind: core.BackendMalformed, Stage: stage, Err: err}
}

var _ backend.Backend = (*Backend)(nil)
