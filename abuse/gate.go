// Package abuse implements the flood gate: a fixed-window counter keyed by
// conversation identity. When a conversation exceeds the configured event
// threshold inside the window, the pipeline short-circuits straight to the
// REJECTED_ABUSE terminal outcome. The gate is the one store that fails
// open: a missed flood check is a lower-severity risk than blocking all
// legitimate traffic.
package abuse

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/convopipe/core"
)

type window struct {
	start time.Time
	count int
}

// WindowGate is a process-local fixed-window (count + TTL) AbuseGate.
// Check counts the event it is called for, so with threshold 10 the
// eleventh event inside one window is the first flagged one.
type WindowGate struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	counters  map[string]*window
	nowFunc   func() time.Time
}

// NewWindowGate constructs a gate flagging conversations that exceed
// threshold events per window.
func NewWindowGate(threshold int, windowSize time.Duration) *WindowGate {
	return &WindowGate{
		threshold: threshold,
		window:    windowSize,
		counters:  make(map[string]*window),
		nowFunc:   time.Now,
	}
}

// SetNowFunc overrides the clock. Test hook.
func (g *WindowGate) SetNowFunc(now func() time.Time) { g.nowFunc = now }

// Check implements core.AbuseGate.
func (g *WindowGate) Check(_ context.Context, conversationID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.nowFunc()
	w, ok := g.counters[conversationID]
	if !ok || now.Sub(w.start) >= g.window {
		g.counters[conversationID] = &window{start: now, count: 1}
		return false, nil
	}
	w.count++
	return w.count > g.threshold, nil
}

var _ core.AbuseGate = (*WindowGate)(nil)
