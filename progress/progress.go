// Package progress carries the typed events long-running operations emit.
package progress

import (
	"context"
	"sync"
)

// Event statuses
const (
	StatusUploading   = "uploading"
	StatusClassifying = "classifying"
	StatusExtracting  = "extracting"
	StatusTagging     = "tagging"
	StatusUpdating    = "updating_parties"
	StatusProofread   = "proofreading"
	StatusMinting     = "minting"
	StatusCompleted   = "completed"
	StatusError       = "error"
)

// Event is one progress notification
type Event struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Progress *int   `json:"progress,omitempty"`
	Current  *int   `json:"current,omitempty"`
	Total    *int   `json:"total,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// Func receives events. Implementations must not block for long; errors are
// reported but never abort the operation that emits them.
type Func func(ctx context.Context, e Event) error

// Nop discards events
func Nop(context.Context, Event) error { return nil }

// Tracker forwards events to a Func while keeping progress monotone
type Tracker struct {
	mu      sync.Mutex
	fn      Func
	last    int
	onError func(error)
}

// NewTracker wraps fn; a nil fn behaves as Nop. onError, when non-nil,
// is told about sink failures.
func NewTracker(fn Func, onError func(error)) *Tracker {
	if fn == nil {
		fn = Nop
	}
	return &Tracker{fn: fn, onError: onError}
}

// Emit sends an event at the given progress. A value below the last emitted
// one is raised to it; values are clamped to [0,100].
func (t *Tracker) Emit(ctx context.Context, status, message string, pct int) {
	t.send(ctx, Event{Status: status, Message: message}, pct)
}

// Step sends a per-item event inside a stage
func (t *Tracker) Step(ctx context.Context, status, message string, pct, current, total int) {
	t.send(ctx, Event{Status: status, Message: message, Current: &current, Total: &total}, pct)
}

// Interpolate maps item i of n onto the span (from, to]
func Interpolate(from, to, i, n int) int {
	if n <= 0 {
		return to
	}
	return from + (to-from)*i/n
}

// Fail sends an error event at the last progress value
func (t *Tracker) Fail(ctx context.Context, message string) {
	t.mu.Lock()
	pct := t.last
	t.mu.Unlock()
	t.send(ctx, Event{Status: StatusError, Message: message}, pct)
}

// Done sends the terminal event carrying data
func (t *Tracker) Done(ctx context.Context, message string, data any) {
	t.send(ctx, Event{Status: StatusCompleted, Message: message, Data: data}, 100)
}

// Last returns the highest progress emitted so far
func (t *Tracker) Last() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *Tracker) send(ctx context.Context, e Event, pct int) {
	t.mu.Lock()
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct < t.last {
		pct = t.last
	}
	t.last = pct
	e.Progress = &pct
	// hold the lock so events reach the sink in emission order
	err := t.fn(ctx, e)
	t.mu.Unlock()
	if err != nil && t.onError != nil {
		t.onError(err)
	}
}
