package classify

import "sync"

// Usage is the token accounting for one service call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// UsageTracker accumulates token counts across calls. It exists purely for
// cost reporting and never influences control flow.
type UsageTracker struct {
	mu           sync.Mutex
	inputTokens  int
	outputTokens int
	calls        int
}

// NewUsageTracker creates an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{}
}

// Record adds one successful call's usage to the running totals.
func (t *UsageTracker) Record(u Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inputTokens += u.InputTokens
	t.outputTokens += u.OutputTokens
	t.calls++
}

// Totals returns the accumulated usage and the number of calls it covers.
func (t *UsageTracker) Totals() (Usage, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Usage{InputTokens: t.inputTokens, OutputTokens: t.outputTokens}, t.calls
}
