package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGenerator returns canned responses in sequence.
type scriptedGenerator struct {
	responses []Response
	errs      []error
	calls     int
}

func (g *scriptedGenerator) Generate(_ context.Context, _, _ string) (Response, error) {
	i := g.calls
	g.calls++
	if i >= len(g.responses) {
		i = len(g.responses) - 1
	}
	if g.errs != nil && g.errs[i] != nil {
		return Response{}, g.errs[i]
	}
	return g.responses[i], nil
}

type echoPayload struct {
	Value string `json:"value"`
}

func (p *echoPayload) Validate() error {
	if p.Value == "" {
		return fmt.Errorf("missing value")
	}
	return nil
}

func newTestClient(gen TextGenerator) *Client {
	return NewClient(gen, NewUsageTracker(), discardLogger()).
		WithPolicies(testPolicy(5), testPolicy(3))
}

func TestClassify_Success(t *testing.T) {
	gen := &scriptedGenerator{responses: []Response{
		{Text: `{"value": "ok"}`, Usage: Usage{InputTokens: 10, OutputTokens: 5}},
	}}
	client := newTestClient(gen)

	var out echoPayload
	err := client.Classify(context.Background(), "sys", "user", 1, &out)

	require.NoError(t, err)
	assert.Equal(t, "ok", out.Value)

	totals, calls := client.Usage().Totals()
	assert.Equal(t, 10, totals.InputTokens)
	assert.Equal(t, 5, totals.OutputTokens)
	assert.Equal(t, 1, calls)
}

func TestClassify_TransportRetryThenSuccess(t *testing.T) {
	rateLimit := &TransportError{Status: 429, Err: errors.New("rate limited"), Retryable: true}
	gen := &scriptedGenerator{
		responses: []Response{{}, {}, {Text: `{"value": "ok"}`}},
		errs:      []error{rateLimit, rateLimit, nil},
	}
	client := newTestClient(gen)

	var out echoPayload
	err := client.Classify(context.Background(), "sys", "user", 1, &out)

	require.NoError(t, err)
	assert.Equal(t, 3, gen.calls)
}

func TestClassify_TransportExhaustionIsFatal(t *testing.T) {
	overload := &TransportError{Status: 529, Err: errors.New("overloaded"), Retryable: true}
	gen := &scriptedGenerator{
		responses: []Response{{}},
		errs:      []error{overload},
	}
	client := newTestClient(gen)

	var out echoPayload
	err := client.Classify(context.Background(), "sys", "user", 1, &out)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetries)
	// Transport exhaustion must not consume parse retries.
	assert.Equal(t, 5, gen.calls)
}

func TestClassify_TruncationIsImmediatelyFatal(t *testing.T) {
	gen := &scriptedGenerator{responses: []Response{
		{Text: `{"value": "cut off`, Truncated: true},
	}}
	client := newTestClient(gen)

	var out echoPayload
	err := client.Classify(context.Background(), "sys", "user", 12, &out)

	require.Error(t, err)
	var te *TruncatedError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, err.Error(), "reduce the batch size")
	assert.Equal(t, 1, gen.calls)
}

func TestClassify_ParseRetryResubmitsPrompt(t *testing.T) {
	gen := &scriptedGenerator{responses: []Response{
		{Text: "not json at all"},
		{Text: `{"value": "ok"}`},
	}}
	client := newTestClient(gen)

	var out echoPayload
	err := client.Classify(context.Background(), "sys", "user", 1, &out)

	require.NoError(t, err)
	assert.Equal(t, "ok", out.Value)
	assert.Equal(t, 2, gen.calls)
}

func TestClassify_ShapeFailureRetriesThenFatal(t *testing.T) {
	// Parses as JSON but fails Validate every time.
	gen := &scriptedGenerator{responses: []Response{
		{Text: `{"value": ""}`},
	}}
	client := newTestClient(gen)

	var out echoPayload
	err := client.Classify(context.Background(), "sys", "user", 1, &out)

	require.Error(t, err)
	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, 3, gen.calls)
}

func TestClassify_MarkdownFencedResponse(t *testing.T) {
	gen := &scriptedGenerator{responses: []Response{
		{Text: "```json\n{\"value\": \"fenced\"}\n```"},
	}}
	client := newTestClient(gen)

	var out echoPayload
	err := client.Classify(context.Background(), "sys", "user", 1, &out)

	require.NoError(t, err)
	assert.Equal(t, "fenced", out.Value)
}

func TestClassify_UsageNotRecordedOnFailure(t *testing.T) {
	gen := &scriptedGenerator{
		responses: []Response{{}},
		errs:      []error{&TransportError{Status: 400, Err: errors.New("bad request"), Retryable: false}},
	}
	client := newTestClient(gen)

	var out echoPayload
	err := client.Classify(context.Background(), "sys", "user", 1, &out)

	require.Error(t, err)
	_, calls := client.Usage().Totals()
	assert.Equal(t, 0, calls)
}
