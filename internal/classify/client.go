// Package classify turns ambiguous merchant and line-item data into category
// decisions via a batched, cached, retry-hardened call to a text-generation
// service.
//
// Two independent retry layers compose around every call: a transport layer
// that absorbs rate limits and server errors, and a parse layer that absorbs
// the sampling variance of structured output. Truncated output is fatal on
// first sight — resubmitting the same batch reproduces the same truncation.
package classify

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Response is one raw completion from the text-generation service.
type Response struct {
	Text      string
	Truncated bool
	Usage     Usage
}

// TextGenerator is the black-box text-generation collaborator. Transport
// failures must be reported as *TransportError so the client can tell
// retryable conditions from fatal ones.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (Response, error)
}

// Validator is implemented by response payloads that can check their own
// shape after decoding.
type Validator interface {
	Validate() error
}

// Client is the retry-hardened classification client.
type Client struct {
	gen       TextGenerator
	usage     *UsageTracker
	transport RetryPolicy
	parse     RetryPolicy
	logger    *slog.Logger
}

// NewClient creates a client with the default retry policies.
func NewClient(gen TextGenerator, usage *UsageTracker, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if usage == nil {
		usage = NewUsageTracker()
	}
	return &Client{
		gen:       gen,
		usage:     usage,
		transport: DefaultTransportPolicy(),
		parse:     DefaultParsePolicy(),
		logger:    logger,
	}
}

// WithPolicies overrides both retry policies; used by tests to shrink delays.
func (c *Client) WithPolicies(transport, parse RetryPolicy) *Client {
	c.transport = transport
	c.parse = parse
	return c
}

// Usage exposes the running token totals for cost reporting.
func (c *Client) Usage() *UsageTracker {
	return c.usage
}

// Classify sends the prompt, decodes the response into out, and validates
// its shape. batchSize is only used to phrase the truncation error.
//
// The parse retry wraps the transport-retried call, so a parse failure
// resubmits the prompt through a fresh transport loop while each layer keeps
// its own attempt budget.
func (c *Client) Classify(ctx context.Context, systemPrompt, userPrompt string, batchSize int, out Validator) error {
	return withRetry(ctx, c.parse, c.logger, isParseRetryable, func() error {
		resp, err := c.generateWithRetry(ctx, systemPrompt, userPrompt, batchSize)
		if err != nil {
			return err
		}
		return decodeResponse(resp.Text, out)
	})
}

// generateWithRetry is the transport-retrying inner call.
func (c *Client) generateWithRetry(ctx context.Context, systemPrompt, userPrompt string, batchSize int) (Response, error) {
	var resp Response

	err := withRetry(ctx, c.transport, c.logger, IsRetryableTransport, func() error {
		var genErr error
		resp, genErr = c.gen.Generate(ctx, systemPrompt, userPrompt)
		if genErr != nil {
			return genErr
		}
		if resp.Truncated {
			return &TruncatedError{BatchSize: batchSize}
		}
		return nil
	})
	if err != nil {
		return Response{}, err
	}

	c.usage.Record(resp.Usage)
	return resp, nil
}

// decodeResponse extracts, parses, and shape-checks the structured payload.
// Every failure mode here is a *ParseError so the outer retry loop can see it.
func decodeResponse(text string, out Validator) error {
	payload, err := ExtractJSON(text)
	if err != nil {
		return &ParseError{Err: err}
	}

	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return &ParseError{Err: err}
	}

	if err := out.Validate(); err != nil {
		return &ParseError{Err: err}
	}

	return nil
}
