package classify

import (
	"errors"
	"fmt"
)

var (
	// ErrMaxRetries indicates that all retry attempts have been exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// TransportError is a failure talking to the text-generation service.
// Rate limits, server errors, and overload conditions are retryable;
// everything else is fatal on first sight.
type TransportError struct {
	Err       error
	Status    int
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("text generation failed (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("text generation failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TruncatedError means the service cut the output off at its length limit.
// Retrying with the same inputs reproduces the same truncation, so this is
// always fatal.
type TruncatedError struct {
	BatchSize int
}

func (e *TruncatedError) Error() string {
	if e.BatchSize > 0 {
		return fmt.Sprintf("response truncated by length limit with %d items in the batch: reduce the batch size and retry", e.BatchSize)
	}
	return "response truncated by length limit: reduce the batch size and retry"
}

// ParseError is a syntax or shape failure in the returned text. These are
// usually sampling variance and succeed on resubmission, so they get a small
// retry budget of their own.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable classification response: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsRetryableTransport reports whether err should re-enter the transport
// retry loop.
func IsRetryableTransport(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// RetryableStatus reports whether an HTTP status from the service is
// transient: 429 and the 5xx family.
func RetryableStatus(status int) bool {
	return status == 429 || (status >= 500 && status < 600)
}
