package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/helmsman-ai/helmsman/internal/types"
)

// ErrorKind categorizes failures for fallback and user messaging decisions.
type ErrorKind string

const (
	KindUnknown             ErrorKind = "unknown"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindTransientProvider   ErrorKind = "transient_provider"
	KindRateLimited         ErrorKind = "rate_limited"
	KindContextTooLong      ErrorKind = "context_too_long"
	KindContentRejected     ErrorKind = "content_rejected"
	KindToolExecution       ErrorKind = "tool_execution"
	KindIterationLimit      ErrorKind = "iteration_limit"
	KindBillingIntegrity    ErrorKind = "billing_integrity"
	KindNoCandidate         ErrorKind = "no_candidate"
	KindCancelled           ErrorKind = "cancelled"
)

// Error is the typed error every public call returns on failure.
// Messages never include raw credentials.
type Error struct {
	Kind        ErrorKind
	Provider    types.Provider
	Model       string
	Attempts    int
	TraceID     string
	Remediation string
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", e.Kind)
	if e.Provider != "" {
		fmt.Fprintf(&b, " provider=%s", e.Provider)
	}
	if e.Model != "" {
		fmt.Fprintf(&b, " model=%s", e.Model)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " attempts=%d", e.Attempts)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Remediation != "" {
		fmt.Fprintf(&b, " (%s)", e.Remediation)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a typed error wrapping a cause.
func E(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

// Ef builds a typed error from a format string.
func Ef(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind from any error, classifying untyped errors by
// message as a last resort.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return ClassifyMessage(err.Error())
}

// RetrySameModel reports whether the kind warrants one retry against the
// same candidate before moving on.
func RetrySameModel(kind ErrorKind) bool {
	return kind == KindTransientProvider || kind == KindRateLimited
}

// RetryNextModel reports whether the kind warrants moving straight to the
// next candidate in the chain.
func RetryNextModel(kind ErrorKind) bool {
	switch kind {
	case KindProviderUnavailable, KindContentRejected, KindContextTooLong, KindUnknown:
		return true
	}
	return false
}

// Terminal reports whether the kind aborts the whole fallback chain.
func Terminal(kind ErrorKind) bool {
	switch kind {
	case KindBillingIntegrity, KindNoCandidate, KindCancelled, KindToolExecution, KindIterationLimit:
		return true
	}
	return false
}

// Classify wraps a raw provider error with the kind inferred from its
// message. Already-typed errors pass through unchanged.
func Classify(err error, provider types.Provider, model string) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	e := &Error{Kind: KindOf(err), Provider: provider, Model: model, Err: err}
	if e.Kind == KindProviderUnavailable {
		e.Remediation = "check provider credentials and endpoint configuration"
	}
	return e
}

// ClassifyMessage determines the error kind from a raw message. Providers
// disagree wildly on error shapes; substring matching is the portable
// denominator. Checked in order of specificity.
func ClassifyMessage(msg string) ErrorKind {
	if msg == "" {
		return KindUnknown
	}
	switch {
	case IsContextOverflowMessage(msg):
		return KindContextTooLong
	case IsRateLimitMessage(msg):
		return KindRateLimited
	case IsContentRejectedMessage(msg):
		return KindContentRejected
	case IsAuthMessage(msg):
		return KindProviderUnavailable
	case IsModelNotFoundMessage(msg):
		return KindProviderUnavailable
	case IsTimeoutMessage(msg):
		return KindTransientProvider
	case IsOverloadedMessage(msg):
		return KindTransientProvider
	case IsServerErrorMessage(msg):
		return KindTransientProvider
	}
	return KindUnknown
}

// IsContextOverflowMessage checks if a message indicates the context window
// was exceeded. Patterns collected across OpenAI, Anthropic, Ollama and
// OpenAI-compatible servers.
func IsContextOverflowMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "context_length_exceeded") ||
		strings.Contains(lower, "context length exceeded") ||
		strings.Contains(lower, "maximum context length") ||
		strings.Contains(lower, "context size has been exceeded") ||
		strings.Contains(lower, "prompt is too long") ||
		strings.Contains(lower, "request_too_large") ||
		strings.Contains(lower, "exceeds model context window") ||
		strings.Contains(lower, "input is too long")
}

// IsRateLimitMessage checks if a message indicates rate limiting or quota
// exhaustion.
func IsRateLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "429") ||
		strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "quota exceeded") ||
		strings.Contains(lower, "exceeded your current quota") ||
		strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "requests per minute")
}

// IsOverloadedMessage checks if a message indicates the service is
// temporarily overloaded.
func IsOverloadedMessage(msg string) bool {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "503") {
		return true
	}
	return strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "server is busy") ||
		strings.Contains(lower, "temporarily unavailable") ||
		strings.Contains(lower, "capacity")
}

// IsServerErrorMessage checks for generic 5xx/network failures.
func IsServerErrorMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "500") ||
		strings.Contains(lower, "502") ||
		strings.Contains(lower, "internal server error") ||
		strings.Contains(lower, "bad gateway") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "eof")
}

// IsAuthMessage checks if a message indicates authentication failure.
func IsAuthMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "401") ||
		strings.Contains(lower, "403") ||
		strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "invalid_api_key") ||
		strings.Contains(lower, "incorrect api key") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "authentication") ||
		strings.Contains(lower, "invalid credentials")
}

// IsModelNotFoundMessage checks if a message indicates the model does not
// exist or is not deployed for this account.
func IsModelNotFoundMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "model_not_found") ||
		strings.Contains(lower, "model not found") ||
		strings.Contains(lower, "does not exist or you do not have access") ||
		strings.Contains(lower, "deployment not found") ||
		strings.Contains(lower, "unknown model")
}

// IsContentRejectedMessage checks if a message indicates a moderation or
// content-policy rejection.
func IsContentRejectedMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "content_filter") ||
		strings.Contains(lower, "content filter") ||
		strings.Contains(lower, "content management policy") ||
		strings.Contains(lower, "content policy") ||
		strings.Contains(lower, "moderation") ||
		strings.Contains(lower, "safety system") ||
		strings.Contains(lower, "blocked by") && strings.Contains(lower, "policy")
}

// IsTimeoutMessage checks if a message indicates a timeout.
func IsTimeoutMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "408") ||
		strings.Contains(lower, "504") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "deadline exceeded")
}
