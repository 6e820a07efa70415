package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/helmsman-ai/helmsman/internal/types"
)

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want ErrorKind
	}{
		{"empty", "", KindUnknown},
		{"nonsense", "something completely different", KindUnknown},

		{"openai context", "This model's maximum context length is 128000 tokens", KindContextTooLong},
		{"anthropic context", "prompt is too long: 250000 tokens > 200000 maximum", KindContextTooLong},
		{"code context", "error code context_length_exceeded", KindContextTooLong},

		{"429 status", "status code 429", KindRateLimited},
		{"rate limit words", "Rate limit reached for gpt-4o", KindRateLimited},
		{"quota", "You exceeded your current quota", KindRateLimited},
		{"google exhausted", "RESOURCE_EXHAUSTED: quota metric", KindRateLimited},

		{"content filter", "The response was filtered due to the prompt triggering Azure's content management policy", KindContentRejected},
		{"moderation", "request rejected by moderation", KindContentRejected},

		{"401", "status 401 Unauthorized", KindProviderUnavailable},
		{"bad key", "Incorrect API key provided", KindProviderUnavailable},
		{"model missing", "The model `gpt-9` does not exist or you do not have access to it", KindProviderUnavailable},
		{"azure deployment", "deployment not found", KindProviderUnavailable},

		{"timeout", "context deadline exceeded (Client.Timeout exceeded)", KindTransientProvider},
		{"504", "504 Gateway Timeout", KindTransientProvider},
		{"overloaded", "Anthropic is overloaded", KindTransientProvider},
		{"500", "500 Internal Server Error", KindTransientProvider},
		{"conn refused", "dial tcp 127.0.0.1:11434: connection refused", KindTransientProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyMessage(tt.msg); got != tt.want {
				t.Errorf("ClassifyMessage(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	typed := &Error{Kind: KindBillingIntegrity}
	if got := KindOf(typed); got != KindBillingIntegrity {
		t.Errorf("KindOf(typed) = %v, want billing_integrity", got)
	}

	wrapped := fmt.Errorf("call failed: %w", typed)
	if got := KindOf(wrapped); got != KindBillingIntegrity {
		t.Errorf("KindOf(wrapped) = %v, want billing_integrity", got)
	}

	if got := KindOf(context.Canceled); got != KindCancelled {
		t.Errorf("KindOf(context.Canceled) = %v, want cancelled", got)
	}
	if got := KindOf(context.DeadlineExceeded); got != KindCancelled {
		t.Errorf("KindOf(context.DeadlineExceeded) = %v, want cancelled", got)
	}

	if got := KindOf(errors.New("429 too many requests")); got != KindRateLimited {
		t.Errorf("KindOf(untyped 429) = %v, want rate_limited", got)
	}
}

func TestRetryPolicy(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		same     bool
		next     bool
		terminal bool
	}{
		{KindTransientProvider, true, false, false},
		{KindRateLimited, true, false, false},
		{KindProviderUnavailable, false, true, false},
		{KindContentRejected, false, true, false},
		{KindContextTooLong, false, true, false},
		{KindUnknown, false, true, false},
		{KindBillingIntegrity, false, false, true},
		{KindNoCandidate, false, false, true},
		{KindCancelled, false, false, true},
		{KindToolExecution, false, false, true},
		{KindIterationLimit, false, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := RetrySameModel(tt.kind); got != tt.same {
				t.Errorf("RetrySameModel(%s) = %v, want %v", tt.kind, got, tt.same)
			}
			if got := RetryNextModel(tt.kind); got != tt.next {
				t.Errorf("RetryNextModel(%s) = %v, want %v", tt.kind, got, tt.next)
			}
			if got := Terminal(tt.kind); got != tt.terminal {
				t.Errorf("Terminal(%s) = %v, want %v", tt.kind, got, tt.terminal)
			}
		})
	}
}

func TestClassifyPreservesTyped(t *testing.T) {
	orig := &Error{Kind: KindRateLimited, Provider: types.ProviderOpenAI}
	if got := Classify(orig, types.ProviderAnthropic, "x"); got != error(orig) {
		t.Errorf("Classify should pass typed errors through unchanged")
	}

	wrapped := Classify(errors.New("401 unauthorized"), types.ProviderOpenAI, "gpt-4o")
	var typed *Error
	if !errors.As(wrapped, &typed) {
		t.Fatalf("Classify did not produce a typed error: %v", wrapped)
	}
	if typed.Kind != KindProviderUnavailable || typed.Provider != types.ProviderOpenAI || typed.Model != "gpt-4o" {
		t.Errorf("Classify = %+v, want provider_unavailable/openai/gpt-4o", typed)
	}
	if typed.Remediation == "" {
		t.Errorf("auth failure should carry remediation")
	}
}

func TestErrorStringNeverEmpty(t *testing.T) {
	e := &Error{Kind: KindUnknown}
	if e.Error() == "" {
		t.Errorf("Error() must not be empty")
	}
	full := &Error{
		Kind: KindRateLimited, Provider: types.ProviderXAI, Model: "grok-4",
		Attempts: 3, Err: errors.New("429"), Remediation: "wait",
	}
	msg := full.Error()
	for _, want := range []string{"rate_limited", "xai", "grok-4", "attempts=3", "429", "wait"} {
		if !containsStr(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func containsStr(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
