package retry_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"mediafetch/internal/retry"
)

func TestPolicyDelayPerCategory(t *testing.T) {
	policy := retry.Policy{MaxRetries: 3, BaseDelay: 5 * time.Second}
	tests := []struct {
		category retry.Category
		want     time.Duration
	}{
		{retry.CategoryDNS, 10 * time.Second},
		{retry.CategoryPartialDownload, 2500 * time.Millisecond},
		{retry.CategoryDownloadInterruption, 2500 * time.Millisecond},
		{retry.CategoryServerError, 7500 * time.Millisecond},
		{retry.CategoryConnection, 5 * time.Second},
		{retry.CategoryNetworkUnreachable, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := policy.Delay(tt.category); got != tt.want {
			t.Fatalf("Delay(%s) = %s, want %s", tt.category, got, tt.want)
		}
	}
}

func TestPolicyDelayClamps(t *testing.T) {
	policy := retry.Policy{MaxRetries: 3, BaseDelay: time.Minute}
	if got := policy.Delay(retry.CategoryDNS); got != 30*time.Second {
		t.Fatalf("expected DNS delay clamped to 30s, got %s", got)
	}
	if got := policy.Delay(retry.CategoryPartialDownload); got != 3*time.Second {
		t.Fatalf("expected partial delay clamped to 3s, got %s", got)
	}
	if got := policy.Delay(retry.CategoryServerError); got != 20*time.Second {
		t.Fatalf("expected server delay clamped to 20s, got %s", got)
	}
}

func TestPolicyDecideRetriesUntilMax(t *testing.T) {
	policy := retry.DefaultPolicy()
	cause := errors.New("HTTP Error 503")
	for attempt := 1; attempt < policy.MaxRetries; attempt++ {
		decision := policy.Decide(retry.CategoryServerError, attempt, cause)
		if !decision.Retry {
			t.Fatalf("attempt %d: expected retry, got %s", attempt, decision)
		}
		if decision.Delay <= 0 {
			t.Fatalf("attempt %d: expected positive delay", attempt)
		}
	}
	final := policy.Decide(retry.CategoryServerError, policy.MaxRetries, cause)
	if !final.GiveUp() {
		t.Fatalf("expected give up on attempt %d", policy.MaxRetries)
	}
	if !strings.Contains(final.Message, "Network error after multiple retries") {
		t.Fatalf("unexpected give-up message %q", final.Message)
	}
}

func TestPolicyUnclassifiedIsNotRetried(t *testing.T) {
	policy := retry.DefaultPolicy()
	decision := policy.Decide(retry.CategoryUnknown, 1, errors.New("Video unavailable"))
	if decision.Retry {
		t.Fatal("expected unclassified failure to give up immediately")
	}
	if decision.Message != "Download failed: Video unavailable" {
		t.Fatalf("unexpected message %q", decision.Message)
	}

	policy.RetryUnclassified = true
	if !policy.Decide(retry.CategoryUnknown, 1, errors.New("x")).Retry {
		t.Fatal("expected retry when unclassified retries are enabled")
	}
	exhausted := policy.Decide(retry.CategoryUnknown, policy.MaxRetries, errors.New("boom"))
	if exhausted.Message != "Network error after multiple retries: boom" {
		t.Fatalf("unexpected exhausted message %q", exhausted.Message)
	}
}

func TestExplainIsCategorySpecific(t *testing.T) {
	seen := map[string]retry.Category{}
	for _, category := range retry.Categories {
		if category == retry.CategoryUnknown {
			continue
		}
		msg := retry.Explain(category, errors.New("cause"))
		if msg == "" {
			t.Fatalf("empty explanation for %s", category)
		}
		if other, dup := seen[msg]; dup {
			t.Fatalf("categories %s and %s share an explanation", category, other)
		}
		seen[msg] = category
	}
	if !strings.Contains(retry.Explain(retry.CategoryDNS, nil), "DNS resolution failed") {
		t.Fatal("expected DNS guidance")
	}
}
