package retry

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 5 * time.Second
)

type backoff struct {
	multiplier float64
	max        time.Duration
}

// backoffs scales the base delay per category; categories not listed wait
// the base delay.
var backoffs = map[Category]backoff{
	CategoryDNS:                  {multiplier: 2, max: 30 * time.Second},
	CategoryPartialDownload:      {multiplier: 0.5, max: 3 * time.Second},
	CategoryDownloadInterruption: {multiplier: 0.5, max: 3 * time.Second},
	CategoryServerError:          {multiplier: 1.5, max: 20 * time.Second},
}

// Policy decides whether a failed attempt is retried and how long the caller
// should wait first. It performs no I/O and never sleeps.
type Policy struct {
	MaxRetries        int
	BaseDelay         time.Duration
	RetryUnclassified bool
}

// DefaultPolicy returns the stock retry limits.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay}
}

// Decision is the outcome of evaluating one failed attempt.
type Decision struct {
	Retry      bool
	Delay      time.Duration
	Category   Category
	Attempt    int
	MaxRetries int
	Message    string
}

// GiveUp reports whether the decision ends the job.
func (d Decision) GiveUp() bool { return !d.Retry }

func (d Decision) String() string {
	if d.Retry {
		return fmt.Sprintf("retry in %s (%s, attempt %d/%d)", d.Delay, d.Category, d.Attempt, d.MaxRetries)
	}
	return fmt.Sprintf("give up (%s, attempt %d/%d)", d.Category, d.Attempt, d.MaxRetries)
}

// Retryable reports whether failures in category are worth another attempt.
func (p Policy) Retryable(category Category) bool {
	return category != CategoryUnknown || p.RetryUnclassified
}

// Delay returns the wait before retrying a failure in category.
func (p Policy) Delay(category Category) time.Duration {
	base := p.BaseDelay
	if base < 0 {
		base = 0
	}
	b, ok := backoffs[category]
	if !ok {
		return base
	}
	delay := time.Duration(float64(base) * b.multiplier)
	if delay > b.max {
		delay = b.max
	}
	return delay
}

// Decide evaluates the attempt-th consecutive failure (1-based) in category.
// Attempts below MaxRetries are retried; the attempt that reaches MaxRetries
// gives up with a category-specific explanation of err.
func (p Policy) Decide(category Category, attempt int, err error) Decision {
	decision := Decision{
		Category:   category,
		Attempt:    attempt,
		MaxRetries: p.MaxRetries,
	}
	if !p.Retryable(category) {
		decision.Message = unclassifiedMessage(err)
		return decision
	}
	if attempt < p.MaxRetries {
		decision.Retry = true
		decision.Delay = p.Delay(category)
		return decision
	}
	decision.Message = Explain(category, err)
	return decision
}

func unclassifiedMessage(err error) string {
	if err == nil {
		return "Download failed"
	}
	text := strings.TrimSpace(err.Error())
	if text == "" {
		return "Download failed"
	}
	return "Download failed: " + text
}
