// Package retry describes fixed-delay reconnect policies.
package retry

import (
	"fmt"
	"strconv"
	"time"
)

// Unlimited is the MaxAttempts value that never exhausts.
const Unlimited = 0

// Policy is a fixed-delay retry policy. There is no backoff growth: every attempt waits Interval.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int // 0 = unlimited
}

// Validate rejects policies that could spin or never fire.
func (p Policy) Validate() error {
	if p.Interval <= 0 {
		return fmt.Errorf("retry interval must be positive, got %v", p.Interval)
	}
	if p.MaxAttempts < 0 {
		return fmt.Errorf("retry max attempts must be >= 0, got %d", p.MaxAttempts)
	}
	return nil
}

// IsUnlimited reports whether attempts are never exhausted.
func (p Policy) IsUnlimited() bool {
	return p.MaxAttempts == Unlimited
}

// Exhausted reports whether no further attempt may be scheduled after `attempts` have been made.
func (p Policy) Exhausted(attempts int) bool {
	return !p.IsUnlimited() && attempts >= p.MaxAttempts
}

// MaxLabel renders the limit for log lines ("3", "unlimited").
func (p Policy) MaxLabel() string {
	if p.IsUnlimited() {
		return "unlimited"
	}
	return strconv.Itoa(p.MaxAttempts)
}
