// Package retry implements a bounded exponential-backoff state machine.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Policy defines the attempt budget and backoff curve.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy gives 3 attempts with 1s, 2s between them.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    30 * time.Second,
}

// Delay returns base * 2^attempt, capped at MaxDelay. attempt is zero based.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Machine is the retry state for a single call.
type Machine struct {
	policy  Policy
	attempt int
	last    error
	done    bool
}

// NewMachine starts a machine with no attempts recorded.
func NewMachine(p Policy) *Machine {
	return &Machine{policy: p}
}

// Attempts is the number of finished attempts.
func (m *Machine) Attempts() int { return m.attempt }

// Last is the most recent failure.
func (m *Machine) Last() error { return m.last }

// Done reports whether the machine reached a terminal state.
func (m *Machine) Done() bool { return m.done }

// Next records a failed attempt and decides whether to go again.
// When another attempt is allowed it returns the delay to wait first.
func (m *Machine) Next(err error, retryable bool) (time.Duration, bool) {
	m.attempt++
	m.last = err
	if !retryable || m.attempt >= m.policy.attempts() {
		m.done = true
		return 0, false
	}
	return m.policy.Delay(m.attempt - 1), true
}

// Succeed marks the machine terminal after a successful attempt.
func (m *Machine) Succeed() {
	m.attempt++
	m.last = nil
	m.done = true
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleeper is the production sleeper.
func ContextSleeper(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Exhausted is returned by Do when no attempt succeeded.
type Exhausted struct {
	Attempts int
	Last     error
}

func (e *Exhausted) Error() string {
	return fmt.Sprintf("failed after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *Exhausted) Unwrap() error { return e.Last }

// Do runs op until it succeeds, the policy is spent, or isRetryable rejects the error.
// op receives the zero based attempt number.
func Do(ctx context.Context, p Policy, sleep Sleeper, isRetryable func(error) bool, op func(ctx context.Context, attempt int) error) error {
	if sleep == nil {
		sleep = ContextSleeper
	}
	m := NewMachine(p)
	for {
		err := op(ctx, m.Attempts())
		if err == nil {
			m.Succeed()
			return nil
		}

		retryable := isRetryable == nil || isRetryable(err)
		delay, _ := m.Next(err, retryable)
		if m.Done() {
			return &Exhausted{Attempts: m.Attempts(), Last: m.Last()}
		}

		if err := sleep(ctx, delay); err != nil {
			return &Exhausted{Attempts: m.Attempts(), Last: fmt.Errorf("%w (interrupted: %v)", m.Last(), err)}
		}
	}
}
