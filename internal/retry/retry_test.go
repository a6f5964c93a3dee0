package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestPolicyDelay(t *testing.T) {
	t.Parallel()

	p := Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := p.Delay(i); got != w {
			t.Fatalf("Delay(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	rec := &recordingSleeper{}
	calls := 0
	err := Do(context.Background(), DefaultPolicy, rec.sleep, nil, func(_ context.Context, attempt int) error {
		if attempt != calls {
			t.Fatalf("attempt = %d, calls = %d", attempt, calls)
		}
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(rec.delays) != 2 || rec.delays[0] != time.Second || rec.delays[1] != 2*time.Second {
		t.Fatalf("unexpected delays %v", rec.delays)
	}
}

func TestDoExhausts(t *testing.T) {
	t.Parallel()

	rec := &recordingSleeper{}
	boom := errors.New("boom")
	err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, rec.sleep, nil, func(context.Context, int) error {
		return boom
	})

	var ex *Exhausted
	if !errors.As(err, &ex) {
		t.Fatalf("expected Exhausted, got %v", err)
	}
	if ex.Attempts != 3 || !errors.Is(err, boom) {
		t.Fatalf("unexpected exhausted state: %+v", ex)
	}
	if len(rec.delays) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(rec.delays))
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	rec := &recordingSleeper{}
	permanent := errors.New("unauthorized")
	calls := 0
	err := Do(context.Background(), DefaultPolicy, rec.sleep, func(err error) bool {
		return !errors.Is(err, permanent)
	}, func(context.Context, int) error {
		calls++
		return permanent
	})

	var ex *Exhausted
	if !errors.As(err, &ex) || ex.Attempts != 1 {
		t.Fatalf("expected a single attempt, got %v", err)
	}
	if calls != 1 || len(rec.delays) != 0 {
		t.Fatalf("calls=%d delays=%v", calls, rec.delays)
	}
}

func TestDoHonoursCancelledSleep(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Hour}, ContextSleeper, nil, func(context.Context, int) error {
		calls++
		return errors.New("down")
	})

	var ex *Exhausted
	if !errors.As(err, &ex) || ex.Attempts != 1 || calls != 1 {
		t.Fatalf("expected interruption after first attempt, got %v (calls=%d)", err, calls)
	}
}

func TestMachineTransitions(t *testing.T) {
	t.Parallel()

	m := NewMachine(Policy{MaxAttempts: 2, BaseDelay: time.Second})
	if m.Done() {
		t.Fatal("fresh machine must not be done")
	}
	d, again := m.Next(errors.New("first"), true)
	if !again || d != time.Second {
		t.Fatalf("first failure: delay=%v again=%t", d, again)
	}
	_, again = m.Next(errors.New("second"), true)
	if again || !m.Done() || m.Attempts() != 2 {
		t.Fatalf("machine should be terminal after budget: attempts=%d", m.Attempts())
	}
	if m.Last().Error() != "second" {
		t.Fatalf("last error = %v", m.Last())
	}
}
