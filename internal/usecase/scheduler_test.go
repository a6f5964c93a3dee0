package usecase

import (
	"context"
	"testing"
	"time"
)

type manualDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerPrunesOncePerDay(t *testing.T) {
	t.Parallel()

	h := newHarness(4)
	driver := &manualDriver{}
	s := NewScheduler(driver, h.pipeline(defaultSettings), nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if driver.job == nil {
		t.Fatal("job not registered")
	}

	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{0, 8 * time.Hour, 16 * time.Hour} {
		h.store.pruneDays = 0
		driver.job(start.Add(offset))
		if offset == 0 && h.store.pruneDays != 30 {
			t.Fatal("first tick must prune")
		}
		if offset > 0 && h.store.pruneDays != 0 {
			t.Fatalf("tick at +%v must not prune again", offset)
		}
	}
	driver.job(start.Add(24 * time.Hour))
	if h.store.pruneDays != 30 {
		t.Fatal("prune must run again after a day")
	}
	if len(h.reports) != 4 {
		t.Fatalf("expected 4 runs, got %d", len(h.reports))
	}

	if err := s.Stop(context.Background()); err != nil || !driver.stopped {
		t.Fatalf("Stop: %v stopped=%t", err, driver.stopped)
	}
}

func TestSchedulerWithoutDriver(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil, nil, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
