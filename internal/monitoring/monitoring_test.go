package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"CryptoNewsAnalyzer/internal/domain"
	"CryptoNewsAnalyzer/internal/usecase"
)

type stubStore struct {
	healthy  bool
	statsErr error
}

func (s stubStore) FetchUnprocessed(context.Context, time.Duration, int) ([]domain.Post, int, error) {
	return nil, 0, nil
}
func (s stubStore) Claim(context.Context, []int64) ([]int64, error) { return nil, nil }
func (s stubStore) Persist(context.Context, []domain.Pair) error    { return nil }
func (s stubStore) Prune(context.Context, int) (int64, error)       { return 0, nil }
func (s stubStore) Healthcheck(context.Context) bool                { return s.healthy }

func (s stubStore) ReleaseStale(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (s stubStore) AggregateStatistics(context.Context, time.Duration) (domain.CategoryStats, error) {
	if s.statsErr != nil {
		return domain.CategoryStats{}, s.statsErr
	}
	return domain.CategoryStats{Total: 12, Valuable: 5, Spam: 3}, nil
}

type stubClassifier bool

func (s stubClassifier) Classify(context.Context, []domain.Post) ([]domain.Classification, error) {
	return nil, nil
}
func (s stubClassifier) TestConnection(context.Context) bool { return bool(s) }

type stubChat struct{ err error }

func (s stubChat) Identity(context.Context) (string, error) { return "analyzer_bot", s.err }
func (s stubChat) SendTest(context.Context) bool            { return s.err == nil }

var fixedNow = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestWorst(t *testing.T) {
	t.Parallel()

	if worst() != StatusHealthy {
		t.Fatal("empty set must be healthy")
	}
	if worst(StatusHealthy, StatusDegraded) != StatusDegraded {
		t.Fatal("degraded must win over healthy")
	}
	if worst(StatusDegraded, StatusCritical, StatusHealthy) != StatusCritical {
		t.Fatal("critical must win")
	}
}

func TestHistoryKeepsNewest(t *testing.T) {
	t.Parallel()

	h := NewHistory(3)
	if _, ok := h.Last(); ok {
		t.Fatal("empty history has no last run")
	}
	for i := 0; i < 5; i++ {
		h.Record(usecase.RunReport{RunID: string(rune('a' + i)), Stats: domain.RunStats{Errors: 1}})
	}
	recent := h.Recent()
	if len(recent) != 3 || recent[0].RunID != "e" || recent[2].RunID != "c" {
		t.Fatalf("recent = %+v", recent)
	}
	if last, _ := h.Last(); last.RunID != "e" {
		t.Fatalf("last = %s", last.RunID)
	}
	if h.Errors() != 3 {
		t.Fatalf("errors = %d", h.Errors())
	}
}

func TestBuildHealthy(t *testing.T) {
	t.Parallel()

	h := NewHistory(5)
	h.Record(usecase.RunReport{RunID: "r1", Status: usecase.StatusCompleted})
	r := NewReporter(ReporterDeps{
		Store:      stubStore{healthy: true},
		Classifier: stubClassifier(true),
		Chat:       stubChat{},
		History:    h,
		Now:        fixedNow,
	})

	report := r.Build(context.Background())
	if report.OverallStatus != StatusHealthy {
		t.Fatalf("status = %s, components %+v", report.OverallStatus, report.Components)
	}
	if report.RecentStats == nil || report.RecentStats.Total != 12 {
		t.Fatalf("recent stats = %+v", report.RecentStats)
	}
	if report.LastRun == nil || report.LastRun.RunID != "r1" {
		t.Fatalf("last run = %+v", report.LastRun)
	}
	if len(report.RecentRuns) != 1 || report.RecentRuns[0].RunID != "r1" {
		t.Fatalf("recent runs = %+v", report.RecentRuns)
	}
	if report.Components["telegram"].Detail != "@analyzer_bot" {
		t.Fatalf("telegram = %+v", report.Components["telegram"])
	}
	if !report.Timestamp.Equal(fixedNow()) {
		t.Fatalf("timestamp = %v", report.Timestamp)
	}
}

func TestBuildStatusLevels(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		deps ReporterDeps
		want Status
	}{
		{"database down", ReporterDeps{Store: stubStore{}, Classifier: stubClassifier(true), Chat: stubChat{}}, StatusCritical},
		{"classifier down", ReporterDeps{Store: stubStore{healthy: true}, Classifier: stubClassifier(false), Chat: stubChat{}}, StatusCritical},
		{"telegram down", ReporterDeps{Store: stubStore{healthy: true}, Classifier: stubClassifier(true), Chat: stubChat{err: errors.New("401")}}, StatusDegraded},
		{"stats failing", ReporterDeps{Store: stubStore{healthy: true, statsErr: errors.New("boom")}, Classifier: stubClassifier(true), Chat: stubChat{}}, StatusDegraded},
		{"nothing configured", ReporterDeps{}, StatusCritical},
	}
	for _, tc := range cases {
		if got := NewReporter(tc.deps).Build(context.Background()).OverallStatus; got != tc.want {
			t.Fatalf("%s: status = %s, want %s", tc.name, got, tc.want)
		}
	}

	h := NewHistory(2)
	h.Record(usecase.RunReport{Status: usecase.StatusFailed, Stats: domain.RunStats{Errors: 1}})
	report := NewReporter(ReporterDeps{
		Store: stubStore{healthy: true}, Classifier: stubClassifier(true), Chat: stubChat{}, History: h,
	}).Build(context.Background())
	if report.OverallStatus != StatusDegraded || report.RecentErrors != 1 {
		t.Fatalf("failed last run must degrade: %+v", report)
	}
}

func TestServerEndpoints(t *testing.T) {
	t.Parallel()

	healthy := NewServer(":0", NewReporter(ReporterDeps{
		Store: stubStore{healthy: true}, Classifier: stubClassifier(true), Chat: stubChat{}, Now: fixedNow,
	}), nil)
	srv := httptest.NewServer(healthy.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/report")
	if err != nil {
		t.Fatalf("GET /report: %v", err)
	}
	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	resp.Body.Close()
	if report.OverallStatus != StatusHealthy || len(report.Components) != 3 {
		t.Fatalf("report = %+v", report)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		t.Fatalf("metrics status = %d type = %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestHealthReportsCritical(t *testing.T) {
	t.Parallel()

	s := NewServer(":0", NewReporter(ReporterDeps{Store: stubStore{}}), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"critical"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
