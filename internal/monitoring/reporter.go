package monitoring

import (
	"context"
	"log/slog"
	"time"

	"CryptoNewsAnalyzer/internal/domain"
	"CryptoNewsAnalyzer/internal/logging"
	"CryptoNewsAnalyzer/internal/ports"
	"CryptoNewsAnalyzer/internal/usecase"
)

// Status is a component or overall health level.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

func (s Status) rank() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusDegraded:
		return 1
	}
	return 0
}

func worst(statuses ...Status) Status {
	out := StatusHealthy
	for _, s := range statuses {
		if s.rank() > out.rank() {
			out = s
		}
	}
	return out
}

// Component is the health of one dependency.
type Component struct {
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Report is the operator view of the system.
type Report struct {
	Timestamp     time.Time             `json:"timestamp"`
	OverallStatus Status                `json:"overall_status"`
	Components    map[string]Component  `json:"components"`
	RecentStats   *domain.CategoryStats `json:"recent_stats,omitempty"`
	LastRun       *usecase.RunReport    `json:"last_run,omitempty"`
	RecentRuns    []usecase.RunReport   `json:"recent_runs,omitempty"`
	RecentErrors  int                   `json:"recent_errors"`
}

// ReporterDeps are the probes the reporter consults. Any of them may be nil.
type ReporterDeps struct {
	Store       ports.PostStore
	Classifier  ports.Classifier
	Chat        ports.ChatProbe
	History     *History
	StatsWindow time.Duration
	Timeout     time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

// Reporter builds health reports on demand.
type Reporter struct {
	deps   ReporterDeps
	logger *slog.Logger
}

// NewReporter applies defaults to deps.
func NewReporter(deps ReporterDeps) *Reporter {
	if deps.StatsWindow <= 0 {
		deps.StatsWindow = 24 * time.Hour
	}
	if deps.Timeout <= 0 {
		deps.Timeout = 15 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	return &Reporter{deps: deps, logger: deps.Logger.With("component", "monitoring")}
}

// Build probes every component and assembles a report.
func (r *Reporter) Build(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, r.deps.Timeout)
	defer cancel()

	report := Report{
		Timestamp:  r.deps.Now().UTC(),
		Components: make(map[string]Component, 3),
	}

	report.Components["database"] = r.database(ctx, &report)
	report.Components["classifier"] = r.classifier(ctx)
	report.Components["telegram"] = r.telegram(ctx)

	runStatus := StatusHealthy
	if h := r.deps.History; h != nil {
		if last, ok := h.Last(); ok {
			report.LastRun = &last
			if last.Status == usecase.StatusFailed {
				runStatus = StatusDegraded
			}
		}
		report.RecentRuns = h.Recent()
		report.RecentErrors = h.Errors()
	}

	statuses := []Status{runStatus}
	for _, c := range report.Components {
		statuses = append(statuses, c.Status)
	}
	report.OverallStatus = worst(statuses...)
	r.logger.Debug("report built", "status", report.OverallStatus)
	return report
}

func (r *Reporter) database(ctx context.Context, report *Report) Component {
	if r.deps.Store == nil {
		return Component{Status: StatusCritical, Detail: "not configured"}
	}
	if !r.deps.Store.Healthcheck(ctx) {
		return Component{Status: StatusCritical, Detail: "unreachable"}
	}
	stats, err := r.deps.Store.AggregateStatistics(ctx, r.deps.StatsWindow)
	if err != nil {
		r.logger.Warn("statistics unavailable", "error", err)
		return Component{Status: StatusDegraded, Detail: "statistics unavailable"}
	}
	report.RecentStats = &stats
	return Component{Status: StatusHealthy}
}

func (r *Reporter) classifier(ctx context.Context) Component {
	if r.deps.Classifier == nil {
		return Component{Status: StatusCritical, Detail: "not configured"}
	}
	if !r.deps.Classifier.TestConnection(ctx) {
		return Component{Status: StatusCritical, Detail: "probe failed"}
	}
	return Component{Status: StatusHealthy}
}

// Telegram problems degrade the report but never make it critical.
func (r *Reporter) telegram(ctx context.Context) Component {
	if r.deps.Chat == nil {
		return Component{Status: StatusDegraded, Detail: "not configured"}
	}
	name, err := r.deps.Chat.Identity(ctx)
	if err != nil {
		return Component{Status: StatusDegraded, Detail: err.Error()}
	}
	return Component{Status: StatusHealthy, Detail: "@" + name}
}
