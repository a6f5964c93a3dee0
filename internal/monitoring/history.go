package monitoring

import (
	"sync"

	"CryptoNewsAnalyzer/internal/usecase"
)

const defaultHistorySize = 20

// History keeps the most recent run reports in memory.
type History struct {
	mu      sync.RWMutex
	size    int
	reports []usecase.RunReport
}

// NewHistory returns a history holding at most size reports.
func NewHistory(size int) *History {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &History{size: size}
}

// Record appends a report, dropping the oldest when full. It has the pipeline observer signature.
func (h *History) Record(report usecase.RunReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.reports) == h.size {
		copy(h.reports, h.reports[1:])
		h.reports = h.reports[:h.size-1]
	}
	h.reports = append(h.reports, report)
}

// Last returns the newest report.
func (h *History) Last() (usecase.RunReport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.reports) == 0 {
		return usecase.RunReport{}, false
	}
	return h.reports[len(h.reports)-1], true
}

// Recent returns reports newest first.
func (h *History) Recent() []usecase.RunReport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]usecase.RunReport, len(h.reports))
	for i, r := range h.reports {
		out[len(h.reports)-1-i] = r
	}
	return out
}

// Errors counts failed runs plus per-run error counters.
func (h *History) Errors() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, r := range h.reports {
		total += r.Stats.Errors
	}
	return total
}
