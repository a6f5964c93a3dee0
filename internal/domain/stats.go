package domain

import "time"

// RunStats aggregates one pipeline execution. It is never persisted.
type RunStats struct {
	Found     int           `json:"found"`
	Total     int           `json:"total_matching"`
	Processed int           `json:"processed"`
	Valuable  int           `json:"valuable"`
	Spam      int           `json:"spam"`
	Flood     int           `json:"flood"`
	Duplicate int           `json:"duplicate"`
	Published int           `json:"published_messages"`
	Errors    int           `json:"errors"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Observe counts classified pairs into the statistics.
func (s *RunStats) Observe(pairs []Pair) {
	for _, p := range pairs {
		s.Processed++
		switch p.Classification.Category {
		case CategorySpam:
			s.Spam++
		case CategoryFlood:
			s.Flood++
		case CategoryAlreadyPosted:
			s.Duplicate++
		}
		if p.Classification.IsValuable() {
			s.Valuable++
		}
	}
}

// SuccessRate is the processed share of found posts, in percent.
func (s RunStats) SuccessRate() float64 {
	if s.Found == 0 {
		return 0
	}
	return float64(s.Processed) / float64(s.Found) * 100
}

// ValuableRate is the valuable share of processed posts, in percent.
func (s RunStats) ValuableRate() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Valuable) / float64(s.Processed) * 100
}

// CategoryStats is a read-only aggregation over persisted classification records.
type CategoryStats struct {
	ByCategory map[Category]int `json:"by_category"`
	Total      int              `json:"total"`
	Valuable   int              `json:"valuable"`
	Spam       int              `json:"spam"`
	Flood      int              `json:"flood"`
	Duplicate  int              `json:"duplicate"`
}

// PublishResult summarises one publish operation.
type PublishResult struct {
	Messages int `json:"messages"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
}
