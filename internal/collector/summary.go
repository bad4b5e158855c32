package collector

import (
	"sort"
	"time"

	"jobradar/internal/quota"
)

// SourceSummary counts what one source contributed to a cycle.
type SourceSummary struct {
	Source        string         `json:"source"`
	Specs         int            `json:"specs"`
	Skipped       int            `json:"skipped"`
	Requested     int            `json:"requested"`
	Returned      int            `json:"returned"`
	Accepted      int            `json:"accepted"`
	Duplicates    int            `json:"duplicates"`
	Rejected      int            `json:"rejected"`
	RejectReasons map[string]int `json:"reject_reasons,omitempty"`
	Failures      int            `json:"failures"`
	RateLimited   bool           `json:"rate_limited"`
	Exhausted     bool           `json:"quota_exhausted"`
	Errors        []string       `json:"errors,omitempty"`
}

// Summary is the outcome of one RunCycle call.
type Summary struct {
	RunID      string          `json:"run_id"`
	Window     string          `json:"window,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Sources    []SourceSummary `json:"sources"`

	Requested  int `json:"requested"`
	Returned   int `json:"returned"`
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`

	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Stale    int `json:"stale"`

	Cancelled bool           `json:"cancelled"`
	Quota     []quota.Record `json:"quota,omitempty"`
}

// Source returns the per-source entry, or a zero value when the source took no part.
func (s Summary) Source(name string) SourceSummary {
	for _, ss := range s.Sources {
		if ss.Source == name {
			return ss
		}
	}
	return SourceSummary{Source: name}
}

// DuplicateRate is the share of returned listings that repeated a dedup key
// already seen in the cycle.
func (s Summary) DuplicateRate() float64 {
	if s.Returned == 0 {
		return 0
	}
	return float64(s.Duplicates) / float64(s.Returned)
}

func (s *Summary) setSources(m map[string]*SourceSummary) {
	s.Sources = make([]SourceSummary, 0, len(m))
	s.Requested, s.Returned, s.Accepted, s.Duplicates, s.Rejected = 0, 0, 0, 0, 0
	for _, ss := range m {
		s.Sources = append(s.Sources, *ss)
		s.Requested += ss.Requested
		s.Returned += ss.Returned
		s.Accepted += ss.Accepted
		s.Duplicates += ss.Duplicates
		s.Rejected += ss.Rejected
	}
	sort.Slice(s.Sources, func(i, j int) bool { return s.Sources[i].Source < s.Sources[j].Source })
}

// NewRunID formats a run identifier as YYYYMMDD_HHMMSS_<identifier>.
func NewRunID(now time.Time, identifier string) string {
	if identifier == "" {
		identifier = "default"
	}
	return now.UTC().Format("20060102_150405") + "_" + identifier
}
