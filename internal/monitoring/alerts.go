package monitoring

import (
	"fmt"
	"sort"
	"time"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

const (
	AlertLowCollection     = "low_collection"
	AlertDataQuality       = "data_quality"
	AlertHighDuplicates    = "high_duplicates"
	AlertCollectionStopped = "collection_stopped"
)

type Thresholds struct {
	MinDailyJobs              int     `json:"min_daily_jobs"`
	MaxMissingCompanyRate     float64 `json:"max_missing_company_rate"`
	MaxHoursWithoutCollection int     `json:"max_hours_without_collection"`
	MaxDuplicateRate          float64 `json:"max_duplicate_rate"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinDailyJobs:              100,
		MaxMissingCompanyRate:     0.3,
		MaxHoursWithoutCollection: 6,
		MaxDuplicateRate:          0.1,
	}
}

type Alert struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Evaluate turns metrics into alerts. It is pure so the thresholds can be
// checked without storage.
func Evaluate(m Metrics, t Thresholds, now time.Time) []Alert {
	now = now.UTC()
	day := now.Format("20060102")
	var out []Alert

	if m.TotalJobs < t.MinDailyJobs {
		out = append(out, Alert{
			ID:       "low_collection_" + day,
			Type:     AlertLowCollection,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Daily job collection (%d) below threshold (%d)", m.TotalJobs, t.MinDailyJobs),
			Details:  map[string]any{"actual": m.TotalJobs, "threshold": t.MinDailyJobs},
		})
	}

	if m.TotalJobs > 0 && m.CompanyExtractionRate < 1-t.MaxMissingCompanyRate {
		out = append(out, Alert{
			ID:       "low_company_rate_" + day,
			Type:     AlertDataQuality,
			Severity: SeverityError,
			Message:  fmt.Sprintf("Company extraction rate (%.1f%%) below acceptable level", m.CompanyExtractionRate*100),
			Details:  map[string]any{"actual_rate": m.CompanyExtractionRate, "threshold": 1 - t.MaxMissingCompanyRate},
		})
	}

	if m.DuplicateRate > t.MaxDuplicateRate {
		out = append(out, Alert{
			ID:       "high_duplicates_" + day,
			Type:     AlertHighDuplicates,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Duplicate rate (%.1f%%) exceeds threshold (%.1f%%)", m.DuplicateRate*100, t.MaxDuplicateRate*100),
			Details:  map[string]any{"actual_rate": m.DuplicateRate, "threshold": t.MaxDuplicateRate},
		})
	}

	limit := time.Duration(t.MaxHoursWithoutCollection) * time.Hour
	if m.LastCollectedAt == nil || now.Sub(*m.LastCollectedAt) > limit {
		out = append(out, Alert{
			ID:       "collection_stopped_" + now.Format("20060102_15"),
			Type:     AlertCollectionStopped,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("No jobs collected in the last %d hours", t.MaxHoursWithoutCollection),
			Details:  map[string]any{"hours_without_collection": t.MaxHoursWithoutCollection},
		})
	}

	for i := range out {
		out[i].CreatedAt = now
	}
	return out
}

// Recommendations lists follow-ups for an operator.
func Recommendations(m Metrics, alerts []Alert, t Thresholds) []string {
	var out []string
	if m.TotalJobs > 0 && m.CompanyExtractionRate < 0.8 {
		out = append(out, "Improve company name extraction or the sources that omit it")
	}
	if m.DuplicateRate > t.MaxDuplicateRate {
		out = append(out, "Review search overlap between terms and locations")
	}
	if m.TotalJobs < t.MinDailyJobs {
		out = append(out, "Increase search frequency or expand search terms and locations")
	}

	if len(m.JobsBySite) > 1 {
		sites := append([]SiteCount(nil), m.JobsBySite...)
		sort.SliceStable(sites, func(i, j int) bool { return sites[i].Count > sites[j].Count })
		best, worst := sites[0], sites[len(sites)-1]
		if float64(worst.Count) < float64(best.Count)*0.3 {
			out = append(out, fmt.Sprintf("Investigate %s, it returns far fewer jobs than %s", worst.Site, best.Site))
		}
	}

	for _, a := range alerts {
		if a.Severity == SeverityCritical {
			out = append(out, "Address critical alerts, collection may have stopped")
			break
		}
	}
	return out
}
