package job

import "strings"

// Filters are conjunctive, case-insensitive substring constraints. Empty
// fields impose nothing.
type Filters struct {
	Location string `json:"location,omitempty"`
	JobType  string `json:"job_type,omitempty"`
	Company  string `json:"company,omitempty"`
}

func (f Filters) Normalized() Filters {
	return Filters{
		Location: strings.TrimSpace(f.Location),
		JobType:  strings.TrimSpace(f.JobType),
		Company:  strings.TrimSpace(f.Company),
	}
}

func (f Filters) Matches(j Job) bool {
	f = f.Normalized()
	return containsFold(deref(j.Location), f.Location) &&
		containsFold(deref(j.JobType), f.JobType) &&
		containsFold(j.Company, f.Company)
}

func containsFold(s, sub string) bool {
	if sub == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
