// Package normalize turns raw listings into Job entities. Only listings with
// an unusable title or URL are rejected; everything else is defaulted.
package normalize

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"jobradar/internal/domain/job"
	"jobradar/internal/source"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ErrRejected marks a listing that cannot become a Job.
var ErrRejected = errors.New("listing rejected")

const (
	ReasonTitle = "unusable_title"
	ReasonURL   = "unusable_url"
)

const DefaultDescriptionMax = 2000

var placeholderTitles = map[string]struct{}{
	"n/a":      {},
	"na":       {},
	"none":     {},
	"null":     {},
	"nan":      {},
	"untitled": {},
	"unknown":  {},
	"job":      {},
	"-":        {},
}

type Normalizer struct {
	DescriptionMax int
	Now            func() time.Time
}

func New(descriptionMax int) *Normalizer {
	if descriptionMax <= 0 {
		descriptionMax = DefaultDescriptionMax
	}
	return &Normalizer{DescriptionMax: descriptionMax, Now: time.Now}
}

func reject(reason string, cause error) error {
	err := errors.Wrap(ErrRejected, reason)
	if cause != nil {
		err = errors.WithDetail(err, cause.Error())
	}
	return err
}

// RejectReason returns the reason recorded on a rejection error.
func RejectReason(err error) string {
	if !errors.Is(err, ErrRejected) {
		return ""
	}
	msg := err.Error()
	if i := strings.Index(msg, ":"); i > 0 {
		return msg[:i]
	}
	return msg
}

// Normalize validates raw and builds a Job from it.
func (n *Normalizer) Normalize(raw source.RawListing, spec source.SearchSpec) (job.Job, error) {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	collectedAt := now().UTC()

	title := collapse(raw.Title)
	if !usableTitle(title) {
		return job.Job{}, reject(ReasonTitle, nil)
	}

	canonical, err := CanonicalURL(raw.URL)
	if err != nil {
		return job.Job{}, reject(ReasonURL, err)
	}

	site := strings.TrimSpace(raw.Source)
	if site == "" {
		site = spec.Source
	}

	desc := n.cleanDescription(raw.Description)

	j := job.Job{
		ID:          uuid.New(),
		DedupKey:    DedupKey(canonical),
		Title:       title,
		Company:     resolveCompany(raw.Company, raw.URL, desc, raw.CompanyURL),
		CompanyURL:  optional(raw.CompanyURL),
		Location:    optional(collapse(raw.Location)),
		Description: optional(desc),
		URL:         canonical,
		Site:        site,
		JobType:     optional(strings.ToLower(collapse(raw.JobType))),
		IsRemote:    remoteFlag(raw),
		DatePosted:  parsePosted(raw.DatePosted, collectedAt),

		SearchTerm:     optional(spec.Term),
		SearchLocation: optional(spec.Location),
		Strategy:       optional(spec.Strategy),

		CollectedAt: collectedAt,
	}

	if raw.MinAmount != nil || raw.MaxAmount != nil {
		j.Salary = salaryFromAmounts(raw.MinAmount, raw.MaxAmount, raw.Currency, raw.Interval, raw.SalaryText)
	} else {
		j.Salary = ParseSalary(raw.SalaryText)
		if j.Salary.Currency == nil && j.Salary.Min != nil {
			if c := strings.ToUpper(strings.TrimSpace(raw.Currency)); c != "" {
				j.Salary.Currency = &c
			}
		}
	}

	return j, nil
}

func usableTitle(t string) bool {
	if t == "" {
		return false
	}
	if _, bad := placeholderTitles[strings.ToLower(t)]; bad {
		return false
	}
	for _, r := range t {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func (n *Normalizer) cleanDescription(s string) string {
	s = collapse(s)
	max := n.DescriptionMax
	if max <= 0 {
		max = DefaultDescriptionMax
	}
	if utf8.RuneCountInString(s) > max {
		r := []rune(s)
		keep := max - 3
		if keep < 0 {
			keep = 0
		}
		s = string(r[:keep]) + "..."
	}
	return s
}

func remoteFlag(raw source.RawListing) *bool {
	if raw.Remote != nil {
		v := *raw.Remote
		return &v
	}
	if strings.Contains(strings.ToLower(raw.Location), "remote") {
		v := true
		return &v
	}
	return nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
