// Package source fetches raw job listings from external sites.
//
// Every site is reached through an Adapter. The collector depends only on the
// interface and treats all variants the same way.
package source

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// SearchSpec is one (term, location, source, strategy) collection request.
type SearchSpec struct {
	Term     string
	Location string
	Source   string
	Strategy string
}

func (s SearchSpec) String() string {
	return fmt.Sprintf("%s|%s|%s", s.Source, s.Term, s.Location)
}

// RawListing is an unvalidated listing as the site returned it. Any field may
// be empty.
type RawListing struct {
	Title       string
	Company     string
	CompanyURL  string
	Location    string
	Description string
	URL         string
	SalaryText  string
	MinAmount   *float64
	MaxAmount   *float64
	Currency    string
	Interval    string
	JobType     string
	DatePosted  string
	Remote      *bool
	Source      string
}

type Adapter interface {
	Name() string
	Fetch(ctx context.Context, spec SearchSpec, resultsWanted, maxAgeHours int) ([]RawListing, error)
}

// SourceError is a transient failure scoped to one source.
type SourceError struct {
	Source      string
	RateLimited bool
	StatusCode  int
	Err         error
}

func (e *SourceError) Error() string {
	var b strings.Builder
	b.WriteString("source ")
	b.WriteString(e.Source)
	if e.RateLimited {
		b.WriteString(": rate limited")
	}
	if e.StatusCode != 0 {
		b.WriteString(": status ")
		b.WriteString(strconv.Itoa(e.StatusCode))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *SourceError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err carries a rate-limited SourceError.
func IsRateLimited(err error) bool {
	var se *SourceError
	return errors.As(err, &se) && se.RateLimited
}

func sourceErr(source string, err error) error {
	if err == nil {
		return nil
	}
	var se *SourceError
	if errors.As(err, &se) {
		return err
	}
	return &SourceError{Source: source, Err: err}
}

// Field names used in SourceConfig.Fields.
const (
	FieldTitle       = "title"
	FieldCompany     = "company"
	FieldCompanyURL  = "company_url"
	FieldLocation    = "location"
	FieldDescription = "description"
	FieldURL         = "url"
	FieldSalary      = "salary"
	FieldSalaryMin   = "salary_min"
	FieldSalaryMax   = "salary_max"
	FieldCurrency    = "currency"
	FieldInterval    = "interval"
	FieldJobType     = "job_type"
	FieldPosted      = "posted"
	FieldRemote      = "remote"
)

// URLParams carries the values substituted into a search URL template.
type URLParams struct {
	Spec        SearchSpec
	Limit       int
	MaxAgeHours int
	Offset      int
	Page        int
	APIKey      string
}

// ExpandURL substitutes {term}, {location}, {limit}, {days}, {hours},
// {seconds}, {offset}, {page} and {api_key} in tmpl.
func ExpandURL(tmpl string, p URLParams) string {
	days := int(math.Ceil(float64(p.MaxAgeHours) / 24))
	if days < 1 {
		days = 1
	}
	r := strings.NewReplacer(
		"{term}", url.QueryEscape(p.Spec.Term),
		"{location}", url.QueryEscape(p.Spec.Location),
		"{limit}", strconv.Itoa(p.Limit),
		"{days}", strconv.Itoa(days),
		"{hours}", strconv.Itoa(p.MaxAgeHours),
		"{seconds}", strconv.Itoa(p.MaxAgeHours*3600),
		"{offset}", strconv.Itoa(p.Offset),
		"{page}", strconv.Itoa(p.Page),
		"{api_key}", url.QueryEscape(p.APIKey),
	)
	return r.Replace(tmpl)
}

func parseAmount(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

func parseBool(s string) *bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "remote":
		v := true
		return &v
	case "false", "no", "0":
		v := false
		return &v
	}
	return nil
}

// listingFromFields maps extracted field values onto a RawListing.
func listingFromFields(source string, vals map[string]string) RawListing {
	return RawListing{
		Title:       vals[FieldTitle],
		Company:     vals[FieldCompany],
		CompanyURL:  vals[FieldCompanyURL],
		Location:    vals[FieldLocation],
		Description: vals[FieldDescription],
		URL:         vals[FieldURL],
		SalaryText:  vals[FieldSalary],
		MinAmount:   parseAmount(vals[FieldSalaryMin]),
		MaxAmount:   parseAmount(vals[FieldSalaryMax]),
		Currency:    vals[FieldCurrency],
		Interval:    vals[FieldInterval],
		JobType:     vals[FieldJobType],
		DatePosted:  vals[FieldPosted],
		Remote:      parseBool(vals[FieldRemote]),
		Source:      source,
	}
}
