package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"jobradar/internal/domain/job"
)

var (
	amountRe   = regexp.MustCompile(`(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s*([kK])?`)
	currencyRe = regexp.MustCompile(`\b(USD|EUR|GBP|CAD|AUD|INR|CHF|JPY|SGD|NZD)\b`)
	startingRe = regexp.MustCompile(`(?i)\b(?:from|starting|start at|minimum|min\.?|at least|up from)\b|\+`)
	negotiaRe  = regexp.MustCompile(`(?i)\b(?:negotiable|competitive|doe|depending on experience|commensurate)\b`)
)

var currencySymbols = []struct {
	sym, code string
}{
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"₹", "INR"},
}

var periodWords = []struct {
	re     *regexp.Regexp
	period string
}{
	{regexp.MustCompile(`(?i)\b(?:hour|hourly|hr|/hr|per hour|an hour)\b|/\s*h(?:ou)?r`), "hour"},
	{regexp.MustCompile(`(?i)\b(?:day|daily|per day)\b`), "day"},
	{regexp.MustCompile(`(?i)\b(?:week|weekly|wk)\b`), "week"},
	{regexp.MustCompile(`(?i)\b(?:month|monthly|mo)\b`), "month"},
	{regexp.MustCompile(`(?i)\b(?:year|yearly|annual|annually|annum|yr)\b`), "year"},
}

// normalizePeriod maps source interval names onto hour, day, week, month or year.
func normalizePeriod(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	for _, p := range periodWords {
		if p.re.MatchString(s) {
			return p.period
		}
	}
	return ""
}

// ParseSalary extracts structured salary fields from free text. Text without
// amounts yields negotiable or not_specified.
func ParseSalary(text string) job.Salary {
	out := job.Salary{Type: job.SalaryNotSpecified}
	text = strings.TrimSpace(text)
	if text == "" {
		return out
	}

	amounts := parseAmounts(text)
	if len(amounts) == 0 {
		if negotiaRe.MatchString(text) {
			out.Type = job.SalaryNegotiable
		}
		return out
	}

	if c := detectCurrency(text); c != "" {
		out.Currency = &c
	}
	period := normalizePeriod(text)
	if period == "" {
		if amounts[0] < 1000 {
			period = "hour"
		} else {
			period = "year"
		}
	}
	out.Period = &period

	lo := amounts[0]
	if len(amounts) >= 2 {
		hi := amounts[1]
		out.Min, out.Max = &lo, &hi
		out.Type = job.SalaryRange
	} else if startingRe.MatchString(text) {
		out.Min = &lo
		out.Type = job.SalaryStarting
	} else {
		hi := lo
		out.Min, out.Max = &lo, &hi
		out.Type = job.SalaryRange
	}
	orderBounds(&out)
	return out
}

func parseAmounts(text string) []float64 {
	var out []float64
	for _, m := range amountRe.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil || v <= 0 {
			continue
		}
		if m[2] != "" {
			v *= 1000
		}
		out = append(out, v)
	}
	return out
}

func detectCurrency(text string) string {
	for _, s := range currencySymbols {
		if strings.Contains(text, s.sym) {
			return s.code
		}
	}
	if m := currencyRe.FindString(strings.ToUpper(text)); m != "" {
		return m
	}
	return ""
}

func orderBounds(s *job.Salary) {
	if s.Min != nil && s.Max != nil && *s.Min > *s.Max {
		s.Min, s.Max = s.Max, s.Min
	}
}

// salaryFromAmounts builds salary fields from numeric bounds a source already
// separated out.
func salaryFromAmounts(min, max *float64, currency, interval, text string) job.Salary {
	out := job.Salary{Min: min, Max: max}
	switch {
	case min != nil && max != nil:
		out.Type = job.SalaryRange
	case min != nil:
		out.Type = job.SalaryStarting
	default:
		out.Type = job.SalaryRange
	}

	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "" {
		c = detectCurrency(text)
	}
	if c != "" {
		out.Currency = &c
	}
	p := normalizePeriod(interval)
	if p == "" {
		p = normalizePeriod(text)
	}
	if p == "" {
		p = "year"
	}
	out.Period = &p
	orderBounds(&out)
	return out
}
