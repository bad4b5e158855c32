package normalize

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"jobradar/internal/domain/job"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var jobBoardHosts = []string{
	"indeed", "linkedin", "glassdoor", "ziprecruiter", "monster", "careerbuilder", "google",
}

// ATS hosts that carry the company in the first path segment.
var atsPathHosts = []string{
	"greenhouse.io", "lever.co", "ashbyhq.com", "workable.com", "smartrecruiters.com",
}

var placeholderCompanies = map[string]struct{}{
	"":                {},
	"-":               {},
	"n/a":             {},
	"na":              {},
	"none":            {},
	"null":            {},
	"nan":             {},
	"unknown":         {},
	"unknown company": {},
	"confidential":    {},
	"not specified":   {},
	"company":         {},
}

var descriptionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:join|at)\s+([A-Z][a-zA-Z\s&]+?)(?:\s+(?:is|as|in|and|,))`),
	regexp.MustCompile(`([A-Z][a-zA-Z\s&]+?)\s+is\s+(?:looking|seeking|hiring)`),
	regexp.MustCompile(`Company:\s*([A-Za-z\s&]+)`),
	regexp.MustCompile(`([A-Z][a-zA-Z\s&]+?)\s+offers`),
}

var companySuffix = regexp.MustCompile(`(?i)\b(?:Inc|LLC|Ltd|Corp|Corporation|Company|Co)\b\.?`)

const descriptionScanRunes = 500

func isPlaceholderCompany(s string) bool {
	_, ok := placeholderCompanies[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// resolveCompany picks the listing's company, falling back to the URL, the
// description and the company URL, in that order.
func resolveCompany(raw, jobURL, description, companyURL string) string {
	if !isPlaceholderCompany(raw) {
		if c := cleanCompany(raw); c != "" {
			return c
		}
	}
	for _, cand := range []string{
		companyFromURL(jobURL),
		companyFromDescription(description),
		companyFromURL(companyURL),
	} {
		if cand == "" {
			continue
		}
		if c := cleanCompany(cand); c != "" && !isPlaceholderCompany(c) {
			return c
		}
	}
	return job.UnknownCompany
}

func plausibleName(s string) bool {
	n := utf8.RuneCountInString(s)
	return n > 2 && n < 50
}

func companyFromURL(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return ""
	}
	for _, b := range jobBoardHosts {
		if strings.Contains(host, b) {
			return ""
		}
	}

	for _, ats := range atsPathHosts {
		if host == ats || strings.HasSuffix(host, "."+ats) {
			seg := strings.Split(strings.Trim(u.Path, "/"), "/")[0]
			seg = strings.NewReplacer("-", " ", "_", " ").Replace(seg)
			if plausibleName(seg) {
				return seg
			}
			return ""
		}
	}

	labels := strings.Split(host, ".")
	var name string
	switch {
	case len(labels) >= 3 && (labels[0] == "jobs" || labels[0] == "careers" || labels[0] == "apply"):
		name = labels[1]
	case strings.HasSuffix(host, ".myworkdayjobs.com"):
		name = labels[0]
	case len(labels) >= 2:
		name = labels[len(labels)-2]
	default:
		return ""
	}
	if !plausibleName(name) {
		return ""
	}
	return name
}

func companyFromDescription(desc string) string {
	if strings.TrimSpace(desc) == "" {
		return ""
	}
	head := desc
	if utf8.RuneCountInString(head) > descriptionScanRunes {
		head = string([]rune(head)[:descriptionScanRunes])
	}
	for _, re := range descriptionPatterns {
		m := re.FindStringSubmatch(head)
		if len(m) < 2 {
			continue
		}
		c := strings.TrimSpace(m[1])
		if plausibleName(c) {
			return c
		}
	}
	return ""
}

// cleanCompany strips legal suffixes, collapses whitespace and title-cases
// names written entirely in one case.
func cleanCompany(s string) string {
	s = companySuffix.ReplaceAllString(strings.TrimSpace(s), "")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, " ,.-")
	if s == "" {
		return ""
	}
	if s == strings.ToUpper(s) || s == strings.ToLower(s) {
		s = cases.Title(language.English).String(s)
	}
	return s
}
