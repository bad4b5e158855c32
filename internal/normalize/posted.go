package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativeRe = regexp.MustCompile(`(?i)(\d+)\+?\s*(minute|min|hour|hr|day|week|month)s?\s+ago`)

var postedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"02/01/2006",
}

// parsePosted understands absolute dates, unix seconds and phrases such as
// "3 days ago" or "just posted". It returns nil when nothing matches.
func parsePosted(raw string, now time.Time) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	for _, layout := range postedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 1_000_000_000 {
		t := time.Unix(n, 0).UTC()
		return &t
	}

	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "just posted"), strings.Contains(lower, "today"), strings.Contains(lower, "just now"):
		t := now.UTC()
		return &t
	case strings.Contains(lower, "yesterday"):
		t := now.UTC().Add(-24 * time.Hour)
		return &t
	}

	m := relativeRe.FindStringSubmatch(lower)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	var unit time.Duration
	switch m[2] {
	case "minute", "min":
		unit = time.Minute
	case "hour", "hr":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	case "week":
		unit = 7 * 24 * time.Hour
	case "month":
		unit = 30 * 24 * time.Hour
	}
	t := now.UTC().Add(-time.Duration(n) * unit)
	return &t
}
