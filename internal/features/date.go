package features

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// postDateLayouts are tried in order. Date-time forms are accepted and
// reduced to their calendar date.
var postDateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// NormalizeDate keeps the wall-clock calendar date of t in its own location
// and discards time of day and zone.
func NormalizeDate(t time.Time) civil.Date {
	return civil.DateOf(t)
}

// Today returns the processing date for now as observed in loc. Callers read
// it once per derivation and pass it down.
func Today(now time.Time, loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.UTC
	}
	return NormalizeDate(now.In(loc))
}

// ParsePostDate parses an ISO-8601 date or date-time into a calendar date.
func ParsePostDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range postDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NormalizeDate(t), nil
		}
	}
	return civil.Date{}, fmt.Errorf("not an ISO-8601 date: %q", s)
}
