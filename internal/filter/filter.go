// Package filter narrows loaded health records by age and keyword before they
// are placed into a model prompt.
package filter

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/health-recorder-ai/health-recorder/internal/record"
	log "github.com/sirupsen/logrus"
)

// NoAgeLimit disables the age filter.
const NoAgeLimit = 0

const day = 24 * time.Hour

// maxDurationDays is the largest day count a time.Duration can hold. Larger
// limits cover every representable age and act as NoAgeLimit.
const maxDurationDays = int(math.MaxInt64 / int64(day))

// Criteria selects records. The zero value keeps everything.
type Criteria struct {
	// MaxAgeDays keeps records no older than this many days. NoAgeLimit disables it.
	MaxAgeDays int
	// Keywords keeps records containing at least one keyword. Empty disables it.
	Keywords []string
}

// FromForm builds criteria from raw user input.
func FromForm(maxAgeDays, keywords string) Criteria {
	return Criteria{
		MaxAgeDays: ParseMaxAgeDays(maxAgeDays),
		Keywords:   ParseKeywords(keywords),
	}
}

// Active reports whether any filter is enabled.
func (c Criteria) Active() bool {
	return c.MaxAgeDays > 0 || len(c.Keywords) > 0
}

// Select returns the records passing both the age and the keyword filter, in
// input order.
func Select(records []record.Record, c Criteria, now time.Time) []record.Record {
	out := make([]record.Record, 0, len(records))
	for _, r := range records {
		if !withinAge(r, c.MaxAgeDays, now) {
			continue
		}
		if !matchesAnyKeyword(r.Text, c.Keywords) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// withinAge keeps r unless it is strictly older than maxAgeDays; a record
// exactly at the boundary passes.
func withinAge(r record.Record, maxAgeDays int, now time.Time) bool {
	if maxAgeDays <= 0 || maxAgeDays > maxDurationDays {
		return true
	}
	if r.Time.IsZero() {
		return false
	}
	return now.Sub(r.Time) <= time.Duration(maxAgeDays)*day
}

// matchesAnyKeyword is a case-sensitive literal substring match with OR semantics.
func matchesAnyKeyword(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, k := range keywords {
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// ParseKeywords tokenizes a raw filter string. Input containing a comma is
// split on commas with each token trimmed; anything else is split on
// whitespace. Empty tokens are dropped.
func ParseKeywords(raw string) []string {
	var parts []string
	if strings.Contains(raw, ",") {
		parts = strings.Split(raw, ",")
	} else {
		parts = strings.Fields(raw)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ParseMaxAgeDays reads the age filter. Invalid input fails open: empty,
// non-numeric and non-positive values return NoAgeLimit instead of an error.
func ParseMaxAgeDays(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NoAgeLimit
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return failOpenAge(raw, "not a number")
	}
	if days <= 0 {
		return failOpenAge(raw, "not positive")
	}
	return days
}

func failOpenAge(raw, reason string) int {
	log.Debugf("age filter %q ignored: %s", raw, reason)
	return NoAgeLimit
}
