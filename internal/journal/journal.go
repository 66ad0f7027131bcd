// Package journal reads a legacy markdown health journal and converts its
// entries into records. An entry starts with a level-4 heading such as
//
//	#### 2025-1-5(日) (夕)
//
// and collects every following non-empty line that is not itself a heading.
package journal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	PeriodMorning = "朝"
	PeriodEvening = "夕"

	headerPrefix = "#### "
)

// Headers look like "2025-1-5(日) (夕)"; the weekday and period are optional
// and either ASCII or full-width parentheses are accepted.
var headerPattern = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})(?:[（(][月火水木金土日][）)])?\s*[（(]?([^）)]*)[）)]?`)

// Entry is one dated section of the journal.
type Entry struct {
	// Date is midnight of the entry's day in the local zone.
	Date time.Time
	// Period is the time-of-day label. Empty headers default to PeriodMorning.
	Period string
	// Lines holds the trimmed content lines in order.
	Lines []string
	// Line is the 1-based line number of the heading.
	Line int
}

// Timestamp places the entry in its day: 朝 at 08:30, 夕 at 17:30 and any
// other label (exercise notes and the like) at noon.
func (e Entry) Timestamp() time.Time {
	hour, minute := 12, 0
	switch e.Period {
	case PeriodMorning:
		hour, minute = 8, 30
	case PeriodEvening:
		hour, minute = 17, 30
	}
	return time.Date(e.Date.Year(), e.Date.Month(), e.Date.Day(), hour, minute, 0, 0, e.Date.Location())
}

// Content joins the entry's lines with newlines.
func (e Entry) Content() string {
	return strings.TrimSpace(strings.Join(e.Lines, "\n"))
}

// Parse scans a journal. Headings with an unreadable or impossible date are
// logged and their content is dropped until the next valid heading.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []Entry
	var current *Entry
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimSuffix(scanner.Text(), "\r"))

		if strings.HasPrefix(line, headerPrefix) {
			if current != nil {
				entries = append(entries, *current)
				current = nil
			}
			entry, err := parseHeader(strings.TrimSpace(line[len(headerPrefix):]))
			if err != nil {
				log.WithField("line", lineNo).WithError(err).Warn("journal: skipping heading")
				continue
			}
			entry.Line = lineNo
			current = &entry
			continue
		}
		if current != nil && line != "" && !strings.HasPrefix(line, "#") {
			current.Lines = append(current.Lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("journal: read: %w", err)
	}
	if current != nil {
		entries = append(entries, *current)
	}
	return entries, nil
}

// ParseFile parses the journal at path.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

func parseHeader(header string) (Entry, error) {
	m := headerPattern.FindStringSubmatch(header)
	if m == nil {
		return Entry{}, fmt.Errorf("unrecognised heading %q", header)
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
	if date.Year() != year || int(date.Month()) != month || date.Day() != day {
		return Entry{}, fmt.Errorf("invalid date %s-%s-%s", m[1], m[2], m[3])
	}

	period := strings.TrimSpace(m[4])
	if period == "" {
		period = PeriodMorning
	}
	return Entry{Date: date, Period: period}, nil
}
