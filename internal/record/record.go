// Package record persists timestamped free-text health records. Each record is
// one pretty-printed JSON document named after its creation second, so the
// storage directory can be read, copied and edited with ordinary tools.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

const (
	// TimestampLayout is the ISO-8601 layout written into new records.
	TimestampLayout = "2006-01-02T15:04:05.000000"
	// wholeSecondLayout is written instead when the microseconds are zero.
	wholeSecondLayout = "2006-01-02T15:04:05"

	fileNamePrefix = "health_record_"
	fileNameLayout = "20060102_150405"
	fileNameExt    = ".json"
)

var fileNamePattern = regexp.MustCompile(`^health_record_(\d{8}_\d{6})(?:_(\d+))?\.json$`)

// Record is one health-log entry.
type Record struct {
	// Text is the free-text body as submitted.
	Text string `json:"health_record"`
	// Timestamp is the creation time exactly as stored.
	Timestamp string `json:"timestamp"`
	// Time is Timestamp parsed. Records with an unparseable timestamp are never loaded.
	Time time.Time `json:"-"`
}

// New builds a record stamped with ts.
func New(text string, ts time.Time) Record {
	return Record{Text: text, Timestamp: FormatTimestamp(ts), Time: ts}
}

// FormatTimestamp renders ts with microseconds, omitting the fraction when it
// is zero so whole-second times read 2025-01-05T08:30:00.
func FormatTimestamp(ts time.Time) string {
	if ts.Nanosecond()/int(time.Microsecond) == 0 {
		return ts.Format(wholeSecondLayout)
	}
	return ts.Format(TimestampLayout)
}

// FileName returns the storage name for a record created at ts. A positive seq
// disambiguates records created within the same second.
func FileName(ts time.Time, seq int) string {
	name := fileNamePrefix + ts.Format(fileNameLayout)
	if seq > 0 {
		name += "_" + strconv.Itoa(seq)
	}
	return name + fileNameExt
}

// IsRecordFileName reports whether name follows the record naming scheme.
func IsRecordFileName(name string) bool {
	return fileNamePattern.MatchString(name)
}

// ParseTimestamp accepts RFC 3339 timestamps and the zone-less ISO form used by
// the legacy files, which is interpreted in local time.
func ParseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	// Fractional seconds are accepted after the seconds field even though the
	// layout does not spell them out.
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}

// Encode renders r as UTF-8 JSON with two-space indentation. Non-ASCII and
// HTML characters are written verbatim.
func Encode(r Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses a stored record. Both fields must be present strings and the
// timestamp must parse.
func Decode(data []byte) (Record, error) {
	if !gjson.ValidBytes(data) {
		return Record{}, errors.New("invalid json")
	}
	fields := gjson.GetManyBytes(data, "health_record", "timestamp")
	text, ts := fields[0], fields[1]
	if !text.Exists() || text.Type != gjson.String {
		return Record{}, errors.New("missing health_record")
	}
	if !ts.Exists() || ts.Type != gjson.String {
		return Record{}, errors.New("missing timestamp")
	}
	parsed, err := ParseTimestamp(ts.String())
	if err != nil {
		return Record{}, err
	}
	return Record{Text: text.String(), Timestamp: ts.String(), Time: parsed}, nil
}
