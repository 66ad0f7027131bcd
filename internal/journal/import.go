package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/health-recorder-ai/health-recorder/internal/record"
	log "github.com/sirupsen/logrus"
)

// Target is where imported entries are written.
type Target interface {
	AppendAt(ctx context.Context, text string, ts time.Time) (string, error)
	// Has reports whether a record already exists for ts.
	Has(ts time.Time) bool
}

// Options selects which entries are imported.
type Options struct {
	// Start is the index of the first entry to import.
	Start int
	// End is one past the last entry to import. <= 0 means all.
	End int
	// DryRun reports what would be written without writing.
	DryRun bool
}

// Result summarises an import.
type Result struct {
	// Created lists the file names written, or that would be written on a dry run.
	Created []string
	// Existing counts entries skipped because their record already exists.
	Existing int
	// Empty counts entries skipped because they had no content.
	Empty int
}

// Import writes entries[opts.Start:opts.End] to target. Entries whose
// timestamp is already present are skipped so reruns do not duplicate.
func Import(ctx context.Context, target Target, entries []Entry, opts Options) (Result, error) {
	var res Result
	start, end := opts.Start, opts.End
	if start < 0 {
		start = 0
	}
	if end <= 0 || end > len(entries) {
		end = len(entries)
	}
	if start >= end {
		return res, nil
	}

	for _, entry := range entries[start:end] {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		content := entry.Content()
		ts := entry.Timestamp()
		if content == "" {
			res.Empty++
			log.WithField("line", entry.Line).Debug("journal: empty entry skipped")
			continue
		}
		if target.Has(ts) {
			res.Existing++
			log.WithField("timestamp", ts.Format(time.DateTime)).Debug("journal: record exists, skipped")
			continue
		}
		if opts.DryRun {
			res.Created = append(res.Created, record.FileName(ts, 0))
			continue
		}
		name, err := target.AppendAt(ctx, content, ts)
		if err != nil {
			return res, fmt.Errorf("journal: import entry at line %d: %w", entry.Line, err)
		}
		res.Created = append(res.Created, name)
		log.WithField("file", name).Info("journal: record created")
	}
	return res, nil
}
