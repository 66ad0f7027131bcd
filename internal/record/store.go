package record

import (
	"context"
	"time"
)

// maxSameSecondWrites bounds the suffix search when several records are
// created within one second.
const maxSameSecondWrites = 1000

// Store is append-only persistence for health records.
type Store interface {
	// Append persists text stamped with the current time and returns its name.
	Append(ctx context.Context, text string) (string, error)
	// AppendAt persists text stamped with ts.
	AppendAt(ctx context.Context, text string, ts time.Time) (string, error)
	// List loads every readable record. Unreadable or malformed entries are skipped.
	List(ctx context.Context) ([]Record, error)
}
