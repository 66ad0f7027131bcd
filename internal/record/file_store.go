package record

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// FileStore keeps one JSON file per record inside Dir.
type FileStore struct {
	Dir string

	now func() time.Time
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir, now: time.Now}
}

func (s *FileStore) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Append writes text stamped with the current time.
func (s *FileStore) Append(ctx context.Context, text string) (string, error) {
	return s.AppendAt(ctx, text, s.clock())
}

// AppendAt writes text stamped with ts. The directory is created when absent.
// Files are opened exclusively so that two records created within the same
// second land in distinct files instead of overwriting each other.
func (s *FileStore) AppendAt(ctx context.Context, text string, ts time.Time) (string, error) {
	if s == nil || s.Dir == "" {
		return "", errors.New("record store not configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create record dir: %w", err)
	}
	data, err := Encode(New(text, ts))
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}

	for seq := 0; seq < maxSameSecondWrites; seq++ {
		name := FileName(ts, seq)
		path := filepath.Join(s.Dir, name)
		f, errOpen := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errOpen != nil {
			if errors.Is(errOpen, os.ErrExist) {
				continue
			}
			return "", fmt.Errorf("create record file: %w", errOpen)
		}
		if _, errWrite := f.Write(data); errWrite != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", fmt.Errorf("write record file: %w", errWrite)
		}
		if errClose := f.Close(); errClose != nil {
			return "", fmt.Errorf("close record file: %w", errClose)
		}
		if seq > 0 {
			log.Debugf("record store: %s already existed, wrote %s", FileName(ts, 0), name)
		}
		return name, nil
	}
	return "", fmt.Errorf("too many records created at %s", ts.Format(time.RFC3339))
}

// Has reports whether the unsuffixed file for ts exists.
func (s *FileStore) Has(ts time.Time) bool {
	if s == nil || s.Dir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(s.Dir, FileName(ts, 0)))
	return err == nil
}

// List loads all records in directory order. A missing directory is an empty
// store. Files that cannot be read or decoded are skipped.
func (s *FileStore) List(ctx context.Context) ([]Record, error) {
	if s == nil || s.Dir == "" {
		return nil, errors.New("record store not configured")
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read record dir: %w", err)
	}

	out := make([]Record, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !IsRecordFileName(entry.Name()) {
			continue
		}
		path := filepath.Join(s.Dir, entry.Name())
		data, errRead := os.ReadFile(path)
		if errRead != nil {
			log.WithError(errRead).Debugf("record store: skip unreadable %s", entry.Name())
			continue
		}
		rec, errDecode := Decode(data)
		if errDecode != nil {
			log.WithError(errDecode).Debugf("record store: skip malformed %s", entry.Name())
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
