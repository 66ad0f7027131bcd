package record

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestFileStore_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewFileStore(filepath.Join(tmpDir, "data"))

	name, err := store.Append(context.Background(), "X")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if !IsRecordFileName(name) {
		t.Errorf("Append() name = %q does not follow the naming scheme", name)
	}

	records, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("List() returned %d records, want 1", len(records))
	}
	if records[0].Text != "X" {
		t.Errorf("Text = %q, want %q", records[0].Text, "X")
	}
	if records[0].Time.IsZero() {
		t.Error("Time should be parsed")
	}
}

func TestFileStore_AppendWritesPrettyUTF8(t *testing.T) {
	tmpDir := t.TempDir()
	ts := time.Date(2025, 6, 1, 8, 30, 0, 0, time.Local)
	store := NewFileStore(tmpDir)

	name, err := store.AppendAt(context.Background(), "体重 70kg <朝>", ts)
	if err != nil {
		t.Fatalf("AppendAt() error = %v", err)
	}
	if name != "health_record_20250601_083000.json" {
		t.Errorf("name = %q", name)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, name))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	want := "{\n  \"health_record\": \"体重 70kg <朝>\",\n  \"timestamp\": \"2025-06-01T08:30:00\"\n}"
	if string(data) != want {
		t.Errorf("file content =\n%s\nwant\n%s", data, want)
	}
}

func TestFileStore_SameSecondDoesNotOverwrite(t *testing.T) {
	tmpDir := t.TempDir()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.Local)
	store := NewFileStore(tmpDir)
	store.now = fixedClock(ts)

	var names []string
	for _, text := range []string{"first", "second", "third"} {
		name, err := store.Append(context.Background(), text)
		if err != nil {
			t.Fatalf("Append(%q) error = %v", text, err)
		}
		names = append(names, name)
	}
	want := []string{
		"health_record_20250601_120000.json",
		"health_record_20250601_120000_1.json",
		"health_record_20250601_120000_2.json",
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	records, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("List() returned %d records, want 3", len(records))
	}
	if !store.Has(ts) {
		t.Error("Has() should report the unsuffixed file")
	}
}

func TestFileStore_ListSkipsMalformedAndUnrelated(t *testing.T) {
	tmpDir := t.TempDir()
	files := map[string]string{
		"health_record_20250601_083000.json": `{"health_record": "ok", "timestamp": "2025-06-01T08:30:00"}`,
		"health_record_20250601_090000.json": `{"health_record": "trunc`,
		"health_record_20250601_100000.json": `{"timestamp": "2025-06-01T10:00:00"}`,
		"health_record_20250601_110000.json": `{"health_record": "no ts"}`,
		"health_record_20250601_120000.json": `{"health_record": "bad ts", "timestamp": "yesterday"}`,
		"health_record_20250601_130000.json": `{"health_record": 42, "timestamp": "2025-06-01T13:00:00"}`,
		"notes.txt":                          "not a record",
		"health_record_latest.json":          `{"health_record": "wrong name", "timestamp": "2025-06-01T08:30:00"}`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(tmpDir, "health_record_20250601_140000.json"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	records, err := NewFileStore(tmpDir).List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 || records[0].Text != "ok" {
		t.Fatalf("List() = %+v, want only the valid record", records)
	}
}

func TestFileStore_ListMissingDir(t *testing.T) {
	records, err := NewFileStore(filepath.Join(t.TempDir(), "absent")).List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("List() = %v, want empty", records)
	}
}

func TestFileStore_AppendFailsWhenDirIsAFile(t *testing.T) {
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "data")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	_, err := NewFileStore(blocker).Append(context.Background(), "X")
	if err == nil {
		t.Fatal("Append() should fail when the directory cannot be created")
	}
	if !strings.Contains(err.Error(), "create record") {
		t.Errorf("error = %v, want a create failure", err)
	}
}

func TestFileStore_Unconfigured(t *testing.T) {
	var store *FileStore
	if _, err := store.Append(context.Background(), "x"); err == nil {
		t.Error("Append() on nil store should fail")
	}
	if _, err := (&FileStore{}).List(context.Background()); err == nil {
		t.Error("List() without Dir should fail")
	}
}

func TestEncodeDecode_PreservesLegacyTimestamp(t *testing.T) {
	raw := []byte(`{"health_record": "散歩 30分", "timestamp": "2025-01-05T17:30:00"}`)
	rec, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if rec.Timestamp != "2025-01-05T17:30:00" {
		t.Errorf("Timestamp = %q, want the stored string", rec.Timestamp)
	}

	data, err := Encode(rec)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var back map[string]string
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back["health_record"] != "散歩 30分" || back["timestamp"] != "2025-01-05T17:30:00" {
		t.Errorf("Encode() = %s", data)
	}
}
