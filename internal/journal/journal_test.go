package journal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/health-recorder-ai/health-recorder/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "# 健康記録 2025\r\n" +
	"\r\n" +
	"#### 2025-1-5(日)\r\n" +
	"体重 70.4kg\r\n" +
	"  血圧 128/82  \r\n" +
	"\r\n" +
	"### メモ\r\n" +
	"#### 2025-1-5(日) (夕)\r\n" +
	"散歩 40分\r\n" +
	"#### 2025-01-06（月）（運動量）\r\n" +
	"スクワット 30回\r\n" +
	"#### 2025-2-30 (朝)\r\n" +
	"この行は捨てられる\r\n" +
	"#### 2025-1-7 朝\r\n"

func TestParse(t *testing.T) {
	entries, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, entries, 4)

	tests := []struct {
		period  string
		content string
		ts      time.Time
		line    int
	}{
		{PeriodMorning, "体重 70.4kg\n血圧 128/82", time.Date(2025, 1, 5, 8, 30, 0, 0, time.Local), 3},
		{PeriodEvening, "散歩 40分", time.Date(2025, 1, 5, 17, 30, 0, 0, time.Local), 8},
		{"運動量", "スクワット 30回", time.Date(2025, 1, 6, 12, 0, 0, 0, time.Local), 10},
		{PeriodMorning, "", time.Date(2025, 1, 7, 8, 30, 0, 0, time.Local), 14},
	}
	for i, tt := range tests {
		assert.Equal(t, tt.period, entries[i].Period, "entry %d period", i)
		assert.Equal(t, tt.content, entries[i].Content(), "entry %d content", i)
		assert.True(t, tt.ts.Equal(entries[i].Timestamp()), "entry %d timestamp %v", i, entries[i].Timestamp())
		assert.Equal(t, tt.line, entries[i].Line, "entry %d line", i)
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		header  string
		period  string
		wantErr bool
	}{
		{"2025-3-9", PeriodMorning, false},
		{"2025-03-09(日)(夕)", PeriodEvening, false},
		{"2025-3-9 （朝）", PeriodMorning, false},
		{"2025-3-9 (運動量)", "運動量", false},
		{"2025-13-1", "", true},
		{"March 9", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			entry, err := parseHeader(tt.header)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.period, entry.Period)
			assert.Equal(t, 9, entry.Date.Day())
		})
	}
}

func TestImport_WritesAndSkipsExisting(t *testing.T) {
	entries, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	dir := t.TempDir()
	store := record.NewFileStore(dir)
	ctx := context.Background()

	res, err := Import(ctx, store, entries, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"health_record_20250105_083000.json",
		"health_record_20250105_173000.json",
		"health_record_20250106_120000.json",
	}, res.Created)
	assert.Equal(t, 1, res.Empty)

	data, err := os.ReadFile(filepath.Join(dir, "health_record_20250105_083000.json"))
	require.NoError(t, err)
	rec, err := record.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "体重 70.4kg\n血圧 128/82", rec.Text)
	assert.Equal(t, "2025-01-05T08:30:00", rec.Timestamp)

	again, err := Import(ctx, store, entries, Options{})
	require.NoError(t, err)
	assert.Empty(t, again.Created)
	assert.Equal(t, 3, again.Existing)

	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestImport_RangeAndDryRun(t *testing.T) {
	entries, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	dir := t.TempDir()
	store := record.NewFileStore(dir)
	res, err := Import(context.Background(), store, entries, Options{Start: 1, End: 2, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"health_record_20250105_173000.json"}, res.Created)

	files, err := os.ReadDir(dir)
	if err == nil {
		assert.Empty(t, files, "dry run must not write")
	}

	res, err = Import(context.Background(), store, entries, Options{Start: 10})
	require.NoError(t, err)
	assert.Empty(t, res.Created)
}
