package filter

import (
	"reflect"
	"testing"
	"time"

	"github.com/health-recorder-ai/health-recorder/internal/record"
)

var now = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func rec(text string, age time.Duration) record.Record {
	return record.New(text, now.Add(-age))
}

func texts(records []record.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Text)
	}
	return out
}

func TestSelect_Keywords(t *testing.T) {
	records := []record.Record{
		rec("体重 70kg", time.Hour),
		rec("血圧 120/80", time.Hour),
		rec("散歩 30分", time.Hour),
	}
	tests := []struct {
		name     string
		keywords []string
		want     []string
	}{
		{"no keywords keeps all", nil, []string{"体重 70kg", "血圧 120/80", "散歩 30分"}},
		{"single keyword", []string{"70kg"}, []string{"体重 70kg"}},
		{"or semantics", []string{"血圧", "散歩"}, []string{"血圧 120/80", "散歩 30分"}},
		{"no match", []string{"睡眠"}, []string{}},
		{"case sensitive", []string{"70KG"}, []string{}},
		{"empty token ignored", []string{""}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := texts(Select(records, Criteria{Keywords: tt.keywords}, now))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Select() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelect_Age(t *testing.T) {
	records := []record.Record{
		rec("today", time.Hour),
		rec("boundary", 7*24*time.Hour),
		rec("just over", 7*24*time.Hour+time.Second),
		rec("old", 30*24*time.Hour),
		rec("future", -time.Hour),
	}
	tests := []struct {
		name       string
		maxAgeDays int
		want       []string
	}{
		{"no limit", NoAgeLimit, []string{"today", "boundary", "just over", "old", "future"}},
		{"seven days keeps boundary", 7, []string{"today", "boundary", "future"}},
		{"one day", 1, []string{"today", "future"}},
		{"negative is no limit", -3, []string{"today", "boundary", "just over", "old", "future"}},
		{"largest representable limit", 106751, []string{"today", "boundary", "just over", "old", "future"}},
		{"beyond duration range is no limit", 106752, []string{"today", "boundary", "just over", "old", "future"}},
		{"huge limit is no limit", 999999999, []string{"today", "boundary", "just over", "old", "future"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := texts(Select(records, Criteria{MaxAgeDays: tt.maxAgeDays}, now))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Select() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelect_HugeFormLimitKeepsRecent(t *testing.T) {
	records := []record.Record{rec("today", time.Hour)}
	for _, raw := range []string{"106752", "200000", "999999999"} {
		got := texts(Select(records, FromForm(raw, ""), now))
		if !reflect.DeepEqual(got, []string{"today"}) {
			t.Errorf("max_age_days=%s: Select() = %v", raw, got)
		}
	}
}

func TestSelect_ComposesWithAnd(t *testing.T) {
	records := []record.Record{
		rec("recent 70kg", time.Hour),
		rec("old 70kg", 10*24*time.Hour),
		rec("recent walk", time.Hour),
	}
	got := texts(Select(records, Criteria{MaxAgeDays: 3, Keywords: []string{"70kg"}}, now))
	if !reflect.DeepEqual(got, []string{"recent 70kg"}) {
		t.Errorf("Select() = %v", got)
	}
}

func TestSelect_PreservesInputOrder(t *testing.T) {
	records := []record.Record{
		rec("b", time.Hour),
		rec("a", 2*time.Hour),
		rec("c", 30*time.Minute),
	}
	got := texts(Select(records, Criteria{}, now))
	if !reflect.DeepEqual(got, []string{"b", "a", "c"}) {
		t.Errorf("Select() = %v, want input order", got)
	}
}

func TestSelect_ZeroTimeExcludedOnlyWithAgeFilter(t *testing.T) {
	records := []record.Record{{Text: "untimed"}}
	if got := Select(records, Criteria{}, now); len(got) != 1 {
		t.Errorf("without age filter got %d records, want 1", len(got))
	}
	if got := Select(records, Criteria{MaxAgeDays: 5}, now); len(got) != 0 {
		t.Errorf("with age filter got %d records, want 0", len(got))
	}
}

func TestParseKeywords(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"体重", []string{"体重"}},
		{"体重 血圧\t睡眠", []string{"体重", "血圧", "睡眠"}},
		{"体重, 血圧 上 ,睡眠", []string{"体重", "血圧 上", "睡眠"}},
		{",, ,", nil},
		{"a,,b", []string{"a", "b"}},
	}
	for _, tt := range tests {
		got := ParseKeywords(tt.raw)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseKeywords(%q) = %#v, want %#v", tt.raw, got, tt.want)
		}
	}
}

func TestParseMaxAgeDays(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", NoAgeLimit},
		{"7", 7},
		{" 30 ", 30},
		{"abc", NoAgeLimit},
		{"1.5", NoAgeLimit},
		{"0", NoAgeLimit},
		{"-2", NoAgeLimit},
	}
	for _, tt := range tests {
		if got := ParseMaxAgeDays(tt.raw); got != tt.want {
			t.Errorf("ParseMaxAgeDays(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestFromForm(t *testing.T) {
	c := FromForm("x", "体重,血圧")
	if c.MaxAgeDays != NoAgeLimit {
		t.Errorf("MaxAgeDays = %d, want fail-open", c.MaxAgeDays)
	}
	if !reflect.DeepEqual(c.Keywords, []string{"体重", "血圧"}) {
		t.Errorf("Keywords = %v", c.Keywords)
	}
	if !c.Active() {
		t.Error("Active() should be true with keywords")
	}
	if (Criteria{}).Active() {
		t.Error("zero Criteria should be inactive")
	}
}
