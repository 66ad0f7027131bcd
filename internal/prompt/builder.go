// Package prompt assembles the text sent to the generation endpoint: a fixed
// instruction forcing Japanese output, an optional context block of past
// health records, and the user's question.
package prompt

import (
	"sort"
	"strings"

	"github.com/health-recorder-ai/health-recorder/internal/record"
)

const (
	// SystemInstruction opens every prompt and pins the answer language.
	SystemInstruction = "あなたは利用者の健康記録を参照して質問に答えるアシスタントです。" +
		"質問や記録がどの言語で書かれていても、回答は必ず日本語のみで行ってください。"

	// LanguageReminder closes every prompt.
	LanguageReminder = "必ず日本語で回答してください。"

	contextHeader  = "\n\n過去の健康記録:"
	questionPrefix = "\n\nユーザーの質問: "
)

// Prompt is a single non-streaming generation request.
type Prompt struct {
	Model  string
	Text   string
	Stream bool
}

// Options tune how much history reaches the model.
type Options struct {
	// MaxContextRecords keeps only the last N records received. 0 means no cap.
	MaxContextRecords int
	// MaxContextTokens drops the oldest records until the context block fits. 0 means no cap.
	MaxContextTokens int
	// Escape, when set, is applied to record text and the message. Nil keeps raw text.
	Escape func(string) string
}

// Builder renders prompts.
type Builder struct {
	opts    Options
	counter TokenCounter
}

// NewBuilder returns a builder using the BPE token counter.
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts, counter: DefaultTokenCounter()}
}

// WithTokenCounter swaps the counter used for MaxContextTokens.
func (b *Builder) WithTokenCounter(counter TokenCounter) *Builder {
	b.counter = counter
	return b
}

// Options returns the builder's settings.
func (b *Builder) Options() Options {
	return b.opts
}

// Build composes the prompt. Records appear in the order given; the caller
// decides chronology.
func (b *Builder) Build(message string, records []record.Record, model string) Prompt {
	records = b.trim(records)

	var sb strings.Builder
	sb.WriteString(SystemInstruction)
	if len(records) > 0 {
		sb.WriteString(contextHeader)
		for _, r := range records {
			sb.WriteString(b.contextLine(r))
		}
	}
	sb.WriteString(questionPrefix)
	sb.WriteString(b.escape(message))
	sb.WriteString("\n\n")
	sb.WriteString(LanguageReminder)

	return Prompt{Model: model, Text: sb.String(), Stream: false}
}

func (b *Builder) contextLine(r record.Record) string {
	return "\n- " + r.Timestamp + ": " + b.escape(r.Text)
}

func (b *Builder) escape(s string) string {
	if b.opts.Escape == nil {
		return s
	}
	return b.opts.Escape(s)
}

// trim applies the record and token caps, always dropping from the front.
func (b *Builder) trim(records []record.Record) []record.Record {
	if n := b.opts.MaxContextRecords; n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	budget := b.opts.MaxContextTokens
	if budget <= 0 || len(records) == 0 || b.counter == nil {
		return records
	}

	costs := make([]int, len(records))
	total := b.counter.Count(contextHeader)
	for i, r := range records {
		costs[i] = b.counter.Count(b.contextLine(r))
		total += costs[i]
	}
	start := 0
	for start < len(records) && total > budget {
		total -= costs[start]
		start++
	}
	return records[start:]
}

// SortChronological orders records oldest first. Equal times keep their
// relative order.
func SortChronological(records []record.Record) []record.Record {
	out := make([]record.Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}
