// Package chat wires record storage, filtering, prompt construction, the
// generation gateway and markup rendering into the two user-facing actions:
// saving a record and asking a question about past records.
package chat

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/health-recorder-ai/health-recorder/internal/errors"
	"github.com/health-recorder-ai/health-recorder/internal/filter"
	"github.com/health-recorder-ai/health-recorder/internal/llm"
	"github.com/health-recorder-ai/health-recorder/internal/markup"
	"github.com/health-recorder-ai/health-recorder/internal/prompt"
	"github.com/health-recorder-ai/health-recorder/internal/record"
	log "github.com/sirupsen/logrus"
)

// ApologyMessage replaces the answer when the generation service fails.
const ApologyMessage = "申し訳ありません。現在AIサービスに接続できません。しばらくしてから再度お試しください。"

// Generator produces model text for a prompt.
type Generator interface {
	Generate(ctx context.Context, p prompt.Prompt) (string, error)
}

// AnswerCache returns earlier answers for an identical prompt.
type AnswerCache interface {
	Get(model, prompt string) (string, bool)
	Set(model, prompt, answer string)
}

// AskRequest is one chat turn.
type AskRequest struct {
	Message  string
	Criteria filter.Criteria
}

// AskResult is the rendered answer for one chat turn.
type AskResult struct {
	// HTML is the answer after markup rendering, or the apology.
	HTML string
	// Answer is the raw model text. Empty when Degraded.
	Answer string
	// Degraded is set when the generation service failed.
	Degraded bool
	// ContextRecords counts the records selected for the prompt.
	ContextRecords int
	Model          string
	// Cached is set when the answer came from the answer cache.
	Cached bool
}

// Service is the request-scoped pipeline. It holds no mutable state.
type Service struct {
	Store     record.Store
	Builder   *prompt.Builder
	Generator Generator
	Model     string
	// Cache is optional.
	Cache AnswerCache

	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// SubmitRecord saves a new record. Blank text is rejected; storage failures
// are returned as a StorageWrite AppError.
func (s *Service) SubmitRecord(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", apperrors.BadRequest(apperrors.CodeEmptyRecord, "health record is empty")
	}
	name, err := s.Store.Append(ctx, text)
	if err != nil {
		return "", apperrors.StorageWrite(err)
	}
	log.WithField("file", name).Info("health record saved")
	return name, nil
}

// Records returns the stored records passing c, oldest first.
func (s *Service) Records(ctx context.Context, c filter.Criteria) ([]record.Record, error) {
	all, err := s.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	return prompt.SortChronological(filter.Select(all, c, s.now())), nil
}

// Ask answers a question with the filtered records as context. A generation
// failure is not an error: the result carries ApologyMessage instead.
func (s *Service) Ask(ctx context.Context, req AskRequest) (AskResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return AskResult{}, apperrors.BadRequest(apperrors.CodeEmptyMessage, "message is empty")
	}

	records, err := s.Records(ctx, req.Criteria)
	if err != nil {
		log.WithError(err).Warn("chat: loading records failed, answering without context")
		records = nil
	}

	p := s.Builder.Build(req.Message, records, s.Model)
	log.WithFields(log.Fields{
		"model":           s.Model,
		"context_records": len(records),
		"max_age_days":    req.Criteria.MaxAgeDays,
		"keywords":        len(req.Criteria.Keywords),
	}).Debug("chat: prompt built")

	result := AskResult{ContextRecords: len(records), Model: s.Model}
	if s.Cache != nil {
		if cached, ok := s.Cache.Get(s.Model, p.Text); ok {
			result.Answer = cached
			result.HTML = markup.Render(cached)
			result.Cached = true
			return result, nil
		}
	}
	answer, err := s.Generator.Generate(ctx, p)
	if err != nil {
		result.HTML = ApologyMessage
		result.Degraded = true
		return result, nil
	}
	if s.Cache != nil && answer != llm.FallbackResponse {
		s.Cache.Set(s.Model, p.Text, answer)
	}
	result.Answer = answer
	result.HTML = markup.Render(answer)
	return result, nil
}
