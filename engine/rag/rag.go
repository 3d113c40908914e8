// Package rag answers one free-text question against the populated movie
// index: embed the question, fetch the top-K most similar records, render
// them into a numbered context block, and ask the completion model for a
// short grounded answer.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/cinerag/cinerag/engine/domain"
	"github.com/cinerag/cinerag/engine/semantic"
	"github.com/cinerag/cinerag/pkg/fn"
)

// NoMatchesText is returned as the answer when the index has no similar
// records. It is a successful empty result, not an error, and no completion
// call is made to produce it.
const NoMatchesText = "No relevant movies were found for this question."

// Embedder computes the question embedding. It must use the same model and
// dimensionality the index was populated with, or similarity scores are
// meaningless.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher performs top-K similarity search with metadata.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]semantic.SearchResult, error)
}

// Completer generates the final answer text from the assembled prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Options configures the pipeline.
type Options struct {
	TopK          int
	SearchTimeout time.Duration
}

// DefaultOptions returns the defaults the index was built for.
func DefaultOptions() Options {
	return Options{TopK: 5, SearchTimeout: 5 * time.Second}
}

// Service is the retrieval-answering pipeline.
type Service struct {
	embed    Embedder
	search   Searcher
	complete Completer
	opts     Options
	logger   *slog.Logger
}

// New creates a Service with injected clients.
func New(embed Embedder, search Searcher, complete Completer, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultOptions().SearchTimeout
	}
	return &Service{embed: embed, search: search, complete: complete, opts: opts, logger: logger}
}

// Match is one retrieved record's display metadata, in store order.
type Match struct {
	ID     string  `json:"id"`
	Score  float32 `json:"score"`
	Title  string  `json:"title"`
	Year   string  `json:"year"`
	Genres string  `json:"genres"`
	Rating float64 `json:"rating"`
}

// Answer pairs the generated text with the ordered match metadata so callers
// can show sources.
type Answer struct {
	Text    string  `json:"text"`
	Matches []Match `json:"matches"`
}

// Answer runs the full pipeline for one question. Remote failures surface as
// a single error wrapping ErrRetrievalFailed or ErrGenerationFailed; nothing
// is retried at this layer.
func (s *Service) Answer(ctx context.Context, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.NewValidationError("question", question, domain.ErrInvalidInput)
	}

	ctx, span := otel.Tracer("engine/rag").Start(ctx, "rag.answer")
	defer span.End()

	s.logger.Info("rag answer start", "question_len", len(question))

	vec, err := s.embed.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("rag: embed question: %w", errors.Join(domain.ErrRetrievalFailed, err))
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()
	results, err := s.search.Search(searchCtx, vec, s.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", errors.Join(domain.ErrRetrievalFailed, err))
	}
	s.logger.Info("rag search done", "matches", len(results))

	if len(results) == 0 {
		return &Answer{Text: NoMatchesText}, nil
	}

	text, err := s.complete.Complete(ctx, BuildPrompt(question, results))
	if err != nil {
		return nil, fmt.Errorf("rag: complete: %w", errors.Join(domain.ErrGenerationFailed, err))
	}

	return &Answer{Text: text, Matches: matchesFrom(results)}, nil
}

// BuildPrompt assembles the completion prompt: fixed instruction, the numbered
// context block in store order, the verbatim question, and the length
// constraint. This wording is a behavioural contract; change it deliberately.
func BuildPrompt(question string, results []semantic.SearchResult) string {
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = domain.ContextLine(i+1, r.Payload)
	}
	return fmt.Sprintf(
		"You are a helpful movie assistant. Based on these %d movies:\n\n%s\n\nAnswer the user's question: %q in 2-3 lines.",
		len(results), strings.Join(lines, "\n"), question)
}

// matchesFrom converts search hits into display matches, preserving the
// store-assigned order.
func matchesFrom(results []semantic.SearchResult) []Match {
	return fn.Map(results, func(r semantic.SearchResult) Match {
		return Match{
			ID:     payloadString(r.Payload, "id"),
			Score:  r.Score,
			Title:  payloadString(r.Payload, "title"),
			Year:   payloadString(r.Payload, "year"),
			Genres: payloadString(r.Payload, "genres"),
			Rating: payloadFloat(r.Payload, "rating"),
		}
	})
}

func payloadString(p map[string]any, key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	if v, ok := p[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

func payloadFloat(p map[string]any, key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}
