// Package ingest implements the batched embedding-and-upsert pipeline that
// populates the vector index from the movie catalog.
//
// Records are partitioned into fixed-size batches and embedded sequentially
// under a shared token-bucket rate limit. A record that fails embedding (or
// produces a wrong-dimension vector) is logged and skipped; it never aborts
// the batch. Each non-empty batch is upserted as one call, retried with
// exponential backoff up to a configurable bound, and dead-lettered if the
// bound is exhausted so the failure stays visible to operators.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/cinerag/cinerag/engine/domain"
	"github.com/cinerag/cinerag/engine/semantic"
	"github.com/cinerag/cinerag/pkg/fn"
)

// DLQSubject is the NATS subject abandoned batches are published to.
const DLQSubject = "cinerag.ingest.dlq"

// Embedder computes a fixed-dimension embedding for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Upserter writes embedding records into the vector store.
type Upserter interface {
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
}

// DeadLetterer receives batches whose upsert could not be completed.
type DeadLetterer interface {
	Publish(ctx context.Context, dl DeadLetter) error
}

// DeadLetter describes a permanently failed batch for operator inspection.
// Re-running ingestion is always safe: upserts are idempotent by record id.
type DeadLetter struct {
	Batch    int       `json:"batch"`
	IDs      []string  `json:"ids"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// Options configures the pipeline.
type Options struct {
	// BatchSize bounds how many records are embedded before one upsert call.
	BatchSize int
	// Dimensions is the collection's configured vector length. Vectors of any
	// other length are rejected before reaching the store.
	Dimensions int
	// EmbedRate/EmbedBurst feed the token bucket pacing embedding calls.
	EmbedRate  rate.Limit
	EmbedBurst int
	// UpsertRetries bounds retries after a failed upsert of one batch.
	// 0 means retry until success or cancellation.
	UpsertRetries int
	// UpsertBackoff is the initial retry wait; it doubles per attempt up to
	// MaxBackoff.
	UpsertBackoff time.Duration
	MaxBackoff    time.Duration
}

// DefaultOptions matches the index dimensionality and pacing the catalog was
// originally embedded with.
func DefaultOptions() Options {
	return Options{
		BatchSize:     100,
		Dimensions:    1024,
		EmbedRate:     rate.Every(200 * time.Millisecond),
		EmbedBurst:    1,
		UpsertRetries: 5,
		UpsertBackoff: 5 * time.Second,
		MaxBackoff:    80 * time.Second,
	}
}

// Stats summarises one pipeline run. Per-record failures are absorbed here
// rather than surfaced as errors.
type Stats struct {
	Records      int `json:"records"`
	Embedded     int `json:"embedded"`
	Skipped      int `json:"skipped"`
	Batches      int `json:"batches"`
	Upserted     int `json:"upserted"`
	Retries      int `json:"retries"`
	DeadLettered int `json:"dead_lettered"`
}

// Pipeline orchestrates embedder, store and dead-letter sink for one run.
type Pipeline struct {
	embed   Embedder
	store   Upserter
	dlq     DeadLetterer // optional
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Pipeline. dlq may be nil, in which case abandoned batches are
// only logged and counted.
func New(embed Embedder, store Upserter, dlq DeadLetterer, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	if opts.EmbedRate == 0 {
		opts.EmbedRate = DefaultOptions().EmbedRate
	}
	if opts.EmbedBurst <= 0 {
		opts.EmbedBurst = 1
	}
	if opts.UpsertBackoff <= 0 {
		opts.UpsertBackoff = DefaultOptions().UpsertBackoff
	}
	if opts.MaxBackoff < opts.UpsertBackoff {
		opts.MaxBackoff = opts.UpsertBackoff
	}
	return &Pipeline{
		embed:   embed,
		store:   store,
		dlq:     dlq,
		opts:    opts,
		limiter: rate.NewLimiter(opts.EmbedRate, opts.EmbedBurst),
		logger:  logger,
	}
}

// PointID derives the deterministic vector-store point ID for a record id.
// The same record always maps to the same point, so re-ingesting overwrites
// instead of duplicating.
func PointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(recordID)).String()
}

// Run embeds and upserts every movie, batch by batch, in source order.
// It returns early only on context cancellation, and then only between
// records and batches; an in-flight remote call is allowed to complete.
func (p *Pipeline) Run(ctx context.Context, movies []domain.Movie) (Stats, error) {
	stats := Stats{Records: len(movies)}
	batches := fn.Chunk(movies, p.opts.BatchSize)
	stats.Batches = len(batches)

	p.logger.Info("ingest run start", "records", len(movies), "batches", len(batches), "batch_size", p.opts.BatchSize)

	for bi, batch := range batches {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("ingest: run cancelled at batch %d: %w", bi, err)
		}

		bctx, span := otel.Tracer("engine/ingest").Start(ctx, "ingest.batch")
		records, skipped := p.embedBatch(bctx, batch)
		stats.Embedded += len(records)
		stats.Skipped += skipped

		if len(records) == 0 {
			span.End()
			p.logger.Warn("ingest: batch empty after embedding, nothing to upsert", "batch", bi)
			continue
		}

		retries, err := p.upsertBatch(bctx, bi, records)
		stats.Retries += retries
		span.End()
		if err != nil {
			if ctx.Err() != nil {
				return stats, fmt.Errorf("ingest: run cancelled during upsert of batch %d: %w", bi, ctx.Err())
			}
			stats.DeadLettered++
			p.deadLetter(ctx, bi, records, retries, err)
			continue
		}

		stats.Upserted += len(records)
		p.logger.Info("ingest: batch upserted", "batch", bi+1, "of", len(batches), "vectors", len(records))
	}

	p.logger.Info("ingest run done",
		"embedded", stats.Embedded, "skipped", stats.Skipped,
		"upserted", stats.Upserted, "retries", stats.Retries,
		"dead_lettered", stats.DeadLettered)
	return stats, nil
}

// embedBatch embeds each record in source order, skipping failures, and
// returns the upsert set plus the skip count. Only vectors matching the
// configured dimensionality make it into the result.
func (p *Pipeline) embedBatch(ctx context.Context, batch []domain.Movie) ([]semantic.VectorRecord, int) {
	records := make([]semantic.VectorRecord, 0, len(batch))
	skipped := 0

	for _, m := range batch {
		if ctx.Err() != nil {
			break
		}
		if err := domain.ValidateMovie(m); err != nil {
			p.logger.Warn("ingest: skipping malformed record", "id", m.ID, "error", err)
			skipped++
			continue
		}

		if err := p.limiter.Wait(ctx); err != nil {
			break
		}
		vec, err := p.embed.Embed(ctx, m.EmbedText())
		if err != nil {
			p.logger.Warn("ingest: embedding failed, skipping record", "id", m.ID, "title", m.Title, "error", err)
			skipped++
			continue
		}
		if p.opts.Dimensions > 0 && len(vec) != p.opts.Dimensions {
			p.logger.Warn("ingest: dimension mismatch, skipping record",
				"id", m.ID, "got", len(vec), "want", p.opts.Dimensions, "error", domain.ErrDimensionMismatch)
			skipped++
			continue
		}

		records = append(records, semantic.VectorRecord{
			ID:        PointID(m.ID),
			Embedding: vec,
			Payload:   m.Payload(),
		})
	}
	return records, skipped
}

// upsertBatch upserts one batch, retrying the same batch with exponential
// backoff. Returns the retry count and the last error if the bound was
// exhausted or the context was cancelled.
func (p *Pipeline) upsertBatch(ctx context.Context, bi int, records []semantic.VectorRecord) (int, error) {
	backoff := p.opts.UpsertBackoff
	retries := 0

	for {
		err := p.store.Upsert(ctx, records)
		if err == nil {
			return retries, nil
		}
		if ctx.Err() != nil {
			return retries, err
		}
		if p.opts.UpsertRetries > 0 && retries >= p.opts.UpsertRetries {
			return retries, err
		}
		retries++
		p.logger.Warn("ingest: upsert failed, retrying batch",
			"batch", bi, "attempt", retries, "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return retries, err
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > p.opts.MaxBackoff {
			backoff = p.opts.MaxBackoff
		}
	}
}

// deadLetter records a permanently failed batch. Nothing is silently dropped:
// if no sink is configured the abandonment is still logged and counted.
func (p *Pipeline) deadLetter(ctx context.Context, bi int, records []semantic.VectorRecord, attempts int, cause error) {
	ids := fn.Map(records, func(r semantic.VectorRecord) string {
		if id, ok := r.Payload["id"].(string); ok {
			return id
		}
		return r.ID
	})
	p.logger.Error("ingest: batch abandoned after retries",
		"batch", bi, "records", len(records), "attempts", attempts, "error", cause)

	if p.dlq == nil {
		return
	}
	dl := DeadLetter{
		Batch:    bi,
		IDs:      ids,
		Error:    cause.Error(),
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	}
	if err := p.dlq.Publish(ctx, dl); err != nil {
		p.logger.Error("ingest: dead-letter publish failed", "batch", bi, "error", err)
	}
}
