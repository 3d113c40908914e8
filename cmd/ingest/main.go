// Command ingest reads the movie catalog from SQLite, embeds each record,
// and upserts the vectors into Qdrant in batches. Safe to re-run at any
// time: upserts are idempotent by record id.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/cinerag/cinerag/engine/catalog"
	"github.com/cinerag/cinerag/engine/ingest"
	"github.com/cinerag/cinerag/engine/semantic"
	"github.com/cinerag/cinerag/pkg/metrics"
	"github.com/cinerag/cinerag/pkg/natsutil"
	"github.com/cinerag/cinerag/pkg/openai"
)

var met = metrics.New()

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// natsDLQ publishes abandoned batches to the dead-letter subject.
type natsDLQ struct {
	nc *nats.Conn
}

func (d natsDLQ) Publish(ctx context.Context, dl ingest.DeadLetter) error {
	return natsutil.Publish(ctx, d.nc, ingest.DLQSubject, dl)
}

func main() {
	godotenv.Load()

	var (
		dbPath        = flag.String("db", envOr("MOVIES_DB", "movies.db"), "movie catalog SQLite path")
		qdrantAddr    = flag.String("qdrant", envOr("QDRANT_URL", "localhost:6334"), "Qdrant gRPC address")
		collection    = flag.String("collection", envOr("QDRANT_COLLECTION", "movies"), "Qdrant collection name")
		dims          = flag.Int("dims", 1024, "embedding dimensions (must match the collection)")
		batchSize     = flag.Int("batch", 100, "records per upsert batch")
		embedRate     = flag.Float64("embed-rate", 5, "max embedding calls per second")
		upsertRetries = flag.Int("upsert-retries", 5, "retries per failed batch upsert, 0 = retry until success")
		upsertBackoff = flag.Duration("upsert-backoff", 5*time.Second, "initial upsert retry backoff")
		natsURL       = flag.String("nats", os.Getenv("NATS_URL"), "NATS URL for dead-letter publishing (optional)")
		embedModel    = flag.String("model", envOr("EMBED_MODEL", "text-embedding-3-small"), "embedding model")
		metricsPort   = flag.Int("metrics-port", 9091, "metrics HTTP port")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(*dbPath, *qdrantAddr, *collection, *natsURL, *embedModel, *dims, *batchSize,
		*embedRate, *upsertRetries, *upsertBackoff, *metricsPort, logger); err != nil {
		logger.Error("ingest failed", "err", err)
		os.Exit(1)
	}
}

func run(dbPath, qdrantAddr, collection, natsURL, embedModel string, dims, batchSize int,
	embedRate float64, upsertRetries int, upsertBackoff time.Duration, metricsPort int,
	logger *slog.Logger) error {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	met.ServeAsync(metricsPort)

	// Record source.
	cat, err := catalog.Open(dbPath)
	if err != nil {
		return err
	}
	defer cat.Close()

	movies, err := cat.All(ctx)
	if err != nil {
		return err
	}
	if len(movies) == 0 {
		return fmt.Errorf("catalog %s is empty, run initdb first", dbPath)
	}
	logger.Info("catalog loaded", "movies", len(movies))

	// Vector store.
	store, err := semantic.New(qdrantAddr, collection)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureCollection(ctx, dims); err != nil {
		return err
	}
	logger.Info("connected to Qdrant", "collection", collection, "dims", dims)

	// Optional dead-letter sink.
	var dlq ingest.DeadLetterer
	if natsURL != "" {
		nc, err := nats.Connect(natsURL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		dlq = natsDLQ{nc: nc}
		logger.Info("dead-letter publishing enabled", "subject", ingest.DLQSubject)
	}

	embedder := openai.NewEmbedClient(envOr("OPENAI_BASE_URL", openai.DefaultBaseURL), apiKey, embedModel, dims)

	opts := ingest.DefaultOptions()
	opts.BatchSize = batchSize
	opts.Dimensions = dims
	opts.EmbedRate = rate.Limit(embedRate)
	opts.UpsertRetries = upsertRetries
	opts.UpsertBackoff = upsertBackoff

	pipeline := ingest.New(embedder, store, dlq, opts, logger)

	start := time.Now()
	stats, err := pipeline.Run(ctx, movies)
	recordStats(stats)
	if err != nil {
		return err
	}

	logger.Info("ingest complete",
		"records", stats.Records,
		"embedded", stats.Embedded,
		"skipped", stats.Skipped,
		"upserted", stats.Upserted,
		"retries", stats.Retries,
		"dead_lettered", stats.DeadLettered,
		"duration", time.Since(start),
	)
	return nil
}

func recordStats(stats ingest.Stats) {
	met.Counter("cinerag_ingest_records_total", "Records read from the catalog").Add(int64(stats.Records))
	met.Counter("cinerag_ingest_embedded_total", "Records embedded").Add(int64(stats.Embedded))
	met.Counter("cinerag_ingest_skipped_total", "Records skipped on embed failure").Add(int64(stats.Skipped))
	met.Counter("cinerag_ingest_upserted_total", "Vectors upserted").Add(int64(stats.Upserted))
	met.Counter("cinerag_ingest_upsert_retries_total", "Batch upsert retries").Add(int64(stats.Retries))
	met.Counter("cinerag_ingest_dead_lettered_total", "Batches abandoned after retries").Add(int64(stats.DeadLettered))
}
