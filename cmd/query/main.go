// Command query is a one-shot retrieval CLI: it embeds a question, searches
// the vector index, and prints the top matches without calling the
// completion model.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/cinerag/cinerag/engine/domain"
	"github.com/cinerag/cinerag/engine/semantic"
	"github.com/cinerag/cinerag/pkg/openai"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	godotenv.Load()

	var (
		qdrantAddr = flag.String("qdrant", envOr("QDRANT_URL", "localhost:6334"), "Qdrant gRPC address")
		collection = flag.String("collection", envOr("QDRANT_COLLECTION", "movies"), "Qdrant collection name")
		dims       = flag.Int("dims", 1024, "embedding dimensions")
		topK       = flag.Int("top-k", 5, "number of matches to print")
		embedModel = flag.String("model", envOr("EMBED_MODEL", "text-embedding-3-small"), "embedding model")
	)
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, `usage: query [flags] "sci-fi thrillers"`)
		os.Exit(2)
	}
	question := flag.Arg(0)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		logger.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}

	store, err := semantic.New(*qdrantAddr, *collection)
	if err != nil {
		logger.Error("qdrant connect failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	embedder := openai.NewEmbedClient(envOr("OPENAI_BASE_URL", openai.DefaultBaseURL), apiKey, *embedModel, *dims)

	vec, err := embedder.Embed(ctx, question)
	if err != nil {
		logger.Error("embed failed", "err", err)
		os.Exit(1)
	}

	results, err := store.Search(ctx, vec, *topK)
	if err != nil {
		logger.Error("search failed", "err", err)
		os.Exit(1)
	}

	if len(results) == 0 {
		fmt.Println("No matches found.")
		return
	}

	fmt.Println("🔍 Top Matches:")
	for i, r := range results {
		fmt.Println(domain.ContextLine(i+1, r.Payload))
	}
}
