// Command api serves the movie RAG query endpoint: POST /query takes a
// question, retrieves the most similar movies from the vector index, and
// returns a short generated answer grounded in them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cinerag/cinerag/engine/domain"
	"github.com/cinerag/cinerag/engine/rag"
	"github.com/cinerag/cinerag/engine/semantic"
	"github.com/cinerag/cinerag/pkg/metrics"
	"github.com/cinerag/cinerag/pkg/mid"
	"github.com/cinerag/cinerag/pkg/openai"
)

// Config holds all environment-based configuration.
type Config struct {
	Port        string
	OpenAIBase  string
	OpenAIKey   string
	EmbedModel  string
	ChatModel   string
	Dimensions  int
	QdrantURL   string
	Collection  string
	CORSOrigin  string
}

func loadConfig() Config {
	dims, _ := strconv.Atoi(envOr("EMBED_DIMENSIONS", "1024"))
	return Config{
		Port:       envOr("PORT", "3001"),
		OpenAIBase: envOr("OPENAI_BASE_URL", openai.DefaultBaseURL),
		OpenAIKey:  os.Getenv("OPENAI_API_KEY"),
		EmbedModel: envOr("EMBED_MODEL", "text-embedding-3-small"),
		ChatModel:  envOr("CHAT_MODEL", "gpt-4"),
		Dimensions: dims,
		QdrantURL:  envOr("QDRANT_URL", "localhost:6334"),
		Collection: envOr("QDRANT_COLLECTION", "movies"),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var met = metrics.New()

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()
	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	store, err := semantic.New(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	embedClient := openai.NewEmbedClient(cfg.OpenAIBase, cfg.OpenAIKey, cfg.EmbedModel, cfg.Dimensions)
	chatClient := openai.NewChatClient(cfg.OpenAIBase, cfg.OpenAIKey, cfg.ChatModel)

	svc := rag.New(embedClient, store, chatClient, rag.DefaultOptions(), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", handleRoot)
	mux.HandleFunc("POST /query", handleQuery(svc, logger))
	mux.Handle("GET /metrics", met.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("cinerag-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- handlers ---

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, "🚀 Movie RAG backend is running!")
}

// QueryRequest is the JSON body for POST /query.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse is the JSON response for POST /query.
type QueryResponse struct {
	Answer  string      `json:"answer"`
	Matches []rag.Match `json:"matches,omitempty"`
}

// answerer is satisfied by *rag.Service.
type answerer interface {
	Answer(ctx context.Context, question string) (*rag.Answer, error)
}

func handleQuery(svc answerer, logger *slog.Logger) http.HandlerFunc {
	mQueries := met.Counter("cinerag_api_queries_total", "Total /query requests")
	mErrors := func(kind string) *metrics.Counter {
		return met.Counter(metrics.WithLabels("cinerag_api_query_errors_total", "kind", kind), "Failed /query requests")
	}

	return func(w http.ResponseWriter, r *http.Request) {
		mQueries.Inc()

		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			mErrors("bad_request").Inc()
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		ans, err := svc.Answer(r.Context(), req.Query)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				mErrors("bad_request").Inc()
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Query is required."})
				return
			}
			mErrors("internal").Inc()
			logger.Error("query failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
			return
		}

		writeJSON(w, http.StatusOK, QueryResponse{Answer: ans.Text, Matches: ans.Matches})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
