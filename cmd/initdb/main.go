// Command initdb rebuilds the movie catalog SQLite database from the IMDb
// title.basics and title.ratings TSV dumps.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/cinerag/cinerag/engine/catalog"
)

func main() {
	var (
		basics   = flag.String("basics", "data/title.basics.tsv", "path to title.basics.tsv")
		ratings  = flag.String("ratings", "data/title.ratings.tsv", "path to title.ratings.tsv")
		dbPath   = flag.String("db", "movies.db", "output SQLite path")
		minVotes = flag.Int64("min-votes", catalog.DefaultMinVotes, "keep only titles with more votes than this")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	s, err := catalog.Open(*dbPath)
	if err != nil {
		logger.Error("open database failed", "err", err)
		os.Exit(1)
	}
	defer s.Close()

	start := time.Now()
	n, err := catalog.ImportTSV(context.Background(), s, *basics, *ratings, *minVotes, logger)
	if err != nil {
		logger.Error("import failed", "err", err)
		os.Exit(1)
	}
	logger.Info("import complete", "movies", n, "db", *dbPath, "duration", time.Since(start))
}
