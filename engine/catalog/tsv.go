package catalog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cinerag/cinerag/engine/domain"
)

// nullField is the IMDb TSV marker for a missing value.
const nullField = `\N`

// DefaultMinVotes keeps only reasonably popular titles, bounding the embed
// volume to a few thousand records.
const DefaultMinVotes = 50000

type titleRating struct {
	rating float64
	votes  int64
}

// ImportTSV rebuilds the movies table from the IMDb title.basics and
// title.ratings dumps. Only released movies with a title, year, genres, and
// more than minVotes votes are kept. Returns the number of rows inserted.
func ImportTSV(ctx context.Context, s *Store, basicsPath, ratingsPath string, minVotes int64, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ratings, err := loadRatings(ratingsPath)
	if err != nil {
		return 0, err
	}
	logger.Info("catalog: ratings loaded", "titles", len(ratings))

	movies, err := loadBasics(basicsPath, ratings, minVotes)
	if err != nil {
		return 0, err
	}

	if err := s.Init(ctx); err != nil {
		return 0, err
	}
	if err := s.InsertAll(ctx, movies); err != nil {
		return 0, err
	}
	logger.Info("catalog: import done", "movies", len(movies), "min_votes", minVotes)
	return len(movies), nil
}

// loadRatings reads title.ratings.tsv into a tconst-keyed map.
func loadRatings(path string) (map[string]titleRating, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open ratings: %w", err)
	}
	defer f.Close()

	ratings := make(map[string]titleRating)
	err = scanTSV(f, func(row map[string]string) {
		rating, errR := strconv.ParseFloat(row["averageRating"], 64)
		votes, errV := strconv.ParseInt(row["numVotes"], 10, 64)
		if errR != nil || errV != nil {
			return
		}
		ratings[row["tconst"]] = titleRating{rating: rating, votes: votes}
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: parse ratings: %w", err)
	}
	return ratings, nil
}

// loadBasics streams title.basics.tsv and keeps rows passing the popularity
// and completeness filters, in file order.
func loadBasics(path string, ratings map[string]titleRating, minVotes int64) ([]domain.Movie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open basics: %w", err)
	}
	defer f.Close()

	var movies []domain.Movie
	err = scanTSV(f, func(row map[string]string) {
		r, ok := ratings[row["tconst"]]
		if !ok {
			return
		}
		if row["titleType"] != "movie" ||
			row["primaryTitle"] == nullField ||
			row["startYear"] == nullField ||
			row["genres"] == nullField ||
			r.votes <= minVotes {
			return
		}
		movies = append(movies, domain.Movie{
			ID:     row["tconst"],
			Title:  row["primaryTitle"],
			Year:   row["startYear"],
			Genres: row["genres"],
			Rating: r.rating,
			Votes:  r.votes,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: parse basics: %w", err)
	}
	return movies, nil
}

// scanTSV reads a headered tab-separated file line by line. The IMDb dumps
// use no quoting, so a plain split is both correct and fast. Short rows are
// dropped.
func scanTSV(r io.Reader, visit func(row map[string]string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)

	if !sc.Scan() {
		return sc.Err()
	}
	header := strings.Split(sc.Text(), "\t")

	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) < len(header) {
			continue
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			row[h] = fields[i]
		}
		visit(row)
	}
	return sc.Err()
}
