package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cinerag/cinerag/engine/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "movies.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAllRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	in := []domain.Movie{
		{ID: "tt2", Title: "Beta", Year: "1999", Genres: "Drama", Rating: 7.4, Votes: 60000},
		{ID: "tt1", Title: "Alpha", Year: "2001", Genres: "Action", Rating: 8.1, Votes: 90000},
	}
	if err := s.InsertAll(ctx, in); err != nil {
		t.Fatalf("insert: %v", err)
	}

	out, err := s.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 movies, got %d", len(out))
	}
	// All() orders by id for deterministic batching downstream.
	if out[0].ID != "tt1" || out[1].ID != "tt2" {
		t.Errorf("not ordered by id: %v", out)
	}
	if out[0].Title != "Alpha" || out[0].Rating != 8.1 || out[0].Votes != 90000 {
		t.Errorf("fields mangled: %+v", out[0])
	}

	n, err := s.Count(ctx)
	if err != nil || n != 2 {
		t.Errorf("count = %d, %v", n, err)
	}
}

const basicsTSV = "tconst\ttitleType\tprimaryTitle\toriginalTitle\tisAdult\tstartYear\tendYear\truntimeMinutes\tgenres\n" +
	"tt1\tmovie\tAlpha\tAlpha\t0\t2001\t\\N\t120\tAction\n" +
	"tt2\tmovie\tBeta\tBeta\t0\t1999\t\\N\t95\tDrama\n" +
	"tt3\ttvSeries\tGamma\tGamma\t0\t2005\t\\N\t45\tComedy\n" +
	"tt4\tmovie\t\\N\t\\N\t0\t2010\t\\N\t100\tHorror\n" +
	"tt5\tmovie\tEpsilon\tEpsilon\t0\t\\N\t\\N\t100\tHorror\n" +
	"tt6\tmovie\tZeta\tZeta\t0\t2015\t\\N\t100\t\\N\n" +
	"tt7\tmovie\tEta\tEta\t0\t2020\t\\N\t100\tSci-Fi\n" +
	"tt8\tmovie\tTheta\tTheta\t0\t2021\t\\N\t100\tSci-Fi\n"

const ratingsTSV = "tconst\taverageRating\tnumVotes\n" +
	"tt1\t8.1\t90000\n" +
	"tt2\t7.4\t60000\n" +
	"tt3\t8.9\t200000\n" +
	"tt4\t6.0\t80000\n" +
	"tt5\t6.5\t70000\n" +
	"tt6\t7.0\t75000\n" +
	"tt7\t7.7\t50000\n"

func TestImportTSV(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	basics := filepath.Join(dir, "title.basics.tsv")
	ratings := filepath.Join(dir, "title.ratings.tsv")
	if err := os.WriteFile(basics, []byte(basicsTSV), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ratings, []byte(ratingsTSV), 0o644); err != nil {
		t.Fatal(err)
	}

	s := openTestStore(t)
	n, err := ImportTSV(ctx, s, basics, ratings, DefaultMinVotes, nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	// tt3 is not a movie, tt4-tt6 have \N fields, tt7 is at the vote
	// threshold (not above), tt8 has no ratings row.
	if n != 2 {
		t.Fatalf("expected 2 imported movies, got %d", n)
	}

	out, err := s.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if out[0].ID != "tt1" || out[0].Title != "Alpha" || out[0].Year != "2001" ||
		out[0].Genres != "Action" || out[0].Rating != 8.1 || out[0].Votes != 90000 {
		t.Errorf("imported row wrong: %+v", out[0])
	}
	if out[1].ID != "tt2" {
		t.Errorf("unexpected second row: %+v", out[1])
	}
}

func TestImportTSVReplacesExistingTable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	basics := filepath.Join(dir, "b.tsv")
	ratings := filepath.Join(dir, "r.tsv")
	os.WriteFile(basics, []byte(basicsTSV), 0o644)
	os.WriteFile(ratings, []byte(ratingsTSV), 0o644)

	s := openTestStore(t)
	if _, err := ImportTSV(ctx, s, basics, ratings, DefaultMinVotes, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := ImportTSV(ctx, s, basics, ratings, DefaultMinVotes, nil); err != nil {
		t.Fatal(err)
	}
	n, err := s.Count(ctx)
	if err != nil || n != 2 {
		t.Errorf("re-import should replace, not append: count=%d err=%v", n, err)
	}
}
