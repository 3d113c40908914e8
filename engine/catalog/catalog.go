// Package catalog is the movie record source: a SQLite table populated once
// from the IMDb TSV dumps and read in full by the ingestion pipeline.
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/cinerag/cinerag/engine/domain"
)

// Store wraps the movies database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Init creates the movies table, dropping any previous one. The importer
// always rebuilds from scratch.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS movies`); err != nil {
		return fmt.Errorf("catalog: drop table: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE movies (
			id TEXT PRIMARY KEY,
			title TEXT,
			year TEXT,
			genres TEXT,
			rating REAL,
			votes INTEGER
		)`)
	if err != nil {
		return fmt.Errorf("catalog: create table: %w", err)
	}
	return nil
}

// InsertAll writes movies in one transaction.
func (s *Store) InsertAll(ctx context.Context, movies []domain.Movie) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO movies (id, title, year, genres, rating, votes)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("catalog: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range movies {
		if _, err := stmt.ExecContext(ctx, m.ID, m.Title, m.Year, m.Genres, m.Rating, m.Votes); err != nil {
			tx.Rollback()
			return fmt.Errorf("catalog: insert %s: %w", m.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit: %w", err)
	}
	return nil
}

// All returns every movie ordered by id, so batch partitioning downstream is
// deterministic for a given table state.
func (s *Store) All(ctx context.Context) ([]domain.Movie, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, year, genres, rating, votes FROM movies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: select: %w", err)
	}
	defer rows.Close()

	var out []domain.Movie
	for rows.Next() {
		var m domain.Movie
		var rating sql.NullFloat64
		var votes sql.NullInt64
		if err := rows.Scan(&m.ID, &m.Title, &m.Year, &m.Genres, &rating, &votes); err != nil {
			return nil, fmt.Errorf("catalog: scan: %w", err)
		}
		m.Rating = rating.Float64
		m.Votes = votes.Int64
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: rows: %w", err)
	}
	return out, nil
}

// Count returns the number of movies in the catalog.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog: count: %w", err)
	}
	return n, nil
}
