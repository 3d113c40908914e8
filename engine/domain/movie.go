// Package domain defines the core movie record type, the shared text-rendering
// contract used by both the ingestion and retrieval pipelines, and the error
// taxonomy for the engine.
package domain

import "fmt"

// Movie is a single catalog record. ID is the stable IMDb title identifier
// (e.g. "tt0133093") and doubles as the vector-store entry key, which is what
// makes re-ingestion idempotent.
type Movie struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Year   string  `json:"year"`
	Genres string  `json:"genres"` // comma-delimited, as in the source dataset
	Rating float64 `json:"rating"`
	Votes  int64   `json:"votes"`
}

// EmbedText renders the movie into the canonical embedding input string.
// Retrieval-side prompt construction relies on the same field order, so this
// is the single place the format lives.
func (m Movie) EmbedText() string {
	return fmt.Sprintf("%s (%s) - Genres: %s", m.Title, m.Year, m.Genres)
}

// Payload returns the metadata stored alongside the movie's vector.
func (m Movie) Payload() map[string]any {
	return map[string]any{
		"id":     m.ID,
		"title":  m.Title,
		"year":   m.Year,
		"genres": m.Genres,
		"rating": m.Rating,
		"votes":  m.Votes,
	}
}

// ContextLine renders one retrieved match as a numbered line in the prompt
// context block. rank is 1-based and must follow the store's result order.
func ContextLine(rank int, meta map[string]any) string {
	return fmt.Sprintf("%d. %v (%v) - %v - ⭐ %v",
		rank, meta["title"], meta["year"], meta["genres"], meta["rating"])
}
