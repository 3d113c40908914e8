package semantic

// VectorRecord is a single entry to upsert: a deterministic point ID, the
// embedding, and the display metadata stored alongside it.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any
}

// SearchResult is a single similarity hit, in store-assigned order.
type SearchResult struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}
