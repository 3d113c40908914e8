package semantic

import (
	"testing"
)

func TestPayloadRoundTrip(t *testing.T) {
	meta := map[string]any{
		"id":     "tt1",
		"title":  "Alpha",
		"year":   "2001",
		"genres": "Action",
		"rating": 8.1,
		"votes":  int64(90000),
	}

	got := fromPayload(toPayload(meta))

	if got["title"] != "Alpha" || got["year"] != "2001" || got["genres"] != "Action" {
		t.Errorf("string fields mangled: %v", got)
	}
	if got["rating"] != 8.1 {
		t.Errorf("rating = %v (%T), want 8.1 (float64)", got["rating"], got["rating"])
	}
	if got["votes"] != int64(90000) {
		t.Errorf("votes = %v (%T), want 90000 (int64)", got["votes"], got["votes"])
	}
}

func TestToPayloadIntWidening(t *testing.T) {
	p := toPayload(map[string]any{"votes": 42})
	if p["votes"].GetIntegerValue() != 42 {
		t.Errorf("int not widened to integer value: %v", p["votes"])
	}
}
