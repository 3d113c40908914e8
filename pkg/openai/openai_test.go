package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbed(t *testing.T) {
	var gotReq embedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "test-key", "text-embedding-3-small", 3)
	vec, err := c.Embed(context.Background(), "Alpha (2001) - Genres: Action")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("unexpected vector: %v", vec)
	}
	if gotReq.Model != "text-embedding-3-small" || gotReq.Dimensions != 3 {
		t.Errorf("model/dimensions not sent: %+v", gotReq)
	}
	if gotReq.Input != "Alpha (2001) - Genres: Action" {
		t.Errorf("input not sent verbatim: %q", gotReq.Input)
	}
}

func TestEmbedErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewEmbedClient(srv.URL, "k", "m", 3)
	if _, err := c.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestComplete(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "Watch Alpha."}},
			},
		})
	}))
	defer srv.Close()

	c := NewChatClient(srv.URL, "k", "gpt-4")
	text, err := c.Complete(context.Background(), "pick a movie")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "Watch Alpha." {
		t.Errorf("unexpected text %q", text)
	}
	if gotReq.Model != "gpt-4" || len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("unexpected request: %+v", gotReq)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := NewChatClient(srv.URL, "k", "gpt-4")
	if _, err := c.Complete(context.Background(), "p"); err == nil {
		t.Fatal("expected error on empty choices")
	}
}
