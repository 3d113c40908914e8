package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cinerag/cinerag/engine/domain"
	"github.com/cinerag/cinerag/engine/rag"
)

type stubAnswerer struct {
	ans *rag.Answer
	err error
}

func (s *stubAnswerer) Answer(_ context.Context, question string) (*rag.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.NewValidationError("question", question, domain.ErrInvalidInput)
	}
	return s.ans, s.err
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func postQuery(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/query", strings.NewReader(body))
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleQuery_Success(t *testing.T) {
	svc := &stubAnswerer{ans: &rag.Answer{
		Text:    "Watch Alpha.",
		Matches: []rag.Match{{ID: "tt1", Title: "Alpha", Year: "2001", Genres: "Action", Rating: 8.1, Score: 0.95}},
	}}

	rec := postQuery(t, handleQuery(svc, testLogger), `{"query":"best action movie"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "Watch Alpha." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].Title != "Alpha" {
		t.Errorf("matches = %+v", resp.Matches)
	}
}

func TestHandleQuery_MissingQuery(t *testing.T) {
	svc := &stubAnswerer{ans: &rag.Answer{Text: "should not matter"}}

	for _, body := range []string{`{}`, `{"query":""}`, `{"query":"   "}`} {
		rec := postQuery(t, handleQuery(svc, testLogger), body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestHandleQuery_MalformedBody(t *testing.T) {
	rec := postQuery(t, handleQuery(&stubAnswerer{}, testLogger), `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleQuery_InternalError(t *testing.T) {
	svc := &stubAnswerer{err: fmt.Errorf("rag: search: %w", domain.ErrRetrievalFailed)}

	rec := postQuery(t, handleQuery(svc, testLogger), `{"query":"anything"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["error"] == "" {
		t.Error("error body missing")
	}
}

func TestHandleRoot(t *testing.T) {
	rec := httptest.NewRecorder()
	handleRoot(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Errorf("unexpected readiness response: %d %q", rec.Code, rec.Body.String())
	}
}
