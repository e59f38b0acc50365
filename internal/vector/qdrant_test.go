package vector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	APIKey string
	Body   map[string]any
}

func newQdrantServer(t *testing.T, handler func(r recordedRequest) (int, any)) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.RequestURI(), APIKey: r.Header.Get("api-key")}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()
		status, body := handler(rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func TestQdrantStore_EnsureCollectionCreatesWhenMissing(t *testing.T) {
	srv, reqs := newQdrantServer(t, func(r recordedRequest) (int, any) {
		if r.Method == http.MethodGet {
			return http.StatusNotFound, map[string]any{"status": map[string]any{"error": "not found"}}
		}
		return http.StatusOK, map[string]any{"result": true}
	})
	s := NewQdrantStore(QdrantConfig{URL: srv.URL + "/", APIKey: "secret"})

	if err := s.EnsureCollection(context.Background(), "tenant_knowledge", 4); err != nil {
		t.Fatal(err)
	}
	if len(*reqs) != 2 {
		t.Fatalf("expected GET then PUT, got %d requests", len(*reqs))
	}
	put := (*reqs)[1]
	if put.Method != http.MethodPut || put.Path != "/collections/tenant_knowledge" {
		t.Errorf("got %s %s", put.Method, put.Path)
	}
	if put.APIKey != "secret" {
		t.Errorf("api-key header = %q", put.APIKey)
	}
	vectors, _ := put.Body["vectors"].(map[string]any)
	if vectors["size"] != float64(4) || vectors["distance"] != "Cosine" {
		t.Errorf("vectors config = %v", vectors)
	}
}

func TestQdrantStore_EnsureCollectionExisting(t *testing.T) {
	srv, reqs := newQdrantServer(t, func(r recordedRequest) (int, any) {
		return http.StatusOK, map[string]any{"result": map[string]any{}}
	})
	s := NewQdrantStore(QdrantConfig{URL: srv.URL})
	if err := s.EnsureCollection(context.Background(), "kb", 4); err != nil {
		t.Fatal(err)
	}
	if len(*reqs) != 1 {
		t.Errorf("existing collection should not be re-created, got %d requests", len(*reqs))
	}
}

func TestQdrantStore_SearchSendsFilterAndThreshold(t *testing.T) {
	srv, reqs := newQdrantServer(t, func(r recordedRequest) (int, any) {
		return http.StatusOK, map[string]any{
			"result": []map[string]any{
				{"id": "a1", "score": 0.91, "payload": map[string]any{"type": "faq", "entity_id": 3}},
			},
		}
	})
	s := NewQdrantStore(QdrantConfig{URL: srv.URL})

	hits, err := s.Search(context.Background(), "kb", SearchRequest{
		Vector:     []float32{0.1, 0.2},
		Filter:     Match("tenant_id", int64(9)),
		Limit:      5,
		ScoreFloor: 0.3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "a1" || hits[0].Score != 0.91 {
		t.Fatalf("hits = %+v", hits)
	}
	if PayloadInt64(hits[0].Payload, "entity_id") != 3 {
		t.Errorf("payload = %v", hits[0].Payload)
	}

	req := (*reqs)[0]
	if req.Path != "/collections/kb/points/search" {
		t.Errorf("path = %s", req.Path)
	}
	if req.Body["score_threshold"] != 0.3 || req.Body["limit"] != float64(5) || req.Body["with_payload"] != true {
		t.Errorf("body = %v", req.Body)
	}
	filter, _ := req.Body["filter"].(map[string]any)
	must, _ := filter["must"].([]any)
	if len(must) != 1 {
		t.Fatalf("filter = %v", req.Body["filter"])
	}
	cond := must[0].(map[string]any)
	match := cond["match"].(map[string]any)
	if cond["key"] != "tenant_id" || match["value"] != float64(9) {
		t.Errorf("condition = %v", cond)
	}
}

func TestQdrantStore_DeleteByFilter(t *testing.T) {
	srv, reqs := newQdrantServer(t, func(r recordedRequest) (int, any) {
		return http.StatusOK, map[string]any{"result": map[string]any{"status": "completed"}}
	})
	s := NewQdrantStore(QdrantConfig{URL: srv.URL})
	ctx := context.Background()

	if err := s.DeleteByFilter(ctx, "kb", Match("entity_type", "tenant_document", "entity_id", int64(4))); err != nil {
		t.Fatal(err)
	}
	if (*reqs)[0].Path != "/collections/kb/points/delete?wait=true" {
		t.Errorf("path = %s", (*reqs)[0].Path)
	}
	if _, ok := (*reqs)[0].Body["filter"]; !ok {
		t.Error("filter missing from delete body")
	}
	if err := s.DeleteByFilter(ctx, "kb", Filter{}); err == nil {
		t.Error("empty filter should be rejected")
	}
}

func TestQdrantStore_ErrorsAreUnavailable(t *testing.T) {
	srv, _ := newQdrantServer(t, func(r recordedRequest) (int, any) {
		return http.StatusInternalServerError, map[string]any{"status": map[string]any{"error": "boom"}}
	})
	s := NewQdrantStore(QdrantConfig{URL: srv.URL})

	err := s.Upsert(context.Background(), "kb", []Point{{ID: PointID("faq_1"), Vector: []float32{1}}})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error should carry the server message: %v", err)
	}

	closed := NewQdrantStore(QdrantConfig{URL: "http://127.0.0.1:1"})
	if _, err := closed.Search(context.Background(), "kb", SearchRequest{Vector: []float32{1}, Limit: 1}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("unreachable server: expected ErrUnavailable, got %v", err)
	}
}
