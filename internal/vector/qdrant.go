package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// QdrantConfig holds connection settings for a Qdrant REST endpoint.
type QdrantConfig struct {
	URL            string
	APIKey         string
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

// QdrantStore is a minimal REST client to Qdrant. Collections use cosine distance.
type QdrantStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewQdrantStore returns a client for the Qdrant instance at cfg.URL.
func NewQdrantStore(cfg QdrantConfig) *QdrantStore {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	connect := cfg.ConnectTimeout
	if connect == 0 {
		connect = 2 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect}).DialContext
	return &QdrantStore{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout, Transport: transport},
	}
}

type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

type qdrantCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value any `json:"value"`
	} `json:"match"`
}

func toQdrantFilter(f Filter) *qdrantFilter {
	if len(f.Must) == 0 {
		return nil
	}
	qf := &qdrantFilter{Must: make([]qdrantCondition, len(f.Must))}
	for i, c := range f.Must {
		qf.Must[i].Key = c.Key
		qf.Must[i].Match.Value = c.Value
	}
	return qf
}

// EnsureCollection creates the collection when Qdrant reports it missing.
func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(collection), nil, nil)
	if err != nil && status != http.StatusNotFound {
		return unavailable("get collection", err)
	}
	if status == http.StatusOK {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(collection), body, nil); err != nil {
		return unavailable("create collection", err)
	}
	return nil
}

// Upsert writes points and waits for them to be applied.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": points}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(collection)+"/points?wait=true", body, nil); err != nil {
		return unavailable("upsert points", err)
	}
	return nil
}

// DeleteByIDs removes points by ID.
func (s *QdrantStore) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL(collection)+"/points/delete?wait=true", body, nil); err != nil {
		return unavailable("delete points", err)
	}
	return nil
}

// DeleteByFilter removes every point matching filter. An empty filter is rejected
// so a missing condition can never wipe a collection.
func (s *QdrantStore) DeleteByFilter(ctx context.Context, collection string, filter Filter) error {
	qf := toQdrantFilter(filter)
	if qf == nil {
		return ErrEmptyFilter
	}
	body := map[string]any{"filter": qf}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL(collection)+"/points/delete?wait=true", body, nil); err != nil {
		return unavailable("delete points by filter", err)
	}
	return nil
}

// Search runs a filtered similarity query.
func (s *QdrantStore) Search(ctx context.Context, collection string, req SearchRequest) ([]Hit, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	body := map[string]any{
		"vector":       req.Vector,
		"limit":        limit,
		"with_payload": true,
	}
	if req.ScoreFloor > 0 {
		body["score_threshold"] = req.ScoreFloor
	}
	if qf := toQdrantFilter(req.Filter); qf != nil {
		body["filter"] = qf
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL(collection)+"/points/search", body, &resp); err != nil {
		return nil, unavailable("search", err)
	}
	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, Hit{ID: fmt.Sprint(r.ID), Score: r.Score, Payload: r.Payload})
	}
	return hits, nil
}

// Close releases idle connections.
func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *QdrantStore) collectionURL(collection string) string {
	return s.baseURL + "/collections/" + url.PathEscape(collection)
}

// do sends a JSON request and decodes the JSON response into out when non-nil.
// The HTTP status is returned alongside any error.
func (s *QdrantStore) do(ctx context.Context, method, target string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s %s", method, target, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		if err := dec.Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
