package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/kotae/pkg/utils"
)

// MemoryStore is an in-process Store using brute-force cosine search.
// Suitable for tests, single-node deployments and small tenants.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	path        string
}

type memoryCollection struct {
	Dimensions int              `json:"dimensions"`
	Points     map[string]Point `json:"points"`
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

// EnsureCollection creates the collection if needed. An existing collection with a
// different vector size is an error.
func (m *MemoryStore) EnsureCollection(ctx context.Context, collection string, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.collections[collection]; ok {
		if c.Dimensions != dimensions {
			return fmt.Errorf("collection %q has %d dimensions, want %d", collection, c.Dimensions, dimensions)
		}
		return nil
	}
	m.collections[collection] = &memoryCollection{Dimensions: dimensions, Points: make(map[string]Point)}
	return nil
}

// Upsert stores copies of the points, replacing any with the same ID.
func (m *MemoryStore) Upsert(ctx context.Context, collection string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.collectionLocked(collection)
	if err != nil {
		return err
	}
	for _, p := range points {
		if len(p.Vector) != c.Dimensions {
			return fmt.Errorf("vector dimension mismatch for %s: got %d, expected %d", p.ID, len(p.Vector), c.Dimensions)
		}
	}
	for _, p := range points {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		payload := make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = v
		}
		c.Points[p.ID] = Point{ID: p.ID, Vector: vec, Payload: payload}
	}
	return nil
}

// DeleteByIDs removes the given points.
func (m *MemoryStore) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.collectionLocked(collection)
	if err != nil {
		return err
	}
	for _, id := range ids {
		delete(c.Points, id)
	}
	return nil
}

// DeleteByFilter removes every point matching filter.
func (m *MemoryStore) DeleteByFilter(ctx context.Context, collection string, filter Filter) error {
	if len(filter.Must) == 0 {
		return ErrEmptyFilter
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.collectionLocked(collection)
	if err != nil {
		return err
	}
	for id, p := range c.Points {
		if filter.Matches(p.Payload) {
			delete(c.Points, id)
		}
	}
	return nil
}

// Search scores every matching point by cosine similarity.
func (m *MemoryStore) Search(ctx context.Context, collection string, req SearchRequest) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.collectionLocked(collection)
	if err != nil {
		return nil, err
	}
	if len(req.Vector) != c.Dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(req.Vector), c.Dimensions)
	}
	if req.Limit <= 0 {
		return nil, nil
	}
	hits := make([]Hit, 0)
	for _, p := range c.Points {
		if !req.Filter.Matches(p.Payload) {
			continue
		}
		score := utils.Cosine(req.Vector, p.Vector)
		if score < req.ScoreFloor {
			continue
		}
		hits = append(hits, Hit{ID: p.ID, Score: score, Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

// Count returns the number of points in collection matching filter.
func (m *MemoryStore) Count(collection string, filter Filter) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return 0
	}
	n := 0
	for _, p := range c.Points {
		if filter.Matches(p.Payload) {
			n++
		}
	}
	return n
}

// Save writes all collections to path as JSON. The directory is created if needed.
func (m *MemoryStore) Save(path string) error {
	m.mu.RLock()
	data, err := json.Marshal(m.collections)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode memory store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write memory store: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load replaces the store content with a snapshot written by Save.
func (m *MemoryStore) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	collections := make(map[string]*memoryCollection)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&collections); err != nil {
		return fmt.Errorf("decode memory store: %w", err)
	}
	for _, c := range collections {
		if c.Points == nil {
			c.Points = make(map[string]Point)
		}
	}
	m.mu.Lock()
	m.collections = collections
	m.mu.Unlock()
	return nil
}

// OpenMemoryStore returns a store backed by a snapshot file at path. An existing
// snapshot is loaded; Close writes the current content back.
func OpenMemoryStore(path string) (*MemoryStore, error) {
	m := NewMemoryStore()
	m.path = path
	if err := m.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return m, nil
}

// Close saves the snapshot when the store was opened with a path.
func (m *MemoryStore) Close() error {
	if m.path == "" {
		return nil
	}
	return m.Save(m.path)
}

func (m *MemoryStore) collectionLocked(name string) (*memoryCollection, error) {
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %q not found", name)
	}
	return c, nil
}
