// Package vector provides the vector store contract and its memory, Qdrant and Milvus backends.
package vector

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// ErrUnavailable wraps every failure to reach or use a vector store backend.
var ErrUnavailable = errors.New("vector store unavailable")

// ErrEmptyFilter is returned by DeleteByFilter when the filter has no conditions.
var ErrEmptyFilter = errors.New("delete by filter requires at least one condition")

// Store persists points and answers filtered nearest-neighbour queries.
type Store interface {
	// EnsureCollection creates the collection with the given vector size if it does not exist.
	EnsureCollection(ctx context.Context, collection string, dimensions int) error
	// Upsert inserts or replaces points by ID.
	Upsert(ctx context.Context, collection string, points []Point) error
	// DeleteByIDs removes points by ID. Unknown IDs are ignored.
	DeleteByIDs(ctx context.Context, collection string, ids []string) error
	// DeleteByFilter removes every point whose payload matches filter. An empty
	// filter fails with ErrEmptyFilter.
	DeleteByFilter(ctx context.Context, collection string, filter Filter) error
	// Search returns up to req.Limit hits ordered by descending similarity.
	Search(ctx context.Context, collection string, req SearchRequest) ([]Hit, error)
	Close() error
}

// Point is a vector with its payload. ID must be a UUID string.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Condition matches points whose payload value at Key equals Value.
type Condition struct {
	Key   string
	Value any
}

// Filter is a conjunction of equality conditions.
type Filter struct {
	Must []Condition
}

// Match builds a filter from alternating key, value pairs.
func Match(kv ...any) Filter {
	var f Filter
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		f.Must = append(f.Must, Condition{Key: key, Value: kv[i+1]})
	}
	return f
}

// SearchRequest describes a similarity query.
type SearchRequest struct {
	Vector     []float32
	Filter     Filter
	Limit      int
	ScoreFloor float64
}

// Hit is one search result.
type Hit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// PointID maps a logical point name such as "faq_12" or "doc_3_chunk_0" to the UUID
// used as the point's ID. The mapping is the MD5 digest of the name laid out as a UUID,
// so the same name always addresses the same point.
func PointID(name string) string {
	sum := md5.Sum([]byte(name))
	id, err := uuid.FromBytes(sum[:])
	if err != nil {
		// FromBytes only fails on a length other than 16
		panic(err)
	}
	return id.String()
}

// PayloadString returns the string stored at key, or "".
func PayloadString(p map[string]any, key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// PayloadInt64 returns the integer stored at key. JSON round trips turn integers
// into float64 or json.Number; both are handled.
func PayloadInt64(p map[string]any, key string) int64 {
	switch v := p[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// Matches reports whether payload satisfies every condition of f.
func (f Filter) Matches(payload map[string]any) bool {
	for _, c := range f.Must {
		v, ok := payload[c.Key]
		if !ok || !sameValue(v, c.Value) {
			return false
		}
	}
	return true
}

// sameValue compares payload values loosely so 7, int64(7) and 7.0 are equal.
func sameValue(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
