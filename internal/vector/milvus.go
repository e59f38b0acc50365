package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MilvusConfig holds connection settings for a Milvus server.
type MilvusConfig struct {
	Address  string
	Username string
	Password string
	DBName   string
}

const (
	milvusFieldID         = "id"
	milvusFieldVector     = "vector"
	milvusFieldTenantID   = "tenant_id"
	milvusFieldEntityType = "entity_type"
	milvusFieldEntityID   = "entity_id"
	milvusFieldPayload    = "payload"
)

// promoted payload keys get their own scalar columns so filters on them use plain expressions.
var milvusScalarFields = map[string]bool{
	milvusFieldTenantID:   true,
	milvusFieldEntityType: true,
	milvusFieldEntityID:   true,
}

// MilvusStore stores points in Milvus collections with a cosine AUTOINDEX.
type MilvusStore struct {
	cli  mclient.Client
	dims map[string]int
}

// NewMilvusStore connects to Milvus.
func NewMilvusStore(ctx context.Context, cfg MilvusConfig) (*MilvusStore, error) {
	dbName := strings.TrimSpace(cfg.DBName)
	if dbName == "" {
		dbName = "default"
	}
	cli, err := mclient.NewClient(ctx, mclient.Config{
		Address:  strings.TrimSpace(cfg.Address),
		Username: strings.TrimSpace(cfg.Username),
		Password: strings.TrimSpace(cfg.Password),
		DBName:   dbName,
	})
	if err != nil {
		return nil, unavailable("connect milvus", err)
	}
	return &MilvusStore{cli: cli, dims: make(map[string]int)}, nil
}

// EnsureCollection creates, indexes and loads the collection when it does not exist.
func (s *MilvusStore) EnsureCollection(ctx context.Context, collection string, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	exists, err := s.cli.HasCollection(ctx, collection)
	if err != nil {
		return unavailable("has collection", err)
	}
	if !exists {
		schema := &entity.Schema{
			CollectionName: collection,
			Description:    "tenant knowledge vectors",
			Fields: []*entity.Field{
				{
					Name:       milvusFieldID,
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					TypeParams: map[string]string{"max_length": "128"},
				},
				{
					Name:       milvusFieldVector,
					DataType:   entity.FieldTypeFloatVector,
					TypeParams: map[string]string{entity.TypeParamDim: strconv.Itoa(dimensions)},
				},
				{Name: milvusFieldTenantID, DataType: entity.FieldTypeInt64},
				{
					Name:       milvusFieldEntityType,
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "64"},
				},
				{Name: milvusFieldEntityID, DataType: entity.FieldTypeInt64},
				{Name: milvusFieldPayload, DataType: entity.FieldTypeJSON},
			},
		}
		if err := s.cli.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return unavailable("create collection", err)
		}
		idx, err := entity.NewIndexAUTOINDEX(entity.COSINE)
		if err != nil {
			return err
		}
		if err := s.cli.CreateIndex(ctx, collection, milvusFieldVector, idx, false); err != nil {
			return unavailable("create index", err)
		}
	}
	if err := s.cli.LoadCollection(ctx, collection, false); err != nil {
		return unavailable("load collection", err)
	}
	s.dims[collection] = dimensions
	return nil
}

// Upsert writes points column by column.
func (s *MilvusStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	dim := len(points[0].Vector)
	ids := make([]string, 0, len(points))
	vectors := make([][]float32, 0, len(points))
	tenantIDs := make([]int64, 0, len(points))
	entityTypes := make([]string, 0, len(points))
	entityIDs := make([]int64, 0, len(points))
	payloads := make([][]byte, 0, len(points))
	for _, p := range points {
		if len(p.Vector) != dim {
			return fmt.Errorf("vector dimension mismatch for %s: got %d, expected %d", p.ID, len(p.Vector), dim)
		}
		data, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("encode payload for %s: %w", p.ID, err)
		}
		ids = append(ids, p.ID)
		vectors = append(vectors, p.Vector)
		tenantIDs = append(tenantIDs, PayloadInt64(p.Payload, milvusFieldTenantID))
		entityTypes = append(entityTypes, PayloadString(p.Payload, milvusFieldEntityType))
		entityIDs = append(entityIDs, PayloadInt64(p.Payload, milvusFieldEntityID))
		payloads = append(payloads, data)
	}
	_, err := s.cli.Upsert(
		ctx,
		collection,
		"",
		entity.NewColumnVarChar(milvusFieldID, ids),
		entity.NewColumnFloatVector(milvusFieldVector, dim, vectors),
		entity.NewColumnInt64(milvusFieldTenantID, tenantIDs),
		entity.NewColumnVarChar(milvusFieldEntityType, entityTypes),
		entity.NewColumnInt64(milvusFieldEntityID, entityIDs),
		entity.NewColumnJSONBytes(milvusFieldPayload, payloads),
	)
	if err != nil {
		return unavailable("upsert points", err)
	}
	return nil
}

// DeleteByIDs removes points by primary key.
func (s *MilvusStore) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	expr := fmt.Sprintf("%s in [%s]", milvusFieldID, strings.Join(quoted, ","))
	if err := s.cli.Delete(ctx, collection, "", expr); err != nil {
		return unavailable("delete points", err)
	}
	return nil
}

// DeleteByFilter removes every point matching filter.
func (s *MilvusStore) DeleteByFilter(ctx context.Context, collection string, filter Filter) error {
	expr := milvusExpr(filter)
	if expr == "" {
		return ErrEmptyFilter
	}
	if err := s.cli.Delete(ctx, collection, "", expr); err != nil {
		return unavailable("delete points by filter", err)
	}
	return nil
}

// Search runs a filtered cosine query. Milvus has no score threshold parameter for
// AUTOINDEX, so ScoreFloor is applied to the returned hits.
func (s *MilvusStore) Search(ctx context.Context, collection string, req SearchRequest) ([]Hit, error) {
	if dim, ok := s.dims[collection]; ok && len(req.Vector) != dim {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(req.Vector), dim)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, err
	}
	res, err := s.cli.Search(
		ctx,
		collection,
		[]string{},
		milvusExpr(req.Filter),
		[]string{milvusFieldPayload},
		[]entity.Vector{entity.FloatVector(req.Vector)},
		milvusFieldVector,
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		return nil, unavailable("search", err)
	}
	if len(res) == 0 {
		return []Hit{}, nil
	}
	hits, err := parseMilvusResult(res[0])
	if err != nil {
		return nil, unavailable("search", err)
	}
	out := hits[:0]
	for _, h := range hits {
		if h.Score >= req.ScoreFloor {
			out = append(out, h)
		}
	}
	return out, nil
}

// Close closes the client connection.
func (s *MilvusStore) Close() error {
	return s.cli.Close()
}

func parseMilvusResult(sr mclient.SearchResult) ([]Hit, error) {
	if sr.Err != nil {
		return nil, sr.Err
	}
	payloadCol := columnByName(sr.Fields, milvusFieldPayload)
	hits := make([]Hit, 0, sr.ResultCount)
	for i := 0; i < sr.ResultCount; i++ {
		id, _ := sr.IDs.GetAsString(i)
		h := Hit{ID: id}
		if i < len(sr.Scores) {
			h.Score = float64(sr.Scores[i])
		}
		if payloadCol != nil {
			v, _ := payloadCol.Get(i)
			if bs, ok := v.([]byte); ok {
				h.Payload = decodePayload(bs)
			}
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func decodePayload(data []byte) map[string]any {
	payload := make(map[string]any)
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	_ = dec.Decode(&payload)
	return payload
}

func columnByName(cols mclient.ResultSet, name string) entity.Column {
	for _, c := range cols {
		if c != nil && c.Name() == name {
			return c
		}
	}
	return nil
}

// milvusExpr renders a filter as a boolean expression. Promoted fields are compared
// directly; anything else is looked up inside the JSON payload column.
func milvusExpr(f Filter) string {
	parts := make([]string, 0, len(f.Must))
	for _, c := range f.Must {
		field := fmt.Sprintf("%s[%s]", milvusFieldPayload, strconv.Quote(c.Key))
		if milvusScalarFields[c.Key] {
			field = c.Key
		}
		parts = append(parts, field+" == "+milvusLiteral(c.Value))
	}
	return strings.Join(parts, " && ")
}

func milvusLiteral(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case bool:
		return strconv.FormatBool(x)
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprint(x)
	case float32, float64, json.Number:
		return fmt.Sprint(x)
	default:
		return strconv.Quote(fmt.Sprint(x))
	}
}
