// Package qdrant implements the vector store port using Qdrant.
//
// All tenants share one collection. The adapter stamps tenant_id into
// every payload on write and injects a mandatory tenant_id filter on
// every query, so tenant isolation holds even if a caller passes a
// foreign filter.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/stayline/concierge/internal/domain"
	"github.com/stayline/concierge/internal/port/vectorstore"
)

const (
	payloadTenantID = "tenant_id"
	payloadRecordID = "record_id"
	payloadText     = "text"
)

// Config holds Qdrant connection configuration.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	VectorSize int
}

// Store implements vectorstore.Store for Qdrant.
type Store struct {
	client     *qdrant.Client
	collection string
}

// New creates a Qdrant-backed store and ensures the collection exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}

	raw := cfg.URL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant url: %w", err)
	}

	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	s := &Store{client: client, collection: cfg.Collection}
	if err := s.ensureCollection(ctx, cfg.VectorSize); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context, vectorSize int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	return nil
}

// Upsert writes records into the tenant namespace in one batch. Point
// ids are derived deterministically from the record id, so re-ingesting
// the same doc overwrites rather than duplicates.
func (s *Store) Upsert(ctx context.Context, namespace string, records []vectorstore.Record) error {
	if namespace == "" {
		return fmt.Errorf("%w: namespace is required", domain.ErrValidation)
	}
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, rec := range records {
		payload := make(map[string]any, len(rec.Metadata)+2)
		for k, v := range rec.Metadata {
			payload[k] = v
		}
		payload[payloadTenantID] = namespace
		payload[payloadRecordID] = rec.ID

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(rec.ID)),
			Vectors: qdrant.NewVectors(rec.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("%w: qdrant upsert: %w", domain.ErrRetrieval, err)
	}
	return nil
}

// Query returns up to topK nearest records within the tenant namespace.
func (s *Store) Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]any) ([]vectorstore.QueryResult, error) {
	if namespace == "" {
		return nil, fmt.Errorf("%w: namespace is required", domain.ErrValidation)
	}

	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		Filter:         buildFilter(namespace, filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant query: %w", domain.ErrRetrieval, err)
	}

	results := make([]vectorstore.QueryResult, 0, len(points))
	for _, point := range points {
		res := vectorstore.QueryResult{
			Score:    point.Score,
			Metadata: make(map[string]any),
		}
		for k, v := range point.Payload {
			switch k {
			case payloadRecordID:
				res.ID = v.GetStringValue()
			case payloadText:
				// Missing or malformed text defaults to "".
				res.Text = v.GetStringValue()
			default:
				res.Metadata[k] = extractValue(v)
			}
		}
		if res.ID == "" && point.Id != nil {
			res.ID = point.Id.GetUuid()
		}
		results = append(results, res)
	}
	return results, nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// PointID derives the deterministic Qdrant point UUID for a record id.
// Qdrant only accepts numeric or UUID point ids, so the human-readable
// "{docID}-{chunkIndex}" id lives in the payload and the point id is its
// UUIDv5 digest.
func PointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(recordID)).String()
}

// buildFilter returns the mandatory tenant condition plus any metadata
// equality conditions from filter.
func buildFilter(namespace string, filter map[string]any) *qdrant.Filter {
	conditions := []*qdrant.Condition{
		matchCondition(payloadTenantID, namespace),
	}
	for k, v := range filter {
		if k == payloadTenantID {
			continue
		}
		conditions = append(conditions, matchCondition(k, v))
	}
	return &qdrant.Filter{Must: conditions}
}

func matchCondition(key string, value any) *qdrant.Condition {
	var match *qdrant.Match
	switch v := value.(type) {
	case string:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
	case int:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
	case int64:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}
	case bool:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
	default:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: fmt.Sprintf("%v", v)}}
	}
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{Key: key, Match: match},
		},
	}
}

// extractValue converts a Qdrant payload value to a Go value.
func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}

// Compile-time check that Store implements the port.
var _ vectorstore.Store = (*Store)(nil)
