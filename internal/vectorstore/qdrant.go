package vectorstore

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/medrag/internal/model"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	defaultQdrantPort       = 6334
	defaultQdrantCollection = "medrag"

	payloadRecordID = "record_id"
)

type qdrantConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Collection string `json:"collection"`
	APIKey     string `json:"api_key"`
	UseTLS     bool   `json:"use_tls"`
	// VectorSize creates the collection eagerly. When 0 the collection is
	// created on first upsert with the size of the first vector.
	VectorSize int `json:"vector_size"`
}

type qdrantBackend struct {
	conn        *grpc.ClientConn
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	collection  string
	apiKey      string

	mu    sync.Mutex
	ready bool
	size  int
}

func init() {
	Register("qdrant", createQdrantBackend)
}

func createQdrantBackend(args interface{}, deps Deps) (Backend, error) {
	cfg := &qdrantConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = defaultQdrantPort
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultQdrantCollection
	}
	creds := insecure.NewCredentials()
	if cfg.UseTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	conn, err := grpc.NewClient(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	return newQdrantBackend(conn, cfg.Collection, strings.TrimSpace(cfg.APIKey), cfg.VectorSize), nil
}

func newQdrantBackend(conn *grpc.ClientConn, collection, apiKey string, size int) *qdrantBackend {
	return &qdrantBackend{
		conn:        conn,
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
		collection:  collection,
		apiKey:      apiKey,
		size:        size,
	}
}

func (q *qdrantBackend) Close() error {
	return q.conn.Close()
}

func (q *qdrantBackend) withAuth(ctx context.Context) context.Context {
	if q.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", q.apiKey)
}

func (q *qdrantBackend) ensureCollection(ctx context.Context, size int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ready {
		return nil
	}
	if q.size > 0 {
		size = q.size
	}
	list, err := q.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			q.ready = true
			return nil
		}
	}
	logutil.GetLogger(ctx).Info("creating qdrant collection",
		zap.String("collection", q.collection), zap.Int("size", size))
	_, err = q.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(size),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("create collection: %w", err)
	}
	q.ready = true
	return nil
}

func (q *qdrantBackend) Upsert(ctx context.Context, records []model.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx = q.withAuth(ctx)
	if err := q.ensureCollection(ctx, len(records[0].Values)); err != nil {
		return err
	}
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		points = append(points, &qdrant.PointStruct{
			Id: &qdrant.PointId{
				PointIdOptions: &qdrant.PointId_Uuid{Uuid: pointID(r.ID)},
			},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{
					Vector: &qdrant.Vector{Data: r.Values},
				},
			},
			Payload: toPayload(r),
		})
	}
	wait := true
	_, err := q.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	return err
}

func (q *qdrantBackend) Query(ctx context.Context, vector []float32, topK int) ([]model.VectorMatch, error) {
	ctx = q.withAuth(ctx)
	resp, err := q.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return []model.VectorMatch{}, nil
		}
		return nil, err
	}
	out := make([]model.VectorMatch, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		out = append(out, model.VectorMatch{
			Score:    float64(p.GetScore()),
			Metadata: fromPayload(p.GetPayload()),
		})
	}
	return out, nil
}

func (q *qdrantBackend) DeleteByTitle(ctx context.Context, title string) error {
	ctx = q.withAuth(ctx)
	wait := true
	_, err := q.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{{
						ConditionOneOf: &qdrant.Condition_Field{
							Field: &qdrant.FieldCondition{
								Key: "title",
								Match: &qdrant.Match{
									MatchValue: &qdrant.Match_Keyword{Keyword: title},
								},
							},
						},
					}},
				},
			},
		},
	})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// pointID maps a record id onto the UUID space Qdrant requires. The
// mapping is deterministic so re-upserting a record overwrites it.
func pointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(recordID)).String()
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func toPayload(r model.VectorRecord) map[string]*qdrant.Value {
	categories := make([]*qdrant.Value, 0, len(r.Metadata.Category))
	for _, c := range r.Metadata.Category {
		categories = append(categories, stringValue(c))
	}
	return map[string]*qdrant.Value{
		payloadRecordID:   stringValue(r.ID),
		"title":           stringValue(r.Metadata.Title),
		"author":          stringValue(r.Metadata.Author),
		"source":          stringValue(r.Metadata.Source),
		"publishDate":     stringValue(r.Metadata.PublishDate),
		"url":             stringValue(r.Metadata.URL),
		"text":            stringValue(r.Metadata.Text),
		"isTextTruncated": {Kind: &qdrant.Value_BoolValue{BoolValue: r.Metadata.IsTextTruncated}},
		"category":        {Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: categories}}},
	}
}

func fromPayload(p map[string]*qdrant.Value) model.RecordMetadata {
	var md model.RecordMetadata
	md.Title = p["title"].GetStringValue()
	md.Author = p["author"].GetStringValue()
	md.Source = p["source"].GetStringValue()
	md.PublishDate = p["publishDate"].GetStringValue()
	md.URL = p["url"].GetStringValue()
	md.Text = p["text"].GetStringValue()
	md.IsTextTruncated = p["isTextTruncated"].GetBoolValue()
	for _, v := range p["category"].GetListValue().GetValues() {
		md.Category = append(md.Category, v.GetStringValue())
	}
	return md
}
