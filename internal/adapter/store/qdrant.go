package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"voiceagent/internal/domain"
	"voiceagent/internal/port"
)

// Payload keys written to every Qdrant point.
const (
	payloadChunkKey    = "chunk_key"
	payloadContent     = "content"
	payloadSource      = "source"
	payloadSourceID    = "source_id"
	payloadChunkID     = "chunk_id"
	payloadTotalChunks = "total_chunks"
)

// pointNamespace seeds the deterministic point ids; Qdrant only accepts
// integers or UUIDs as point ids.
var pointNamespace = uuid.MustParse("6f1c63a4-3f37-4c53-9a40-0d5a3c2b8e11")

// QdrantIndex implements port.VectorIndex against a Qdrant server over gRPC.
// ReplaceSource is a delete followed by an upsert and is not atomic.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dimension   int
}

var _ port.VectorIndex = (*QdrantIndex)(nil)

// NewQdrantIndex connects to Qdrant and creates the collection when it does
// not exist yet. dimension is only used for creation.
func NewQdrantIndex(ctx context.Context, host string, grpcPort int, collection string, dimension int) (*QdrantIndex, error) {
	if collection == "" {
		return nil, domain.ConfigurationError("open index", "collection name is empty")
	}
	if dimension <= 0 {
		return nil, domain.ConfigurationError("open index", "qdrant needs a positive vector dimension, got %d", dimension)
	}

	addr := fmt.Sprintf("%s:%d", host, grpcPort)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, domain.StoreError("open index", fmt.Errorf("qdrant connect: %w", err))
	}

	idx := &QdrantIndex{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dimension:   dimension,
	}
	if err := idx.ensureCollection(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return idx, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	resp, err := q.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: q.collection})
	if err != nil {
		return qdrantError("open index", err)
	}
	if resp.GetResult().GetExists() {
		return nil
	}

	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(q.dimension), Distance: pb.Distance_Cosine},
		}},
	})
	return qdrantError("create collection", err)
}

func (q *QdrantIndex) Collection() string {
	return q.collection
}

func (q *QdrantIndex) Upsert(ctx context.Context, items []port.VectorItem) error {
	if len(items) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(items))
	for i, item := range items {
		if len(item.Vector) != q.dimension {
			return domain.StoreError("upsert", fmt.Errorf("vector dimension mismatch: expected %d, got %d", q.dimension, len(item.Vector)))
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(q.collection, item.ID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: item.Vector}}},
			Payload: toPayload(item),
		}
	}

	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	return qdrantError("upsert", err)
}

func (q *QdrantIndex) ReplaceSource(ctx context.Context, sourceID string, items []port.VectorItem) error {
	if _, err := q.DeleteSource(ctx, sourceID); err != nil {
		return err
	}
	return q.Upsert(ctx, items)
}

func (q *QdrantIndex) Nearest(ctx context.Context, query []float32, k int) ([]port.VectorResult, error) {
	if k <= 0 {
		return nil, domain.ConfigurationError("nearest", "k must be positive, got %d", k)
	}

	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         query,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, qdrantError("nearest", err)
	}

	results := make([]port.VectorResult, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		r := fromPayload(pt.GetPayload())
		r.Score = float64(pt.GetScore())
		results = append(results, r)
	}
	return TopK(results, k), nil
}

func (q *QdrantIndex) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	filter := sourceFilter(sourceID)

	exact := true
	counted, err := q.points.Count(ctx, &pb.CountPoints{
		CollectionName: q.collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, qdrantError("delete source", err)
	}
	n := int(counted.GetResult().GetCount())
	if n == 0 {
		return 0, nil
	}

	wait := true
	_, err = q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter}},
	})
	if err != nil {
		return 0, qdrantError("delete source", err)
	}
	return n, nil
}

func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := q.points.Count(ctx, &pb.CountPoints{
		CollectionName: q.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, qdrantError("count", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// Info reports the configured dimension; Qdrant keeps no model name for us.
func (q *QdrantIndex) Info(ctx context.Context) (port.CollectionInfo, error) {
	count, err := q.Count(ctx)
	if err != nil {
		return port.CollectionInfo{}, err
	}
	return port.CollectionInfo{
		Name:      q.collection,
		Count:     count,
		Dimension: q.dimension,
	}, nil
}

// SetModel is a no-op for Qdrant.
func (q *QdrantIndex) SetModel(ctx context.Context, model string) error {
	return nil
}

func (q *QdrantIndex) Drop(ctx context.Context) error {
	_, err := q.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: q.collection})
	if err != nil {
		return qdrantError("drop", err)
	}
	return q.ensureCollection(ctx)
}

func (q *QdrantIndex) Close() error {
	return q.conn.Close()
}

func pointID(collection, chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(collection+"/"+chunkID)).String()
}

func toPayload(item port.VectorItem) map[string]*pb.Value {
	str := func(s string) *pb.Value { return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}} }
	num := func(n int) *pb.Value { return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(n)}} }

	return map[string]*pb.Value{
		payloadChunkKey:    str(item.ID),
		payloadContent:     str(item.Text),
		payloadSource:      str(item.Metadata.Source),
		payloadSourceID:    str(item.SourceID),
		payloadChunkID:     num(item.Metadata.ChunkID),
		payloadTotalChunks: num(item.Metadata.TotalChunks),
	}
}

func fromPayload(payload map[string]*pb.Value) port.VectorResult {
	return port.VectorResult{
		ID:   payload[payloadChunkKey].GetStringValue(),
		Text: payload[payloadContent].GetStringValue(),
		Metadata: domain.ChunkMetadata{
			Source:      payload[payloadSource].GetStringValue(),
			SourceID:    payload[payloadSourceID].GetStringValue(),
			ChunkID:     int(payload[payloadChunkID].GetIntegerValue()),
			TotalChunks: int(payload[payloadTotalChunks].GetIntegerValue()),
		},
	}
}

func sourceFilter(sourceID string) *pb.Filter {
	return &pb.Filter{Must: []*pb.Condition{{
		ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
			Key:   payloadSourceID,
			Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: sourceID}},
		}},
	}}}
}

func qdrantError(op string, err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return domain.NotFoundError(op, err)
	}
	return domain.StoreError(op, err)
}
