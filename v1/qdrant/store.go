package qdrant

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/vectordb"
)

const (
	defaultBatchSize = 200  // points per upsert request
	maxChunkScroll   = 4096 // upper bound on chunks per document
)

const (
	kindDocument = "doc"
	kindChunk    = "chunk"
)

// pointNamespace seeds the deterministic point ids.
var pointNamespace = uuid.MustParse("6f1c5d1e-3b0a-4f7e-9c55-1d2e8b7a4c90")

// Store implements vectordb.Store with one Qdrant collection per (kind, encoder).
type Store struct {
	client *QdrantClient
	prefix string

	mu   sync.Mutex
	dims map[string]uint64 // known collections and their dimension
}

var _ vectordb.Store = (*Store)(nil)

// NewStore returns a store whose collections are named "<prefix>_<kind>_<encoder>".
func NewStore(client *QdrantClient, prefix string) *Store {
	if prefix == "" {
		prefix = "lexgraph"
	}
	return &Store{client: client, prefix: prefix, dims: make(map[string]uint64)}
}

// collectionName builds a valid collection name from the encoder id.
func (s *Store) collectionName(kind string, encoder corpus.EncoderID) string {
	var b strings.Builder
	for _, r := range string(encoder) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return s.prefix + "_" + kind + "_" + b.String()
}

func documentPointID(documentID string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(pointNamespace, []byte(documentID)).String())
}

func chunkPointID(documentID string, ordinal int) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%s#%d", documentID, ordinal))).String())
}

// collectionDim returns the dimension of an existing collection, or 0 if the
// collection does not exist.
func (s *Store) collectionDim(ctx context.Context, name string) (uint64, error) {
	s.mu.Lock()
	dim, ok := s.dims[name]
	s.mu.Unlock()
	if ok {
		return dim, nil
	}

	exists, err := s.client.api.CollectionExists(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("[Qdrant] failed to check collection '%s': %w", name, err)
	}
	if !exists {
		return 0, nil
	}

	info, err := s.client.api.GetCollectionInfo(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("[Qdrant] failed to get collection '%s': %w", name, err)
	}
	size := extractVectorSize(info)

	s.mu.Lock()
	s.dims[name] = size
	s.mu.Unlock()
	return size, nil
}

// ensureCollection creates the collection with dim if missing and rejects a
// dimension change of an existing one.
func (s *Store) ensureCollection(ctx context.Context, name string, dim uint64) error {
	existing, err := s.collectionDim(ctx, name)
	if err != nil {
		return err
	}
	if existing != 0 {
		if existing != dim {
			return fmt.Errorf("%w: collection '%s' has dimension %d, got %d", vectordb.ErrInvalidVector, name, existing, dim)
		}
		return nil
	}

	err = s.client.api.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dim,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("[Qdrant] failed to create collection '%s': %w", name, err)
	}

	wait := true
	_, err = s.client.api.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: name,
		FieldName:      payloadDocumentID,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("[Qdrant] failed to index document_id in '%s': %w", name, err)
	}

	s.mu.Lock()
	s.dims[name] = dim
	s.mu.Unlock()

	if s.client.logger != nil {
		s.client.logger.Info("Created Qdrant collection", nil, map[string]interface{}{
			"collection": name,
			"dimension":  dim,
		})
	}
	return nil
}

func (s *Store) UpsertDocumentVectors(ctx context.Context, encoder corpus.EncoderID, vectors []vectordb.DocumentVector) error {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0].Vector)
	points := make([]*qdrant.PointStruct, len(vectors))
	for i, v := range vectors {
		if len(v.Vector) == 0 || len(v.Vector) != dim {
			return fmt.Errorf("%w: vector %d has dimension %d, expected %d", vectordb.ErrInvalidVector, i, len(v.Vector), dim)
		}
		points[i] = &qdrant.PointStruct{
			Id:      documentPointID(v.DocumentID),
			Vectors: qdrant.NewVectors(v.Vector...),
			Payload: qdrant.NewValueMap(buildPayload(v.DocumentID, v.Metadata)),
		}
	}

	ctx, cancel := s.client.requestContext(ctx)
	defer cancel()

	name := s.collectionName(kindDocument, encoder)
	if err := s.ensureCollection(ctx, name, uint64(dim)); err != nil {
		return err
	}
	return s.upsert(ctx, name, points)
}

func (s *Store) ReplaceChunkVectors(ctx context.Context, documentID string, encoder corpus.EncoderID, vectors [][]float32) error {
	ctx, cancel := s.client.requestContext(ctx)
	defer cancel()

	name := s.collectionName(kindChunk, encoder)
	dim, err := s.collectionDim(ctx, name)
	if err != nil {
		return err
	}
	if dim != 0 {
		if err := s.deleteByDocument(ctx, name, documentID); err != nil {
			return err
		}
	}
	if len(vectors) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(vectors))
	for i, v := range vectors {
		if len(v) == 0 || len(v) != len(vectors[0]) {
			return fmt.Errorf("%w: chunk vector %d has dimension %d", vectordb.ErrInvalidVector, i, len(v))
		}
		points[i] = &qdrant.PointStruct{
			Id:      chunkPointID(documentID, i),
			Vectors: qdrant.NewVectors(v...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadDocumentID: documentID,
				payloadOrdinal:    int64(i),
			}),
		}
	}

	if err := s.ensureCollection(ctx, name, uint64(len(vectors[0]))); err != nil {
		return err
	}
	return s.upsert(ctx, name, points)
}

// WriteDocument replaces the chunk points first and then upserts the document
// point, so a document vector is never visible before its chunks.
func (s *Store) WriteDocument(ctx context.Context, encoder corpus.EncoderID, doc vectordb.DocumentVector, chunks [][]float32) error {
	if err := s.ReplaceChunkVectors(ctx, doc.DocumentID, encoder, chunks); err != nil {
		return err
	}
	return s.UpsertDocumentVectors(ctx, encoder, []vectordb.DocumentVector{doc})
}

// upsert writes points in batches and waits for each batch to be persisted.
func (s *Store) upsert(ctx context.Context, collection string, points []*qdrant.PointStruct) error {
	for start := 0; start < len(points); start += defaultBatchSize {
		end := min(start+defaultBatchSize, len(points))

		begin := time.Now()
		wait := true
		_, err := s.client.api.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points[start:end],
			Wait:           &wait,
		})
		s.client.observeOperation("upsert", collection, begin, int64(end-start), err)
		if err != nil {
			return fmt.Errorf("[Qdrant] batch upsert failed at [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

func (s *Store) Nearest(ctx context.Context, q vectordb.NearestQuery) ([]vectordb.Neighbor, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.client.requestContext(ctx)
	defer cancel()

	name := s.collectionName(kindDocument, q.Encoder)
	dim, err := s.collectionDim(ctx, name)
	if err != nil {
		return nil, err
	}
	if dim == 0 || dim != uint64(len(q.Vector)) {
		return nil, nil
	}

	filter, err := convertFilterSet(q.Filters, q.ExcludeIDs)
	if err != nil {
		return nil, err
	}

	limit := uint64(q.Limit)
	begin := time.Now()
	resp, err := s.client.api.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(q.Vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayloadInclude(payloadDocumentID),
		Filter:         filter,
	})
	s.client.observeOperation("query", name, begin, int64(len(resp)), err)
	if err != nil {
		return nil, fmt.Errorf("[Qdrant] search failed: %w", err)
	}

	hits := make([]vectordb.Neighbor, 0, len(resp))
	for _, r := range resp {
		id := payloadString(r.Payload, payloadDocumentID)
		if id == "" {
			return nil, fmt.Errorf("[Qdrant] point %v has no document_id", r.Id)
		}
		hits = append(hits, vectordb.Neighbor{DocumentID: id, Similarity: float64(r.Score)})
	}

	// Qdrant does not order ties; make them deterministic.
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].DocumentID < hits[j].DocumentID
	})
	return hits, nil
}

func (s *Store) DocumentVectors(ctx context.Context, encoder corpus.EncoderID, ids []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ctx, cancel := s.client.requestContext(ctx)
	defer cancel()

	name := s.collectionName(kindDocument, encoder)
	dim, err := s.collectionDim(ctx, name)
	if err != nil || dim == 0 {
		return out, err
	}

	for start := 0; start < len(ids); start += defaultBatchSize {
		end := min(start+defaultBatchSize, len(ids))
		pointIDs := make([]*qdrant.PointId, 0, end-start)
		for _, id := range ids[start:end] {
			pointIDs = append(pointIDs, documentPointID(id))
		}

		begin := time.Now()
		points, err := s.client.api.Get(ctx, &qdrant.GetPoints{
			CollectionName: name,
			Ids:            pointIDs,
			WithPayload:    qdrant.NewWithPayloadInclude(payloadDocumentID),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		s.client.observeOperation("get", name, begin, int64(len(points)), err)
		if err != nil {
			return nil, fmt.Errorf("[Qdrant] get points failed: %w", err)
		}
		for _, p := range points {
			if id := payloadString(p.Payload, payloadDocumentID); id != "" {
				out[id] = denseVector(p.Vectors)
			}
		}
	}
	return out, nil
}

func (s *Store) ChunkVectors(ctx context.Context, documentID string, encoder corpus.EncoderID) ([][]float32, error) {
	ctx, cancel := s.client.requestContext(ctx)
	defer cancel()

	name := s.collectionName(kindChunk, encoder)
	dim, err := s.collectionDim(ctx, name)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return [][]float32{}, nil
	}

	limit := uint32(maxChunkScroll)
	begin := time.Now()
	points, err := s.client.api.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: name,
		Filter:         &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentID, documentID)}},
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayloadInclude(payloadOrdinal),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	s.client.observeOperation("scroll", name, begin, int64(len(points)), err)
	if err != nil {
		return nil, fmt.Errorf("[Qdrant] scroll chunks of %s failed: %w", documentID, err)
	}

	type ordered struct {
		ordinal int
		vector  []float32
	}
	rows := make([]ordered, 0, len(points))
	for _, p := range points {
		ordinal, ok := payloadInt(p.Payload, payloadOrdinal)
		if !ok {
			return nil, fmt.Errorf("[Qdrant] chunk point %v has no ordinal", p.Id)
		}
		rows = append(rows, ordered{ordinal: ordinal, vector: denseVector(p.Vectors)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ordinal < rows[j].ordinal })

	out := make([][]float32, len(rows))
	for i, r := range rows {
		out[i] = r.vector
	}
	return out, nil
}

func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	ctx, cancel := s.client.requestContext(ctx)
	defer cancel()

	names, err := s.client.api.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("[Qdrant] failed to list collections: %w", err)
	}
	for _, name := range names {
		if !strings.HasPrefix(name, s.prefix+"_") {
			continue
		}
		if err := s.deleteByDocument(ctx, name, documentID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) deleteByDocument(ctx context.Context, collection, documentID string) error {
	wait := true
	begin := time.Now()
	_, err := s.client.api.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentID, documentID)}},
			},
		},
		Wait: &wait,
	})
	s.client.observeOperation("delete", collection, begin, 1, err)
	if err != nil {
		return fmt.Errorf("[Qdrant] delete %s from '%s' failed: %w", documentID, collection, err)
	}
	return nil
}

// extractVectorSize reads the dimension of the unnamed vector of a collection.
func extractVectorSize(info *qdrant.CollectionInfo) uint64 {
	if info == nil ||
		info.Config == nil ||
		info.Config.Params == nil ||
		info.Config.Params.VectorsConfig == nil ||
		info.Config.Params.VectorsConfig.Config == nil {
		return 0
	}
	if cfg, ok := info.Config.Params.VectorsConfig.Config.(*qdrant.VectorsConfig_Params); ok {
		return cfg.Params.Size
	}
	return 0
}
