package vectordb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func seedStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	err := s.UpsertDocumentVectors(context.Background(), "enc-a", []DocumentVector{
		{DocumentID: "d1", Vector: []float32{1, 0, 0}, Metadata: corpus.Metadata{LegalArea: "tenancy", DocumentType: "judgment", DecisionDate: date(2022, 3, 1), Parties: []string{"Acme GmbH"}}},
		{DocumentID: "d2", Vector: []float32{0.9, 0.1, 0}, Metadata: corpus.Metadata{LegalArea: "tenancy", DocumentType: "order", DecisionDate: date(2015, 1, 1)}},
		{DocumentID: "d3", Vector: []float32{0, 1, 0}, Metadata: corpus.Metadata{LegalArea: "labor", DocumentType: "judgment"}},
		{DocumentID: "d4", Vector: []float32{1, 0, 0}, Metadata: corpus.Metadata{LegalArea: "labor"}},
	})
	require.NoError(t, err)
	return s
}

func TestMemoryStoreNearestOrdering(t *testing.T) {
	s := seedStore(t)

	hits, err := s.Nearest(context.Background(), NearestQuery{Encoder: "enc-a", Vector: []float32{1, 0, 0}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 4)

	// d1 and d4 tie at 1.0 and are ordered by id
	assert.Equal(t, "d1", hits[0].DocumentID)
	assert.Equal(t, "d4", hits[1].DocumentID)
	assert.Equal(t, "d2", hits[2].DocumentID)
	assert.Equal(t, "d3", hits[3].DocumentID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
}

func TestMemoryStoreNearestLimitAndExclude(t *testing.T) {
	s := seedStore(t)

	hits, err := s.Nearest(context.Background(), NearestQuery{
		Encoder:    "enc-a",
		Vector:     []float32{1, 0, 0},
		Limit:      2,
		ExcludeIDs: []string{"d1"},
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "d4", hits[0].DocumentID)
	assert.Equal(t, "d2", hits[1].DocumentID)
}

func TestMemoryStoreNearestUnknownEncoder(t *testing.T) {
	s := seedStore(t)

	hits, err := s.Nearest(context.Background(), NearestQuery{Encoder: "enc-b", Vector: []float32{1, 0, 0}, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryStoreNearestWithFilters(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		filters *FilterSet
		want    []string
	}{
		{
			name:    "must legal area",
			filters: NewFilterSet(Must(NewMatch(FieldLegalArea, "tenancy"))),
			want:    []string{"d1", "d2"},
		},
		{
			name:    "must not document type",
			filters: NewFilterSet(MustNot(NewMatch(FieldDocumentType, "order"))),
			want:    []string{"d1", "d4", "d3"},
		},
		{
			name:    "time range",
			filters: NewFilterSet(Must(NewTimeRange(FieldDecisionDate, TimeRange{Gte: date(2020, 1, 1)}))),
			want:    []string{"d1"},
		},
		{
			name:    "party",
			filters: NewFilterSet(Must(NewMatch(FieldParties, "Acme GmbH"))),
			want:    []string{"d1"},
		},
		{
			name:    "should any",
			filters: NewFilterSet(Should(NewMatch(FieldDocumentType, "order"), NewMatch(FieldLegalArea, "labor"))),
			want:    []string{"d4", "d2", "d3"},
		},
		{
			name:    "match except",
			filters: NewFilterSet(Must(NewMatchExcept(FieldLegalArea, "labor"))),
			want:    []string{"d1", "d2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := s.Nearest(ctx, NearestQuery{Encoder: "enc-a", Vector: []float32{1, 0, 0}, Limit: 10, Filters: tt.filters})
			require.NoError(t, err)
			got := make([]string, len(hits))
			for i, h := range hits {
				got[i] = h.DocumentID
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryStoreRejectsMixedDimensions(t *testing.T) {
	s := NewMemoryStore()
	err := s.UpsertDocumentVectors(context.Background(), "enc", []DocumentVector{
		{DocumentID: "a", Vector: []float32{1, 2}},
		{DocumentID: "b", Vector: []float32{1, 2, 3}},
	})
	assert.ErrorIs(t, err, ErrInvalidVector)

	vecs, err := s.DocumentVectors(context.Background(), "enc", []string{"a", "b"})
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestMemoryStoreChunkVectorsReplaceAndDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.ReplaceChunkVectors(ctx, "d1", "enc", [][]float32{{1, 0}, {0, 1}, {1, 1}}))
	require.NoError(t, s.ReplaceChunkVectors(ctx, "d1", "enc", [][]float32{{0, 1}}))

	got, err := s.ChunkVectors(ctx, "d1", "enc")
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}}, got)

	other, err := s.ChunkVectors(ctx, "d1", "other")
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, s.DeleteDocument(ctx, "d1"))
	got, err = s.ChunkVectors(ctx, "d1", "enc")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStoreUpsertOverwrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertDocumentVectors(ctx, "enc", []DocumentVector{{DocumentID: "a", Vector: []float32{1, 0}}}))
	require.NoError(t, s.UpsertDocumentVectors(ctx, "enc", []DocumentVector{{DocumentID: "a", Vector: []float32{0, 1}}}))

	vecs, err := s.DocumentVectors(ctx, "enc", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vecs["a"])
}

func TestNearestQueryValidate(t *testing.T) {
	assert.Error(t, NearestQuery{Vector: []float32{1}, Limit: 1}.Validate())
	assert.Error(t, NearestQuery{Encoder: "e", Limit: 1}.Validate())
	assert.Error(t, NearestQuery{Encoder: "e", Vector: []float32{1}}.Validate())
	assert.NoError(t, NearestQuery{Encoder: "e", Vector: []float32{1}, Limit: 1}.Validate())
}

func TestFilterSQL(t *testing.T) {
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	fs := NewFilterSet(
		Must(NewMatch(FieldLegalArea, "tenancy"), NewTimeRange(FieldDecisionDate, TimeRange{Gte: &from})),
		Should(NewMatchAny(FieldDocumentType, "judgment", "order")),
		MustNot(NewMatch(FieldParties, "Acme GmbH")),
	)

	where, args, err := filterSQL(fs)
	require.NoError(t, err)
	assert.Equal(t,
		"(d.legal_area = ?) AND (COALESCE(d.decision_date, d.filed_date) >= ?) AND ((d.document_type IN ?)) AND NOT (d.parties @> to_jsonb(?::text))",
		where)
	assert.Equal(t, []interface{}{"tenancy", from, []string{"judgment", "order"}, "Acme GmbH"}, args)
}

func TestFilterSQLUnknownField(t *testing.T) {
	_, _, err := filterSQL(NewFilterSet(Must(NewMatch("judge", "x"))))
	assert.Error(t, err)
}

func TestPayloadUsesReferenceDate(t *testing.T) {
	p := Payload(corpus.Metadata{FiledDate: date(2019, 5, 1)})
	assert.Equal(t, *date(2019, 5, 1), p[FieldDecisionDate])
	_, ok := p[FieldLegalArea]
	assert.False(t, ok)
}
