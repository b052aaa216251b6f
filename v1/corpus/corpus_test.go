package corpus

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateChunks(t *testing.T) {
	ok := []Chunk{
		{DocumentID: "d1", Ordinal: 0, Start: 0, End: 10},
		{DocumentID: "d1", Ordinal: 1, Start: 5, End: 20},
	}
	assert.NoError(t, ValidateChunks("d1", ok))
	assert.NoError(t, ValidateChunks("d1", nil))

	gap := []Chunk{{DocumentID: "d1", Ordinal: 0}, {DocumentID: "d1", Ordinal: 2}}
	assert.Error(t, ValidateChunks("d1", gap))

	foreign := []Chunk{{DocumentID: "d2", Ordinal: 0}}
	assert.Error(t, ValidateChunks("d1", foreign))

	badSpan := []Chunk{{DocumentID: "d1", Ordinal: 0, Start: 10, End: 5}}
	assert.Error(t, ValidateChunks("d1", badSpan))
}

func TestEngineErrorTaxonomy(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := fmt.Errorf("index document: %w", EncodingFailure("embed batch", cause))

	assert.ErrorIs(t, err, ErrEncodingFailure)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "embed batch")

	fatal := InsufficientData("cluster", nil)
	assert.ErrorIs(t, fatal, ErrInsufficientData)
	assert.False(t, IsRetryable(fatal))

	var engineErr *EngineError
	require.ErrorAs(t, fatal, &engineErr)
	assert.Equal(t, "cluster", engineErr.Op)
}

func TestReferenceDate(t *testing.T) {
	filed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	decided := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Nil(t, Metadata{}.ReferenceDate())
	assert.Equal(t, &filed, Metadata{FiledDate: &filed}.ReferenceDate())
	assert.Equal(t, &decided, Metadata{FiledDate: &filed, DecisionDate: &decided}.ReferenceDate())
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	doc := Document{ID: "d2", Text: "alpha beta", Metadata: Metadata{LegalArea: "tenancy"}}
	chunks := []Chunk{{DocumentID: "d2", Ordinal: 0, Text: "alpha", Start: 0, End: 5}}
	require.NoError(t, repo.SaveDocument(ctx, doc, chunks))
	require.NoError(t, repo.SaveDocument(ctx, Document{ID: "d1", Text: "gamma"}, nil))

	got, err := repo.Document(ctx, "d2")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, "tenancy", got.Metadata.LegalArea)

	ids, err := repo.EligibleDocumentIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, repo.SetStatus(ctx, "d2", StatusProcessed))
	require.NoError(t, repo.SetStatus(ctx, "d1", StatusProcessed))
	ids, err = repo.EligibleDocumentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2"}, ids)

	cs, err := repo.Chunks(ctx, "d2")
	require.NoError(t, err)
	assert.Len(t, cs, 1)

	docs, err := repo.Documents(ctx, []string{"d1", "missing"})
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	require.NoError(t, repo.DeleteDocument(ctx, "d2"))
	_, err = repo.Document(ctx, "d2")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	_, err = repo.Chunks(ctx, "d2")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	assert.ErrorIs(t, repo.SetStatus(ctx, "missing", StatusFailed), ErrDocumentNotFound)
}
