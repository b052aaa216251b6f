package vectordb

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm/clause"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/postgres"
)

// DocumentVectorRow is the document_vectors table. The embedding column has
// no fixed dimension so that encoders of different sizes can share the table.
type DocumentVectorRow struct {
	DocumentID string          `gorm:"primaryKey;type:text"`
	EncoderID  string          `gorm:"primaryKey;type:text;index"`
	Dimension  int             `gorm:"not null"`
	Embedding  pgvector.Vector `gorm:"type:vector;not null"`
	UpdatedAt  time.Time
}

// TableName pins the table name.
func (DocumentVectorRow) TableName() string { return "document_vectors" }

// ChunkVectorRow is the chunk_vectors table.
type ChunkVectorRow struct {
	DocumentID string          `gorm:"primaryKey;type:text"`
	Ordinal    int             `gorm:"primaryKey;autoIncrement:false"`
	EncoderID  string          `gorm:"primaryKey;type:text"`
	Dimension  int             `gorm:"not null"`
	Embedding  pgvector.Vector `gorm:"type:vector;not null"`
}

// TableName pins the table name.
func (ChunkVectorRow) TableName() string { return "chunk_vectors" }

// Vector rows cascade with their owners. gorm cannot express a foreign key to
// a table it does not own a model for, so the constraints are added here.
const vectorConstraintsSQL = `
DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_document_vectors_document') THEN
		ALTER TABLE document_vectors ADD CONSTRAINT fk_document_vectors_document
			FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE;
	END IF;
	IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_chunk_vectors_chunk') THEN
		ALTER TABLE chunk_vectors ADD CONSTRAINT fk_chunk_vectors_chunk
			FOREIGN KEY (document_id, ordinal) REFERENCES document_chunks(document_id, ordinal) ON DELETE CASCADE;
	END IF;
END $$;`

// PGVectorStore is the Store backed by PostgreSQL with the pgvector extension.
// Similarity is computed with the cosine distance operator <=>.
type PGVectorStore struct {
	pg postgres.Client
}

// NewPGVectorStore returns a store over pg.
func NewPGVectorStore(pg postgres.Client) *PGVectorStore {
	return &PGVectorStore{pg: pg}
}

// Migrate creates the vector tables and their foreign keys. The corpus tables
// must have been migrated first.
func (s *PGVectorStore) Migrate(ctx context.Context) error {
	if err := s.pg.Migrate(ctx, &DocumentVectorRow{}, &ChunkVectorRow{}); err != nil {
		return err
	}
	if err := s.pg.DB().WithContext(ctx).Exec(vectorConstraintsSQL).Error; err != nil {
		return fmt.Errorf("failed to add vector constraints: %w", postgres.TranslateError(err))
	}
	return nil
}

func (s *PGVectorStore) UpsertDocumentVectors(ctx context.Context, encoder corpus.EncoderID, vectors []DocumentVector) error {
	return upsertDocumentVectors(ctx, s.pg, encoder, vectors)
}

func upsertDocumentVectors(ctx context.Context, pg postgres.Client, encoder corpus.EncoderID, vectors []DocumentVector) error {
	if len(vectors) == 0 {
		return nil
	}
	raw := make([][]float32, len(vectors))
	for i, v := range vectors {
		raw[i] = v.Vector
	}
	dim, err := uniformDimension(raw)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rows := make([]DocumentVectorRow, len(vectors))
	for i, v := range vectors {
		rows[i] = DocumentVectorRow{
			DocumentID: v.DocumentID,
			EncoderID:  string(encoder),
			Dimension:  dim,
			Embedding:  pgvector.NewVector(v.Vector),
			UpdatedAt:  now,
		}
	}

	err = pg.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}, {Name: "encoder_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"dimension", "embedding", "updated_at"}),
	}).CreateInBatches(rows, 500).Error
	if err != nil {
		return fmt.Errorf("upsert document vectors for %s: %w", encoder, postgres.TranslateError(err))
	}
	return nil
}

func (s *PGVectorStore) ReplaceChunkVectors(ctx context.Context, documentID string, encoder corpus.EncoderID, vectors [][]float32) error {
	return replaceChunkVectors(ctx, s.pg, documentID, encoder, vectors)
}

func (s *PGVectorStore) WriteDocument(ctx context.Context, encoder corpus.EncoderID, doc DocumentVector, chunks [][]float32) error {
	return s.pg.Transaction(ctx, func(tx postgres.Client) error {
		if err := upsertDocumentVectors(ctx, tx, encoder, []DocumentVector{doc}); err != nil {
			return err
		}
		return replaceChunkVectors(ctx, tx, doc.DocumentID, encoder, chunks)
	})
}

func replaceChunkVectors(ctx context.Context, pg postgres.Client, documentID string, encoder corpus.EncoderID, vectors [][]float32) error {
	dim, err := uniformDimension(vectors)
	if err != nil {
		return err
	}

	return pg.Transaction(ctx, func(tx postgres.Client) error {
		db := tx.DB()
		err := db.Where("document_id = ? AND encoder_id = ?", documentID, string(encoder)).
			Delete(&ChunkVectorRow{}).Error
		if err != nil {
			return fmt.Errorf("delete chunk vectors of %s: %w", documentID, postgres.TranslateError(err))
		}
		if len(vectors) == 0 {
			return nil
		}

		rows := make([]ChunkVectorRow, len(vectors))
		for i, v := range vectors {
			rows[i] = ChunkVectorRow{
				DocumentID: documentID,
				Ordinal:    i,
				EncoderID:  string(encoder),
				Dimension:  dim,
				Embedding:  pgvector.NewVector(v),
			}
		}
		if err := db.CreateInBatches(rows, 500).Error; err != nil {
			return fmt.Errorf("insert chunk vectors of %s: %w", documentID, postgres.TranslateError(err))
		}
		return nil
	})
}

type neighborRow struct {
	DocumentID string
	Similarity float64
}

func (s *PGVectorStore) Nearest(ctx context.Context, q NearestQuery) ([]Neighbor, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	vec := pgvector.NewVector(q.Vector)
	db := s.pg.DB().WithContext(ctx).
		Table("document_vectors AS v").
		Select("v.document_id AS document_id, 1 - (v.embedding <=> ?) AS similarity", vec).
		Joins("JOIN documents d ON d.id = v.document_id").
		Where("v.encoder_id = ? AND v.dimension = ?", string(q.Encoder), len(q.Vector))

	if len(q.ExcludeIDs) > 0 {
		db = db.Where("v.document_id NOT IN ?", q.ExcludeIDs)
	}
	if !q.Filters.IsEmpty() {
		where, args, err := filterSQL(q.Filters)
		if err != nil {
			return nil, err
		}
		db = db.Where(where, args...)
	}

	var rows []neighborRow
	err := db.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "similarity", Raw: true}, Desc: true},
		{Column: clause.Column{Name: "v.document_id", Raw: true}},
	}}).Limit(q.Limit).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("nearest documents for %s: %w", q.Encoder, postgres.TranslateError(err))
	}

	out := make([]Neighbor, len(rows))
	for i, r := range rows {
		out[i] = Neighbor{DocumentID: r.DocumentID, Similarity: clampSimilarity(r.Similarity)}
	}
	return out, nil
}

func (s *PGVectorStore) DocumentVectors(ctx context.Context, encoder corpus.EncoderID, ids []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	const batch = 1000
	for start := 0; start < len(ids); start += batch {
		end := min(start+batch, len(ids))
		var rows []DocumentVectorRow
		err := s.pg.DB().WithContext(ctx).
			Where("encoder_id = ? AND document_id IN ?", string(encoder), ids[start:end]).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("load document vectors for %s: %w", encoder, postgres.TranslateError(err))
		}
		for _, r := range rows {
			out[r.DocumentID] = r.Embedding.Slice()
		}
	}
	return out, nil
}

func (s *PGVectorStore) ChunkVectors(ctx context.Context, documentID string, encoder corpus.EncoderID) ([][]float32, error) {
	var rows []ChunkVectorRow
	err := s.pg.DB().WithContext(ctx).
		Where("document_id = ? AND encoder_id = ?", documentID, string(encoder)).
		Order("ordinal ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load chunk vectors of %s: %w", documentID, postgres.TranslateError(err))
	}
	out := make([][]float32, len(rows))
	for i, r := range rows {
		out[i] = r.Embedding.Slice()
	}
	return out, nil
}

func (s *PGVectorStore) DeleteDocument(ctx context.Context, documentID string) error {
	return s.pg.Transaction(ctx, func(tx postgres.Client) error {
		db := tx.DB()
		if err := db.Where("document_id = ?", documentID).Delete(&ChunkVectorRow{}).Error; err != nil {
			return postgres.TranslateError(err)
		}
		return postgres.TranslateError(db.Where("document_id = ?", documentID).Delete(&DocumentVectorRow{}).Error)
	})
}

func clampSimilarity(s float64) float64 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
