package corpus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aleph-Alpha/lexgraph/v1/postgres"
)

// DocumentRow is the documents table.
type DocumentRow struct {
	ID           string     `gorm:"primaryKey;type:text"`
	Text         string     `gorm:"type:text;not null"`
	CaseNumber   string     `gorm:"type:text;index"`
	Court        string     `gorm:"type:text"`
	LegalArea    string     `gorm:"type:text;index"`
	DocumentType string     `gorm:"type:text;index"`
	Parties      []string   `gorm:"serializer:json;type:jsonb"`
	DecisionDate *time.Time `gorm:"index"`
	FiledDate    *time.Time
	Status       string `gorm:"type:text;not null;default:pending;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Chunks []ChunkRow `gorm:"foreignKey:DocumentID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName pins the table name.
func (DocumentRow) TableName() string { return "documents" }

// ChunkRow is the document_chunks table.
type ChunkRow struct {
	DocumentID  string `gorm:"primaryKey;type:text"`
	Ordinal     int    `gorm:"primaryKey;autoIncrement:false"`
	Text        string `gorm:"type:text;not null"`
	StartOffset int    `gorm:"not null"`
	EndOffset   int    `gorm:"not null"`
}

// TableName pins the table name.
func (ChunkRow) TableName() string { return "document_chunks" }

// Models returns the gorm models owned by this package, in migration order.
func Models() []interface{} {
	return []interface{}{&DocumentRow{}, &ChunkRow{}}
}

// PGRepository is the PostgreSQL Repository.
type PGRepository struct {
	pg postgres.Client
}

// NewPGRepository returns a repository over pg.
func NewPGRepository(pg postgres.Client) *PGRepository {
	return &PGRepository{pg: pg}
}

// SaveDocument upserts the document and replaces its chunks in one transaction.
func (r *PGRepository) SaveDocument(ctx context.Context, doc Document, chunks []Chunk) error {
	if err := ValidateChunks(doc.ID, chunks); err != nil {
		return err
	}
	if doc.Status == "" {
		doc.Status = StatusPending
	}

	row := toDocumentRow(doc)
	return r.pg.Transaction(ctx, func(tx postgres.Client) error {
		db := tx.DB()
		err := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"text", "case_number", "court", "legal_area", "document_type",
				"parties", "decision_date", "filed_date", "status", "updated_at",
			}),
		}).Omit("Chunks").Create(&row).Error
		if err != nil {
			return fmt.Errorf("upsert document %s: %w", doc.ID, postgres.TranslateError(err))
		}

		if err := db.Where("document_id = ?", doc.ID).Delete(&ChunkRow{}).Error; err != nil {
			return fmt.Errorf("delete chunks of %s: %w", doc.ID, postgres.TranslateError(err))
		}
		if len(chunks) == 0 {
			return nil
		}

		rows := make([]ChunkRow, len(chunks))
		for i, c := range chunks {
			rows[i] = ChunkRow{
				DocumentID:  c.DocumentID,
				Ordinal:     c.Ordinal,
				Text:        c.Text,
				StartOffset: c.Start,
				EndOffset:   c.End,
			}
		}
		if err := db.CreateInBatches(rows, 500).Error; err != nil {
			return fmt.Errorf("insert chunks of %s: %w", doc.ID, postgres.TranslateError(err))
		}
		return nil
	})
}

// Document returns the document or ErrDocumentNotFound.
func (r *PGRepository) Document(ctx context.Context, id string) (Document, error) {
	var row DocumentRow
	err := r.pg.DB().WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(postgres.TranslateError(err), postgres.ErrRecordNotFound) {
			return Document{}, ErrDocumentNotFound
		}
		return Document{}, fmt.Errorf("load document %s: %w", id, err)
	}
	return fromDocumentRow(row), nil
}

func (r *PGRepository) Documents(ctx context.Context, ids []string) (map[string]Document, error) {
	out := make(map[string]Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []DocumentRow
	err := r.pg.DB().WithContext(ctx).
		Where("id IN ?", ids).
		FindInBatches(&rows, 1000, func(_ *gorm.DB, _ int) error {
			for _, row := range rows {
				out[row.ID] = fromDocumentRow(row)
			}
			return nil
		}).Error
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", postgres.TranslateError(err))
	}
	return out, nil
}

func (r *PGRepository) Chunks(ctx context.Context, documentID string) ([]Chunk, error) {
	if _, err := r.Document(ctx, documentID); err != nil {
		return nil, err
	}

	var rows []ChunkRow
	err := r.pg.DB().WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("ordinal ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load chunks of %s: %w", documentID, postgres.TranslateError(err))
	}

	out := make([]Chunk, len(rows))
	for i, row := range rows {
		out[i] = Chunk{
			DocumentID: row.DocumentID,
			Ordinal:    row.Ordinal,
			Text:       row.Text,
			Start:      row.StartOffset,
			End:        row.EndOffset,
		}
	}
	return out, nil
}

// EligibleDocumentIDs returns the processed documents sorted by id.
func (r *PGRepository) EligibleDocumentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.pg.DB().WithContext(ctx).
		Model(&DocumentRow{}).
		Where("status = ?", string(StatusProcessed)).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list eligible documents: %w", postgres.TranslateError(err))
	}
	return ids, nil
}

func (r *PGRepository) SetStatus(ctx context.Context, id string, status DocumentStatus) error {
	res := r.pg.DB().WithContext(ctx).
		Model(&DocumentRow{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": string(status), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("set status of %s: %w", id, postgres.TranslateError(res.Error))
	}
	if res.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (r *PGRepository) DeleteDocument(ctx context.Context, id string) error {
	err := r.pg.DB().WithContext(ctx).Where("id = ?", id).Delete(&DocumentRow{}).Error
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, postgres.TranslateError(err))
	}
	return nil
}

func toDocumentRow(doc Document) DocumentRow {
	return DocumentRow{
		ID:           doc.ID,
		Text:         doc.Text,
		CaseNumber:   doc.Metadata.CaseNumber,
		Court:        doc.Metadata.Court,
		LegalArea:    doc.Metadata.LegalArea,
		DocumentType: doc.Metadata.DocumentType,
		Parties:      doc.Metadata.Parties,
		DecisionDate: doc.Metadata.DecisionDate,
		FiledDate:    doc.Metadata.FiledDate,
		Status:       string(doc.Status),
	}
}

func fromDocumentRow(row DocumentRow) Document {
	return Document{
		ID:   row.ID,
		Text: row.Text,
		Metadata: Metadata{
			CaseNumber:   row.CaseNumber,
			Court:        row.Court,
			LegalArea:    row.LegalArea,
			DocumentType: row.DocumentType,
			Parties:      row.Parties,
			DecisionDate: row.DecisionDate,
			FiledDate:    row.FiledDate,
		},
		Status:    DocumentStatus(row.Status),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
