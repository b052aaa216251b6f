package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/vectordb"
)

// Indexer embeds stored documents and writes their vectors.
type Indexer struct {
	repo    corpus.Repository
	store   vectordb.Store
	service *Service
	logger  Logger
}

// NewIndexer returns an Indexer.
func NewIndexer(repo corpus.Repository, store vectordb.Store, service *Service, logger Logger) *Indexer {
	return &Indexer{repo: repo, store: store, service: service, logger: logger}
}

// IndexDocument embeds the document text and every chunk with each encoder.
// All encoders are computed before anything is written, so an encoding
// failure leaves the stored vectors untouched. Vectors are then written in
// one unit of work per encoder, overwriting previous ones, and the document is
// marked processed. Running it twice stores identical vectors.
func (ix *Indexer) IndexDocument(ctx context.Context, documentID string, encoders ...corpus.EncoderID) error {
	if len(encoders) == 0 {
		encoders = ix.service.Registry().IDs()
	}
	if len(encoders) == 0 {
		return fmt.Errorf("index %s: no encoders", documentID)
	}

	doc, err := ix.repo.Document(ctx, documentID)
	if err != nil {
		return err
	}
	chunks, err := ix.repo.Chunks(ctx, documentID)
	if err != nil {
		return err
	}

	texts := make([]string, 0, len(chunks)+1)
	texts = append(texts, doc.Text)
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}

	vectors := make(map[corpus.EncoderID][][]float32, len(encoders))
	for _, enc := range encoders {
		vecs, err := ix.service.EmbedBatch(ctx, texts, enc)
		if err != nil {
			return fmt.Errorf("index %s: %w", documentID, err)
		}
		vectors[enc] = vecs
	}

	for _, enc := range encoders {
		vecs := vectors[enc]
		err := ix.store.WriteDocument(ctx, enc, vectordb.DocumentVector{
			DocumentID: doc.ID,
			Vector:     vecs[0],
			Metadata:   doc.Metadata,
		}, vecs[1:])
		if err != nil {
			return fmt.Errorf("index %s: write %s vectors: %w", documentID, enc, err)
		}
	}

	if err := ix.repo.SetStatus(ctx, documentID, corpus.StatusProcessed); err != nil {
		return fmt.Errorf("index %s: %w", documentID, err)
	}

	if ix.logger != nil {
		ix.logger.Info("Indexed document", nil, map[string]interface{}{
			"document_id": documentID,
			"chunks":      len(chunks),
			"encoders":    len(encoders),
		})
	}
	return nil
}

// MarkFailed records that a document could not be indexed. Documents that do
// not exist anymore are ignored.
func (ix *Indexer) MarkFailed(ctx context.Context, documentID string) error {
	err := ix.repo.SetStatus(ctx, documentID, corpus.StatusFailed)
	if errors.Is(err, corpus.ErrDocumentNotFound) {
		return nil
	}
	return err
}
