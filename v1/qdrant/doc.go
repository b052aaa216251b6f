// Package qdrant implements vectordb.Store on top of a Qdrant cluster using
// the official Go client.
//
// Each (kind, encoder) pair gets its own collection, named
// "<prefix>_<kind>_<encoder>", created lazily with the dimension of the first
// vector written to it and cosine distance. Point ids are derived
// deterministically from the document id (and chunk ordinal), so re-indexing a
// document overwrites its points instead of duplicating them.
//
// The payload of every point carries document_id, and for chunk points the
// ordinal, plus the filterable metadata produced by vectordb.Payload. Filter
// sets are converted to native Qdrant filters.
//
// # Basic Usage
//
//	client, err := qdrant.NewQdrantClient(qdrant.QdrantParams{Config: cfg, Logger: log})
//	if err != nil {
//	    return err
//	}
//	store := qdrant.NewStore(client, cfg.CollectionPrefix)
//	hits, err := store.Nearest(ctx, vectordb.NearestQuery{Encoder: "clean-v2", Vector: q, Limit: 10})
//
// # FX Module Integration
//
//	app := fx.New(
//	    qdrant.FXModule, // provides *QdrantClient, *Store
//	    // other modules...
//	)
//
// Chunk replacement is a delete-by-filter followed by a waited upsert. Qdrant
// has no multi-request transactions, so a reader can briefly observe a
// document without chunk vectors; it never observes a mix of old and new ones.
package qdrant
