// Package embedding turns text into vectors.
//
// An Encoder is one model version with a fixed output dimension, identified by
// a corpus.EncoderID. Two encoders are provided: InferenceEncoder calls an
// OpenAI-compatible /embeddings endpoint, HashingEncoder is a local,
// deterministic feature-hashing encoder used as the lowest-fidelity fallback
// tier and in tests.
//
// The Registry holds the configured encoders and their fallback chains. The
// Service validates every batch (count and dimension), bounds each encode
// call with the encoder's timeout and reports failures as
// corpus.ErrEncodingFailure. An optional Cache skips texts that were already
// encoded by the same encoder.
//
// The Indexer embeds a stored document and all of its chunks and writes the
// vectors to a vectordb.Store, one unit of work per encoder:
//
//	indexer := embedding.NewIndexer(repo, store, svc, log)
//	if err := indexer.IndexDocument(ctx, "doc-17", "clean-v2", "enhanced-v1"); err != nil {
//	    if corpus.IsRetryable(err) {
//	        // requeue
//	    }
//	}
package embedding
