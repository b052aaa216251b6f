// Package search implements hybrid document search: cosine similarity over
// stored document vectors blended with signed legal-metadata signals.
//
// Every Result carries the ordered list of signals that produced its score.
// The first signal is always the raw vector similarity; the remaining ones
// are metadata boosts and penalties relative to the query anchor. The sum of
// all signal weights equals Result.Score exactly.
//
// Ranking is by descending score, then descending raw similarity, then
// ascending document id. MinSimilarity filters on the raw similarity before
// any metadata signal is applied.
//
// Text queries walk the encoder fallback chain: a candidate that has no
// vector for the preferred encoder is scored with the first encoder in the
// chain for which it has one, and Result.VectorEncoder records which.
package search
