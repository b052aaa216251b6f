// Package reduction projects high-dimensional vectors onto a low-dimensional
// manifold with a UMAP-style algorithm.
//
// Project builds a k-nearest-neighbor graph under cosine distance, turns it
// into a fuzzy simplicial set, initialises the embedding with PCA and refines
// it with negative-sampling SGD. The same inputs and Params (including Seed)
// always yield the same output.
//
// Callers that need both an intermediate projection for clustering and a 2-D
// layout call Project twice with separate Params; the two outputs are
// independent.
package reduction
