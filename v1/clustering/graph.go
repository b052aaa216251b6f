package clustering

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Aleph-Alpha/lexgraph/v1/corpus"
	"github.com/Aleph-Alpha/lexgraph/v1/reduction"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
	"github.com/Aleph-Alpha/lexgraph/v1/vecmath"
)

// Node is one document of a run.
type Node struct {
	DocumentID  string  `json:"document_id"`
	Label       int     `json:"label"`
	Probability float64 `json:"probability"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	RunID       string  `json:"run_id"`
	LegalArea   string  `json:"legal_area,omitempty"`
}

// Edge links a node to one of its nearest neighbors. Rank starts at 1.
type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Score  float64 `json:"score"`
	Rank   int     `json:"rank"`
}

// GraphMetadata describes the run a graph was read from.
type GraphMetadata struct {
	RunID         string           `json:"run_id"`
	Family        runstore.Family  `json:"family"`
	Algorithm     string           `json:"algorithm"`
	Encoder       corpus.EncoderID `json:"encoder"`
	Parameters    json.RawMessage  `json:"parameters,omitempty"`
	Quality       runstore.Quality `json:"quality"`
	DocumentCount int              `json:"document_count"`
	CreatedAt     time.Time        `json:"created_at"`
	ActivatedAt   *time.Time       `json:"activated_at,omitempty"`
}

// Graph is the node/edge view of the active run of a family.
type Graph struct {
	Nodes        []Node                 `json:"nodes"`
	Edges        []Edge                 `json:"edges"`
	ClusterStats []runstore.ClusterStat `json:"cluster_stats"`
	Metadata     GraphMetadata          `json:"metadata"`
}

func metadataOf(run runstore.Run) GraphMetadata {
	return GraphMetadata{
		RunID:         run.ID,
		Family:        run.Family,
		Algorithm:     run.Algorithm,
		Encoder:       run.Encoder,
		Parameters:    run.Parameters,
		Quality:       run.Quality,
		DocumentCount: run.DocumentCount,
		CreatedAt:     run.CreatedAt,
		ActivatedAt:   run.ActivatedAt,
	}
}

// Graph reads the active run of family. Edges link every node to its topK
// most cosine-similar nodes under the run's encoder and are computed from the
// stored vectors on every call. topK <= 0 uses the configured default.
func (e *Engine) Graph(ctx context.Context, family runstore.Family, topK int) (Graph, error) {
	ctx, span := e.spans.StartSpan(ctx, "clustering.Graph")
	defer span.End()

	g, err := e.graph(ctx, family, topK)
	e.spans.RecordErrorOnSpan(span, err)
	e.spans.SetAttributes(span, map[string]interface{}{
		"clustering.family": string(family),
		"clustering.nodes":  len(g.Nodes),
		"clustering.edges":  len(g.Edges),
	})
	return g, err
}

func (e *Engine) graph(ctx context.Context, family runstore.Family, topK int) (Graph, error) {
	if topK <= 0 {
		topK = e.cfg.DefaultTopK
	}
	run, err := e.runs.Active(ctx, family)
	if err != nil {
		return Graph{}, err
	}
	nodes, err := e.nodes(ctx, run)
	if err != nil {
		return Graph{}, err
	}
	edges, err := e.edges(ctx, run.Encoder, nodes, topK)
	if err != nil {
		return Graph{}, err
	}
	stats := run.Stats
	if stats == nil {
		stats = []runstore.ClusterStat{}
	}
	return Graph{Nodes: nodes, Edges: edges, ClusterStats: stats, Metadata: metadataOf(run)}, nil
}

// nodes joins the assignments of run with the current document metadata.
// Documents deleted since the run keep their node without a legal area.
func (e *Engine) nodes(ctx context.Context, run runstore.Run) ([]Node, error) {
	assignments, err := e.runs.Assignments(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("read assignments: %w", err)
	}
	ids := make([]string, len(assignments))
	for i, a := range assignments {
		ids[i] = a.DocumentID
	}
	docs, err := e.repo.Documents(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}

	nodes := make([]Node, len(assignments))
	for i, a := range assignments {
		nodes[i] = Node{
			DocumentID:  a.DocumentID,
			Label:       a.Label,
			Probability: a.Probability,
			X:           a.X,
			Y:           a.Y,
			RunID:       run.ID,
			LegalArea:   docs[a.DocumentID].Metadata.LegalArea,
		}
	}
	return nodes, nil
}

// edges computes the top-k neighbor lists of nodes. Nodes whose vector is gone
// get no edges and are never a target.
func (e *Engine) edges(ctx context.Context, encoder corpus.EncoderID, nodes []Node, topK int) ([]Edge, error) {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.DocumentID
	}
	vectors, err := e.vectors.DocumentVectors(ctx, encoder, ids)
	if err != nil {
		return nil, fmt.Errorf("read document vectors: %w", err)
	}

	var (
		present []string
		data    [][]float64
	)
	for _, id := range ids {
		if v, ok := vectors[id]; ok {
			present = append(present, id)
			data = append(data, vecmath.ToFloat64(v))
		}
	}
	knn, err := reduction.Neighbors(ctx, data, topK)
	if err != nil {
		return nil, err
	}

	edges := make([]Edge, 0, len(present)*topK)
	for i, row := range knn {
		for rank, nb := range row {
			edges = append(edges, Edge{
				Source: present[i],
				Target: present[nb.Index],
				Score:  1 - nb.Distance,
				Rank:   rank + 1,
			})
		}
	}
	return edges, nil
}

// ActiveRun returns the run record of the active run of family without
// reading assignments or vectors.
func (e *Engine) ActiveRun(ctx context.Context, family runstore.Family) (runstore.Run, error) {
	return e.runs.Active(ctx, family)
}

// IsCurrent reports whether runID is the active run of family, so that a
// client holding a view of runID can tell it is stale.
func (e *Engine) IsCurrent(ctx context.Context, family runstore.Family, runID string) (bool, error) {
	run, err := e.runs.Active(ctx, family)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return run.ID == runID, nil
}
