// Package index provides nearest-neighbor search over gallery embeddings.
// The index lives in memory and is rebuilt from the gallery on every use.
package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-gate/internal/constants"
	"github.com/kozaktomas/face-gate/internal/faceauth"
)

// Item is an embedded gallery entry.
type Item struct {
	Name      string
	Embedding faceauth.Embedding
}

// Hit is a search result with its exact cosine similarity to the query.
type Hit struct {
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}

// Index wraps the HNSW graph for gallery embedding search.
type Index struct {
	graph   *hnsw.Graph[int]
	items   []Item // Maps HNSW node ID to item
	dim     int
	skipped int
	mu      sync.RWMutex
}

// Build builds the index from items. Degenerate embeddings are left out and
// counted in Skipped; mixed dimensions are an error.
func Build(items []Item) (*Index, error) {
	// Create new graph with cosine distance.
	g := hnsw.NewGraph[int]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = constants.HNSWEfSearch
	g.Distance = hnsw.CosineDistance

	ix := &Index{graph: g}
	for _, it := range items {
		unit, err := it.Embedding.Normalized()
		if err != nil {
			ix.skipped++
			continue
		}
		if ix.dim == 0 {
			ix.dim = len(unit)
		}
		if len(unit) != ix.dim {
			return nil, fmt.Errorf("%w: %s has %d dimensions, index has %d",
				faceauth.ErrDimensionMismatch, it.Name, len(unit), ix.dim)
		}

		id := len(ix.items)
		ix.items = append(ix.items, Item{Name: it.Name, Embedding: unit})
		g.Add(hnsw.MakeNode(id, []float32(unit)))
	}

	return ix, nil
}

// Len returns the number of indexed items.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.items)
}

// Skipped returns how many items were left out as degenerate.
func (ix *Index) Skipped() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.skipped
}

// Search finds the k nearest items to query, most similar first.
func (ix *Index) Search(query faceauth.Embedding, k int) ([]Hit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.items) == 0 || k <= 0 {
		return nil, nil
	}
	unit, err := query.Normalized()
	if err != nil {
		return nil, err
	}
	if len(unit) != ix.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			faceauth.ErrDimensionMismatch, len(unit), ix.dim)
	}

	neighbors := ix.graph.Search([]float32(unit), min(k, len(ix.items)))

	hits := make([]Hit, 0, len(neighbors))
	for _, n := range neighbors {
		it := ix.items[n.Key]
		// Report the exact similarity rather than the graph's distance.
		sim, err := faceauth.CosineSimilarity(unit, it.Embedding)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Name: it.Name, Similarity: sim})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })

	return hits, nil
}
