package facematch

import (
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-recall/internal/constants"
)

// Neighbor is a catalog entry returned by a similarity search.
type Neighbor struct {
	Identity KnownIdentity `json:"identity"`
	Distance float64       `json:"distance"`
}

// Index wraps an HNSW graph over catalog embeddings for k-nearest lookups.
// It serves browsing ("who looks like this person"); live matching uses Matcher.
type Index struct {
	graph *hnsw.Graph[string]
	byID  map[string]*KnownIdentity
	mu    sync.RWMutex
}

// NewIndex builds an index from the catalog.
func NewIndex(catalog *Catalog) *Index {
	idx := &Index{byID: make(map[string]*KnownIdentity)}
	idx.Build(catalog)
	return idx
}

// Build replaces the index contents with the catalog entries.
func (x *Index) Build(catalog *Catalog) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.byID = make(map[string]*KnownIdentity, catalog.Len())
	if catalog.Len() == 0 {
		x.graph = nil
		return
	}

	g := hnsw.NewGraph[string]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors)
	g.Distance = hnsw.EuclideanDistance

	for _, ident := range catalog.Entries() {
		if len(ident.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(ident.ID, ident.Embedding))
		x.byID[ident.ID] = &ident
	}
	x.graph = g
}

// Count returns the number of indexed identities.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byID)
}

// Search returns up to k identities nearest to the probe, closest first.
// Distances are exact Euclidean distances recomputed from the stored embeddings.
func (x *Index) Search(probe []float32, k int) []Neighbor {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || x.graph.Len() == 0 || k <= 0 || len(probe) != x.graph.Dims() {
		return nil
	}

	nodes := x.graph.Search(probe, k)
	out := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		ident, ok := x.byID[n.Key]
		if !ok {
			continue
		}
		out = append(out, Neighbor{Identity: *ident, Distance: EuclideanDistance(probe, n.Value)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

// SimilarTo returns up to k identities nearest to the identity with the given id,
// excluding the identity itself.
func (x *Index) SimilarTo(id string, k int) ([]Neighbor, bool) {
	x.mu.RLock()
	ident, ok := x.byID[id]
	x.mu.RUnlock()
	if !ok {
		return nil, false
	}

	neighbors := x.Search(ident.Embedding, k+1)
	out := make([]Neighbor, 0, k)
	for _, n := range neighbors {
		if n.Identity.ID == id {
			continue
		}
		if len(out) == k {
			break
		}
		out = append(out, n)
	}
	return out, true
}
