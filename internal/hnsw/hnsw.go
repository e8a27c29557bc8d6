// Package hnsw implements a pure-Go hierarchical navigable small-world
// graph, the approximate nearest-neighbor index each vector collection
// maintains alongside its SQLite-backed row storage.
package hnsw

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
	"github.com/custodia-labs/sercha-cli/internal/core/ports/driven"
)

// Default construction/search parameters, chosen for small-to-medium
// forensic corpora rather than web-scale ones.
const (
	DefaultM              = 16
	DefaultMMax0          = 32
	DefaultEfConstruction = 200
	DefaultEfSearch       = 64
)

type node struct {
	ID        string
	Vector    []float32
	Level     int
	Neighbors [][]string // Neighbors[l] holds this node's peers at layer l.
	Deleted   bool
}

// Index is a pure-Go HNSW graph over cosine distance, implementing
// driven.VectorIndex. It is safe for concurrent use.
type Index struct {
	mu             sync.RWMutex
	dim            int
	m              int
	mMax0          int
	efConstruction int
	efSearch       int
	levelMult      float64
	entryPoint     string
	maxLevel       int
	nodes          map[string]*node
	path           string
	rng            *rand.Rand
}

// persisted is the on-disk shape gob-encodes/decodes into.
type persisted struct {
	Dim        int
	EntryPoint string
	MaxLevel   int
	Nodes      map[string]*node
}

// New builds an empty index for vectors of dimension dim, persisting to
// path on Close. path may be empty for an in-memory-only index.
func New(dim int, path string) *Index {
	return &Index{
		dim:            dim,
		m:              DefaultM,
		mMax0:          DefaultMMax0,
		efConstruction: DefaultEfConstruction,
		efSearch:       DefaultEfSearch,
		levelMult:      1 / math.Log(float64(DefaultM)),
		nodes:          make(map[string]*node),
		path:           path,
		rng:            rand.New(rand.NewSource(1)),
	}
}

// Open loads an index previously persisted at path, or returns a fresh
// empty index if the file does not exist. Fails with domain.ErrCorruptIndex
// if the file exists but cannot be decoded, so the caller can rebuild from
// raw vectors.
func Open(dim int, path string) (*Index, error) {
	idx := New(dim, path)
	if path == "" {
		return idx, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, err
	}

	var p persisted
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, domain.ErrCorruptIndex
	}

	idx.dim = p.Dim
	idx.entryPoint = p.EntryPoint
	idx.maxLevel = p.MaxLevel
	idx.nodes = p.Nodes
	if idx.nodes == nil {
		idx.nodes = make(map[string]*node)
	}
	return idx, nil
}

var _ driven.VectorIndex = (*Index)(nil)

// Add inserts or replaces the vector stored under id.
func (idx *Index) Add(_ context.Context, id string, embedding []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing, ok := idx.nodes[id]; ok {
		existing.Vector = embedding
		existing.Deleted = false
		return nil
	}

	level := idx.randomLevel()
	n := &node{
		ID:        id,
		Vector:    embedding,
		Level:     level,
		Neighbors: make([][]string, level+1),
	}
	idx.nodes[id] = n

	if idx.entryPoint == "" {
		idx.entryPoint = id
		idx.maxLevel = level
		return nil
	}

	curr := idx.entryPoint
	for l := idx.maxLevel; l > level; l-- {
		curr = idx.greedyClosest(curr, embedding, l)
	}

	for l := min(idx.maxLevel, level); l >= 0; l-- {
		candidates := idx.searchLayer(embedding, curr, idx.efConstruction, l)
		maxConn := idx.m
		if l == 0 {
			maxConn = idx.mMax0
		}
		selected := selectNeighbors(candidates, maxConn)
		n.Neighbors[l] = selected
		for _, peer := range selected {
			idx.link(peer, id, l, maxConn)
		}
		if len(candidates) > 0 {
			curr = candidates[0].id
		}
	}

	if level > idx.maxLevel {
		idx.maxLevel = level
		idx.entryPoint = id
	}
	return nil
}

// Delete tombstones id; deleting an absent id is not an error.
func (idx *Index) Delete(_ context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	n, ok := idx.nodes[id]
	if !ok {
		return nil
	}
	n.Deleted = true

	if idx.entryPoint == id {
		idx.entryPoint = ""
		idx.maxLevel = 0
		for otherID, other := range idx.nodes {
			if !other.Deleted {
				idx.entryPoint = otherID
				idx.maxLevel = other.Level
				break
			}
		}
	}
	return nil
}

// Search returns the k nearest live neighbors to query, ascending by
// distance.
func (idx *Index) Search(_ context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.entryPoint == "" {
		return nil, nil
	}

	curr := idx.entryPoint
	for l := idx.maxLevel; l > 0; l-- {
		curr = idx.greedyClosest(curr, query, l)
	}

	ef := idx.efSearch
	if ef < k {
		ef = k
	}
	candidates := idx.searchLayer(query, curr, ef, 0)

	live := candidates[:0:0]
	for _, c := range candidates {
		if n, ok := idx.nodes[c.id]; ok && !n.Deleted {
			live = append(live, c)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].dist < live[j].dist })
	if len(live) > k {
		live = live[:k]
	}

	hits := make([]driven.VectorHit, len(live))
	for i, c := range live {
		hits[i] = driven.VectorHit{ID: c.id, Distance: c.dist}
	}
	return hits, nil
}

// Close persists the index to its configured path, if any.
func (idx *Index) Close() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.path == "" {
		return nil
	}

	p := persisted{Dim: idx.dim, EntryPoint: idx.entryPoint, MaxLevel: idx.maxLevel, Nodes: idx.nodes}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return err
	}
	return os.WriteFile(idx.path, buf.Bytes(), 0o600)
}

// Rebuild discards the current graph and reinserts every (id, vector) pair,
// used after domain.ErrCorruptIndex forces a rebuild from raw vectors.
func (idx *Index) Rebuild(ctx context.Context, vectors map[string][]float32) error {
	idx.mu.Lock()
	idx.nodes = make(map[string]*node)
	idx.entryPoint = ""
	idx.maxLevel = 0
	idx.mu.Unlock()

	ids := make([]string, 0, len(vectors))
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := idx.Add(ctx, id, vectors[id]); err != nil {
			return err
		}
	}
	return nil
}

type candidate struct {
	id   string
	dist float64
}

// searchLayer runs the standard HNSW layer search from entry, returning
// up to ef candidates sorted ascending by distance.
func (idx *Index) searchLayer(query []float32, entry string, ef int, level int) []candidate {
	visited := map[string]bool{entry: true}
	entryNode, ok := idx.nodes[entry]
	if !ok {
		return nil
	}

	results := []candidate{{id: entry, dist: cosineDistance(query, entryNode.Vector)}}
	frontier := []candidate{results[0]}

	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool { return frontier[i].dist < frontier[j].dist })
		curr := frontier[0]
		frontier = frontier[1:]

		worst := worstDist(results, ef)
		if curr.dist > worst && len(results) >= ef {
			break
		}

		n := idx.nodes[curr.id]
		if n == nil || level >= len(n.Neighbors) {
			continue
		}
		for _, peerID := range n.Neighbors[level] {
			if visited[peerID] {
				continue
			}
			visited[peerID] = true
			peer := idx.nodes[peerID]
			if peer == nil || peer.Deleted {
				continue
			}
			d := cosineDistance(query, peer.Vector)
			results = append(results, candidate{id: peerID, dist: d})
			frontier = append(frontier, candidate{id: peerID, dist: d})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
	if len(results) > ef {
		results = results[:ef]
	}
	return results
}

func worstDist(results []candidate, ef int) float64 {
	if len(results) == 0 {
		return math.Inf(1)
	}
	sorted := append([]candidate(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].dist < sorted[j].dist })
	idx := len(sorted) - 1
	if idx >= ef {
		idx = ef - 1
	}
	return sorted[idx].dist
}

// greedyClosest walks layer l from entry towards query until no neighbor
// improves distance, used to descend from the top layer during insert and
// search.
func (idx *Index) greedyClosest(entry string, query []float32, level int) string {
	curr := entry
	currDist := cosineDistance(query, idx.nodes[curr].Vector)
	for {
		n := idx.nodes[curr]
		if n == nil || level >= len(n.Neighbors) {
			return curr
		}
		improved := false
		for _, peerID := range n.Neighbors[level] {
			peer := idx.nodes[peerID]
			if peer == nil || peer.Deleted {
				continue
			}
			d := cosineDistance(query, peer.Vector)
			if d < currDist {
				curr, currDist = peerID, d
				improved = true
			}
		}
		if !improved {
			return curr
		}
	}
}

// link adds a bidirectional edge between a and b at level, trimming a's
// neighbor list down to maxConn by keeping the closest peers.
func (idx *Index) link(a, b string, level int, maxConn int) {
	n := idx.nodes[a]
	if n == nil {
		return
	}
	for len(n.Neighbors) <= level {
		n.Neighbors = append(n.Neighbors, nil)
	}
	n.Neighbors[level] = append(n.Neighbors[level], b)

	if len(n.Neighbors[level]) > maxConn {
		cands := make([]candidate, 0, len(n.Neighbors[level]))
		for _, peerID := range n.Neighbors[level] {
			peer := idx.nodes[peerID]
			if peer == nil {
				continue
			}
			cands = append(cands, candidate{id: peerID, dist: cosineDistance(n.Vector, peer.Vector)})
		}
		selected := selectNeighbors(cands, maxConn)
		n.Neighbors[level] = selected
	}
}

func selectNeighbors(candidates []candidate, maxConn int) []string {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	if len(candidates) > maxConn {
		candidates = candidates[:maxConn]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

// randomLevel samples an insertion level from the exponential distribution
// standard HNSW uses, so higher layers stay sparse.
func (idx *Index) randomLevel() int {
	r := idx.rng.Float64()
	if r == 0 {
		r = 1e-12
	}
	level := int(math.Floor(-math.Log(r) * idx.levelMult))
	if level > 32 {
		level = 32
	}
	return level
}

func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	return 1 - cos
}
