package vector

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"
)

// hnswSnapshot is an approximate index over a hierarchical navigable small
// world graph. Search cost is sub-linear in N at the price of a small recall
// loss; construction parameters trade recall against build and query cost
// (higher m/efConstruction/efSearch raise recall, memory, and latency).
//
// The graph is fully built by buildHNSW and read-only afterwards, so Search
// needs no locking.
type hnswSnapshot struct {
	ids     []string
	vectors [][]float32

	// neighbors[i][l] holds the neighbor indices of node i at level l.
	neighbors [][][]int32
	levels    []int
	entry     int32
	maxLevel  int

	m        int
	efSearch int
}

// buildHNSW constructs the graph with sequential inserts. Level assignment
// uses a fixed seed so that identical input yields an identical graph.
func buildHNSW(ids []string, vectors [][]float32, m, efConstruction, efSearch int) *hnswSnapshot {
	s := &hnswSnapshot{
		ids:       ids,
		vectors:   vectors,
		neighbors: make([][][]int32, len(ids)),
		levels:    make([]int, len(ids)),
		entry:     -1,
		maxLevel:  -1,
		m:         m,
		efSearch:  efSearch,
	}
	rng := rand.New(rand.NewSource(1))
	levelMult := 1.0 / math.Log(float64(m))

	for i := range ids {
		level := int(math.Floor(-math.Log(rng.Float64()) * levelMult))
		s.insert(int32(i), level, efConstruction)
	}
	return s
}

// maxNeighbors returns the per-level link budget: 2*m at the base layer,
// m above it.
func (s *hnswSnapshot) maxNeighbors(level int) int {
	if level == 0 {
		return 2 * s.m
	}
	return s.m
}

func (s *hnswSnapshot) insert(id int32, level int, efConstruction int) {
	s.levels[id] = level
	s.neighbors[id] = make([][]int32, level+1)

	if s.entry < 0 {
		s.entry = id
		s.maxLevel = level
		return
	}

	vec := s.vectors[id]
	cur := s.entry

	// Greedy descent through the levels above the new node's level.
	for l := s.maxLevel; l > level; l-- {
		cur = s.greedyClosest(vec, cur, l)
	}

	// At each level the node occupies, connect to the best efConstruction
	// candidates found from the current entry.
	for l := min(level, s.maxLevel); l >= 0; l-- {
		found := s.searchLayer(vec, cur, efConstruction, l)
		limit := s.maxNeighbors(l)
		n := len(found)
		if n > limit {
			n = limit
		}
		for _, c := range found[:n] {
			s.link(id, c.index, l)
			s.link(c.index, id, l)
		}
		if len(found) > 0 {
			cur = found[0].index
		}
	}

	if level > s.maxLevel {
		s.maxLevel = level
		s.entry = id
	}
}

// link adds dst to src's neighbor list at level l, pruning to the link
// budget by keeping the closest neighbors.
func (s *hnswSnapshot) link(src, dst int32, l int) {
	nbrs := s.neighbors[src][l]
	for _, n := range nbrs {
		if n == dst {
			return
		}
	}
	nbrs = append(nbrs, dst)
	if limit := s.maxNeighbors(l); len(nbrs) > limit {
		vec := s.vectors[src]
		sort.Slice(nbrs, func(i, j int) bool {
			return InnerProduct(vec, s.vectors[nbrs[i]]) > InnerProduct(vec, s.vectors[nbrs[j]])
		})
		nbrs = nbrs[:limit]
	}
	s.neighbors[src][l] = nbrs
}

// greedyClosest walks level l from start toward the query, following the best
// neighbor until no neighbor improves on the current node.
func (s *hnswSnapshot) greedyClosest(query []float32, start int32, l int) int32 {
	cur := start
	curScore := InnerProduct(query, s.vectors[cur])
	for {
		improved := false
		for _, n := range s.neighborsAt(cur, l) {
			if score := InnerProduct(query, s.vectors[n]); score > curScore {
				cur, curScore = n, score
				improved = true
			}
		}
		if !improved {
			return cur
		}
	}
}

func (s *hnswSnapshot) neighborsAt(id int32, l int) []int32 {
	if l >= len(s.neighbors[id]) {
		return nil
	}
	return s.neighbors[id][l]
}

type scoredIndex struct {
	index int32
	score float64
}

// searchLayer is the beam search of the HNSW paper: expand the best unvisited
// candidate while keeping the ef best results found so far. Returns results
// ordered by descending similarity.
func (s *hnswSnapshot) searchLayer(query []float32, start int32, ef int, l int) []scoredIndex {
	visited := map[int32]bool{start: true}
	first := scoredIndex{index: start, score: InnerProduct(query, s.vectors[start])}

	candidates := &maxHeap{first}
	results := &minHeap{first}
	heap.Init(candidates)
	heap.Init(results)

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(scoredIndex)
		if c.score < (*results)[0].score && results.Len() >= ef {
			break
		}
		for _, n := range s.neighborsAt(c.index, l) {
			if visited[n] {
				continue
			}
			visited[n] = true
			score := InnerProduct(query, s.vectors[n])
			if results.Len() < ef || score > (*results)[0].score {
				heap.Push(candidates, scoredIndex{index: n, score: score})
				heap.Push(results, scoredIndex{index: n, score: score})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]scoredIndex, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(scoredIndex)
	}
	return out
}

func (s *hnswSnapshot) Search(query []float32, k int) []*Candidate {
	if k <= 0 || len(s.ids) == 0 {
		return nil
	}
	cur := s.entry
	for l := s.maxLevel; l > 0; l-- {
		cur = s.greedyClosest(query, cur, l)
	}
	ef := s.efSearch
	if ef < k {
		ef = k
	}
	found := s.searchLayer(query, cur, ef, 0)
	if k > len(found) {
		k = len(found)
	}
	result := make([]*Candidate, k)
	for i := 0; i < k; i++ {
		result[i] = &Candidate{ID: s.ids[found[i].index], Score: found[i].score}
	}
	return result
}

func (s *hnswSnapshot) Size() int {
	return len(s.ids)
}

func (s *hnswSnapshot) Strategy() string {
	return StrategyHNSW
}

// maxHeap pops the highest-similarity entry first.
type maxHeap []scoredIndex

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].score > h[j].score }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(scoredIndex)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// minHeap pops the lowest-similarity entry first (used to cap the result set).
type minHeap []scoredIndex

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].score < h[j].score }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(scoredIndex)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
