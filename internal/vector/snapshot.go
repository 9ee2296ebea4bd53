// Package vector provides the in-memory vector index: immutable search
// snapshots over L2-normalized embeddings, and a coordinator that publishes
// new snapshots with an atomic swap so searches never block on rebuilds.
package vector

// Entry pairs a catalog item ID with its embedding vector.
type Entry struct {
	ID     string
	Vector []float32
}

// Candidate is a single search hit. Score is the inner product of normalized
// vectors, i.e. cosine similarity (1.0 = identical direction, 0 = orthogonal).
type Candidate struct {
	ID    string
	Score float64
}

// Snapshot is an immutable point-in-time build of the search index. A
// snapshot is safe for concurrent use from any goroutine and is never
// mutated after build; catalog changes produce a whole new snapshot.
type Snapshot interface {
	// Search returns up to k candidates ordered by descending similarity.
	// The query must be L2-normalized and of the snapshot's dimension.
	// k greater than Size returns Size results; k <= 0 or an empty
	// snapshot returns nil.
	Search(query []float32, k int) []*Candidate
	// Size returns the number of indexed vectors.
	Size() int
	// Strategy returns the build strategy identifier ("flat" or "hnsw").
	Strategy() string
}

// Strategy identifiers.
const (
	StrategyFlat = "flat"
	StrategyHNSW = "hnsw"
)
