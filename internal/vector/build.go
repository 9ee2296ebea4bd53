package vector

import "fmt"

// Options configure snapshot builds. Zero values fall back to the defaults
// below; ApproxThreshold is the catalog size at which builds switch from the
// exact flat strategy to the HNSW graph.
type Options struct {
	Dimensions      int
	ApproxThreshold int
	HNSWM           int
	EfConstruction  int
	EfSearch        int
}

const (
	defaultApproxThreshold = 100
	defaultHNSWM           = 32
	defaultEfConstruction  = 40
	defaultEfSearch        = 16
)

func (o Options) withDefaults() Options {
	if o.ApproxThreshold == 0 {
		o.ApproxThreshold = defaultApproxThreshold
	}
	if o.HNSWM == 0 {
		o.HNSWM = defaultHNSWM
	}
	if o.EfConstruction == 0 {
		o.EfConstruction = defaultEfConstruction
	}
	if o.EfSearch == 0 {
		o.EfSearch = defaultEfSearch
	}
	return o
}

// BuildSnapshot builds an immutable snapshot from entries. Vectors are copied
// and L2-normalized here, so inner product equals cosine similarity at search
// time regardless of what the embedder produced. The strategy is picked by
// catalog size and is invisible to callers of Search.
//
// A dimension mismatch or a zero-norm vector is an input contract violation
// and fails the whole build.
func BuildSnapshot(entries []Entry, opts Options) (Snapshot, error) {
	opts = opts.withDefaults()

	ids := make([]string, len(entries))
	vectors := make([][]float32, len(entries))
	for i, e := range entries {
		if opts.Dimensions > 0 && len(e.Vector) != opts.Dimensions {
			return nil, fmt.Errorf("entry %q: vector dimension mismatch: got %d, expected %d",
				e.ID, len(e.Vector), opts.Dimensions)
		}
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		if !Normalize(vec) {
			return nil, fmt.Errorf("entry %q: zero-norm vector", e.ID)
		}
		ids[i] = e.ID
		vectors[i] = vec
	}

	if len(entries) >= opts.ApproxThreshold {
		return buildHNSW(ids, vectors, opts.HNSWM, opts.EfConstruction, opts.EfSearch), nil
	}
	return &flatSnapshot{ids: ids, vectors: vectors}, nil
}
