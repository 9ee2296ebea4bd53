package vector

import "sort"

// flatSnapshot is an exact brute-force index: every query computes the inner
// product against all stored vectors. O(N*D) per search, deterministic.
// Used for small catalogs where exhaustive search is cheap.
type flatSnapshot struct {
	ids     []string
	vectors [][]float32
}

func (s *flatSnapshot) Search(query []float32, k int) []*Candidate {
	if k <= 0 || len(s.ids) == 0 {
		return nil
	}
	scores := make([]Candidate, len(s.ids))
	for i, vec := range s.vectors {
		scores[i] = Candidate{ID: s.ids[i], Score: InnerProduct(query, vec)}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if k > len(scores) {
		k = len(scores)
	}
	result := make([]*Candidate, k)
	for i := 0; i < k; i++ {
		c := scores[i]
		result[i] = &c
	}
	return result
}

func (s *flatSnapshot) Size() int {
	return len(s.ids)
}

func (s *flatSnapshot) Strategy() string {
	return StrategyFlat
}
