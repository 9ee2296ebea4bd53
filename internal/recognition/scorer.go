package recognition

// Breakpoint maps a minimum similarity to a confidence tier and match quality.
type Breakpoint struct {
	Min     float64
	Tier    string
	Quality string
}

// Scorer maps a raw cosine similarity to a confidence tier via a fixed,
// ordered breakpoint table, and holds the single authoritative accept
// threshold: a request is a match only when the top candidate clears it.
// Downstream consumers must not re-derive the decision from raw similarity.
type Scorer struct {
	threshold   float64
	breakpoints []Breakpoint
}

// NewScorer creates a scorer with the standard tier table above threshold.
// The breakpoint values were chosen empirically against the reference
// catalog. Fixed rows below the configured threshold are dropped so a
// below-threshold similarity is always "low"/"poor", whatever the threshold.
// Kept fixed rows are already descending; appending the threshold row last
// keeps the table ordered, and Score takes the first row cleared.
func NewScorer(threshold float64) *Scorer {
	breakpoints := make([]Breakpoint, 0, 3)
	for _, bp := range []Breakpoint{
		{Min: 0.85, Tier: "very_high", Quality: "excellent"},
		{Min: 0.75, Tier: "high", Quality: "good"},
	} {
		if bp.Min >= threshold {
			breakpoints = append(breakpoints, bp)
		}
	}
	breakpoints = append(breakpoints, Breakpoint{Min: threshold, Tier: "medium", Quality: "acceptable"})
	return &Scorer{
		threshold:   threshold,
		breakpoints: breakpoints,
	}
}

// Score returns the confidence tier and match quality for a similarity.
// Similarities below every breakpoint are "low"/"poor".
func (s *Scorer) Score(similarity float64) (tier, quality string) {
	for _, bp := range s.breakpoints {
		if similarity >= bp.Min {
			return bp.Tier, bp.Quality
		}
	}
	return "low", "poor"
}

// IsMatch reports whether similarity clears the accept threshold.
func (s *Scorer) IsMatch(similarity float64) bool {
	return similarity >= s.threshold
}

// Threshold returns the accept threshold.
func (s *Scorer) Threshold() float64 {
	return s.threshold
}
