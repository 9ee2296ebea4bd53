package models

// Recognition status values. Match is returned only when the top candidate's
// similarity clears the configured threshold; Rejected means the image failed
// the quality gate before any search was attempted.
const (
	StatusMatch    = "match"
	StatusNoMatch  = "no_match"
	StatusRejected = "rejected"
)

// Candidate is a single ranked recognition hit.
type Candidate struct {
	BookID         string  `json:"book_id"`
	Title          string  `json:"title,omitempty"`
	Author         string  `json:"author,omitempty"`
	ImagePath      string  `json:"image,omitempty"`
	Similarity     float64 `json:"similarity"`
	ConfidenceTier string  `json:"confidence_tier"`
	MatchQuality   string  `json:"match_quality"`
	Rank           int     `json:"rank"`
}

// RecognitionResult is the response for a recognize request. Candidates are
// ordered by descending similarity and are returned even on no_match, as
// best-effort suggestions.
type RecognitionResult struct {
	Status        string       `json:"status"`
	Candidates    []*Candidate `json:"candidates"`
	TopSimilarity float64      `json:"top_similarity"`
	Threshold     float64      `json:"threshold,omitempty"`
	Suggestion    string       `json:"suggestion,omitempty"`
}

// ReindexStatus reports the state of the background reindex worker.
type ReindexStatus struct {
	Running     bool   `json:"running"`
	Pending     bool   `json:"pending"`
	LastStarted string `json:"last_started,omitempty"`
	LastDone    string `json:"last_done,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	Indexed     int    `json:"indexed"`
	Failed      int    `json:"failed"`
}
