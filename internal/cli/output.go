// Package cli provides CLI output utilities for Mikke.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/mikke/internal/models"
)

// OutputFormat is the format for recognition result output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch s {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteRecognitionResult writes the result for one image to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteRecognitionResult(w io.Writer, imagePath string, result *models.RecognitionResult, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	default:
		writeRecognitionResultText(w, imagePath, result)
		return nil
	}
}

func writeRecognitionResultText(w io.Writer, imagePath string, result *models.RecognitionResult) {
	fmt.Fprintf(w, "%s: %s", imagePath, result.Status)
	switch result.Status {
	case models.StatusRejected:
		if result.Suggestion != "" {
			fmt.Fprintf(w, " (%s)", result.Suggestion)
		}
	case models.StatusNoMatch:
		fmt.Fprintf(w, " (best similarity %.4f, threshold %.2f)", result.TopSimilarity, result.Threshold)
	}
	fmt.Fprintln(w)
	for _, c := range result.Candidates {
		fmt.Fprintf(w, "  %d. %s", c.Rank, c.BookID)
		if c.Title != "" {
			fmt.Fprintf(w, " %q", c.Title)
		}
		if c.Author != "" {
			fmt.Fprintf(w, " by %s", c.Author)
		}
		fmt.Fprintf(w, " (similarity: %.4f, confidence: %s)\n", c.Similarity, c.ConfidenceTier)
	}
}
