// Package cli provides output helpers for the kotae command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat selects how command results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat maps a -output flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteAnswer writes a bot answer to w in the given format.
func WriteAnswer(w io.Writer, answer *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, answer)
	}
	fmt.Fprintf(w, "\n%s\n\n", answer.Text)
	fmt.Fprintf(w, "tier: %s | score: %.3f", answer.Tier, answer.TopScore)
	if answer.Escalate {
		fmt.Fprint(w, " | escalated")
	}
	fmt.Fprintln(w)
	if answer.SessionID != "" {
		fmt.Fprintf(w, "session: %s\n", answer.SessionID)
	}
	if len(answer.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, s := range answer.Sources {
			fmt.Fprintf(w, "  [%s #%d] %s (%.3f)\n", s.Type, s.ID, utils.Truncate(s.Question, 80), s.Score)
		}
	}
	if len(answer.Suggestions) > 0 {
		fmt.Fprintln(w, "\nYou could also ask:")
		for _, s := range answer.Suggestions {
			fmt.Fprintf(w, "  - %s\n", s.Label)
		}
	}
	return nil
}

// WriteDocument writes the processing state of a document.
func WriteDocument(w io.Writer, doc *models.KnowledgeDocument, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, doc)
	}
	fmt.Fprintf(w, "Document %d (tenant %d): %s\n", doc.ID, doc.TenantID, doc.Title)
	fmt.Fprintf(w, "  status:  %s\n", doc.Status)
	fmt.Fprintf(w, "  chunks:  %d\n", doc.ChunkCount)
	if doc.ExtractionQuality != models.QualityUnknown {
		fmt.Fprintf(w, "  quality: %s\n", doc.ExtractionQuality)
	}
	if doc.ErrorMessage != "" {
		fmt.Fprintf(w, "  error:   %s\n", doc.ErrorMessage)
	}
	return nil
}

// WriteReindexReport writes the outcome of a tenant reindex.
func WriteReindexReport(w io.Writer, tenantID int64, report indexer.ReindexReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Reindexed tenant %d\n", tenantID)
	fmt.Fprintf(w, "  faqs:      %d indexed, %d failed\n", report.FaqsIndexed, report.FaqsFailed)
	fmt.Fprintf(w, "  policies:  %d indexed, %d failed\n", report.PoliciesIndexed, report.PoliciesFailed)
	fmt.Fprintf(w, "  documents: %d indexed, %d failed (%d chunks)\n", report.DocumentsIndexed, report.DocumentsFailed, report.ChunksIndexed)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
