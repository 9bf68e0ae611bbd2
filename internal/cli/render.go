package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/scitrue/internal/citation"
	"github.com/ppiankov/scitrue/internal/model"
	"github.com/ppiankov/scitrue/internal/pipeline"
)

// renderText prints a finished run for the terminal
func renderText(w io.Writer, res *pipeline.Result) {
	report := res.Report
	if report == nil {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "  %s\n", res.Claim)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Accuracy:  %s (%s)\n", valueOr(report.Accuracy.String(), "n/a"), report.Band())
	fmt.Fprintf(w, "  Verdict:   %s\n", valueOr(report.Reason, "n/a"))
	fmt.Fprintf(w, "  Articles:  %d", res.Articles)
	if res.Cached {
		fmt.Fprint(w, " (from activity log)")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)
	fmt.Fprintln(w, citation.ToMarkdown(report.ExecutiveSummary))
	fmt.Fprintln(w)

	for i, sc := range report.Subclaims {
		fmt.Fprintf(w, "  %d. %s\n", i+1, sc.Claim)
		if sc.Contribution != "" || sc.Accuracy != "" {
			fmt.Fprintf(w, "     %s, accuracy %s\n", valueOr(sc.Contribution, "unlabeled"), valueOr(sc.Accuracy.String(), "n/a"))
		}
		if src := sourceLine(sc); src != "" {
			fmt.Fprintf(w, "     %s\n", src)
		}
		if sc.Metrics != nil {
			fmt.Fprintf(w, "     %s\n", metricsLine(sc))
		}
	}

	for _, hint := range res.Hints {
		fmt.Fprintf(w, "\nNote: %s\n", hint)
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
}

// renderMarkdown renders a finished run as a standalone Markdown report
func renderMarkdown(res *pipeline.Result) string {
	var b strings.Builder
	report := res.Report

	fmt.Fprintf(&b, "# %s\n\n", res.Claim)
	if report == nil {
		return b.String()
	}
	fmt.Fprintf(&b, "**Accuracy:** %s (%s)  \n", valueOr(report.Accuracy.String(), "n/a"), report.Band())
	fmt.Fprintf(&b, "**Verdict:** %s  \n", valueOr(report.Reason, "n/a"))
	fmt.Fprintf(&b, "**Articles requested:** %d\n\n", res.Articles)

	b.WriteString("## Summary\n\n")
	b.WriteString(citation.ToMarkdown(report.ExecutiveSummary))
	b.WriteString("\n\n")

	if len(report.Subclaims) > 0 {
		b.WriteString("## Subclaims\n\n")
		for i, sc := range report.Subclaims {
			fmt.Fprintf(&b, "### %d. %s\n\n", i+1, sc.Claim)
			if sc.Contribution != "" {
				fmt.Fprintf(&b, "- Contribution: %s\n", sc.Contribution)
			}
			if sc.Accuracy != "" {
				fmt.Fprintf(&b, "- Accuracy: %s\n", sc.Accuracy)
			}
			if sc.Reason != "" {
				fmt.Fprintf(&b, "- Reason: %s\n", sc.Reason)
			}
			if sc.Title != "" && sc.URL != "" {
				fmt.Fprintf(&b, "- Source: [%s](%s)\n", sc.Title, sc.URL)
			} else if src := sourceLine(sc); src != "" {
				fmt.Fprintf(&b, "- Source: %s\n", src)
			}
			if sc.RelevantSentence != "" {
				fmt.Fprintf(&b, "- Evidence: \"%s\"\n", sc.RelevantSentence)
			}
			if sc.Metrics != nil {
				fmt.Fprintf(&b, "- Journal: %s ([definitions](%s))\n", metricsLine(sc), valueOr(sc.Metrics.Definitions, model.MetricsDefinitionsURL))
			}
			b.WriteString("\n")
		}
	}

	if len(res.Hints) > 0 || len(res.Warnings) > 0 {
		b.WriteString("## Notes\n\n")
		for _, hint := range res.Hints {
			fmt.Fprintf(&b, "- %s\n", hint)
		}
		for _, warning := range res.Warnings {
			fmt.Fprintf(&b, "- %s\n", warning)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func sourceLine(sc model.SubClaim) string {
	var parts []string
	if sc.Title != "" {
		parts = append(parts, sc.Title)
	}
	if sc.Authors != "" {
		parts = append(parts, sc.Authors)
	}
	if sc.Year > 0 {
		parts = append(parts, fmt.Sprintf("%d", sc.Year))
	}
	if sc.URL != "" {
		parts = append(parts, sc.URL)
	}
	return strings.Join(parts, ", ")
}

func metricsLine(sc model.SubClaim) string {
	m := sc.Metrics
	return fmt.Sprintf("%s: SJR %s, H index %s, %s", journalName(sc), valueOr(m.RankScore, "n/a"), valueOr(m.HIndex, "n/a"), valueOr(m.Country, "n/a"))
}

func journalName(sc model.SubClaim) string {
	if sc.JournalTitle != "" {
		return sc.JournalTitle
	}
	return valueOr(sc.Venue, "Journal")
}

func valueOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// writeJSON writes v as indented JSON, creating parent directories
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

func writeJSONTo(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "-",
)

// sanitizeFilename turns a claim into a file name stem
func sanitizeFilename(s string) string {
	s = filenameReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
	s = strings.Trim(s, ".-_")
	if r := []rune(s); len(r) > 80 {
		s = string(r[:80])
	}
	if s == "" {
		s = "claim"
	}
	return s
}
