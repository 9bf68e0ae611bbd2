// Package prompt assembles the generator prompts: the grounded report prompt,
// the subclaim extraction prompt and the claim refinement prompt.
package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/scitrue/internal/model"
)

// ReportInstruction is the output-schema instruction prepended to every report prompt
const ReportInstruction = `You are given a claim or question along with a set of evidence sentences sourced from published papers. Each piece of evidence may either **support or refute** the claim, either partially or completely.

Your task is to:

1. **Create an executive summary** that synthesizes all provided evidence and their stance (supporting or refuting).
2. **Cite each sentence of evidence in the summary exactly once**, and integrate it **coherently and accurately**.
3. Format each citation as an **HTML hyperlink** using the structure:
` + "`" + `<a href="URL">FirstAuthor et al. (Year)</a>` + "`" + ` and use the first author's name followed by "et al." and the year from the citation data.
4. Ensure that **each citation is used only once**, and no extra or duplicate citations are introduced.
5. **Assess the faithfulness of the claim** based solely on the provided evidence (including both supporting and refuting parts and assumptions).

*Example citation formatting in a sentence*:
"The findings align with previous results (<a href='https://api.semanticscholar.org/CorpusId:269813687'>FirstAuthor et al, year</a>)..."

---

Your output must strictly follow this structured JSON format:

{
  "claim": "...",
  "executive summary": "...(HTML-formatted summary using correctly formatted, clickable citations)",
  "accuracy": "x/100",
  "reason for accuracy": "...(explain why you assigned the score and include one of True, Mostly True, Partially True, False in your reasoning, based on the evidence provided)"
}
`

// BuildEvidenceBlock formats one evidence item: tier heading, relevant
// sentence, assumption bullets and the citation line
func BuildEvidenceBlock(item model.EvidenceItem) string {
	var assumptions strings.Builder
	if len(item.SupportingAssumption) > 0 {
		fmt.Fprintf(&assumptions, "\n  - **Positive assumptions:** %s", strings.Join(item.SupportingAssumption, ", "))
	}
	if len(item.RefutingAssumption) > 0 {
		fmt.Fprintf(&assumptions, "\n  - **Negative assumptions:** %s", strings.Join(item.RefutingAssumption, ", "))
	}

	return fmt.Sprintf("%s: %s\n\nAssumptions of the evidence:%s\nAuthors: %s, Year: %s, Link: %s",
		item.Tier().Description(),
		item.RelevantSentence,
		assumptions.String(),
		item.Authors,
		formatYear(item.Year),
		item.URL,
	)
}

// BuildEvidenceBlocks formats items in rank order, one block per item
func BuildEvidenceBlocks(items []model.EvidenceItem) []string {
	blocks := make([]string, 0, len(items))
	for _, item := range items {
		blocks = append(blocks, BuildEvidenceBlock(item))
	}
	return blocks
}

// BuildReportPrompt joins the instruction, the claim and the evidence blocks
func BuildReportPrompt(claim string, blocks []string) string {
	var b strings.Builder
	b.WriteString(ReportInstruction)
	b.WriteString("\n")
	b.WriteString(`Claim: "` + claim + `"`)
	b.WriteString("\n\nEvidence:\n")
	b.WriteString(strings.Join(blocks, "\n\n"))
	return b.String()
}

func formatYear(year int) string {
	if year <= 0 {
		return "n.d."
	}
	return strconv.Itoa(year)
}
