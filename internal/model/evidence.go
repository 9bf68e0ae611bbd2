package model

import "strings"

// EvidenceItem is one retrieved, ranked passage with its stance toward the claim.
// Field names on the wire follow the retrieval service's column names.
type EvidenceItem struct {
	Authors              string   `json:"authors"`
	Year                 int      `json:"year,omitempty"`
	URL                  string   `json:"url"`
	RelevantSentence     string   `json:"relevant sentence"`
	Label                string   `json:"label"` // e.g. "conditionally supports"
	SupportingAssumption []string `json:"supporting assumptions,omitempty"`
	RefutingAssumption   []string `json:"refuting assumptions,omitempty"`
	Relevance            string   `json:"relevance"` // "yes" or "no"

	// Source article metadata, present when the retriever knows it
	CorpusID     string `json:"CorpusId,omitempty"`
	Title        string `json:"title,omitempty"`
	Venue        string `json:"venue,omitempty"`
	JournalTitle string `json:"journal_title,omitempty"`
	Section      string `json:"section,omitempty"`
	Paragraph    string `json:"paragraph,omitempty"`
}

// IsRelevant reports whether the retriever judged the item relevant
func (e EvidenceItem) IsRelevant() bool {
	return strings.EqualFold(strings.TrimSpace(e.Relevance), "yes")
}

// StanceTier groups stance labels into how strongly they bear on the claim
type StanceTier string

const (
	TierConditional StanceTier = "conditional" // Partial support or refutation
	TierComplete    StanceTier = "complete"    // Full support or refutation
	TierUnlabeled   StanceTier = ""
)

// Tier maps a stance label onto its tier
func (e EvidenceItem) Tier() StanceTier {
	label := strings.ToLower(e.Label)
	switch {
	case strings.Contains(label, "conditional"):
		return TierConditional
	case strings.Contains(label, "completely"):
		return TierComplete
	default:
		return TierUnlabeled
	}
}

// Description returns the prompt heading for the tier
func (t StanceTier) Description() string {
	switch t {
	case TierConditional:
		return "Evidence that may partially support or refute the claim"
	case TierComplete:
		return "Evidence that may support or refute the claim"
	default:
		return ""
	}
}

// FilterRelevant keeps only items marked relevant, preserving rank order
func FilterRelevant(items []EvidenceItem) []EvidenceItem {
	out := make([]EvidenceItem, 0, len(items))
	for _, item := range items {
		if item.IsRelevant() {
			out = append(out, item)
		}
	}
	return out
}
