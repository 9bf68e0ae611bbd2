// Package enrich merges extracted subclaims with their source evidence and
// attaches journal metrics.
package enrich

import (
	"strings"
	"unicode"

	"github.com/ppiankov/scitrue/internal/model"
)

// AttachEvidence folds each subclaim's matching evidence record into a copy of
// the subclaim. Matching is by normalized text identity or containment between
// the subclaim text and the record's relevant sentence, falling back to the
// source id. Unmatched subclaims are returned unchanged; none are dropped.
func AttachEvidence(subclaims []model.SubClaim, evidence []model.EvidenceItem) []model.SubClaim {
	sentences := make([]string, len(evidence))
	for i, item := range evidence {
		sentences[i] = normalizeText(item.RelevantSentence)
	}

	out := make([]model.SubClaim, len(subclaims))
	for i, sc := range subclaims {
		out[i] = sc
		if idx := matchEvidence(sc, evidence, sentences); idx >= 0 {
			fold(&out[i], evidence[idx])
		}
	}
	return out
}

func matchEvidence(sc model.SubClaim, evidence []model.EvidenceItem, sentences []string) int {
	text := normalizeText(sc.Claim)
	if text != "" {
		for i, sentence := range sentences {
			if sentence == "" {
				continue
			}
			if text == sentence || strings.Contains(sentence, text) || strings.Contains(text, sentence) {
				return i
			}
		}
	}

	id := strings.TrimSpace(sc.SourceID.String())
	if id == "" {
		return -1
	}
	for i, item := range evidence {
		if item.CorpusID != "" && item.CorpusID == id {
			return i
		}
		if strings.HasSuffix(item.URL, "CorpusId:"+id) {
			return i
		}
	}
	return -1
}

func fold(sc *model.SubClaim, item model.EvidenceItem) {
	sc.Title = item.Title
	sc.Authors = item.Authors
	sc.Venue = item.Venue
	sc.JournalTitle = item.JournalTitle
	sc.Year = item.Year
	sc.URL = item.URL
	sc.Section = item.Section
	sc.Paragraph = item.Paragraph
	sc.RelevantSentence = item.RelevantSentence
	sc.Label = item.Label
	sc.SupportingAssumption = append([]string(nil), item.SupportingAssumption...)
	sc.RefutingAssumption = append([]string(nil), item.RefutingAssumption...)
	if sc.SourceID == "" {
		sc.SourceID = model.FlexString(item.CorpusID)
	}
}

// normalizeText lowercases, collapses whitespace and drops punctuation at the edges
func normalizeText(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}
