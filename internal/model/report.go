package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Report is the structured, citation-backed verdict recovered from the generator
type Report struct {
	Claim            string     `json:"claim"`
	ExecutiveSummary string     `json:"executive summary" validate:"required"`
	Accuracy         FlexString `json:"accuracy"`
	Reason           string     `json:"reason for accuracy"`
	Subclaims        []SubClaim `json:"subclaims,omitempty"`
}

// SubClaim is one decomposed, individually cited assertion from the summary
type SubClaim struct {
	Claim        string     `json:"claim" validate:"required"`
	SourceID     FlexString `json:"CorpusId,omitempty"`
	Accuracy     FlexString `json:"accuracy,omitempty"`
	Reason       string     `json:"reason for accuracy,omitempty"`
	Contribution string     `json:"contribution,omitempty"`

	// Folded in from the matched evidence item
	Title                string   `json:"title,omitempty"`
	Authors              string   `json:"authors,omitempty"`
	Venue                string   `json:"venue,omitempty"`
	JournalTitle         string   `json:"journal_title,omitempty"`
	Year                 int      `json:"year,omitempty"`
	URL                  string   `json:"url,omitempty"`
	Section              string   `json:"section,omitempty"`
	Paragraph            string   `json:"paragraph,omitempty"`
	RelevantSentence     string   `json:"relevant sentence,omitempty"`
	Label                string   `json:"label,omitempty"`
	SupportingAssumption []string `json:"supporting assumptions,omitempty"`
	RefutingAssumption   []string `json:"refuting assumptions,omitempty"`

	Metrics *MetricsBlock `json:"sjr,omitempty"`
}

// Contribution labels the subclaim extraction prompt asks for
var ContributionLabels = []string{
	"corroborating",
	"partially corroborating",
	"slightly corroborating",
	"contrasting",
	"partially contrasting",
	"slightly contrasting",
	"inconclusive",
}

// MetricsDefinitionsURL documents the journal ranking fields
const MetricsDefinitionsURL = "https://www.scimagojr.com/help.php"

// MetricsBlock holds journal/venue impact metrics for a subclaim's source
type MetricsBlock struct {
	RankScore   string `json:"SCImago Journal Rank"`
	Country     string `json:"Country"`
	HIndex      string `json:"Journal  H index"`
	Definitions string `json:"Metric Definitions,omitempty"`
}

// CacheEntry is one append-only activity log record; never mutated after write
type CacheEntry struct {
	User            string     `json:"user"`
	Email           string     `json:"email"`
	Claim           string     `json:"claim"`
	Articles        int        `json:"articles"`
	Summary         string     `json:"summary"`
	OverallAccuracy FlexString `json:"overall accuracy"`
	OverallReason   string     `json:"overall reason for accuracy"`
	Subclaims       []SubClaim `json:"subclaims"`
	Timestamp       LogTime    `json:"timestamp"`
}

// NewCacheEntry builds the log record for a completed run
func NewCacheEntry(user, email, claim string, articles int, report *Report, now time.Time) CacheEntry {
	subclaims := report.Subclaims
	if subclaims == nil {
		subclaims = []SubClaim{}
	}
	return CacheEntry{
		User:            user,
		Email:           email,
		Claim:           claim,
		Articles:        articles,
		Summary:         report.ExecutiveSummary,
		OverallAccuracy: report.Accuracy,
		OverallReason:   report.Reason,
		Subclaims:       subclaims,
		Timestamp:       LogTime{Time: now},
	}
}

// Fingerprint returns the cache key the entry was stored under
func (e CacheEntry) Fingerprint() Fingerprint {
	return NewFingerprint(e.Claim, e.Articles)
}

// Layouts accepted for log timestamps, tried in order. Older logs carry
// naive "2006-01-02 15:04:05.999999" stamps, read as UTC.
var logTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// LogTime is a log timestamp that decodes RFC 3339 as well as the naive
// space-separated form. It always encodes as RFC 3339.
type LogTime struct {
	time.Time
}

func (t *LogTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("log time: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range logTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("log time: unrecognized timestamp %q", s)
}

func (t LogTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// Equal reports whether both stamps denote the same instant
func (t LogTime) Equal(u LogTime) bool {
	return t.Time.Equal(u.Time)
}

// FlexString accepts a JSON string, number, or null.
// Generators emit ids and scores in either form.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// AccuracyBand buckets an accuracy score
type AccuracyBand string

const (
	BandHigh    AccuracyBand = "high"   // >= 90
	BandMedium  AccuracyBand = "medium" // > 65
	BandLow     AccuracyBand = "low"
	BandUnknown AccuracyBand = "unknown"
)

// ParseAccuracy converts "x/y" or a bare number into a 0-100 score
func ParseAccuracy(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return 0, fmt.Errorf("empty accuracy")
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
		if err != nil {
			return 0, fmt.Errorf("parse accuracy numerator: %w", err)
		}
		d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err != nil {
			return 0, fmt.Errorf("parse accuracy denominator: %w", err)
		}
		if d == 0 {
			return 0, fmt.Errorf("zero accuracy denominator")
		}
		return n / d * 100, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse accuracy: %w", err)
	}
	return v, nil
}

// Band returns the accuracy band for the report's label
func (r Report) Band() AccuracyBand {
	score, err := ParseAccuracy(r.Accuracy.String())
	if err != nil {
		return BandUnknown
	}
	switch {
	case score >= 90:
		return BandHigh
	case score > 65:
		return BandMedium
	default:
		return BandLow
	}
}
