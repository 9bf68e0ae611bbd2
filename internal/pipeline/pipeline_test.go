package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ppiankov/scitrue/internal/activity"
	"github.com/ppiankov/scitrue/internal/enrich"
	"github.com/ppiankov/scitrue/internal/model"
	"github.com/ppiankov/scitrue/internal/prompt"
)

type fakeRetriever struct {
	items []model.EvidenceItem
	err   error

	mu    sync.Mutex
	calls int
	query string
	gotK  int
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, k int) ([]model.EvidenceItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.query = query
	f.gotK = k
	return f.items, f.err
}

// scriptedGenerator answers report prompts and subclaim prompts separately
type scriptedGenerator struct {
	report    string
	reportErr error
	subclaims string
	subErr    error

	mu      sync.Mutex
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, p string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, p)
	g.mu.Unlock()
	if strings.HasPrefix(p, prompt.ReportInstruction) {
		return g.report, g.reportErr
	}
	return g.subclaims, g.subErr
}

func (g *scriptedGenerator) reportPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.prompts {
		if strings.HasPrefix(p, prompt.ReportInstruction) {
			return p
		}
	}
	return ""
}

type fixedRefiner struct {
	query string
	err   error
}

func (f fixedRefiner) Refine(context.Context, string) (string, error) {
	return f.query, f.err
}

type mapLookup map[string]*model.MetricsBlock

func (m mapLookup) Lookup(_ context.Context, name string) (*model.MetricsBlock, error) {
	if b, ok := m[name]; ok {
		return b, nil
	}
	return nil, errors.New("not found")
}

func evidence(n int, relevant bool) []model.EvidenceItem {
	items := make([]model.EvidenceItem, n)
	rel := "no"
	if relevant {
		rel = "yes"
	}
	for i := range items {
		items[i] = model.EvidenceItem{
			Authors:          fmt.Sprintf("Author %d", i+1),
			Year:             2020 + i,
			URL:              fmt.Sprintf("https://www.semanticscholar.org/p/CorpusId:%d", 100+i),
			RelevantSentence: fmt.Sprintf("Finding number %d holds", i+1),
			Label:            "completely supports",
			Relevance:        rel,
			CorpusID:         fmt.Sprintf("%d", 100+i),
			Title:            fmt.Sprintf("Paper %d", i+1),
			JournalTitle:     "Nature & Science",
		}
	}
	return items
}

func summaryCiting(items []model.EvidenceItem) string {
	var b strings.Builder
	b.WriteString("Evidence agrees.")
	for _, item := range items {
		fmt.Fprintf(&b, ` <a href="%s">%s</a>`, item.URL, item.Authors)
	}
	return b.String()
}

func reportJSON(summary string) string {
	return fmt.Sprintf("```json\n{\"executive summary\": %q, \"accuracy\": \"80/100\", \"reason for accuracy\": \"Mostly True\"}\n```", summary)
}

const subclaimsJSON = `[
  {"claim": "Finding number 1 holds", "CorpusId": 100, "accuracy": 90, "reason for accuracy": "strong", "contribution": "corroborating"},
  {"claim": "Finding number 2 holds", "CorpusId": "101", "accuracy": "70", "reason for accuracy": "weaker", "contribution": "partially corroborating"}
]`

type fixture struct {
	pipeline  *Pipeline
	retriever *fakeRetriever
	generator *scriptedGenerator
	log       activity.Log
	logPath   string
}

func newFixture(t *testing.T, items []model.EvidenceItem, refined string) *fixture {
	t.Helper()
	relevant := model.FilterRelevant(items)
	f := &fixture{
		retriever: &fakeRetriever{items: items},
		generator: &scriptedGenerator{
			report:    reportJSON(summaryCiting(relevant)),
			subclaims: subclaimsJSON,
		},
		logPath: filepath.Join(t.TempDir(), "user_activity.json"),
	}
	f.log = activity.NewFileLog(f.logPath, nil)

	p, err := New(Deps{
		Refiner:   fixedRefiner{query: refined},
		Retriever: f.retriever,
		Generator: f.generator,
		Enricher: enrich.NewEnricher(mapLookup{
			"Nature and Science": {RankScore: "12.3", Country: "United Kingdom", HIndex: "1200"},
		}, nil),
		Log:     f.log,
		Metrics: NewMetrics(prometheus.NewRegistry()),
	}, model.LimitsConfig{MaxClaimLength: 135, MinRefinedLength: 6, MinEvidence: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	f.pipeline = p
	return f
}

func TestNew_RequiresCollaborators(t *testing.T) {
	log := activity.NewFileLog(filepath.Join(t.TempDir(), "a.json"), nil)
	tests := []struct {
		name string
		deps Deps
	}{
		{"no retriever", Deps{Generator: &scriptedGenerator{}, Log: log}},
		{"no generator", Deps{Retriever: &fakeRetriever{}, Log: log}},
		{"no log", Deps{Retriever: &fakeRetriever{}, Generator: &scriptedGenerator{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps, model.LimitsConfig{}); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestVerify_HappyPath(t *testing.T) {
	f := newFixture(t, evidence(5, true), "effects of vitamin D on bone density")
	ctx := context.Background()

	res, err := f.pipeline.Verify(ctx, Request{
		Claim:    "  Vitamin D improves bone density  ",
		Articles: 5,
		User:     "Ada",
		Email:    "ada@example.org",
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	wantTrail := []State{
		StateInputValidated, StateQueryRefined, StateEvidenceRetrieved,
		StateReportGenerated, StateReportParsed, StateSubclaimsExtracted,
		StateEvidenceAttached, StateMetadataEnriched, StateLogged,
	}
	if diff := cmp.Diff(wantTrail, res.Trail); diff != "" {
		t.Errorf("Trail mismatch (-want +got):\n%s", diff)
	}
	if res.State != StateLogged {
		t.Errorf("Expected LOGGED, got %s", res.State)
	}
	if res.Cached {
		t.Error("Expected a fresh run")
	}
	if res.Blocks != 5 {
		t.Errorf("Expected 5 evidence blocks, got %d", res.Blocks)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", res.Warnings)
	}
	if f.retriever.query != "effects of vitamin D on bone density" || f.retriever.gotK != 5 {
		t.Errorf("Retriever got query=%q k=%d", f.retriever.query, f.retriever.gotK)
	}
	if !strings.Contains(f.generator.reportPrompt(), `Claim: "Vitamin D improves bone density"`) {
		t.Error("Expected the report prompt to carry the original claim")
	}

	if res.Report.Accuracy != "80/100" || res.Report.Reason != "Mostly True" {
		t.Errorf("Unexpected report verdict: %+v", res.Report)
	}
	if len(res.Report.Subclaims) != 2 {
		t.Fatalf("Expected 2 subclaims, got %d", len(res.Report.Subclaims))
	}
	sc := res.Report.Subclaims[0]
	if sc.Title != "Paper 1" || sc.Year != 2020 {
		t.Errorf("Expected evidence folded into subclaim, got %+v", sc)
	}
	if sc.Metrics == nil || sc.Metrics.RankScore != "12.3" {
		t.Fatalf("Expected journal metrics, got %+v", sc.Metrics)
	}
	if sc.Metrics.Definitions != model.MetricsDefinitionsURL {
		t.Errorf("Expected definitions link, got %q", sc.Metrics.Definitions)
	}

	history, err := f.log.History(ctx, "ADA@example.org")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 logged entry, got %d", len(history))
	}
	if history[0].Claim != "Vitamin D improves bone density" || history[0].Articles != 5 {
		t.Errorf("Unexpected logged entry: %+v", history[0])
	}
	if len(history[0].Subclaims) != 2 || history[0].Subclaims[0].Metrics == nil {
		t.Error("Expected the enriched subclaims to be logged")
	}
}

func TestVerify_CacheHit(t *testing.T) {
	f := newFixture(t, evidence(5, true), "effects of vitamin D on bone density")
	ctx := context.Background()

	first, err := f.pipeline.Verify(ctx, Request{Claim: "Vitamin D improves bone density", Articles: 5})
	if err != nil {
		t.Fatalf("first Verify: %v", err)
	}

	f.generator.report = reportJSON("a different summary")
	res, err := f.pipeline.Verify(ctx, Request{Claim: "vitamin d IMPROVES bone density ", Articles: 5})
	if err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if !res.Cached || res.State != StateCacheHit {
		t.Fatalf("Expected cache hit, got state=%s cached=%v", res.State, res.Cached)
	}
	if diff := cmp.Diff([]State{StateInputValidated, StateCacheHit}, res.Trail); diff != "" {
		t.Errorf("Trail mismatch (-want +got):\n%s", diff)
	}
	if res.Report.ExecutiveSummary != first.Report.ExecutiveSummary {
		t.Error("Expected the stored summary on a cache hit")
	}
	if f.retriever.calls != 1 {
		t.Errorf("Expected no retrieval on a cache hit, got %d calls", f.retriever.calls)
	}

	other, err := f.pipeline.Verify(ctx, Request{Claim: "Vitamin D improves bone density", Articles: 4})
	if err != nil {
		t.Fatalf("Verify with another k: %v", err)
	}
	if other.Cached {
		t.Error("Expected article count to be part of the cache key")
	}

	fresh, err := f.pipeline.Verify(ctx, Request{Claim: "Vitamin D improves bone density", Articles: 5, NoCache: true})
	if err != nil {
		t.Fatalf("Verify without cache: %v", err)
	}
	if fresh.Cached {
		t.Error("Expected NoCache to skip the lookup")
	}

	cached, err := f.pipeline.Verify(ctx, Request{Claim: "Vitamin D improves bone density", Articles: 5})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if cached.Report.ExecutiveSummary != first.Report.ExecutiveSummary {
		t.Error("Expected the first matching entry to win")
	}
}

func TestVerify_SufficiencyBoundary(t *testing.T) {
	tests := []struct {
		name       string
		relevant   int
		k          int
		wantErr    error
		wantBlocks int
		wantHint   bool
	}{
		{"two of five fails", 2, 5, ErrInsufficientEvidence, 0, false},
		{"zero fails", 0, 5, ErrInsufficientEvidence, 0, false},
		{"three of five proceeds with hint", 3, 5, nil, 3, true},
		{"more than k is truncated", 8, 5, nil, 5, false},
		{"exactly k", 5, 5, nil, 5, false},
		{"two of two proceeds", 2, 2, nil, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := append(evidence(tt.relevant, true), evidence(4, false)...)
			f := newFixture(t, items, "a sufficiently long query")

			res, err := f.pipeline.Verify(context.Background(), Request{Claim: "Some claim", Articles: tt.k})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				if err.Error() != HintInsufficient {
					t.Errorf("Expected insufficient hint, got %q", err.Error())
				}
				if res.State != StateFailedInsufficientEvidence {
					t.Errorf("Expected FAILED_INSUFFICIENT_EVIDENCE, got %s", res.State)
				}
				if f.generator.reportPrompt() != "" {
					t.Error("Expected no report generation")
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if res.Blocks != tt.wantBlocks {
				t.Errorf("Expected %d blocks, got %d", tt.wantBlocks, res.Blocks)
			}
			if got := strings.Count(f.generator.reportPrompt(), "Assumptions of the evidence:"); got != tt.wantBlocks {
				t.Errorf("Expected %d blocks in the prompt, got %d", tt.wantBlocks, got)
			}
			hasHint := len(res.Hints) > 0
			if hasHint != tt.wantHint {
				t.Errorf("Expected hint=%v, got %v", tt.wantHint, res.Hints)
			}
			if tt.wantHint && res.Hints[0] != PartialEvidenceHint(tt.relevant, tt.k) {
				t.Errorf("Unexpected hint %q", res.Hints[0])
			}
		})
	}
}

func TestVerify_Failures(t *testing.T) {
	tests := []struct {
		name      string
		req       Request
		refiner   fixedRefiner
		retErr    error
		report    string
		reportErr error
		wantErr   error
		wantState State
		wantHint  string
	}{
		{
			name:      "empty claim",
			req:       Request{Claim: "   ", Articles: 5},
			wantErr:   ErrInvalidInput,
			wantState: StateFailedInvalidInput,
			wantHint:  "please enter a claim",
		},
		{
			name:      "article count out of range",
			req:       Request{Claim: "Some claim", Articles: 16},
			wantErr:   ErrInvalidInput,
			wantState: StateFailedInvalidInput,
			wantHint:  "please enter a number between 1-15",
		},
		{
			name:      "claim too long",
			req:       Request{Claim: strings.Repeat("a", 136), Articles: 5},
			wantErr:   ErrInvalidInput,
			wantState: StateFailedInvalidInput,
		},
		{
			name:      "unresolvable claim",
			req:       Request{Claim: "asdf qwer", Articles: 5},
			refiner:   fixedRefiner{query: "None"},
			wantErr:   ErrUnresolvableClaim,
			wantState: StateFailedUnresolvableClaim,
			wantHint:  HintUnresolvable,
		},
		{
			name:      "refiner error",
			req:       Request{Claim: "Some claim", Articles: 5},
			refiner:   fixedRefiner{err: errors.New("timeout")},
			wantErr:   ErrGeneration,
			wantState: StateFailedGeneration,
			wantHint:  HintGeneration,
		},
		{
			name:      "retrieval error",
			req:       Request{Claim: "Some claim", Articles: 5},
			retErr:    errors.New("connection refused"),
			wantErr:   ErrRetrieval,
			wantState: StateFailedRetrieval,
			wantHint:  HintRetrieval,
		},
		{
			name:      "generation error",
			req:       Request{Claim: "Some claim", Articles: 5},
			reportErr: errors.New("rate limited"),
			wantErr:   ErrGeneration,
			wantState: StateFailedGeneration,
			wantHint:  HintGeneration,
		},
		{
			name:      "malformed report",
			req:       Request{Claim: "Some claim", Articles: 5},
			report:    "I cannot answer that.",
			wantErr:   ErrMalformedReport,
			wantState: StateFailedMalformedReport,
			wantHint:  HintMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refined := "a sufficiently long query"
			if tt.refiner != (fixedRefiner{}) {
				refined = tt.refiner.query
			}
			f := newFixture(t, evidence(5, true), refined)
			f.pipeline.refiner = fixedRefiner{query: refined, err: tt.refiner.err}
			f.retriever.err = tt.retErr
			if tt.report != "" {
				f.generator.report = tt.report
			}
			f.generator.reportErr = tt.reportErr

			res, err := f.pipeline.Verify(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
			var failure *Failure
			if !errors.As(err, &failure) {
				t.Fatalf("Expected *Failure, got %T", err)
			}
			if failure.State != tt.wantState || res.State != tt.wantState {
				t.Errorf("Expected state %s, got failure=%s result=%s", tt.wantState, failure.State, res.State)
			}
			if tt.wantHint != "" && err.Error() != tt.wantHint {
				t.Errorf("Expected hint %q, got %q", tt.wantHint, err.Error())
			}
			if !res.State.IsFailure() || !res.State.IsTerminal() {
				t.Errorf("Expected terminal failure state, got %s", res.State)
			}

			history, herr := f.log.History(context.Background(), "")
			if herr != nil {
				t.Fatalf("History: %v", herr)
			}
			if len(history) != 0 {
				t.Errorf("Expected nothing logged on failure, got %d entries", len(history))
			}
		})
	}
}

// appendFailingLog reads through to its inner log but rejects writes
type appendFailingLog struct {
	activity.Log
}

func (appendFailingLog) Append(context.Context, model.CacheEntry) error {
	return errors.New("disk full")
}

func TestVerify_LogFailureHints(t *testing.T) {
	ctx := context.Background()
	req := Request{Claim: "Vitamin D improves bone density", Articles: 5}

	t.Run("lookup", func(t *testing.T) {
		f := newFixture(t, evidence(5, true), "effects of vitamin D on bone density")
		if err := os.WriteFile(f.logPath, []byte(`[{"claim": `), 0644); err != nil {
			t.Fatal(err)
		}

		res, err := f.pipeline.Verify(ctx, req)
		if !errors.Is(err, ErrPersistence) {
			t.Fatalf("Expected ErrPersistence, got %v", err)
		}
		if err.Error() != HintLookup {
			t.Errorf("Expected lookup hint, got %q", err.Error())
		}
		if res.State != StateFailedLogging || res.Report != nil {
			t.Errorf("Expected FAILED_LOGGING without a report, got state=%s report=%v", res.State, res.Report)
		}
		if f.retriever.calls != 0 {
			t.Errorf("Expected no retrieval after a failed lookup, got %d calls", f.retriever.calls)
		}
	})

	t.Run("append", func(t *testing.T) {
		f := newFixture(t, evidence(5, true), "effects of vitamin D on bone density")
		f.pipeline.log = appendFailingLog{Log: f.log}

		res, err := f.pipeline.Verify(ctx, req)
		if !errors.Is(err, ErrPersistence) {
			t.Fatalf("Expected ErrPersistence, got %v", err)
		}
		if err.Error() != HintPersistence {
			t.Errorf("Expected persistence hint, got %q", err.Error())
		}
		if res.State != StateFailedLogging || res.Report == nil {
			t.Errorf("Expected FAILED_LOGGING with the report, got state=%s report=%v", res.State, res.Report)
		}
	})
}

func TestVerify_SubclaimStageIsBestEffort(t *testing.T) {
	tests := []struct {
		name      string
		subclaims string
		subErr    error
	}{
		{"generation fails", "", errors.New("boom")},
		{"unparsable", "no list here", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, evidence(5, true), "a sufficiently long query")
			f.generator.subclaims = tt.subclaims
			f.generator.subErr = tt.subErr

			res, err := f.pipeline.Verify(context.Background(), Request{Claim: "Some claim", Articles: 5})
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if res.State != StateLogged {
				t.Errorf("Expected LOGGED, got %s", res.State)
			}
			if res.Report.Subclaims == nil || len(res.Report.Subclaims) != 0 {
				t.Errorf("Expected empty subclaims, got %v", res.Report.Subclaims)
			}
			if len(res.Warnings) != 1 {
				t.Errorf("Expected one warning, got %v", res.Warnings)
			}
		})
	}
}

func TestVerify_CitationWarnings(t *testing.T) {
	f := newFixture(t, evidence(3, true), "a sufficiently long query")
	f.generator.report = reportJSON(`Only one cite <a href="https://www.semanticscholar.org/p/CorpusId:100">A</a>`)

	res, err := f.pipeline.Verify(context.Background(), Request{Claim: "Some claim", Articles: 3})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(res.Warnings) != 2 {
		t.Errorf("Expected two uncited warnings, got %v", res.Warnings)
	}
}

func TestBuildReportPrompt(t *testing.T) {
	f := newFixture(t, append(evidence(2, false), evidence(4, true)...), "a sufficiently long query")

	rp, err := f.pipeline.BuildReportPrompt(context.Background(), "Some claim", 4)
	if err != nil {
		t.Fatalf("BuildReportPrompt: %v", err)
	}
	if rp.Blocks != 4 || len(rp.Evidence) != 4 {
		t.Errorf("Expected 4 blocks, got %d (%d items)", rp.Blocks, len(rp.Evidence))
	}
	if rp.Hint != "" {
		t.Errorf("Expected no hint, got %q", rp.Hint)
	}
	if !strings.HasPrefix(rp.Prompt, prompt.ReportInstruction) {
		t.Error("Expected the prompt to start with the instruction")
	}
	for _, item := range rp.Evidence {
		if !item.IsRelevant() {
			t.Errorf("Expected only relevant items, got %+v", item)
		}
	}
	if len(f.generator.prompts) != 0 {
		t.Error("Expected no generation while building the prompt")
	}

	if _, err := f.pipeline.BuildReportPrompt(context.Background(), "Some claim", 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected invalid input, got %v", err)
	}
}

func TestTransitions(t *testing.T) {
	allowed := []struct{ from, to State }{
		{StateReceived, StateInputValidated},
		{StateInputValidated, StateCacheHit},
		{StateEvidenceRetrieved, StateFailedInsufficientEvidence},
		{StateMetadataEnriched, StateLogged},
	}
	for _, tt := range allowed {
		if !isAllowedTransition(tt.from, tt.to) {
			t.Errorf("Expected %q -> %q to be allowed", tt.from, tt.to)
		}
	}

	disallowed := []struct{ from, to State }{
		{StateReceived, StateLogged},
		{StateCacheHit, StateQueryRefined},
		{StateReportGenerated, StateLogged},
		{StateLogged, StateInputValidated},
	}
	for _, tt := range disallowed {
		if isAllowedTransition(tt.from, tt.to) {
			t.Errorf("Expected %q -> %q to be rejected", tt.from, tt.to)
		}
	}

	defer func() {
		if recover() == nil {
			t.Error("Expected panic on disallowed transition")
		}
	}()
	var tr tracker
	tr.advance(StateReportParsed)
}

func TestFailure_Unwrap(t *testing.T) {
	cause := errors.New("socket closed")
	f := &Failure{Kind: ErrRetrieval, Hint: HintRetrieval, Err: cause}
	if !errors.Is(f, ErrRetrieval) || !errors.Is(f, cause) {
		t.Error("Expected Failure to unwrap to kind and cause")
	}
	if errors.Is(f, ErrGeneration) {
		t.Error("Expected only its own kind")
	}
	if f.KindName() != "retrieval" {
		t.Errorf("Unexpected kind name %q", f.KindName())
	}
}
