package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/scitrue/internal/activity"
	"github.com/ppiankov/scitrue/internal/citation"
	"github.com/ppiankov/scitrue/internal/enrich"
	"github.com/ppiankov/scitrue/internal/model"
	"github.com/ppiankov/scitrue/internal/parse"
	"github.com/ppiankov/scitrue/internal/prompt"
	"github.com/ppiankov/scitrue/internal/refine"
	"github.com/ppiankov/scitrue/internal/retrieve"
)

// Generator turns a prompt into raw completion text
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Deps are the collaborators a pipeline drives
type Deps struct {
	Refiner   refine.Refiner
	Retriever retrieve.Retriever
	Generator Generator
	Enricher  *enrich.Enricher
	Log       activity.Log
	Logger    *zap.Logger
	Metrics   *Metrics
}

// Pipeline orchestrates a verification run. Stages within one run execute
// strictly in order; separate runs may share a Pipeline.
type Pipeline struct {
	refiner   refine.Refiner
	retriever retrieve.Retriever
	generator Generator
	enricher  *enrich.Enricher
	log       activity.Log
	logger    *zap.Logger
	metrics   *Metrics
	limits    model.LimitsConfig
	now       func() time.Time
}

// New creates a pipeline. Retriever, Generator and Log are required.
func New(deps Deps, limits model.LimitsConfig) (*Pipeline, error) {
	if deps.Retriever == nil {
		return nil, fmt.Errorf("pipeline: retriever is required")
	}
	if deps.Generator == nil {
		return nil, fmt.Errorf("pipeline: generator is required")
	}
	if deps.Log == nil {
		return nil, fmt.Errorf("pipeline: activity log is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Refiner == nil {
		deps.Refiner = refine.Passthrough{}
	}
	if deps.Enricher == nil {
		deps.Enricher = enrich.NewEnricher(nil, deps.Logger)
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	if limits == (model.LimitsConfig{}) {
		limits = model.DefaultConfig().Limits
	}

	return &Pipeline{
		refiner:   deps.Refiner,
		retriever: deps.Retriever,
		generator: deps.Generator,
		enricher:  deps.Enricher,
		log:       deps.Log,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		limits:    limits,
		now:       time.Now,
	}, nil
}

// Request is one verification request
type Request struct {
	Claim    string `json:"claim"`
	Articles int    `json:"articles"`
	User     string `json:"user,omitempty"`
	Email    string `json:"email,omitempty"`
	NoCache  bool   `json:"no_cache,omitempty"` // skip the activity log lookup
}

// Result is the outcome of a run. It is returned alongside a *Failure for
// runs that end in a failure state.
type Result struct {
	RunID    string               `json:"run_id"`
	Claim    string               `json:"claim"`
	Articles int                  `json:"articles"`
	Query    string               `json:"query,omitempty"`
	State    State                `json:"state"`
	Trail    []State              `json:"trail"`
	Estimate string               `json:"estimate,omitempty"`
	Hints    []string             `json:"hints,omitempty"`
	Warnings []string             `json:"warnings,omitempty"`
	Report   *model.Report        `json:"report,omitempty"`
	Evidence []model.EvidenceItem `json:"evidence,omitempty"`
	Blocks   int                  `json:"evidence_blocks"`
	Entry    *model.CacheEntry    `json:"entry,omitempty"`
	Cached   bool                 `json:"cached"`
	Duration time.Duration        `json:"duration"`
}

// ReportPrompt is the assembled report prompt and what went into it
type ReportPrompt struct {
	Query    string
	Prompt   string
	Evidence []model.EvidenceItem // relevant items in rank order, at most k
	Blocks   int
	Hint     string // partial-evidence notice, empty when k items were found
}

type run struct {
	id     string
	tr     tracker
	logger *zap.Logger
}

func (p *Pipeline) newRun(claim string, articles int) *run {
	id := uuid.NewString()
	return &run{
		id: id,
		logger: p.logger.With(
			zap.String("run_id", id),
			zap.String("claim", claim),
			zap.Int("articles", articles),
		),
	}
}

func (p *Pipeline) fail(r *run, state State, kind error, hint string, cause error) *Failure {
	r.tr.advance(state)
	f := &Failure{Kind: kind, State: state, Hint: hint, Err: cause}
	r.logger.Warn("run failed",
		zap.String("state", string(state)),
		zap.String("kind", f.KindName()),
		zap.Error(cause),
	)
	return f
}

func (p *Pipeline) observe(stage string, start time.Time) {
	p.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// BuildReportPrompt validates the input, refines the claim, retrieves
// evidence and assembles the report prompt without generating anything.
// Failures are returned as *Failure.
func (p *Pipeline) BuildReportPrompt(ctx context.Context, claim string, k int) (*ReportPrompt, error) {
	claim = strings.TrimSpace(claim)
	r := p.newRun(claim, k)
	if err := model.ValidateInput(claim, k, p.limits.MaxClaimLength); err != nil {
		return nil, p.fail(r, StateFailedInvalidInput, ErrInvalidInput, inputHint(err), err)
	}
	r.tr.advance(StateInputValidated)
	return p.prepare(ctx, r, claim, k)
}

func (p *Pipeline) prepare(ctx context.Context, r *run, claim string, k int) (*ReportPrompt, error) {
	start := time.Now()
	query, err := p.refiner.Refine(ctx, claim)
	p.observe("refine", start)
	if err != nil {
		return nil, p.fail(r, StateFailedGeneration, ErrGeneration, HintGeneration, err)
	}
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) <= p.limits.MinRefinedLength {
		return nil, p.fail(r, StateFailedUnresolvableClaim, ErrUnresolvableClaim, HintUnresolvable,
			fmt.Errorf("refined query %q too short", query))
	}
	r.tr.advance(StateQueryRefined)
	r.logger.Debug("claim refined", zap.String("query", query))

	start = time.Now()
	items, err := p.retriever.Retrieve(ctx, query, k)
	p.observe("retrieve", start)
	if err != nil {
		return nil, p.fail(r, StateFailedRetrieval, ErrRetrieval, HintRetrieval, err)
	}
	r.tr.advance(StateEvidenceRetrieved)

	relevant := model.FilterRelevant(items)
	out := &ReportPrompt{Query: query}
	switch n := len(relevant); {
	case n >= k:
		relevant = relevant[:k]
	case n < p.limits.MinEvidence:
		return nil, p.fail(r, StateFailedInsufficientEvidence, ErrInsufficientEvidence, HintInsufficient,
			fmt.Errorf("%d relevant of %d retrieved, %d requested", n, len(items), k))
	default:
		out.Hint = PartialEvidenceHint(n, k)
	}
	r.logger.Info("evidence retrieved",
		zap.Int("retrieved", len(items)),
		zap.Int("relevant", len(relevant)),
	)

	blocks := prompt.BuildEvidenceBlocks(relevant)
	out.Evidence = relevant
	out.Blocks = len(blocks)
	out.Prompt = prompt.BuildReportPrompt(claim, blocks)
	p.metrics.EvidenceUsed.Observe(float64(out.Blocks))
	return out, nil
}

// Verify runs the whole pipeline for req. The returned Result is non-nil
// whenever the error is a *Failure.
func (p *Pipeline) Verify(ctx context.Context, req Request) (*Result, error) {
	began := time.Now()
	claim := strings.TrimSpace(req.Claim)
	r := p.newRun(claim, req.Articles)
	res := &Result{RunID: r.id, Claim: claim, Articles: req.Articles}

	err := p.verify(ctx, r, req, claim, res)
	res.State = r.tr.current
	res.Trail = r.tr.trail
	res.Duration = time.Since(began)
	p.metrics.Runs.WithLabelValues(string(res.State)).Inc()
	if err != nil {
		return res, err
	}
	r.logger.Info("run complete",
		zap.String("state", string(res.State)),
		zap.Bool("cached", res.Cached),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func (p *Pipeline) verify(ctx context.Context, r *run, req Request, claim string, res *Result) error {
	if err := model.ValidateInput(claim, req.Articles, p.limits.MaxClaimLength); err != nil {
		return p.fail(r, StateFailedInvalidInput, ErrInvalidInput, inputHint(err), err)
	}
	r.tr.advance(StateInputValidated)
	res.Estimate = model.EstimateHint(req.Articles)

	if !req.NoCache {
		entry, ok, err := p.log.Lookup(ctx, claim, req.Articles)
		if err != nil {
			return p.fail(r, StateFailedLogging, ErrPersistence, HintLookup, fmt.Errorf("lookup: %w", err))
		}
		if ok {
			p.metrics.CacheLookups.WithLabelValues("hit").Inc()
			r.tr.advance(StateCacheHit)
			res.Cached = true
			res.Entry = entry
			res.Report = reportFromEntry(entry)
			return nil
		}
		p.metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	rp, err := p.prepare(ctx, r, claim, req.Articles)
	if err != nil {
		return err
	}
	res.Query = rp.Query
	res.Evidence = rp.Evidence
	res.Blocks = rp.Blocks
	if rp.Hint != "" {
		res.Hints = append(res.Hints, rp.Hint)
	}

	start := time.Now()
	raw, err := p.generator.Generate(ctx, rp.Prompt)
	p.observe("generate_report", start)
	if err != nil {
		return p.fail(r, StateFailedGeneration, ErrGeneration, HintGeneration, err)
	}
	r.tr.advance(StateReportGenerated)

	report, err := parse.ParseReport(raw)
	if err != nil {
		var malformed *parse.MalformedOutputError
		if errors.As(err, &malformed) {
			r.logger.Debug("unparsable report", zap.String("raw", malformed.Snippet(200)))
		}
		return p.fail(r, StateFailedMalformedReport, ErrMalformedReport, HintMalformed, err)
	}
	report.Claim = claim
	r.tr.advance(StateReportParsed)

	if audit, err := citation.Check(report.ExecutiveSummary, rp.Evidence); err != nil {
		r.logger.Warn("citation audit failed", zap.Error(err))
	} else if !audit.Clean() {
		res.Warnings = append(res.Warnings, audit.Warnings()...)
		r.logger.Warn("summary citations do not match evidence",
			zap.Strings("uncited", audit.Uncited),
			zap.Strings("duplicated", audit.Duplicated),
			zap.Strings("unknown", audit.Unknown),
		)
	}

	subclaims := p.extractSubclaims(ctx, r, report.ExecutiveSummary, claim, res)
	r.tr.advance(StateSubclaimsExtracted)

	subclaims = enrich.AttachEvidence(subclaims, rp.Evidence)
	r.tr.advance(StateEvidenceAttached)

	start = time.Now()
	subclaims = p.enricher.Enrich(ctx, subclaims)
	p.observe("enrich", start)
	for _, sc := range subclaims {
		if sc.Metrics != nil {
			p.metrics.Enrichment.WithLabelValues("found").Inc()
		} else {
			p.metrics.Enrichment.WithLabelValues("missing").Inc()
		}
	}
	report.Subclaims = subclaims
	r.tr.advance(StateMetadataEnriched)
	res.Report = report

	entry := model.NewCacheEntry(req.User, req.Email, claim, req.Articles, report, p.now().UTC())
	res.Entry = &entry
	if err := p.log.Append(ctx, entry); err != nil {
		return p.fail(r, StateFailedLogging, ErrPersistence, HintPersistence, err)
	}
	r.tr.advance(StateLogged)
	return nil
}

// extractSubclaims is best effort: a failed generation or unparsable output
// yields no subclaims and a warning, never a failed run.
func (p *Pipeline) extractSubclaims(ctx context.Context, r *run, summary, claim string, res *Result) []model.SubClaim {
	start := time.Now()
	raw, err := p.generator.Generate(ctx, prompt.BuildSubclaimPrompt(summary, claim))
	p.observe("generate_subclaims", start)
	if err != nil {
		r.logger.Warn("subclaim generation failed", zap.Error(err))
		res.Warnings = append(res.Warnings, "subclaims unavailable: generation failed")
		return []model.SubClaim{}
	}
	subclaims, err := parse.ParseSubclaims(raw)
	if err != nil {
		r.logger.Warn("subclaim output unparsable", zap.Error(err))
		res.Warnings = append(res.Warnings, "subclaims unavailable: output could not be parsed")
		return []model.SubClaim{}
	}
	r.logger.Debug("subclaims extracted", zap.Int("count", len(subclaims)))
	return subclaims
}

// History returns the logged entries for email, oldest first
func (p *Pipeline) History(ctx context.Context, email string) ([]model.CacheEntry, error) {
	return p.log.History(ctx, email)
}

func reportFromEntry(e *model.CacheEntry) *model.Report {
	return &model.Report{
		Claim:            e.Claim,
		ExecutiveSummary: e.Summary,
		Accuracy:         e.OverallAccuracy,
		Reason:           e.OverallReason,
		Subclaims:        e.Subclaims,
	}
}

// inputHint strips the sentinel prefix so only the user-facing part remains
func inputHint(err error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, model.ErrInvalidInput.Error()+": "); ok {
		return rest
	}
	return msg
}
