package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/scitrue/internal/model"
	"github.com/ppiankov/scitrue/internal/pipeline"
)

// ErrNotRun marks a batch entry that never started because the batch ended first
var ErrNotRun = errors.New("claim was not verified")

// Verifier runs one claim through the verification pipeline
type Verifier interface {
	Verify(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// ClaimLine is one claim read from a batch file
type ClaimLine struct {
	Claim    string
	Articles int
}

// VerifyJob verifies a single claim
type VerifyJob struct {
	Index    int
	Request  pipeline.Request
	Verifier Verifier
}

// Execute executes the verification job
func (j *VerifyJob) Execute(ctx context.Context) Result {
	res, err := j.Verifier.Verify(ctx, j.Request)
	return &VerifyResult{
		Index:   j.Index,
		Request: j.Request,
		Result:  res,
		Error:   err,
	}
}

// VerifyResult is the outcome of one batch entry. Result may be set even
// when Error is, for runs that ended in a failure state.
type VerifyResult struct {
	Index   int
	Request pipeline.Request
	Result  *pipeline.Result
	Error   error
}

// GetError returns the error from the verification
func (r *VerifyResult) GetError() error {
	return r.Error
}

// BatchOptions configures a batch run
type BatchOptions struct {
	Workers  int
	Articles int // used for lines that do not carry their own count
	User     string
	Email    string
	NoCache  bool
}

// BatchProcessor verifies many claims concurrently. Each claim still runs
// its stages in order.
type BatchProcessor struct {
	verifier Verifier
	opts     BatchOptions
	logger   *zap.Logger
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(verifier Verifier, opts BatchOptions, logger *zap.Logger) *BatchProcessor {
	if opts.Articles <= 0 {
		opts.Articles = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchProcessor{
		verifier: verifier,
		opts:     opts,
		logger:   logger,
	}
}

// ProcessClaims verifies lines concurrently and returns results in input order
func (b *BatchProcessor) ProcessClaims(ctx context.Context, lines []ClaimLine) []*VerifyResult {
	if len(lines) == 0 {
		return []*VerifyResult{}
	}

	pool := NewPool(ctx, b.opts.Workers)
	pool.Start()

	requests := make([]pipeline.Request, len(lines))
	for i, line := range lines {
		articles := line.Articles
		if articles == 0 {
			articles = b.opts.Articles
		}
		requests[i] = pipeline.Request{
			Claim:    line.Claim,
			Articles: articles,
			User:     b.opts.User,
			Email:    b.opts.Email,
			NoCache:  b.opts.NoCache,
		}
		if !pool.Submit(&VerifyJob{Index: i, Request: requests[i], Verifier: b.verifier}) {
			b.logger.Warn("batch stopped before all claims were queued", zap.Int("queued", i), zap.Int("total", len(lines)))
			break
		}
	}

	out := make([]*VerifyResult, len(lines))
	for _, r := range pool.Wait() {
		vr := r.(*VerifyResult)
		out[vr.Index] = vr
	}
	for i := range out {
		if out[i] == nil {
			err := ErrNotRun
			if ctx.Err() != nil {
				err = fmt.Errorf("%w: %w", ErrNotRun, ctx.Err())
			}
			out[i] = &VerifyResult{Index: i, Request: requests[i], Error: err}
		}
	}

	return out
}

// ProcessFile reads claims from a file and verifies them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*VerifyResult, error) {
	lines, err := ReadClaimsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read claims: %w", err)
	}

	b.logger.Info("batch started", zap.String("file", filePath), zap.Int("claims", len(lines)), zap.Int("workers", b.opts.Workers))
	return b.ProcessClaims(ctx, lines), nil
}

// ReadClaimsFromFile reads one claim per line. A line may end with a tab and
// an article count. Blank lines and lines starting with # are skipped, and a
// claim repeated with the same article count is read once.
func ReadClaimsFromFile(filePath string) ([]ClaimLine, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var lines []ClaimLine
	seen := make(map[model.Fingerprint]bool)

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		claim := ClaimLine{Claim: line}
		if text, count, ok := strings.Cut(line, "\t"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(count))
			if err != nil {
				return nil, fmt.Errorf("line %d: bad article count %q", lineNo, count)
			}
			claim = ClaimLine{Claim: strings.TrimSpace(text), Articles: n}
		}

		fp := model.NewFingerprint(claim.Claim, claim.Articles)
		if !seen[fp] {
			seen[fp] = true
			lines = append(lines, claim)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return lines, nil
}

// Summary counts batch outcomes
type Summary struct {
	Total    int
	Verified int
	Cached   int
	Failed   map[string]int // by failure kind
}

// Summarize tallies results
func Summarize(results []*VerifyResult) Summary {
	s := Summary{Total: len(results), Failed: make(map[string]int)}
	for _, r := range results {
		var failure *pipeline.Failure
		switch {
		case r.Error == nil && r.Result != nil && r.Result.Cached:
			s.Cached++
		case r.Error == nil:
			s.Verified++
		case errors.As(r.Error, &failure):
			s.Failed[failure.KindName()]++
		case errors.Is(r.Error, ErrNotRun):
			s.Failed["not_run"]++
		default:
			s.Failed["error"]++
		}
	}
	return s
}
