package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/scitrue/internal/pipeline"
	"github.com/ppiankov/scitrue/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Verify many claims from a file in parallel",
	Long: `Batch verifies claims concurrently:
- Read claims from the input file (one per line, optional tab and article count)
- Verify claims in parallel with a configurable worker count
- Each claim still runs its stages strictly in order
- Write a JSON and a Markdown report per verified claim

Example:
  scitrue batch claims.txt
  scitrue batch claims.txt --concurrency 4 --output-dir ./reports -k 8`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default: concurrency.workers)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./scitrue-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().IntVarP(&articles, "articles", "k", 5, "article count for lines that do not set one")
	batchCmd.Flags().BoolVar(&noCache, "no-cache", false, "ignore earlier runs in the activity log")
	batchCmd.Flags().StringVar(&userName, "user", "", "user name recorded in the activity log")
	batchCmd.Flags().StringVar(&userEmail, "email", "", "email recorded in the activity log")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	workers := concurrency
	if workers <= 0 {
		workers = cfg.Concurrency.Workers
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  SciTrue Batch Verification\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	a, err := buildApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	processor := worker.NewBatchProcessor(a.pipeline, worker.BatchOptions{
		Workers:  workers,
		Articles: articles,
		User:     valueOr(userName, cfg.User.Name),
		Email:    valueOr(userEmail, cfg.User.Email),
		NoCache:  noCache,
	}, logger)

	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	for _, result := range results {
		claim := result.Request.Claim
		if result.Error != nil {
			var failure *pipeline.Failure
			if errors.As(result.Error, &failure) {
				fmt.Fprintf(os.Stderr, "✗ %s: %s\n", claim, failure.Hint)
			} else {
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", claim, result.Error)
			}
			continue
		}

		stem := fmt.Sprintf("%03d-%s", result.Index+1, sanitizeFilename(claim))
		if err := writeJSON(filepath.Join(outputDir, stem+".json"), result.Result); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", claim, err)
			continue
		}
		if err := writeFile(filepath.Join(outputDir, stem+".md"), []byte(renderMarkdown(result.Result))); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", claim, err)
			continue
		}

		accuracy := "n/a"
		if result.Result.Report != nil {
			accuracy = valueOr(result.Result.Report.Accuracy.String(), accuracy)
		}
		cached := ""
		if result.Result.Cached {
			cached = " [cached]"
		}
		fmt.Fprintf(os.Stderr, "✓ %s (accuracy: %s)%s\n", claim, accuracy, cached)
	}

	summary := worker.Summarize(results)
	failed := 0
	for _, n := range summary.Failed {
		failed += n
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d claims\n", summary.Total)
	fmt.Fprintf(os.Stderr, "  Verified:  %d\n", summary.Verified)
	fmt.Fprintf(os.Stderr, "  Cached:    %d\n", summary.Cached)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failed)
	kinds := make([]string, 0, len(summary.Failed))
	for kind := range summary.Failed {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(os.Stderr, "    %-22s %d\n", kind, summary.Failed[kind])
	}
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}
