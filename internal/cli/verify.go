package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/scitrue/internal/model"
	"github.com/ppiankov/scitrue/internal/pipeline"
)

var (
	articles   int
	outJSON    string
	outMD      string
	timeout    time.Duration
	noCache    bool
	promptOnly bool
	userName   string
	userEmail  string
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <claim>",
	Short: "Verify a single scientific claim against published evidence",
	Long: `Verify runs one claim through the pipeline:
- Refine the claim into a retrieval query
- Retrieve up to k relevant evidence passages
- Generate a cited report with an accuracy score
- Decompose the summary into subclaims attributed to their sources
- Attach journal ranking metrics and record the run in the activity log

A claim already verified with the same article count is answered from the
activity log unless --no-cache is given.

Example:
  scitrue verify "Vitamin D supplementation improves bone density"
  scitrue verify "Coffee causes dehydration" -k 8 --json report.json --md report.md
  scitrue verify "Coffee causes dehydration" --prompt-only`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().IntVarP(&articles, "articles", "k", 5, fmt.Sprintf("number of articles to ground the report on (%d-%d)", model.MinArticles, model.MaxArticles))
	verifyCmd.Flags().StringVar(&outJSON, "json", "", "write the full result as JSON to this path")
	verifyCmd.Flags().StringVar(&outMD, "md", "", "write a Markdown report to this path")
	verifyCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall run timeout")
	verifyCmd.Flags().BoolVar(&noCache, "no-cache", false, "ignore earlier runs in the activity log")
	verifyCmd.Flags().BoolVar(&promptOnly, "prompt-only", false, "print the report prompt and stop before generation")
	verifyCmd.Flags().StringVar(&userName, "user", "", "user name recorded in the activity log (default: user.name)")
	verifyCmd.Flags().StringVar(&userEmail, "email", "", "email recorded in the activity log (default: user.email)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	claim := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	a, err := buildApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if promptOnly {
		rp, err := a.pipeline.BuildReportPrompt(ctx, claim, articles)
		if err != nil {
			return err
		}
		if rp.Hint != "" {
			fmt.Fprintf(os.Stderr, "Note: %s\n", rp.Hint)
		}
		fmt.Println(rp.Prompt)
		return nil
	}

	fmt.Fprintln(os.Stderr, model.EstimateHint(articles))

	res, err := a.pipeline.Verify(ctx, pipeline.Request{
		Claim:    claim,
		Articles: articles,
		User:     valueOr(userName, cfg.User.Name),
		Email:    valueOr(userEmail, cfg.User.Email),
		NoCache:  noCache,
	})
	if res != nil {
		logger.Debug("run finished",
			zap.String("run_id", res.RunID),
			zap.String("state", string(res.State)),
			zap.Any("trail", res.Trail),
		)
	}
	if err != nil {
		var failure *pipeline.Failure
		if errors.As(err, &failure) && failure.Kind == pipeline.ErrPersistence && res != nil && res.Report != nil {
			renderText(os.Stdout, res)
		}
		return err
	}

	renderText(os.Stdout, res)

	if outJSON != "" {
		if err := writeJSON(outJSON, res); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", outJSON)
	}
	if outMD != "" {
		if err := writeFile(outMD, []byte(renderMarkdown(res))); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Wrote Markdown: %s\n", outMD)
	}

	return nil
}
