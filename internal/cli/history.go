package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/scitrue/internal/activity"
)

var historyJSON bool

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history [email]",
	Short: "List earlier verifications recorded for a user",
	Long: `History lists the activity log entries recorded for an email address,
oldest first. Without an argument the configured user.email is used.

Example:
  scitrue history
  scitrue history ada@example.org --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print entries as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	email := cfg.User.Email
	if len(args) == 1 {
		email = args[0]
	}

	log, err := activity.Open(cmd.Context(), cfg.Activity, logger)
	if err != nil {
		return fmt.Errorf("open activity log: %w", err)
	}
	defer func() { _ = log.Close() }()

	entries, err := log.History(cmd.Context(), email)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	if historyJSON {
		return writeJSONTo(os.Stdout, entries)
	}

	if len(entries) == 0 {
		fmt.Fprintf(os.Stderr, "No entries for %s\n", email)
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tK\tACCURACY\tSUBCLAIMS\tCLAIM")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			e.Articles,
			valueOr(e.OverallAccuracy.String(), "n/a"),
			len(e.Subclaims),
			truncate(e.Claim, 70),
		)
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
