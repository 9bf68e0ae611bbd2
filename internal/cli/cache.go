package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/scitrue/internal/journal"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the journal metrics cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [journal...]",
	Short: "Drop cached journal metrics",
	Long: `Clear removes cached journal metrics lookups, including remembered misses.
With journal names only those entries are dropped; without arguments the
whole cache directory is removed.

Example:
  scitrue cache clear
  scitrue cache clear "Nature Reviews Drug Discovery"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		cached := journal.NewCachedLookup(journal.Disabled{}, cfg.Journal.MemoryTTL, cfg.Journal.CacheDir, cfg.Journal.DiskTTL)
		if len(args) == 0 {
			if err := cached.Purge(); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			fmt.Printf("✓ Cleared %s\n", cfg.Journal.CacheDir)
			return nil
		}

		for _, name := range args {
			if err := cached.Forget(name); err != nil {
				return fmt.Errorf("forget %q: %w", name, err)
			}
			fmt.Printf("✓ Forgot %s\n", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
