package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/prospectpro/leadengine/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the shared response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache entry counts and estimated savings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		stats, err := st.CacheStats(ctx)
		if err != nil {
			return eris.Wrap(err, "cache stats")
		}

		fmt.Printf("Entries:            %d\n", stats.Entries)
		fmt.Printf("Active entries:     %d\n", stats.ActiveEntries)
		fmt.Printf("Total hits:         %d\n", stats.TotalHits)
		fmt.Printf("Estimated savings:  $%s\n", stats.EstimatedSavings.StringFixed(4))
		return nil
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cache entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		n, err := cache.New(st).InvalidateExpired(ctx)
		if err != nil {
			return eris.Wrap(err, "cache purge")
		}

		fmt.Printf("Removed %d expired entries.\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
