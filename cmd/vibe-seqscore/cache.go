package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inodb/vibe-seqscore/internal/cachestore"
	"github.com/inodb/vibe-seqscore/internal/config"
)

func newCacheCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the score cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired entries from an embedded (DuckDB/SQLite) cache",
		Long: `Delete expired entries from an embedded score cache. Expired entries are
never served, so this only reclaims space. Redis expires keys on its own.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.v)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			store, err := cachestore.Open(cfg.CacheURL)
			if err != nil {
				return fmt.Errorf("opening cache: %w", err)
			}
			if store == nil {
				return fmt.Errorf("no cache configured (set %s)", config.KeyCacheURL)
			}
			defer store.Close()

			sqlStore, ok := store.(*cachestore.SQLStore)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Cache expires entries itself, nothing to purge")
				return nil
			}
			n, err := sqlStore.Purge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired entries\n", n)
			return nil
		},
	})
	return cmd
}
