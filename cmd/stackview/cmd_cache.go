package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gogpu/stackview/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the image cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(s *cache.Store) error {
			st := s.Stats()
			w := cmd.OutOrStdout()
			printer.Fprintf(w, "backend   %s\n", config.Cache.Backend)
			printer.Fprintf(w, "entries   %d\n", st.ItemCount)
			printer.Fprintf(w, "size      %s of %s (%.1f%%)\n",
				humanize.IBytes(uint64(st.TotalBytes)), humanize.IBytes(uint64(st.MaxBytes)), st.UsagePercent())
			printer.Fprintf(w, "hit rate  %.2f\n", st.HitRate)

			verbose, _ := cmd.Flags().GetBool("verbose")
			if !verbose {
				return nil
			}
			for _, e := range s.Entries() {
				printer.Fprintf(w, "  %8s  %3d hits  %-14s  %s\n",
					humanize.IBytes(uint64(e.SizeBytes)), e.AccessCount, humanize.Time(e.LastAccessedAt), e.URL)
			}
			return nil
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached image",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(s *cache.Store) error {
			n := s.Stats().ItemCount
			if err := s.Clear(cmd.Context()); err != nil {
				return err
			}
			printer.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
			return nil
		})
	},
}

var cacheEvictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Evict expired entries and enforce the budget",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		aggressive, _ := cmd.Flags().GetBool("aggressive")
		return withStore(cmd.Context(), func(s *cache.Store) error {
			n := s.Evict(cmd.Context(), aggressive)
			printer.Fprintf(cmd.OutOrStdout(), "evicted %d entries\n", n)
			return nil
		})
	},
}

func init() {
	cacheStatsCmd.Flags().BoolP("verbose", "v", false, "list entries")
	cacheEvictCmd.Flags().Bool("aggressive", false, "shrink the cache well below its budget")
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cacheEvictCmd)
}

// withStore opens the configured cache, runs fn and closes the cache.
func withStore(ctx context.Context, fn func(*cache.Store) error) (err error) {
	budget, err := config.Cache.BudgetBytes()
	if err != nil {
		return err
	}
	backend, err := config.Cache.OpenBackend(ctx)
	if err != nil {
		return err
	}
	s, err := cache.Open(ctx, backend,
		cache.WithMaxBytes(budget),
		cache.WithMaxAge(config.Cache.MaxAge),
	)
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("opening cache: %w", err)
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(s)
}
