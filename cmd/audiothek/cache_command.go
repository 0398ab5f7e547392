package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"audiothek/internal/respcache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the response cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePurgeCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func withCache(ctx *commandContext, cmd *cobra.Command, fn func(*respcache.Cache) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	cache, err := ctx.openCache(cfg, logger)
	if err != nil {
		return err
	}
	defer cache.Close()
	if !cache.Enabled() {
		fmt.Fprintln(cmd.OutOrStdout(), "Response cache is disabled")
		return nil
	}
	return fn(cache)
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show response cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(ctx, cmd, func(cache *respcache.Cache) error {
				live, expired, err := cache.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Path:    %s\n", cache.Path())
				fmt.Fprintf(out, "Live:    %d\n", live)
				fmt.Fprintf(out, "Expired: %d\n", expired)
				return nil
			})
		},
	}
}

func newCachePurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(ctx, cmd, func(cache *respcache.Cache) error {
				removed, err := cache.PurgeExpired(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired entries\n", removed)
				return nil
			})
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every cache entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(ctx, cmd, func(cache *respcache.Cache) error {
				removed, err := cache.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d entries\n", removed)
				return nil
			})
		},
	}
}
