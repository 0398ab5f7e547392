package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	run := &runFlags{}

	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "audiothek",
		Short:         "Mirror ARD Audiothek programs to local storage",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, ctx, run)
		},
	}

	persistent := rootCmd.PersistentFlags()
	persistent.StringVarP(&flags.configPath, "config", "c", "", "Configuration file path")
	persistent.StringVarP(&flags.outputDir, "folder", "f", "", "Output directory (overrides paths.output_dir)")
	persistent.StringVar(&flags.cacheDir, "cache-dir", "", "Response cache directory (overrides paths.cache_dir)")
	persistent.StringVar(&flags.proxy, "proxy", "", "HTTP, HTTPS, or SOCKS5 proxy URL")
	persistent.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	persistent.IntVar(&flags.workers, "workers", 0, "Parallel episode downloads (1-16)")
	persistent.BoolVar(&flags.noCache, "no-cache", false, "Bypass the response cache")
	persistent.BoolVar(&flags.dryRun, "dry-run", false, "Report planned changes without touching files")

	local := rootCmd.Flags()
	local.StringVarP(&run.url, "url", "u", "", "Audiothek URL of a program, collection, or episode")
	local.StringVarP(&run.id, "id", "i", "", "Program, collection, or episode id")
	local.BoolVar(&run.updateFolders, "update-folders", false, "Re-sync every id-named folder in the output directory")
	local.BoolVar(&run.migrateFolders, "migrate-folders", false, "Rename numeric-only folders to \"<id> <title>\"")
	local.BoolVar(&run.removeLowerQuality, "remove-lower-quality", false, "Delete audio files outranked by a sibling of the same episode")
	local.StringVar(&run.categoryID, "editorial-category-id", "", "List program sets and collections of an editorial category")
	local.StringVar(&run.searchType, "search-type", searchAll, "With --editorial-category-id: program-sets, collections, or all")
	local.IntVar(&run.searchLimit, "limit", 0, "With --editorial-category-id: maximum results per type (default 200)")
	rootCmd.MarkFlagsMutuallyExclusive("url", "id", "update-folders", "migrate-folders", "remove-lower-quality", "editorial-category-id")

	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newCacheCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))

	return rootCmd
}
