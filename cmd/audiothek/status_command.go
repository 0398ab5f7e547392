package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"audiothek/internal/preflight"
	"audiothek/internal/services"
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check directories and the catalog endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			proxy, err := cfg.ProxyURL()
			if err != nil {
				return services.Wrap(services.ErrConfiguration, "cli", "proxy", cfg.Network.Proxy, err)
			}
			client := services.NewHTTPClient(proxy, cfg.RequestTimeout())
			results := preflight.RunAll(cmd.Context(), cfg, client)

			out := cmd.OutOrStdout()
			color := colorEnabled(out)
			for _, r := range results {
				fmt.Fprintln(out, renderStatusLine(r, color))
			}
			return preflight.Err(results)
		},
	}
}

func renderStatusLine(r preflight.Result, colorize bool) string {
	label, color := "OK", ansiGreen
	if !r.Passed {
		label, color = "ERROR", ansiRed
	}
	line := fmt.Sprintf("  %-20s [%s] %s", r.Name+":", label, strings.TrimSpace(r.Detail))
	if colorize {
		return color + line + ansiReset
	}
	return line
}
