package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hzcy/chatbetter2api/pkg/cli"
)

func newCacheCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the account cache mirror",
	}

	var resetCounts bool
	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the cache mirror from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cfg.Cache.Backend == "none" {
				return cli.NewConfigError("cache.backend", "no cache mirror configured")
			}
			a, err := newApp(cfg)
			if err != nil {
				return cli.NewCommandError("cache refresh", err)
			}
			defer a.Close()

			ctx := cmd.Context()
			if resetCounts {
				n, err := a.runner.ResetCounts(ctx)
				if err != nil {
					return cli.NewCommandError("cache refresh", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset usage counters of %d accounts\n", n)
				return nil
			}
			if err := a.runner.RefreshCache(ctx); err != nil {
				return cli.NewCommandError("cache refresh", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache refreshed")
			return nil
		},
	}
	refresh.Flags().BoolVar(&resetCounts, "reset-counts", false, "also zero the usage counters")

	cmd.AddCommand(refresh)
	return cmd
}
