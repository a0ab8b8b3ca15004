package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hzcy/chatbetter2api/pkg/cli"
)

func newModelsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Maintain the model catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Fetch the model list with the freshest account and save it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return cli.NewCommandError("models refresh", err)
			}
			defer a.Close()

			if err := a.runner.RefreshModels(cmd.Context()); err != nil {
				return cli.NewCommandError("models refresh", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model catalog saved to %s\n", a.catalog.Path())
			return nil
		},
	})
	return cmd
}
