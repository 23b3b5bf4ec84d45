package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ayudapo/internal/config"
)

func newInitCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write ./.ayudapo/config.json with defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.InitProjectConfigScaffold(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config: %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Set provider.api_key (or AYUDAPO_API_KEY) before chatting."))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Project directory (default: current directory)")
	return cmd
}
