package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTilenaSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tilena-sync",
		Short: "Turn unread Tilena ticket emails into DevOps bugs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.build()
			if err != nil {
				return err
			}
			defer res.Close()
			syncer, mailbox, err := res.TilenaSyncer()
			if err != nil {
				return err
			}
			defer mailbox.Close()

			result, err := syncer.Sync(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "found %d · processed %d · errors %d\n", result.Found, result.Processed, result.Errors)
			for _, id := range result.Created {
				fmt.Fprintf(out, "  #%d %s\n", id, res.DevOps.WebURL(id))
			}
			if result.Errors > 0 {
				return fmt.Errorf("%d email(s) failed; see %s", result.Errors, res.Logger.Path())
			}
			return nil
		},
	}
}
