package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"ayudapo/internal/conversation"
	"ayudapo/internal/copilot"
	"ayudapo/internal/devops"
	"ayudapo/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API for web front ends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.build()
			if err != nil {
				return err
			}
			defer res.Close()

			authn, err := res.Authenticator()
			if err != nil {
				return err
			}
			if !authn.HasUsers() {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: no users configured; add one with `ayudapo hash-password --user NAME --save`")
			}
			searcher, err := res.Searcher()
			if err != nil && !errors.Is(err, devops.ErrNotConfigured) {
				return err
			}

			srv, err := server.New(server.Deps{
				Auth:    authn,
				Catalog: res.Catalog,
				Sessions: func(owner string) *conversation.Session {
					return res.NewSession(owner, "")
				},
				Store: res.Store,
				Copilots: func(owner string) *copilot.Copilot {
					return res.NewCopilot()
				},
				Searcher:  searcher,
				UploadDir: filepath.Join(res.Config.Storage.BaseDir, "uploads"),
				Logger:    res.Logger,
			})
			if err != nil {
				return err
			}
			if addr == "" {
				addr = res.Config.Server.Addr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", addr)
			return srv.Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}
