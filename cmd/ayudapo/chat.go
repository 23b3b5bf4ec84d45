package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ayudapo/internal/repl"
	"ayudapo/internal/tui"
)

func newChatCmd(a *app) *cobra.Command {
	var (
		useTUI   bool
		raw      bool
		template string
		resume   string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive templated chat with the LLM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.build()
			if err != nil {
				return err
			}
			defer res.Close()

			cwd, _ := os.Getwd()
			sess := res.NewSession("", cwd)
			if strings.TrimSpace(template) != "" {
				if _, err := sess.SetTemplate(template); err != nil {
					return err
				}
			}
			if strings.TrimSpace(resume) != "" {
				if _, err := sess.Resume(resume); err != nil {
					return fmt.Errorf("resume %s: %w", resume, err)
				}
			}

			if useTUI {
				return tui.Run(cmd.Context(), sess, tui.Options{Logger: res.Logger, ConfigPath: a.configHint()})
			}
			loop := repl.NewTerminal(sess, repl.Options{
				HistoryPath: res.HistoryPath(),
				ConfigPath:  a.configHint(),
				Raw:         raw,
			})
			return loop.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Full-screen terminal UI")
	cmd.Flags().BoolVar(&raw, "raw", false, "Stream plain text instead of rendering markdown")
	cmd.Flags().StringVarP(&template, "template", "t", "", "Template name, slug or index")
	cmd.Flags().StringVar(&resume, "resume", "", "Resume a stored session by id")
	return cmd
}
