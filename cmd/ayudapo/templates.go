package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ayudapo/internal/templates"
)

func newTemplatesCmd(a *app) *cobra.Command {
	var show string
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List the prompt templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			catalog, err := templates.Load(cfg.Chat.TemplatesFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if show != "" {
				t, err := catalog.Get(show)
				if err != nil {
					return err
				}
				printHeader(out, t.Name)
				fmt.Fprintln(out, t.Body)
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tNAME\tSLUG\tDESCRIPTION")
			for i, t := range catalog.List() {
				marker := ""
				if t.Name == cfg.Chat.DefaultTemplate {
					marker = " *"
				}
				fmt.Fprintf(w, "%d\t%s%s\t%s\t%s\n", i+1, t.Name, marker, t.Slug(), t.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&show, "show", "", "Print the body of one template")
	return cmd
}
