package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ayudapo/internal/provider"
	"ayudapo/internal/repo"
)

func newRepoCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Analyze a zipped source repository",
	}
	cmd.AddCommand(newRepoSummarizeCmd(a), newRepoAskCmd(a))
	return cmd
}

func newRepoSummarizeCmd(a *app) *cobra.Command {
	var overview bool
	cmd := &cobra.Command{
		Use:   "summarize <repo.zip>",
		Short: "Summarize every source file, optionally with an overall overview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.build()
			if err != nil {
				return err
			}
			defer res.Close()

			files, stats, err := repo.Walk(args[0], res.WalkOptions())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()
			fmt.Fprintf(errOut, "%d entries · %d files · %d skipped\n", stats.Entries, stats.Accepted, stats.Skipped)
			if len(files) == 0 {
				return fmt.Errorf("no source files found in %s", args[0])
			}

			sums, err := res.NewSummarizer().Summarize(cmd.Context(), files, func(done, total int) {
				fmt.Fprintf(errOut, "\r%d/%d", done, total)
			})
			fmt.Fprintln(errOut)
			if err != nil {
				return err
			}
			failed := 0
			for _, s := range sums {
				printHeader(out, s.Path)
				if s.Err != nil {
					failed++
					fmt.Fprintln(out, mutedStyle.Render("(error: "+s.Err.Error()+")"))
					fmt.Fprintln(out)
					continue
				}
				fmt.Fprintln(out, strings.TrimSpace(s.Summary))
				fmt.Fprintln(out)
			}
			if failed > 0 {
				fmt.Fprintf(errOut, "%d file(s) could not be summarized\n", failed)
			}
			if !overview {
				return nil
			}
			text, err := res.NewSummarizer().Overview(cmd.Context(), sums)
			if err != nil {
				return err
			}
			printHeader(out, "Overview")
			fmt.Fprintln(out, strings.TrimSpace(text))
			return nil
		},
	}
	cmd.Flags().BoolVar(&overview, "overview", false, "Also write a repository-level overview")
	return cmd
}

func newRepoAskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <repo.zip> <question...>",
		Short: "Answer a question grounded on the repository",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.build()
			if err != nil {
				return err
			}
			defer res.Close()

			files, _, err := repo.Walk(args[0], res.WalkOptions())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ans, err := repo.NewAnalyzer(files, res.NewPipeline()).Ask(cmd.Context(), joinArgs(args[1:]),
				&provider.StreamCallbacks{OnTextChunk: streamTo(out)})
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			printHits(out, ans.Hits)
			return nil
		},
	}
}
