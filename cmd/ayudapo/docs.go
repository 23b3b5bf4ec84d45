package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"ayudapo/internal/provider"
)

func newDocsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Ask questions and draft work items over PDF/DOCX documents",
	}
	cmd.AddCommand(newDocsAskCmd(a), newDocsDraftCmd(a))
	return cmd
}

func newDocsAskCmd(a *app) *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer a question grounded on the given documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(files) == 0 {
				return fmt.Errorf("at least one --file is required")
			}
			res, err := a.build()
			if err != nil {
				return err
			}
			defer res.Close()
			cp := res.NewCopilot()
			if err := cp.Library().Add(files...); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ans, err := cp.AskDocuments(cmd.Context(), joinArgs(args), &provider.StreamCallbacks{OnTextChunk: streamTo(out)})
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			printHits(out, ans.Hits)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "PDF, DOCX or text file (repeatable)")
	return cmd
}

func newDocsDraftCmd(a *app) *cobra.Command {
	var (
		files   []string
		publish bool
	)
	cmd := &cobra.Command{
		Use:   "draft-workitem <instruction...>",
		Short: "Draft a work item from the documents, optionally creating it in DevOps",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.build()
			if err != nil {
				return err
			}
			defer res.Close()
			cp := res.NewCopilot()
			if len(files) > 0 {
				if err := cp.Library().Add(files...); err != nil {
					return err
				}
			}
			draft, err := cp.DraftWorkItem(cmd.Context(), joinArgs(args))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, draft.Markdown())
			if !publish {
				return nil
			}
			item, err := cp.PublishWorkItem(cmd.Context(), draft)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nCreated %s #%d: %s\n%s\n", item.Type, item.ID, item.Title, res.DevOps.WebURL(item.ID))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "PDF, DOCX or text file (repeatable)")
	cmd.Flags().BoolVar(&publish, "publish", false, "Create the work item in Azure DevOps")
	return cmd
}

func printSources(w io.Writer, sources []string) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	printHeader(w, "Fuentes")
	for i, s := range sources {
		fmt.Fprintf(w, "[%d] %s\n", i+1, s)
	}
}
