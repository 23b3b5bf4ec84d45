package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ayudapo/internal/devops"
)

func newDevOpsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devops",
		Short: "Read, search and create Azure DevOps work items",
	}
	cmd.AddCommand(newDevOpsItemsCmd(a), newDevOpsSearchCmd(a, "search <query...>", "all"), newDevOpsCreateCmd(a))
	return cmd
}

func newDevOpsItemsCmd(a *app) *cobra.Command {
	var (
		n     int
		types []string
	)
	cmd := &cobra.Command{
		Use:   "items",
		Short: "List the most recently changed work items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.build()
			if err != nil {
				return err
			}
			defer res.Close()
			if res.DevOps == nil {
				return devops.ErrNotConfigured
			}
			items, err := res.DevOps.RecentWorkItems(cmd.Context(), n, types...)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No work items found.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSTATE\tTITLE\tASSIGNED TO")
			for _, it := range items {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", it.ID, it.Type, it.State, it.Title, it.AssignedTo)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "Number of work items")
	cmd.Flags().StringSliceVar(&types, "type", nil, "Filter by work item type (repeatable)")
	return cmd
}

func newDevOpsSearchCmd(a *app, use, defaultScope string) *cobra.Command {
	var (
		scope string
		limit int
		top   int
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: "Semantic search over work items and wiki pages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := devops.ParseScope(scope)
			if err != nil {
				return err
			}
			res, err := a.build()
			if err != nil {
				return err
			}
			defer res.Close()
			searcher, err := res.Searcher()
			if err != nil {
				return err
			}
			hits, err := searcher.Search(cmd.Context(), joinArgs(args), sc, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hits) == 0 {
				fmt.Fprintln(out, "No results.")
				return nil
			}
			if top > 0 && len(hits) > top {
				hits = hits[:top]
			}
			for i, h := range hits {
				title := h.Title
				if title == "" {
					title = h.Source
				}
				fmt.Fprintf(out, "%s %s\n", headerStyle.Render(fmt.Sprintf("[%d] %s", i+1, title)),
					mutedStyle.Render(fmt.Sprintf("(%.3f)", h.Score)))
				if url := h.Metadata["url"]; url != "" {
					fmt.Fprintln(out, mutedStyle.Render(url))
				}
				fmt.Fprintln(out, snippet(h.Text, 240))
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", defaultScope, "items, wiki or all")
	cmd.Flags().IntVar(&limit, "limit", 200, "Maximum work items / wiki pages to index")
	cmd.Flags().IntVar(&top, "top", 0, "Show at most this many results")
	return cmd
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func newDevOpsCreateCmd(a *app) *cobra.Command {
	var (
		title       string
		description string
		criteria    string
		itemType    string
		tags        []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a work item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(title) == "" {
				return fmt.Errorf("--title is required")
			}
			res, err := a.build()
			if err != nil {
				return err
			}
			defer res.Close()
			if res.DevOps == nil {
				return devops.ErrNotConfigured
			}
			if itemType == "" {
				itemType = res.Config.DevOps.WorkItemType
			}
			item, err := res.DevOps.CreateWorkItem(cmd.Context(), devops.NewWorkItem{
				Type:               itemType,
				Title:              title,
				Description:        description,
				AcceptanceCriteria: criteria,
				Tags:               tags,
				AreaPath:           res.Config.DevOps.AreaPath,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s #%d: %s\n%s\n", item.Type, item.ID, item.Title, res.DevOps.WebURL(item.ID))
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Work item title")
	cmd.Flags().StringVar(&description, "description", "", "Description (HTML allowed)")
	cmd.Flags().StringVar(&criteria, "criteria", "", "Acceptance criteria (HTML allowed)")
	cmd.Flags().StringVar(&itemType, "type", "", "Work item type (default from config)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Tags, comma separated")
	return cmd
}

func newWikiCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wiki",
		Short: "Search and write Azure DevOps wiki pages",
	}
	cmd.AddCommand(newDevOpsSearchCmd(a, "search <query...>", "wiki"), newWikiDraftCmd(a))
	return cmd
}

func newWikiDraftCmd(a *app) *cobra.Command {
	var (
		files   []string
		publish bool
	)
	cmd := &cobra.Command{
		Use:   "draft <instruction...>",
		Short: "Draft a wiki page with the LLM, optionally grounded on documents",
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
			draft, err := cp.DraftWikiPage(cmd.Context(), joinArgs(args))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printHeader(out, draft.Title)
			fmt.Fprintln(out, strings.TrimSpace(draft.Content))
			printSources(out, draft.Sources)
			if !publish {
				return nil
			}
			page, err := cp.PublishWikiPage(cmd.Context(), draft)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nPublished %s\n", page.Path)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "PDF, DOCX or text file to ground the draft on (repeatable)")
	cmd.Flags().BoolVar(&publish, "publish", false, "Write the page to the wiki")
	return cmd
}
