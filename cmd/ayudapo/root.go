package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"ayudapo/internal/bootstrap"
	"ayudapo/internal/config"
	"ayudapo/internal/i18n"
	"ayudapo/internal/retrieval"
)

var (
	version = "dev"

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// app carries the global flags shared by every command.
type app struct {
	configPath string
	verbose    bool
	lang       string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "ayudapo",
		Short: "Product owner copilot: templated chat, repo analysis, Azure DevOps and document RAG",
		Long: `AyudaPO helps a product owner write epics, stories and spikes with an LLM.

It fills your request into a prompt template, keeps the conversation, and can
ground answers on a zipped repository, Azure DevOps work items and wiki pages,
or your own PDF/DOCX documents.

Quick Start:
  ayudapo init                         # write ./.ayudapo/config.json
  ayudapo chat                         # interactive chat (REPL)
  ayudapo chat --tui                   # full-screen chat
  ayudapo repo ask app.zip "¿Dónde se calcula el IVA?"
  ayudapo devops search "pago con tarjeta"`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			i18n.Init(a.lang)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config JSON/JSONC")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Also log to stderr")
	root.PersistentFlags().StringVar(&a.lang, "lang", "", "Interface language (en, es); defaults to the environment")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newInitCmd(a),
		newChatCmd(a),
		newTemplatesCmd(a),
		newRepoCmd(a),
		newDevOpsCmd(a),
		newWikiCmd(a),
		newDocsCmd(a),
		newTilenaSyncCmd(a),
		newServeCmd(a),
		newHashPasswordCmd(a),
		newLoginCmd(a),
	)
	return root
}

func (a *app) loadConfig() (config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// build loads the config and wires the shared services; the caller must Close the result.
func (a *app) build() (*bootstrap.BuildResult, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	return bootstrap.Build(cfg, bootstrap.Options{Verbose: a.verbose})
}

// configHint names the file users should edit when something is not configured.
func (a *app) configHint() string {
	if strings.TrimSpace(a.configPath) != "" {
		return a.configPath
	}
	return ".ayudapo/config.json"
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w, headerStyle.Render(title))
}

// printHits lists retrieval hits as "[n] source · title (score)".
func printHits(w io.Writer, hits []retrieval.Hit) {
	if len(hits) == 0 {
		return
	}
	fmt.Fprintln(w)
	printHeader(w, "Fuentes")
	for i, h := range hits {
		line := fmt.Sprintf("[%d] %s", i+1, h.Source)
		if h.Title != "" && h.Title != h.Source {
			line += " · " + h.Title
		}
		fmt.Fprintf(w, "%s %s\n", line, mutedStyle.Render(fmt.Sprintf("(%.3f)", h.Score)))
	}
}

// streamTo copies reply chunks to w as they arrive.
func streamTo(w io.Writer) func(string) {
	return func(chunk string) { _, _ = io.WriteString(w, chunk) }
}
