// Package tui is the full-screen chat front end: a chat panel with streamed replies, the
// template catalog and the recent log, plus a sidebar with the session settings.
package tui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ayudapo/internal/chat"
	"ayudapo/internal/conversation"
	"ayudapo/internal/i18n"
	"ayudapo/internal/logging"
	"ayudapo/internal/provider"
)

// logTailSize is how many log entries the logs panel shows.
const logTailSize = 200

// PanelID identifies a panel
type PanelID int

const (
	PanelChat PanelID = iota
	PanelTemplates
	PanelLogs
)

// --- Tea Messages ---

// TextChunkMsg is a streaming text chunk
type TextChunkMsg struct{ Text string }

// TurnDoneMsg indicates a turn is done. Output holds what a slash command printed.
type TurnDoneMsg struct {
	Input   string
	Content string
	Output  string
	Err     error
}

// LogsLoadedMsg carries the tail of the log file.
type LogsLoadedMsg struct {
	Entries []logging.Entry
	Err     error
}

type Options struct {
	Logger *logging.Logger
	// ConfigPath is named in the hint shown when no provider key is set.
	ConfigPath string
}

// App is the main Bubble Tea model
type App struct {
	ctx  context.Context
	sess *conversation.Session
	log  *logging.Logger

	// Layout
	width  int
	height int

	// Panels
	activePanel   PanelID
	chatView      viewport.Model
	templatesView viewport.Model
	logsView      viewport.Model

	// Input
	input textarea.Model

	// Template cursor
	templateCursor int

	// Content buffers
	chatContent strings.Builder
	logContent  strings.Builder

	// State
	streaming    bool
	streamBuffer strings.Builder
	events       <-chan tea.Msg
	cancelTurn   context.CancelFunc
	lastError    string
	configPath   string

	// Config
	theme  Theme
	keys   KeyMap
	locale *i18n.I18n
}

// NewApp creates a new TUI application
func NewApp(ctx context.Context, sess *conversation.Session, opts Options) App {
	if ctx == nil {
		ctx = context.Background()
	}
	keys := DefaultKeyMap()
	ta := textarea.New()
	ta.Placeholder = i18n.T("input.placeholder")
	ta.CharLimit = 8192
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline = keys.Newline
	ta.Focus()

	a := App{
		ctx:         ctx,
		sess:        sess,
		log:         opts.Logger,
		activePanel: PanelChat,
		input:       ta,
		configPath:  opts.ConfigPath,
		theme:       DarkTheme(),
		keys:        keys,
		locale:      i18n.Global(),
	}
	for i, name := range sess.Catalog().Names() {
		if name == sess.Template() {
			a.templateCursor = i
		}
	}
	return a
}

func (a App) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, a.loadLogs())
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, a.keys.Quit):
			if a.cancelTurn != nil {
				a.cancelTurn()
			}
			return a, tea.Quit
		case key.Matches(msg, a.keys.SwitchPanel):
			a.activePanel = (a.activePanel + 1) % 3
			if a.activePanel == PanelLogs {
				return a, a.loadLogs()
			}
			return a, nil
		case key.Matches(msg, a.keys.Cancel):
			if a.streaming && a.cancelTurn != nil {
				a.cancelTurn()
			}
			return a, nil
		case key.Matches(msg, a.keys.ClearScreen):
			a.chatContent.Reset()
			a.chatView.SetContent("")
			return a, nil
		}
		switch a.activePanel {
		case PanelTemplates:
			return a.updateTemplates(msg)
		case PanelLogs:
			var cmd tea.Cmd
			a.logsView, cmd = a.logsView.Update(msg)
			return a, cmd
		}
		if key.Matches(msg, a.keys.Submit) {
			return a.submit()
		}
		if key.Matches(msg, a.keys.PageUp, a.keys.PageDown) {
			var cmd tea.Cmd
			a.chatView, cmd = a.chatView.Update(msg)
			return a, cmd
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.relayout()
		return a, nil

	case TextChunkMsg:
		a.streaming = true
		a.streamBuffer.WriteString(msg.Text)
		a.updateChatFromStream()
		return a, a.waitForEvent()

	case TurnDoneMsg:
		return a.finishTurn(msg)

	case LogsLoadedMsg:
		a.logContent.Reset()
		if msg.Err != nil {
			a.logContent.WriteString(a.theme.ErrorStyle.Render(msg.Err.Error()) + "\n")
		}
		for _, e := range msg.Entries {
			a.logContent.WriteString(RenderLogLine(e, a.theme) + "\n")
		}
		a.logsView.SetContent(a.logContent.String())
		a.logsView.GotoBottom()
		return a, nil
	}

	// Update input area
	if a.activePanel == PanelChat && !a.streaming {
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return a, tea.Batch(cmds...)
}

func (a App) updateTemplates(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	n := len(a.sess.Catalog().Names())
	switch {
	case key.Matches(msg, a.keys.ScrollUp):
		if a.templateCursor > 0 {
			a.templateCursor--
		}
	case key.Matches(msg, a.keys.ScrollDown):
		if a.templateCursor < n-1 {
			a.templateCursor++
		}
	case key.Matches(msg, a.keys.Submit):
		if a.streaming || n == 0 {
			return a, nil
		}
		name, err := a.sess.SetTemplate(fmt.Sprint(a.templateCursor + 1))
		if err != nil {
			a.lastError = err.Error()
			return a, nil
		}
		a.appendChat(a.theme.MutedStyle.Render(a.locale.T("status.template", name)))
		a.activePanel = PanelChat
	}
	a.refreshTemplates()
	return a, nil
}

// submit sends the input box content to the session on a background goroutine; chunks and
// the final result come back through events.
func (a App) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(a.input.Value())
	if text == "" || a.streaming {
		return a, nil
	}
	a.input.Reset()
	a.lastError = ""
	if !strings.HasPrefix(text, "/") {
		a.appendChat("\n" + a.theme.UserStyle.Render("› ") + text)
	}

	ctx, cancel := context.WithCancel(a.ctx)
	events := make(chan tea.Msg, 64)
	a.cancelTurn = cancel
	a.events = events
	a.streaming = true
	a.streamBuffer.Reset()

	sess := a.sess
	go func() {
		defer close(events)
		defer cancel()
		var out bytes.Buffer
		reply, err := sess.RunInput(ctx, text, &out, func(chunk string) {
			select {
			case events <- TextChunkMsg{Text: chunk}:
			case <-ctx.Done():
			}
		})
		events <- TurnDoneMsg{Input: text, Content: reply, Output: out.String(), Err: err}
	}()
	return a, a.waitForEvent()
}

func (a App) waitForEvent() tea.Cmd {
	events := a.events
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

func (a App) finishTurn(msg TurnDoneMsg) (tea.Model, tea.Cmd) {
	a.streaming = false
	a.streamBuffer.Reset()
	a.cancelTurn = nil
	a.events = nil

	switch {
	case errors.Is(msg.Err, conversation.ErrExit):
		return a, tea.Quit
	case errors.Is(msg.Err, context.Canceled):
		a.appendChat(a.theme.MutedStyle.Render("⚠ " + a.locale.T("status.interrupted")))
	case errors.Is(msg.Err, provider.ErrNotConfigured):
		a.lastError = msg.Err.Error()
		a.appendChat(a.theme.ErrorStyle.Render(a.locale.T("error.not_configured", a.configPath)))
	case msg.Err != nil:
		a.lastError = msg.Err.Error()
		a.appendChat(a.theme.ErrorStyle.Render("❌ " + a.locale.T("error.generic", msg.Err.Error())))
	case strings.TrimSpace(msg.Output) != "":
		a.appendChat(a.theme.MutedStyle.Render(strings.TrimRight(msg.Output, "\n")))
		if strings.HasPrefix(msg.Input, "/use") || strings.HasPrefix(msg.Input, "/resume") {
			a.reloadTranscript()
		}
	default:
		a.appendChat(RenderMarkdown(msg.Content, a.chatWidth()))
	}
	a.refreshTemplates()
	return a, nil
}

func (a App) loadLogs() tea.Cmd {
	logger := a.log
	return func() tea.Msg {
		entries, err := logger.Tail(logTailSize)
		return LogsLoadedMsg{Entries: entries, Err: err}
	}
}

// --- Internal methods ---

func (a *App) relayout() {
	mainWidth := a.mainWidth()
	panelHeight := a.height - 8

	if panelHeight < 3 {
		panelHeight = 3
	}

	a.chatView = viewport.New(mainWidth, panelHeight)
	a.chatView.SetContent(a.chatContent.String())
	a.chatView.GotoBottom()

	a.templatesView = viewport.New(mainWidth, panelHeight)
	a.refreshTemplates()

	a.logsView = viewport.New(mainWidth, panelHeight)
	a.logsView.SetContent(a.logContent.String())

	a.input.SetWidth(mainWidth - 4)
}

func (a *App) sidebarWidth() int {
	w := a.width * 25 / 100
	if w < 20 {
		w = 20
	}
	if w > 40 {
		w = 40
	}
	if a.width < 80 {
		w = 0
	}
	return w
}

func (a *App) mainWidth() int {
	sw := a.sidebarWidth()
	mw := a.width - sw
	if sw > 0 {
		mw-- // border
	}
	return mw
}

func (a *App) chatWidth() int {
	return a.mainWidth() - 2
}

func (a *App) appendChat(text string) {
	a.chatContent.WriteString(text + "\n")
	a.chatView.SetContent(a.chatContent.String())
	a.chatView.GotoBottom()
}

func (a *App) updateChatFromStream() {
	// While streaming, show the settled content plus the stream buffer.
	content := a.chatContent.String()
	if a.streamBuffer.Len() > 0 {
		content += "\n" + a.streamBuffer.String()
	}
	a.chatView.SetContent(content)
	a.chatView.GotoBottom()
}

func (a *App) refreshTemplates() {
	a.templatesView.SetContent(RenderTemplateList(a.sess.Catalog().List(), a.sess.Template(), a.templateCursor, a.theme))
}

// reloadTranscript redraws the chat panel from the session, after a resume.
func (a *App) reloadTranscript() {
	a.chatContent.Reset()
	for _, e := range a.sess.Messages() {
		switch e.Role {
		case chat.RoleUser:
			a.chatContent.WriteString("\n" + a.theme.UserStyle.Render("› ") + e.Content + "\n")
		case chat.RoleAssistant:
			a.chatContent.WriteString(RenderMarkdown(e.Content, a.chatWidth()) + "\n")
		}
	}
	a.chatView.SetContent(a.chatContent.String())
	a.chatView.GotoBottom()
}

func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Initializing..."
	}

	sidebarWidth := a.sidebarWidth()
	mainWidth := a.mainWidth()

	inputHeight := 5
	statusHeight := 1
	tabHeight := 1
	panelHeight := a.height - inputHeight - statusHeight - tabHeight

	if panelHeight < 3 {
		panelHeight = 3
	}

	// Build components
	tabs := a.renderTabs()
	panel := a.renderActivePanel(mainWidth, panelHeight)
	inputBox := a.renderInput(mainWidth)
	statusBar := a.renderStatusBar(a.width)

	// Left main area
	main := lipgloss.JoinVertical(lipgloss.Left, tabs, panel, inputBox)

	// Right sidebar
	if sidebarWidth > 0 {
		sidebar := a.renderSidebar(sidebarWidth, a.height-statusHeight)
		main = lipgloss.JoinHorizontal(lipgloss.Top, main, sidebar)
	}

	// Bottom status bar
	return lipgloss.JoinVertical(lipgloss.Left, main, statusBar)
}

// --- Render methods ---

func (a App) renderTabs() string {
	tabs := []struct {
		id   PanelID
		name string
	}{
		{PanelChat, a.locale.T("panel.chat")},
		{PanelTemplates, a.locale.T("panel.templates")},
		{PanelLogs, a.locale.T("panel.logs")},
	}

	var parts []string
	for _, tab := range tabs {
		style := a.theme.InactiveTabStyle
		if tab.id == a.activePanel {
			style = a.theme.ActiveTabStyle
		}
		parts = append(parts, style.Render(tab.name))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (a App) renderActivePanel(width, height int) string {
	style := lipgloss.NewStyle().
		Width(width).
		Height(height)

	var content string
	switch a.activePanel {
	case PanelChat:
		content = a.chatView.View()
	case PanelTemplates:
		content = a.templatesView.View()
	case PanelLogs:
		if a.logContent.Len() == 0 {
			content = a.theme.MutedStyle.Render("  No logs yet")
		} else {
			content = a.logsView.View()
		}
	}

	return style.Render(content)
}

func (a App) renderInput(width int) string {
	style := a.theme.InputStyle.Width(width)
	return style.Render(a.input.View())
}

func (a App) renderSidebar(width, height int) string {
	var parts []string

	parts = append(parts, a.theme.TitleStyle.Render(" AyudaPO"))
	parts = append(parts, "")

	section := func(title, value string) {
		parts = append(parts, a.theme.TitleStyle.Render(" "+title))
		parts = append(parts, "  "+value)
		parts = append(parts, "")
	}
	section(a.locale.T("sidebar.template"), a.sess.Template())
	section(a.locale.T("sidebar.model"), a.sess.Model())
	sessionID := a.sess.ID()
	if sessionID == "" {
		sessionID = a.theme.MutedStyle.Render(a.locale.T("session.new"))
	}
	section(a.locale.T("sidebar.session"), sessionID)
	section(a.locale.T("sidebar.context"), a.locale.T("context.tokens", a.sess.ContextTokens()))
	section(a.locale.T("sidebar.temperature"), fmt.Sprintf("%.2f · max %d", a.sess.Temperature(), a.sess.MaxTokens()))

	if a.lastError != "" {
		parts = append(parts, a.theme.ErrorStyle.Render(" "+a.lastError))
	}

	style := a.theme.SidebarStyle.
		Width(width).
		Height(height)

	return style.Render(strings.Join(parts, "\n"))
}

func (a App) renderStatusBar(width int) string {
	status := a.locale.T("status.ready")
	if a.streaming {
		status = a.locale.T("status.streaming")
	}

	left := fmt.Sprintf(" %s · %s · %s", a.sess.Template(), a.sess.Model(), status)
	right := strings.Join([]string{a.locale.T("keys.tab"), a.locale.T("keys.esc"), a.locale.T("keys.ctrl_c")}, " · ") + "  "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	bar := left + strings.Repeat(" ", gap) + right
	return a.theme.StatusBarStyle.Width(width).Render(bar)
}

// Run starts the Bubble Tea TUI application
func Run(ctx context.Context, sess *conversation.Session, opts Options) error {
	app := NewApp(ctx, sess, opts)
	if len(sess.Messages()) > 0 {
		app.reloadTranscript()
	}
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
