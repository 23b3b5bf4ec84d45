package i18n

// EnMessages English message catalog
var EnMessages = map[string]string{
	// UI (TUI/REPL) - Panel titles
	"panel.chat":      "Chat",
	"panel.templates": "Templates",
	"panel.logs":      "Logs",

	// UI (TUI sidebar)
	"sidebar.template":    "Template",
	"sidebar.model":       "Model",
	"sidebar.session":     "Session",
	"sidebar.context":     "Context",
	"sidebar.temperature": "Temperature",

	// UI - Status bar
	"status.ready":       "Ready",
	"status.streaming":   "Writing...",
	"status.interrupted": "Generation interrupted",
	"status.template":    "Template set to %s",

	// UI - Input
	"input.placeholder": "Type a request for the product owner copilot... (/help for commands)",
	"input.submit_hint": "Enter to send",

	// UI - Keybindings (TUI)
	"keys.tab":    "tab switch panel",
	"keys.esc":    "esc interrupt",
	"keys.enter":  "enter use template",
	"keys.ctrl_c": "ctrl+c quit",

	// Commands
	"cmd.help":     "Show available commands",
	"cmd.new":      "Start a new conversation",
	"cmd.sessions": "List stored conversations",
	"cmd.exit":     "Exit application",

	// Errors
	"error.generic":        "error: %s",
	"error.provider":       "Provider error: %s",
	"error.not_configured": "No LLM provider configured. Set provider.api_key in %s or OPENAI_API_KEY.",
	"error.session":        "Session error: %s",

	// Context
	"context.tokens": "%d tokens",

	// Session
	"session.new":    "New session",
	"session.loaded": "Loaded session: %s",
	"session.none":   "No sessions found",

	// Model
	"model.current":  "Current model: %s",
	"model.switched": "Model switched to: %s",

	// Startup
	"startup.welcome": "AyudaPO ready · template %s · model %s",
	"startup.hint":    "Type /help for commands, /templates to list templates, Ctrl+D to exit.",
	"startup.bye":     "Bye.",
}
