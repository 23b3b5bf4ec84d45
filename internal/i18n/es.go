package i18n

// EsMessages catálogo en español
var EsMessages = map[string]string{
	"panel.chat":      "Chat",
	"panel.templates": "Plantillas",
	"panel.logs":      "Registros",

	"sidebar.template":    "Plantilla",
	"sidebar.model":       "Modelo",
	"sidebar.session":     "Sesión",
	"sidebar.context":     "Contexto",
	"sidebar.temperature": "Temperatura",

	"status.ready":       "Listo",
	"status.streaming":   "Escribiendo...",
	"status.interrupted": "Generación interrumpida",
	"status.template":    "Plantilla activa: %s",

	"input.placeholder": "Escribe una petición para el copiloto del PO... (/help para comandos)",
	"input.submit_hint": "Enter para enviar",

	"keys.tab":    "tab cambiar panel",
	"keys.esc":    "esc interrumpir",
	"keys.enter":  "enter usar plantilla",
	"keys.ctrl_c": "ctrl+c salir",

	"cmd.help":     "Mostrar comandos disponibles",
	"cmd.new":      "Empezar una conversación nueva",
	"cmd.sessions": "Listar conversaciones guardadas",
	"cmd.exit":     "Salir",

	"error.generic":        "error: %s",
	"error.provider":       "Error del proveedor: %s",
	"error.not_configured": "No hay proveedor LLM configurado. Define provider.api_key en %s u OPENAI_API_KEY.",
	"error.session":        "Error de sesión: %s",

	"context.tokens": "%d tokens",

	"session.new":    "Sesión nueva",
	"session.loaded": "Sesión cargada: %s",
	"session.none":   "No hay sesiones",

	"model.current":  "Modelo actual: %s",
	"model.switched": "Modelo cambiado a: %s",

	"startup.welcome": "AyudaPO listo · plantilla %s · modelo %s",
	"startup.hint":    "Escribe /help para ver comandos, /templates para las plantillas, Ctrl+D para salir.",
	"startup.bye":     "Hasta luego.",
}
