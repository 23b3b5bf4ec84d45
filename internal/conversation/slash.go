package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ayudapo/internal/config"
)

// ErrExit is returned by RunInput for /exit and /quit.
var ErrExit = errors.New("exit requested")

// parseSlashCommand parses a "/" command: returns command and args (rest of line)
func parseSlashCommand(input string) (command string, args string, ok bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") {
		return "", "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "/"))
	if rest == "" {
		return "", "", true
	}
	parts := strings.SplitN(rest, " ", 2)
	command = strings.ToLower(strings.TrimSpace(parts[0]))
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return command, args, true
}

// RunInput handles one line of interactive input: slash commands are answered directly,
// anything else is sent to the model. Command results are written to out.
func (s *Session) RunInput(ctx context.Context, input string, out io.Writer, onChunk TextChunkFunc) (string, error) {
	if cmd, args, ok := parseSlashCommand(input); ok {
		result, err := s.runSlashCommand(cmd, args)
		if err != nil {
			return "", err
		}
		if out != nil && result != "" {
			fmt.Fprintln(out, result)
		}
		return result, nil
	}
	return s.Send(ctx, input, onChunk)
}

// HelpText lists the interactive commands.
func HelpText() string {
	return strings.Join([]string{
		"Commands:",
		"  /help",
		"  /templates",
		"  /template <name|index>",
		"  /models [id|index]",
		"  /temperature <0..1>",
		"  /max-tokens <100..4096>",
		"  /new",
		"  /sessions",
		"  /use <session-id>",
		"  /clear",
		"  /exit",
	}, "\n")
}

func (s *Session) runSlashCommand(command, args string) (string, error) {
	switch command {
	case "", "help":
		return HelpText(), nil
	case "exit", "quit":
		return "", ErrExit
	case "templates":
		return s.renderTemplateList(), nil
	case "template":
		if args == "" {
			return "Current template: " + s.Template() + ". Usage: /template <name|index>", nil
		}
		name, err := s.SetTemplate(args)
		if err != nil {
			return "Unknown template: " + args + ". Use /templates to list them.", nil
		}
		return "Template set to " + name, nil
	case "models", "model":
		models := s.Models()
		if args == "" {
			var b strings.Builder
			b.WriteString("Models:")
			for i, m := range models {
				marker := " "
				if m == s.Model() {
					marker = "*"
				}
				fmt.Fprintf(&b, "\n %s %d. %s", marker, i+1, m)
			}
			return b.String(), nil
		}
		target, err := resolveModelTarget(args, models)
		if err != nil {
			return "Failed to set model: " + err.Error(), nil
		}
		if err := s.SetModel(target); err != nil {
			return "Failed to set model: " + err.Error(), nil
		}
		if s.configBase != "" {
			if err := config.WriteProviderModel(s.configBase, target); err != nil {
				return "Model set to " + target + " (config persist failed: " + err.Error() + ")", nil
			}
		}
		return "Model set to " + target, nil
	case "temperature", "temp":
		if args == "" {
			return fmt.Sprintf("Current temperature: %.2f. Usage: /temperature <0..1>", s.Temperature()), nil
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(args, ",", "."), 64)
		if err != nil {
			return "Invalid temperature: " + args, nil
		}
		if err := s.SetTemperature(v); err != nil {
			return err.Error(), nil
		}
		return fmt.Sprintf("Temperature set to %.2f", v), nil
	case "max-tokens", "max_tokens", "maxtokens":
		if args == "" {
			return fmt.Sprintf("Current max tokens: %d. Usage: /max-tokens <%d..%d>", s.MaxTokens(), config.MinMaxTokens, config.MaxMaxTokens), nil
		}
		n, err := strconv.Atoi(args)
		if err != nil {
			return "Invalid max tokens: " + args, nil
		}
		if err := s.SetMaxTokens(n); err != nil {
			return err.Error(), nil
		}
		return fmt.Sprintf("Max tokens set to %d", n), nil
	case "new", "clear":
		s.Reset()
		if command == "clear" {
			return "Conversation cleared.", nil
		}
		return "New conversation started.", nil
	case "sessions":
		return s.renderSessionList(), nil
	case "use", "resume":
		if args == "" {
			return s.renderSessionList(), nil
		}
		meta, err := s.Resume(args)
		if err != nil {
			return "Session not found: " + args, nil
		}
		return fmt.Sprintf("Resumed session %s (%d messages, template %s)", meta.ID, len(s.Messages()), s.Template()), nil
	default:
		return "Unknown command: /" + command + ". Type /help for the list.", nil
	}
}

func (s *Session) renderTemplateList() string {
	var b strings.Builder
	b.WriteString("Templates:")
	current := s.Template()
	for i, t := range s.catalog.List() {
		marker := " "
		if t.Name == current {
			marker = "*"
		}
		fmt.Fprintf(&b, "\n %s %d. %s", marker, i+1, t.Name)
		if d := strings.TrimSpace(t.Description); d != "" {
			b.WriteString("  - " + d)
		}
	}
	return b.String()
}

func (s *Session) renderSessionList() string {
	if s.store == nil {
		return "Store not available."
	}
	metas, err := s.store.ListSessions(s.owner)
	if err != nil {
		return "Failed to list sessions: " + err.Error()
	}
	if len(metas) == 0 {
		return "No sessions."
	}
	current := s.ID()
	lines := make([]string, 0, len(metas)+1)
	lines = append(lines, "Sessions:")
	for _, m := range metas {
		marker := " "
		if m.ID == current {
			marker = "*"
		}
		title := m.Title
		if title == "" {
			title = "(untitled)"
		}
		lines = append(lines, fmt.Sprintf(" %s %s  %s  template=%s  updated=%s", marker, m.ID, title, m.Template, m.UpdatedAt))
	}
	return strings.Join(lines, "\n")
}

// resolveModelTarget accepts a model id, a quoted id, or a 1-based index into models.
func resolveModelTarget(raw string, models []string) (string, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 4 && strings.EqualFold(raw[:4], "set ") {
		raw = strings.TrimSpace(raw[4:])
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	} else if len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'' {
		raw = strings.TrimSpace(raw[1 : len(raw)-1])
	}
	if raw == "" {
		return "", fmt.Errorf("empty model")
	}
	for _, m := range models {
		if strings.EqualFold(m, raw) {
			return m, nil
		}
	}
	if index, err := strconv.Atoi(raw); err == nil {
		if index < 1 || index > len(models) {
			return "", fmt.Errorf("index out of range")
		}
		return models[index-1], nil
	}
	return raw, nil
}
