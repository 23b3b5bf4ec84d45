package contextmgr

import "ayudapo/internal/chat"

// FitHistory keeps the leading system message and as many of the newest messages as fit in
// budget. The last message is always kept, even when it alone exceeds the budget, so a
// long prompt still reaches the model. Dropped messages are removed oldest first.
func FitHistory(tok *Tokenizer, messages []chat.Message, budget int) []chat.Message {
	if len(messages) == 0 || budget <= 0 {
		return messages
	}
	if tok == nil {
		tok = DefaultTokenizer()
	}

	var system []chat.Message
	rest := messages
	if rest[0].Role == chat.RoleSystem {
		system = rest[:1]
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return messages
	}

	used := tok.Count(system)
	start := len(rest) - 1
	used += tok.CountMessage(rest[start])
	for i := start - 1; i >= 0; i-- {
		cost := tok.CountMessage(rest[i])
		if used+cost > budget {
			break
		}
		used += cost
		start = i
	}
	// Never open the window on an assistant reply without its question.
	for start < len(rest)-1 && rest[start].Role == chat.RoleAssistant {
		start++
	}

	out := make([]chat.Message, 0, len(system)+len(rest)-start)
	out = append(out, system...)
	out = append(out, rest[start:]...)
	return out
}
