package chat

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is an OpenAI-compatible chat message as sent on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System, User and Assistant build wire messages.
func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Entry is a message as kept in a session. Content is what is shown (the user's raw text or
// the assistant's answer); Prompt is what was sent to the model for a user turn, after the
// template was applied. Assistant entries leave Prompt empty.
type Entry struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Prompt    string `json:"prompt,omitempty"`
	Template  string `json:"template,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Wire returns the message the model sees for this entry.
func (e Entry) Wire() Message {
	if e.Role == RoleUser && e.Prompt != "" {
		return Message{Role: e.Role, Content: e.Prompt}
	}
	return Message{Role: e.Role, Content: e.Content}
}
