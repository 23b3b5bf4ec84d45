package storage

// SessionMeta describes a stored session.
type SessionMeta struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Owner       string  `json:"owner,omitempty"`
	Template    string  `json:"template"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Summary is a cached file summary produced during repository analysis.
type Summary struct {
	Path        string
	ContentHash string
	Model       string
	Text        string
	UpdatedAt   string
}
