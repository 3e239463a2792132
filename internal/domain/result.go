package domain

// Metadata keys set on every reformulation result.
const (
	MetaMethod    = "method"
	MetaVersion   = "version"
	MetaPromptIDs = "prompt_ids"
)

// ReformulationResult is the outcome of reformulating one query.
type ReformulationResult struct {
	QID          string
	Original     string
	Reformulated string
	Metadata     map[string]any
}

// Message is a single chat message sent to a language model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
