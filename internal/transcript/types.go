package transcript

import "time"

// Entry represents a single line in a Claude Code JSONL transcript.
type Entry struct {
	Type      string    `json:"type"`
	UUID      string    `json:"uuid"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
	CWD       string    `json:"cwd"`

	// Present on user/assistant messages
	Message *Message `json:"message,omitempty"`

	// IsMeta marks system-injected messages (e.g., CLAUDE.md, context
	// reminders) that carry no human intent. Native field in Claude Code's
	// JSONL output.
	IsMeta bool `json:"isMeta,omitempty"`
}

// Message is the inner message object on user/assistant entries.
type Message struct {
	Role    string      `json:"role"`
	Model   string      `json:"model,omitempty"`
	Content interface{} `json:"content"` // string or []ContentBlock
}

// ContentBlock represents one block in a content array.
type ContentBlock struct {
	Type      string      `json:"type"`
	Text      string      `json:"text,omitempty"`
	Thinking  string      `json:"thinking,omitempty"`
	ID        string      `json:"id,omitempty"`          // tool_use id
	Name      string      `json:"name,omitempty"`        // tool name
	Input     interface{} `json:"input,omitempty"`       // tool input
	ToolUseID string      `json:"tool_use_id,omitempty"` // tool_result
	Content   interface{} `json:"content,omitempty"`     // tool_result content
	IsError   bool        `json:"is_error,omitempty"`
}
