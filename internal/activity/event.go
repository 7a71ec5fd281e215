package activity

import (
	"fmt"
	"strings"
)

// Kind discriminates activity event variants.
type Kind string

const (
	KindToolUse Kind = "tool-use"
	KindText    Kind = "text"
)

// maxSnippetLen bounds text snippets carried into narration prompts.
const maxSnippetLen = 80

// Event is one unit of observed Claude Code activity. ToolName and Detail
// are set for tool-use events; Snippet for text events.
type Event struct {
	Kind      Kind
	ToolName  string
	Detail    string
	Snippet   string
	SessionID string
}

// Project identifies the working directory a session belongs to.
type Project struct {
	Dir         string
	DisplayName string
}

// NewToolUse builds a tool-use event with the detail already extracted.
func NewToolUse(toolName, detail, sessionID string) Event {
	return Event{Kind: KindToolUse, ToolName: toolName, Detail: detail, SessionID: sessionID}
}

// NewText builds a text event, truncating the snippet to a narratable length.
func NewText(text, sessionID string) Event {
	return Event{Kind: KindText, Snippet: TruncateSnippet(text, maxSnippetLen), SessionID: sessionID}
}

// Describe renders the event as one line for a narration prompt.
func (e Event) Describe() string {
	switch e.Kind {
	case KindToolUse:
		if e.Detail != "" {
			return fmt.Sprintf("%s: %s", e.ToolName, e.Detail)
		}
		return e.ToolName
	case KindText:
		return e.Snippet
	}
	return ""
}

// ToolDetail extracts the narratable detail for a tool call input.
// Returns "" when no mapping applies for the tool name.
func ToolDetail(toolName string, input map[string]interface{}) string {
	switch toolName {
	case "Read", "Write", "Edit":
		return inputStr(input, "file_path")
	case "NotebookEdit":
		return inputStr(input, "notebook_path")
	case "Bash":
		return inputStr(input, "command")
	case "Grep", "Glob":
		pattern := inputStr(input, "pattern")
		if path := inputStr(input, "path"); path != "" && pattern != "" {
			return fmt.Sprintf("%s in %s", pattern, path)
		}
		return pattern
	case "WebFetch":
		return inputStr(input, "url")
	case "WebSearch":
		return inputStr(input, "query")
	case "Task":
		return inputStr(input, "description")
	case "AskUserQuestion":
		return firstQuestion(input)
	default:
		return ""
	}
}

// TruncateSnippet cuts text to max runes, appending an ellipsis when cut.
func TruncateSnippet(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}

func inputStr(input map[string]interface{}, key string) string {
	if input == nil {
		return ""
	}
	s, _ := input[key].(string)
	return s
}

// firstQuestion pulls the first question text from an AskUserQuestion input.
func firstQuestion(input map[string]interface{}) string {
	if input == nil {
		return ""
	}
	questions, ok := input["questions"].([]interface{})
	if !ok || len(questions) == 0 {
		return ""
	}
	q, ok := questions[0].(map[string]interface{})
	if !ok {
		return ""
	}
	text, _ := q["question"].(string)
	return text
}
