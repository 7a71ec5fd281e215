package transcript

import (
	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/activity"
	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/sanitize"
)

// Events converts an assistant entry into narratable activity events:
// tool_use blocks become tool-use events, text blocks become text snippets.
// Non-assistant entries yield nothing.
func Events(entry *Entry) []activity.Event {
	if entry == nil || entry.Type != "assistant" || entry.Message == nil {
		return nil
	}

	var events []activity.Event
	for _, block := range ContentBlocks(entry.Message) {
		switch block.Type {
		case "tool_use":
			input, _ := block.Input.(map[string]interface{})
			detail := activity.ToolDetail(block.Name, input)
			events = append(events, activity.NewToolUse(block.Name, detail, entry.SessionID))
		case "text":
			text := sanitize.StripTags(block.Text)
			if text == "" {
				continue
			}
			events = append(events, activity.NewText(text, entry.SessionID))
		}
	}
	return events
}

// IsUserText reports whether the entry is a human-typed user message,
// as opposed to tool results or system-injected context.
func IsUserText(entry *Entry) bool {
	if entry == nil || entry.Type != "user" || entry.IsMeta || entry.Message == nil {
		return false
	}
	for _, block := range ContentBlocks(entry.Message) {
		if block.Type == "tool_result" {
			return false
		}
		if block.Type == "text" && sanitize.StripTags(block.Text) != "" {
			return true
		}
	}
	return false
}
