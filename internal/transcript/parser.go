package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
)

// conversationTypes are the entry types the daemon acts on. Everything else
// (file-history-snapshot, progress, summary, ...) is ignored.
var conversationTypes = map[string]bool{
	"user":      true,
	"assistant": true,
	"system":    true,
}

// ParseLine parses one JSONL transcript line. It returns (nil, nil) for
// blank lines and for entry types the daemon does not act on, and an error
// for lines that look like conversation entries but fail to decode.
func ParseLine(line []byte) (*Entry, error) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return nil, nil
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return nil, fmt.Errorf("decode transcript line: %w", err)
	}
	if !conversationTypes[probe.Type] {
		return nil, nil
	}

	var entry Entry
	if err := json.Unmarshal([]byte(trimmed), &entry); err != nil {
		return nil, fmt.Errorf("decode %s entry: %w", probe.Type, err)
	}
	return &entry, nil
}

// ContentBlocks extracts typed content blocks from a message.
// Handles both string content and array content.
func ContentBlocks(msg *Message) []ContentBlock {
	if msg == nil {
		return nil
	}

	switch c := msg.Content.(type) {
	case string:
		return []ContentBlock{{Type: "text", Text: c}}
	case []interface{}:
		var blocks []ContentBlock
		for _, item := range c {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			b, err := json.Marshal(m)
			if err != nil {
				continue
			}
			var block ContentBlock
			if err := json.Unmarshal(b, &block); err != nil {
				continue
			}
			blocks = append(blocks, block)
		}
		return blocks
	}
	return nil
}

// TextContent extracts all text from a message, ignoring thinking blocks.
func TextContent(msg *Message) string {
	blocks := ContentBlocks(msg)
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolUses extracts all tool_use blocks from an assistant message.
func ToolUses(msg *Message) []ContentBlock {
	blocks := ContentBlocks(msg)
	var tools []ContentBlock
	for _, b := range blocks {
		if b.Type == "tool_use" {
			tools = append(tools, b)
		}
	}
	return tools
}
