package sanitize

import (
	"regexp"
	"strings"
)

// Claude Code wraps injected context and command plumbing in XML-ish tags.
// Narration prompts want the human-readable text only.
var xmlTagPattern = regexp.MustCompile(
	`</?(?:local-command-(?:stdout|stderr|caveat)|command-(?:output|name|args|message)|` +
		`system-reminder|task-(?:id|notification)|persisted-output|thinking|tool-use-id|` +
		`tool|skill-name|plugin-id)[^>]*>`,
)

// StripTags removes Claude Code XML wrapper tags from text.
func StripTags(text string) string {
	return strings.TrimSpace(xmlTagPattern.ReplaceAllString(text, ""))
}
