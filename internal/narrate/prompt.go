package narrate

import (
	"fmt"
	"strings"

	"github.com/mizunashi-mana/cc-voice-reporter-sub000/internal/activity"
)

const systemPromptTemplate = `You are the live voice of a coding assistant, narrating your own work out loud as it happens.

Rules:
- Speak in the first person, present tense, like a running commentary.
- 1-2 short sentences. The text is spoken aloud, so keep it tight.
- Keep code identifiers, file paths, and commands verbatim.
- Respond in %s only. Plain text, no markdown, no preamble.`

// systemPrompt renders the fixed narration persona for the target language.
func systemPrompt(language string) string {
	if language == "" {
		language = "English"
	}
	return fmt.Sprintf(systemPromptTemplate, language)
}

// buildUserPrompt renders the numbered activity list plus optional previous
// narration context.
func buildUserPrompt(events []activity.Event, omitted int, history []string) string {
	var b strings.Builder

	if len(history) > 0 {
		b.WriteString("Previous narration:\n")
		for _, h := range history {
			b.WriteString("- " + h + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Recent actions and messages:\n")
	for i, ev := range events {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ev.Describe())
	}
	if omitted > 0 {
		fmt.Fprintf(&b, "(%d earlier activities omitted)\n", omitted)
	}

	b.WriteString("\nNarrate what is happening right now.")
	return b.String()
}

// terminalPunctuation is the set of sentence-ending marks narration must
// close with so concatenated speech stays grammatical.
const terminalPunctuation = ".,?!。？！"

// EnsureTerminalPunctuation appends a period when the text does not already
// end with a terminal mark.
func EnsureTerminalPunctuation(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}
	runes := []rune(text)
	last := runes[len(runes)-1]
	if strings.ContainsRune(terminalPunctuation, last) {
		return text
	}
	return text + "."
}

// selectEventsForPrompt applies the prompt budget. A buffer within the
// limit is kept whole, in order. Over the limit, text events carry the most
// narratable signal: when any exist, only the most recent max text events
// survive and tool-use events are dropped entirely. With no text events the
// most recent max events are kept regardless of kind. The omitted count is
// reported for prompt framing.
func selectEventsForPrompt(events []activity.Event, max int) (kept []activity.Event, omitted int) {
	if max <= 0 || len(events) <= max {
		return events, 0
	}

	var texts []activity.Event
	for _, ev := range events {
		if ev.Kind == activity.KindText {
			texts = append(texts, ev)
		}
	}

	if len(texts) > 0 {
		if len(texts) > max {
			texts = texts[len(texts)-max:]
		}
		return texts, len(events) - len(texts)
	}

	kept = events[len(events)-max:]
	return kept, len(events) - max
}
