// Package promptstyle prefixes system prompts with the memoir voice rules shared by
// every model call.
package promptstyle

import "strings"

// Output selects the closing instruction of the style block.
type Output string

const (
	OutputJSON Output = "json"
	OutputText Output = "text"
)

const marker = "MEMOIR_STUDIO_PROMPT_STYLE_V1"

var voiceRules = []string{
	"You help people write their own memoir chapters.",
	"Write in the first person, in the author's voice, using only facts from their answers.",
	"Never invent people, places, dates or events.",
	"When an answer is thin, write less rather than embellish.",
}

var closing = map[Output]string{
	OutputJSON: "Return a single JSON object that conforms to the schema and contains no extra keys.",
	OutputText: "Return only the rewritten text with no preamble.",
}

// Compose joins task lines under the style block. Applying it twice is a no-op.
func Compose(out Output, task ...string) string {
	body := strings.TrimSpace(strings.Join(task, "\n"))
	if body == "" || strings.Contains(body, marker) {
		return body
	}
	lines := append([]string{marker}, voiceRules...)
	if c, ok := closing[out]; ok {
		lines = append(lines, c)
	} else {
		lines = append(lines, closing[OutputText])
	}
	lines = append(lines, "---", body)
	return strings.Join(lines, "\n")
}
