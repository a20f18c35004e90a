package reply

import (
	"fmt"
	"strings"
)

// DefaultPersona is used when no persona is configured.
const DefaultPersona = `You write LinkedIn comments for a practitioner who knows their field.

How they write:
- Direct and confident, never wishy-washy
- Backs opinions with numbers or concrete examples
- Short, punchy sentences with no filler
- Willing to respectfully challenge a popular take
- Never uses generic LinkedIn-speak ("Couldn't agree more!", "So inspiring!")
- Rarely uses emojis and never uses hashtags in comments`

const systemTemplate = `%s

Rules:
- Keep comments concise: 1-3 sentences, occasionally 4 if adding real insight
- Add genuine value: a data point, a contrarian angle, an experience, or a sharp question
- Never be sycophantic, generic, or sound like a bot
- Vary the approach across comments`

const userTemplate = `LinkedIn post: %q

Write %d distinct comment(s). Tone: %s.
%s
Reply with JSON: {"comments": ["comment1", "comment2"]}`

func systemPrompt(persona string) string {
	if strings.TrimSpace(persona) == "" {
		persona = DefaultPersona
	}
	return fmt.Sprintf(systemTemplate, persona)
}

func userPrompt(req Request, maxPostChars int) string {
	var contextSection string
	if c := strings.TrimSpace(req.Context); c != "" {
		contextSection = "Context about me: " + c
	}
	return fmt.Sprintf(userTemplate, truncate(req.PostText, maxPostChars), req.Count, req.Tone, contextSection)
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
