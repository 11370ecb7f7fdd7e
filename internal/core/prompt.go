package core

import (
	"strings"

	"github.com/peakmind/coach/internal/llm"
	"github.com/peakmind/coach/internal/store"
)

// ComposePrompt builds the system prompt from the persona instructions,
// the profile fields that are set, the prior turns and the retrieved
// context. Sections with nothing in them are left out entirely. The user
// message is passed through unchanged.
func ComposePrompt(instructions string, profile *store.Profile, history []store.Message, retrieved, message string) llm.Prompt {
	sections := []string{strings.TrimSpace(instructions)}

	if block := profileBlock(profile); block != "" {
		sections = append(sections, "User profile:\n"+block)
	}
	if block := historyBlock(history); block != "" {
		sections = append(sections, "Conversation history:\n"+block)
	}
	if c := strings.TrimSpace(retrieved); c != "" {
		sections = append(sections, "Context:\n"+c)
	}

	return llm.Prompt{
		System: strings.Join(sections, "\n\n"),
		User:   message,
	}
}

func profileBlock(p *store.Profile) string {
	if p == nil {
		return ""
	}
	fields := []struct {
		label string
		value *string
	}{
		{"Sport", p.Sport},
		{"Goals", p.Goals},
		{"Level", p.Level},
		{"Notes", p.Notes},
	}

	var b strings.Builder
	for _, f := range fields {
		if f.value == nil || strings.TrimSpace(*f.value) == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(f.label)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(*f.value))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func historyBlock(history []store.Message) string {
	var b strings.Builder
	for _, m := range history {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
