package agent

import (
	"fmt"
	"strings"
)

func buildScorePrompt(persona, rules, style, body string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CORE PERSONA: %s\n", persona)
	fmt.Fprintf(&sb, "SCORING: %s\n", rules)
	fmt.Fprintf(&sb, "STYLE: %s\n", style)
	sb.WriteString("TASK: Score the message from 0 to 100, then generate a Group Draft and a Private DM.\n")
	fmt.Fprintf(&sb, "MESSAGE: %q\n", body)
	sb.WriteString("RETURN JSON ONLY:\n")
	sb.WriteString(`{"score": number, "intent": "string", "reasoning": "string", "shouldReply": boolean, "groupDraft": "string", "dmDraft": "string"}`)
	return sb.String()
}

func buildProfilePrompt(persona, name, history string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CORE PERSONA: %s\n", persona)
	sb.WriteString("TASK: Create identity profile.\n")
	fmt.Fprintf(&sb, "NAME: %s\n", name)
	fmt.Fprintf(&sb, "CONTEXT: %s\n", history)
	sb.WriteString("RETURN JSON ONLY:\n")
	sb.WriteString(`{"role": "string", "industry": "string", "summary": "string", "score": number}`)
	return sb.String()
}
