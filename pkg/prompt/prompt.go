// Package prompt assembles retrieval context into a Llama-3 instruct prompt.
package prompt

import (
	"fmt"
	"strings"
)

// DefaultPersona is the system persona placed at the top of every prompt.
const DefaultPersona = `You are a helpful, knowledgeable assistant.
Answer questions directly in plain text. Do NOT write Python code unless the user explicitly asks for code.
Use the RETRIEVED KNOWLEDGE below to answer factual questions accurately.
If the knowledge contains the answer, use it. Be concise and direct.`

// emptyHistory mirrors memory.EmptyHistory; a history equal to it is omitted.
const emptyHistory = "No previous messages."

// Input is the context for one prompt.
type Input struct {
	UserInput string
	Concepts  []string
	Chunks    []string
	History   string

	// Persona replaces DefaultPersona when non-empty.
	Persona string
}

// Assemble builds a single system block from the persona and the non-empty
// context sections, followed by the user turn and an open assistant header.
// No begin-of-text token is emitted; llama.cpp servers add it themselves.
func Assemble(in Input) string {
	persona := in.Persona
	if persona == "" {
		persona = DefaultPersona
	}

	parts := []string{persona}

	if len(in.Chunks) > 0 {
		facts := make([]string, len(in.Chunks))
		for i, c := range in.Chunks {
			facts[i] = fmt.Sprintf("[FACT %d]: %s", i+1, c)
		}
		parts = append(parts, "RETRIEVED KNOWLEDGE:\n"+strings.Join(facts, "\n\n"))
	}
	if len(in.Concepts) > 0 {
		parts = append(parts, "RELATED TOPICS: "+strings.Join(in.Concepts, ", "))
	}
	if in.History != "" && in.History != emptyHistory {
		parts = append(parts, "CONVERSATION HISTORY:\n"+in.History)
	}

	var sb strings.Builder
	sb.WriteString("<|start_header_id|>system<|end_header_id|>\n\n")
	sb.WriteString(strings.Join(parts, "\n\n"))
	sb.WriteString("<|eot_id|>")
	sb.WriteString("<|start_header_id|>user<|end_header_id|>\n\n")
	sb.WriteString(in.UserInput)
	sb.WriteString("<|eot_id|>")
	sb.WriteString("<|start_header_id|>assistant<|end_header_id|>\n\n")
	return sb.String()
}

// EstimateTokens is a rough count at four bytes per token.
func EstimateTokens(text string) int {
	return len(text) / 4
}
