// Package summarize produces short summaries of long documents via a
// chat-completion provider. The prompt deliberately carries no product
// or project names: small models parrot quoted examples back into
// their output, so every quoted phrase is a short meta-instruction.
package summarize

import (
	"context"
	"strings"
	"unicode"
)

// SystemPrompt instructs the model when no collection context is given.
const SystemPrompt = `You are a summarization engine. Write one concise paragraph capturing the key facts of the text you are given. Output only the summary itself. Never open with phrases like "Here is a summary" or "This document describes".`

// contextSystemPrompt is used when collection context travels in the
// user message, which then carries the boundary instructions itself.
const contextSystemPrompt = `You are a helpful assistant that summarizes documents. Follow the instructions in the user message.`

// maxInputChars caps how much document text is sent to the provider.
const maxInputChars = 8000

// Summarizer produces a summary of content. collectionContext is
// optional surrounding context (other summaries from the same
// collection) that helps the model pick the right register.
type Summarizer interface {
	Summarize(ctx context.Context, content, collectionContext string) (string, error)
}

// BuildPrompt assembles the user message. Without context it is the
// content alone. With context it fences the document off from the
// collection so the model does not summarize the neighbors.
func BuildPrompt(content, collectionContext string) string {
	if collectionContext == "" {
		return content
	}
	var b strings.Builder
	b.WriteString("The following document is part of a collection about:\n")
	b.WriteString(collectionContext)
	b.WriteString("\n\nSummarize only the document itself, not the collection.\n\n")
	b.WriteString(content)
	return b.String()
}

// systemFor picks the system prompt matching BuildPrompt's shape.
func systemFor(collectionContext string) string {
	if collectionContext == "" {
		return SystemPrompt
	}
	return contextSystemPrompt
}

// preambles are throat-clearing openers that models emit despite
// instructions. Matched case-insensitively as prefixes.
var preambles = []string{
	"here is a summary:",
	"here's a summary:",
	"here is the summary:",
	"here is a concise summary:",
	"summary:",
	"this document describes",
	"this document is about",
	"this text describes",
	"the document describes",
	"the text describes",
}

// StripPreamble removes a leading preamble phrase, if present.
func StripPreamble(summary string) string {
	trimmed := strings.TrimSpace(summary)
	lower := strings.ToLower(trimmed)
	for _, p := range preambles {
		if strings.HasPrefix(lower, p) {
			rest := strings.TrimLeftFunc(trimmed[len(p):], func(r rune) bool {
				return unicode.IsSpace(r) || r == ':'
			})
			if rest != "" {
				return rest
			}
		}
	}
	return trimmed
}

// clip bounds the content sent to a provider.
func clip(content string) string {
	if len(content) <= maxInputChars {
		return content
	}
	cut := maxInputChars
	for cut > 0 && content[cut]&0xC0 == 0x80 {
		cut--
	}
	return content[:cut]
}
