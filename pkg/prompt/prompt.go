// Package prompt assembles the completion prompt and the sources block
// that is appended after every answer.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rhuss/askdocs/pkg/api"
)

// DefaultMaxSourcesLength caps the sources block, in bytes.
const DefaultMaxSourcesLength = 3000 * 3

// SourcesSeparator is written between the answer and the sources block.
const SourcesSeparator = "\n\nSource:\n\n"

// FormatSources renders the file chunks as a numbered list and truncates
// the result to maxLen bytes without splitting a UTF-8 sequence. A
// maxLen of zero or less disables truncation.
//
// Each chunk is rendered as below, with the filename written verbatim:
//
//	###
//	1. "filename"
//	text
func FormatSources(chunks []api.FileChunk, maxLen int) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("###\n%d. \"%s\"\n%s", i+1, c.Filename, c.Text)
	}
	return truncate(strings.Join(parts, "\n"), maxLen)
}

// Build returns the single-turn prompt for question over the given sources.
func Build(question, sources string) string {
	var b strings.Builder
	b.WriteString("Answer the question based on the content of the provided files below. ")
	b.WriteString("Do NOT miss any information from the provided files below. ")
	b.WriteString("Use line breaks to improve readability. Bold the key words.\n\n")
	b.WriteString("You will bold the relevant parts of the responses to improve readability.\n\n")
	fmt.Fprintf(&b, "##Question: %s##\n\n", question)
	fmt.Fprintf(&b, "Files:\n%s\n\n", sources)
	b.WriteString("Answer in Markdown:")
	return b.String()
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
