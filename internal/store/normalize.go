package store

import (
	"regexp"
	"strings"
)

// fillerWords are common Mandarin speech-to-text hesitation artifacts.
// process_voice.py only does a bare strip() on content; this list and the
// whitespace collapsing below are new, added so ingested voice content
// satisfies the non-empty, meaningfully-searchable text invariant rather
// than carrying hesitation noise into the chunk store verbatim.
var fillerWords = []string{"嗯", "啊", "呃", "那个", "就是说"}

var whitespaceRun = regexp.MustCompile(`[ \t]+`)
var blankLineRun = regexp.MustCompile(`\n{3,}`)

// Normalize cleans raw transcribed text before it becomes a Record's
// Content: trims filler-word artifacts and collapses redundant
// whitespace, without touching meaningful punctuation or line breaks.
func Normalize(raw string) string {
	text := raw
	for _, f := range fillerWords {
		text = strings.ReplaceAll(text, f, "")
	}
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = blankLineRun.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
