// Package chunk implements the smart-chunk splitter (spec component C5): a
// recursive character splitter with hierarchical separators and overlap,
// adapted from the example-pack's textsplitters cascade (markdown ->
// paragraph -> sentence -> fixed) but re-targeted to this domain's exact
// separator order and constants.
package chunk

import (
	"strings"
	"unicode/utf8"

	"github.com/dzheng/digitalmemory/internal/store"
)

// DefaultChunkSize and DefaultChunkOverlap match spec section 4.5.
const (
	DefaultChunkSize    = 600
	DefaultChunkOverlap = 100
)

// Splitter implements the recursive character splitter.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
}

// NewSplitter builds a Splitter with the spec's default size and overlap.
func NewSplitter() *Splitter {
	return &Splitter{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
}

// separator levels tried in order, per spec section 4.5: paragraph break,
// line break, Chinese sentence terminators, space, empty string (hard
// rune cut).
type level struct {
	literal   string // used when charClass == ""
	charClass string // terminator runes, tried as a class rather than a literal
}

var levels = []level{
	{literal: "\n\n"},
	{literal: "\n"},
	{charClass: "。！？；"},
	{literal: " "},
	{literal: ""},
}

// Split turns rec into one or more sub-chunks. A single window is
// returned unchanged with the record's own ID; multiple windows get
// {parent}_part_{k} IDs, k = 0..n-1. All other metadata is inherited
// verbatim, including a null date.
func (s *Splitter) Split(rec store.Record) []store.SubChunk {
	windows := s.splitText(rec.Content, levels)
	if len(windows) <= 1 {
		return []store.SubChunk{{
			ID:             rec.ID,
			Content:        rec.Content,
			Source:         rec.Source,
			Date:           rec.Date,
			Time:           rec.Time,
			ConversationID: rec.ConversationID,
			UserID:         rec.UserID,
		}}
	}

	out := make([]store.SubChunk, len(windows))
	for k, w := range windows {
		out[k] = store.SubChunk{
			ID:             store.SubChunkID(rec.ID, k),
			Content:        w,
			Source:         rec.Source,
			Date:           rec.Date,
			Time:           rec.Time,
			ConversationID: rec.ConversationID,
			UserID:         rec.UserID,
			OriginalID:     rec.ID,
			SplitIndex:     k,
			TotalSplits:    len(windows),
		}
	}
	return out
}

func (s *Splitter) splitText(text string, remaining []level) []string {
	if text == "" {
		return nil
	}
	if runeLen(text) <= s.ChunkSize {
		return []string{text}
	}
	if len(remaining) == 0 {
		return s.hardCut(text)
	}

	lv := remaining[0]
	rest := remaining[1:]

	pieces, joinSep := splitAtLevel(text, lv)

	var goodPieces []string
	var final []string

	flushGood := func() {
		if len(goodPieces) == 0 {
			return
		}
		final = append(final, s.mergePieces(goodPieces, joinSep)...)
		goodPieces = nil
	}

	for _, p := range pieces {
		if p == "" {
			continue
		}
		if runeLen(p) <= s.ChunkSize {
			goodPieces = append(goodPieces, p)
			continue
		}
		flushGood()
		final = append(final, s.splitText(p, rest)...)
	}
	flushGood()

	if len(final) == 0 {
		return s.hardCut(text)
	}
	return final
}

// splitAtLevel breaks text at one separator level. For literal
// separators the pieces are rejoined with the same separator during
// merge so no information is lost. For the terminator character class,
// the terminator stays attached to the end of its sentence, so merging
// rejoins with no extra separator. The empty-string level hard-cuts by
// rune.
func splitAtLevel(text string, lv level) (pieces []string, joinSep string) {
	if lv.charClass != "" {
		return splitByCharClass(text, lv.charClass), ""
	}
	if lv.literal == "" {
		return splitRunes(text), ""
	}
	return strings.Split(text, lv.literal), lv.literal
}

func splitByCharClass(text string, class string) []string {
	var out []string
	var cur strings.Builder
	for _, r := range text {
		cur.WriteRune(r)
		if strings.ContainsRune(class, r) {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func splitRunes(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

// mergePieces greedily accumulates pieces (already each <= ChunkSize) into
// windows up to ChunkSize, carrying a rune-safe overlap tail of up to
// ChunkOverlap runes from the end of each closed window into the next;
// the tail is shortened when needed so the new window stays within
// ChunkSize.
func (s *Splitter) mergePieces(pieces []string, joinSep string) []string {
	var chunks []string
	var cur strings.Builder

	flush := func() string {
		out := cur.String()
		cur.Reset()
		return out
	}

	for _, p := range pieces {
		candidate := p
		if cur.Len() > 0 {
			candidate = cur.String() + joinSep + p
		}
		if runeLen(candidate) <= s.ChunkSize || cur.Len() == 0 {
			cur.Reset()
			cur.WriteString(candidate)
			continue
		}

		closed := flush()
		chunks = append(chunks, closed)

		overlap := s.ChunkOverlap
		if room := s.ChunkSize - runeLen(joinSep) - runeLen(p); room < overlap {
			overlap = room
		}
		tail := overlapTail(closed, overlap)
		if tail != "" {
			cur.WriteString(tail)
			cur.WriteString(joinSep)
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, flush())
	}
	return chunks
}

// hardCut windows text by rune count with overlap when no separator
// applies (the final fallback level).
func (s *Splitter) hardCut(text string) []string {
	idxs := runeBoundaries(text)
	n := len(idxs) - 1
	if n <= 0 {
		return nil
	}
	step := s.ChunkSize - s.ChunkOverlap
	if step <= 0 {
		step = s.ChunkSize
	}

	var out []string
	for start := 0; start < n; start += step {
		end := start + s.ChunkSize
		if end > n {
			end = n
		}
		out = append(out, text[idxs[start]:idxs[end]])
		if end == n {
			break
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// runeBoundaries returns the byte offset of the start of every rune in s,
// plus a trailing sentinel at len(s), so that s[idxs[i]:idxs[j]] always
// slices on rune boundaries (critical for Chinese-text safety).
func runeBoundaries(s string) []int {
	idxs := make([]int, 0, len(s)+1)
	idxs = append(idxs, 0)
	for i := 0; i < len(s); {
		_, w := utf8.DecodeRuneInString(s[i:])
		i += w
		idxs = append(idxs, i)
	}
	return idxs
}

// overlapTail returns the last `want` runes of s, rune-boundary safe.
func overlapTail(s string, want int) string {
	if want <= 0 || s == "" {
		return ""
	}
	idxs := runeBoundaries(s)
	n := len(idxs) - 1
	if want >= n {
		return s
	}
	return s[idxs[n-want]:]
}
