package translate

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkLimit is the longest text, in characters, sent in one call.
const DefaultChunkLimit = 1000

// ChunkSeparator joins translated chunks. Line breaks that fell on a chunk
// boundary are not restored.
const ChunkSeparator = " "

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', '；', '\n':
		return true
	}
	return false
}

// SplitChunks splits text longer than limit characters into pieces of at
// most limit characters, cutting after sentence terminals and newlines. A
// sentence longer than limit is cut at the limit. Short text is returned as
// a single chunk.
func SplitChunks(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultChunkLimit
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var sentences []string
	start := 0
	for i, r := range text {
		if isSentenceEnd(r) {
			end := i + utf8.RuneLen(r)
			sentences = append(sentences, text[start:end])
			start = end
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curLen = 0
	}
	for _, s := range sentences {
		n := utf8.RuneCountInString(s)
		if curLen+n > limit {
			flush()
		}
		for n > limit {
			head, tail := splitRunes(s, limit)
			cur.WriteString(head)
			flush()
			s, n = tail, n-limit
		}
		cur.WriteString(s)
		curLen += n
	}
	flush()
	return chunks
}

func splitRunes(s string, n int) (string, string) {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}
	return s, ""
}

// JoinChunks reassembles translated chunks.
func JoinChunks(parts []string) string {
	return strings.Join(parts, ChunkSeparator)
}
