// Package rebuild draws translated page elements into a new document.
package rebuild

import (
	"unicode"

	"pdf-translator/internal/element"
)

// Font is a bundled font: the name it is embedded under in the output and a
// handle for coverage and width queries.
type Font struct {
	Name   string
	Handle element.FontHandle
}

func (f Font) valid() bool {
	return f.Name != "" && f.Handle != nil
}

// covered counts the runes of text the font can render. Whitespace and
// control characters are not counted.
func (f Font) covered(text string) (covered, total int) {
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			continue
		}
		total++
		if f.valid() && f.Handle.ContainsRune(r) {
			covered++
		}
	}
	return covered, total
}

// FontSet holds the Latin and CJK fonts used for output text.
type FontSet struct {
	Latin Font
	CJK   Font
}

// IsCJK reports whether r lies in the CJK ranges that prefer the CJK font.
func IsCJK(r rune) bool {
	return (r >= 0x2E80 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF)
}

// ContainsCJK reports whether any rune of text is CJK.
func ContainsCJK(text string) bool {
	for _, r := range text {
		if IsCJK(r) {
			return true
		}
	}
	return false
}

// Select picks the font for text. CJK text prefers the CJK font, anything
// else the Latin font. When the preferred font misses a rune the other one is
// tried, and when neither covers the text the one covering more runes wins.
// Text is never dropped for font reasons.
func (fs FontSet) Select(text string) Font {
	preferred, other := fs.Latin, fs.CJK
	if ContainsCJK(text) {
		preferred, other = fs.CJK, fs.Latin
	}
	if !preferred.valid() {
		return other
	}
	if !other.valid() {
		return preferred
	}

	pc, total := preferred.covered(text)
	if pc == total {
		return preferred
	}
	oc, _ := other.covered(text)
	if oc == total || oc > pc {
		return other
	}
	return preferred
}
