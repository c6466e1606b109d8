package rebuild

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"pdf-translator/internal/element"
	"pdf-translator/internal/types"
)

// TextLayout is text broken into lines at a chosen font size.
type TextLayout struct {
	Size  float64
	Lines []string
	Fits  bool
}

// FitText lays text out inside box. It keeps the original size when the
// text fits, wraps long lines next, and only then shrinks the size in steps
// down to the floor. When nothing fits the floor size layout is returned
// with Fits false.
func FitText(text string, f element.FontHandle, size float64, box element.Rect, th types.LayoutThresholds) TextLayout {
	if size <= 0 {
		size = th.MinFontSize
	}
	step := th.ShrinkStep
	if step <= 0 {
		step = 0.5
	}
	paras := strings.Split(text, element.LineBreak)

	for s := size; ; s = math.Max(s-step, th.MinFontSize) {
		lines := wrapParagraphs(paras, f, s, box.W)
		if fitsBox(lines, f, s, box, th.LineSpacing) {
			return TextLayout{Size: s, Lines: lines, Fits: true}
		}
		if s <= th.MinFontSize {
			return TextLayout{Size: s, Lines: lines}
		}
	}
}

// lineCapacity is the number of lines of size s that fit in height h. The
// first line always fits.
func lineCapacity(h, s, spacing float64) int {
	if s <= 0 || spacing <= 0 {
		return 1
	}
	n := int(math.Floor((h-s)/(s*spacing)+1e-9)) + 1
	if n < 1 {
		return 1
	}
	return n
}

func fitsBox(lines []string, f element.FontHandle, s float64, box element.Rect, spacing float64) bool {
	if len(lines) > lineCapacity(box.H, s, spacing) {
		return false
	}
	if box.W <= 0 {
		return true
	}
	for _, l := range lines {
		if f.MeasureWidth(l, s) > box.W+1e-6 {
			return false
		}
	}
	return true
}

func wrapParagraphs(paras []string, f element.FontHandle, s, width float64) []string {
	var out []string
	for _, p := range paras {
		out = append(out, wrapLine(p, f, s, width)...)
	}
	return out
}

// wrapLine breaks one line to width. Latin text breaks between words, CJK
// text between any two characters. A word wider than width stays whole on
// its own line.
func wrapLine(text string, f element.FontHandle, s, width float64) []string {
	text = strings.TrimSpace(text)
	if width <= 0 || f.MeasureWidth(text, s) <= width {
		return []string{text}
	}

	var lines []string
	var cur strings.Builder
	push := func() {
		if l := strings.TrimSpace(cur.String()); l != "" {
			lines = append(lines, l)
		}
		cur.Reset()
	}
	add := func(tok string) {
		if cur.Len() > 0 && f.MeasureWidth(cur.String()+tok, s) > width {
			push()
			tok = strings.TrimLeftFunc(tok, unicode.IsSpace)
		}
		cur.WriteString(tok)
	}

	for _, tok := range tokens(text) {
		add(tok)
	}
	push()
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

// tokens splits text into wrap units: each CJK rune alone, and every other
// word together with the spaces before it.
func tokens(text string) []string {
	var out []string
	var word strings.Builder
	inWord := false
	flush := func() {
		if word.Len() > 0 {
			out = append(out, word.String())
			word.Reset()
		}
		inWord = false
	}
	for len(text) > 0 {
		r, n := utf8.DecodeRuneInString(text)
		text = text[n:]
		switch {
		case IsCJK(r) || isCJKPunct(r):
			flush()
			out = append(out, string(r))
		case unicode.IsSpace(r):
			if inWord {
				flush()
			}
			word.WriteRune(r)
		default:
			inWord = true
			word.WriteRune(r)
		}
	}
	flush()
	return out
}

func isCJKPunct(r rune) bool {
	return (r >= 0x3000 && r <= 0x303F) || (r >= 0xFF00 && r <= 0xFFEF)
}

// reflow turns translated text into a single paragraph. Breaks between two
// CJK characters vanish, other breaks become a space.
func reflow(text string) string {
	if !strings.Contains(text, element.LineBreak) {
		return text
	}
	parts := strings.Split(text, element.LineBreak)
	var sb strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if sb.Len() > 0 {
			prev, _ := utf8.DecodeLastRuneInString(sb.String())
			next, _ := utf8.DecodeRuneInString(p)
			if !(IsCJK(prev) || isCJKPunct(prev)) || !(IsCJK(next) || isCJKPunct(next)) {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(p)
	}
	return sb.String()
}
