package layout

import (
	"math"
	"strings"

	"pdf-translator/internal/element"
	"pdf-translator/internal/types"
)

// ColumnWidth estimates the text column width of a page as the horizontal
// extent of its text, or fallback when there is none.
func ColumnWidth(elems []element.Element, fallback float64) float64 {
	minX, maxX := math.Inf(1), math.Inf(-1)
	for _, e := range elems {
		if e.Text == nil {
			continue
		}
		minX = math.Min(minX, e.BBox.Left())
		maxX = math.Max(maxX, e.BBox.Right())
	}
	if maxX <= minX {
		return fallback
	}
	return maxX - minX
}

// BuildParagraphs merges consecutive stitched lines into paragraphs. Text
// lines are visited in reading order; non-text elements pass through.
func BuildParagraphs(lines []element.Element, columnWidth float64, th types.ParagraphThresholds) []element.Element {
	if columnWidth <= 0 {
		columnWidth = th.DefaultPageWidth
	}

	var out, texts, group []element.Element
	for _, e := range lines {
		if e.Text == nil {
			out = append(out, e)
		} else {
			texts = append(texts, e)
		}
	}
	SortReadingOrder(texts)

	flush := func() {
		if len(group) > 0 {
			out = append(out, mergeParagraph(group))
			group = nil
		}
	}
	for _, e := range texts {
		if len(group) > 0 && !continuesParagraph(group[0], group[len(group)-1], e, columnWidth, th) {
			flush()
		}
		group = append(group, e)
	}
	flush()

	SortReadingOrder(out)
	return out
}

// continuesParagraph decides whether cur belongs to the paragraph that
// started with first and currently ends with prev.
func continuesParagraph(first, prev, cur element.Element, columnWidth float64, th types.ParagraphThresholds) bool {
	p, c := prev.Text, cur.Text
	if prev.Page() != cur.Page() {
		return false
	}
	if th.StrictFontName && p.FontName != c.FontName {
		return false
	}
	if maxSize := math.Max(p.Size, c.Size); maxSize > 0 {
		if math.Abs(p.Size-c.Size)/maxSize > th.SizeRelTolerance {
			return false
		}
	}

	lineHeight := prev.BBox.H
	if lineHeight <= 0 {
		lineHeight = p.Size * th.LineHeightFactor
	}
	if c.Start.Y >= p.Start.Y {
		return false
	}
	gap := prev.BBox.Bottom() - cur.BBox.Top()
	if gap < -lineHeight*th.MaxOverlapRatio {
		return false
	}
	if gap > lineHeight*th.SpacingFactor {
		return false
	}

	firstX := first.BBox.Left()
	prevX := prev.BBox.Left()
	curX := cur.BBox.Left()
	indentTol := math.Max(first.Text.Size, c.Size) * th.IndentFactor
	hangingTol := indentTol * th.HangingFactor

	alignedFirst := math.Abs(curX-firstX) < indentTol
	alignedPrev := math.Abs(curX-prevX) < indentTol

	// A previous line running to the right margin wraps into this one; only a
	// line pushed far right of both anchors breaks the paragraph then.
	if prev.BBox.Right() > firstX+columnWidth*th.MarginRatio {
		if curX > firstX+hangingTol && curX > prevX+hangingTol {
			return false
		}
		return true
	}

	// First line indented, body flush left.
	hanging := curX < firstX-indentTol && curX >= firstX-hangingTol
	return alignedFirst || alignedPrev || hanging
}

// mergeParagraph joins lines with LineBreak. Style comes from the first
// line. The paragraph is a formula only when every line is one.
func mergeParagraph(lines []element.Element) element.Element {
	if len(lines) == 1 {
		return lines[0]
	}
	first := lines[0]
	last := lines[len(lines)-1]

	parts := make([]string, 0, len(lines))
	box := first.BBox
	needs := false
	kind := element.KindFormula
	for _, l := range lines {
		parts = append(parts, strings.TrimSpace(l.Text.Text))
		box = box.Union(l.BBox)
		needs = needs || l.NeedsTranslation
		if l.Kind != element.KindFormula && kind == element.KindFormula {
			kind = l.Kind
		}
	}

	run := *first.Text
	run.Text = strings.Join(parts, element.LineBreak)
	run.End = last.Text.End
	run.Translated = ""
	run.Segments = nil

	e := element.NewText(first.Page(), kind, box, &run)
	e.NeedsTranslation = needs
	e.Seq = first.Seq
	return e
}
