// Package layout groups raw text runs into lines and lines into paragraphs.
package layout

import (
	"math"
	"sort"
	"strings"

	"pdf-translator/internal/element"
	"pdf-translator/internal/types"
)

// SortReadingOrder orders elements by page, then baseline (or box bottom for
// non-text) from top to bottom, then left to right. The sort is stable.
// Images and lines keep their content stream order among themselves.
func SortReadingOrder(elems []element.Element) {
	sort.SliceStable(elems, func(i, j int) bool {
		a, b := elems[i], elems[j]
		if a.Page() != b.Page() {
			return a.Page() < b.Page()
		}
		ya, yb := anchorY(a), anchorY(b)
		if ya != yb {
			return ya > yb
		}
		return anchorX(a) < anchorX(b)
	})
	element.RestoreContentOrder(elems)
}

func anchorY(e element.Element) float64 {
	if e.Text != nil {
		return e.Text.Start.Y
	}
	return e.BBox.Bottom()
}

func anchorX(e element.Element) float64 {
	if e.Text != nil {
		return e.Text.Start.X
	}
	return e.BBox.Left()
}

// Stitch joins text runs that were split by the producer back into lines.
// Non-text elements pass through unchanged. The result is in reading order
// and stitching it again changes nothing.
func Stitch(elems []element.Element, th types.StitchThresholds) []element.Element {
	var out, texts []element.Element
	for _, e := range elems {
		if e.Text != nil {
			texts = append(texts, e)
		} else {
			out = append(out, e)
		}
	}
	if len(texts) == 0 {
		return elems
	}
	SortReadingOrder(texts)

	var line []element.Element
	flush := func() {
		if len(line) > 0 {
			out = append(out, mergeLine(line))
			line = nil
		}
	}
	for _, cur := range texts {
		if len(line) > 0 && !canStitch(line[len(line)-1], cur, th) {
			flush()
		}
		line = append(line, cur)
	}
	flush()

	SortReadingOrder(out)
	return out
}

// canStitch reports whether cur continues the line whose last run is prev.
// Stitched lines are compared through their boundary source runs, so a line
// produced by an earlier pass is judged exactly like the runs it came from.
func canStitch(prev, cur element.Element, th types.StitchThresholds) bool {
	if prev.Page() != cur.Page() {
		return false
	}
	ps, cs := prev.Segments(), cur.Segments()
	p, c := ps[len(ps)-1], cs[0]
	if p.FontName != c.FontName {
		return false
	}
	if math.Abs(p.Size-c.Size) > th.FontSizeTolerance {
		return false
	}
	if !p.Fill.Similar(c.Fill, th.ColorTolerance) {
		return false
	}
	if math.Abs(p.HScale-c.HScale) > th.HScaleTolerance {
		return false
	}

	maxSize := math.Max(p.Size, c.Size)
	if math.Abs(p.Start.Y-c.Start.Y) > maxSize*th.BaselineFactor {
		return false
	}

	avg := avgCharWidth(p, c, th)
	gap := c.BBox.Left() - p.BBox.Right()
	if gap > avg*th.GapFactor {
		return false
	}
	if gap < -(th.OverlapTolerance + avg*0.5) {
		return false
	}

	// A run starting well left of its predecessor belongs to another line,
	// unless the predecessor is a lone character such as a drop cap or bullet.
	if c.BBox.Left() < p.BBox.Left()-avg && p.Runes > 1 {
		return false
	}
	return true
}

// avgCharWidth estimates the advance of one character of prev.
func avgCharWidth(prev, cur element.Segment, th types.StitchThresholds) float64 {
	if prev.Size > th.MinAccurateSize && prev.BBox.W > 0 && prev.Runes > 0 {
		return prev.BBox.W / float64(prev.Runes)
	}
	return math.Min(prev.Size, cur.Size) * th.CharWidthFactor
}

// mergeLine combines the runs of one line. Style comes from the first run.
// The line is a formula only when every run is one.
func mergeLine(runs []element.Element) element.Element {
	if len(runs) == 1 {
		return runs[0]
	}
	first := runs[0]
	last := runs[len(runs)-1]

	var sb strings.Builder
	var segs []element.Segment
	box := first.BBox
	needs := false
	kind := element.KindFormula
	for _, r := range runs {
		sb.WriteString(r.Text.Text)
		box = box.Union(r.BBox)
		needs = needs || r.NeedsTranslation
		segs = append(segs, r.Segments()...)
		if r.Kind != element.KindFormula && kind == element.KindFormula {
			kind = r.Kind
		}
	}

	run := *first.Text
	run.Text = sb.String()
	run.End = last.Text.End
	run.Translated = ""
	run.Segments = segs

	e := element.NewText(first.Page(), kind, box, &run)
	e.NeedsTranslation = needs
	e.Seq = first.Seq
	return e
}
