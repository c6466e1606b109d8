// Package extract turns the drawing primitives reported by a content walker
// into raw page elements and drives per-page layout analysis.
package extract

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"pdf-translator/internal/element"
	"pdf-translator/internal/engine"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// mathFontMarkers are font-name fragments of common math and symbol fonts.
var mathFontMarkers = []string{
	"math", "symbol", "mt extra", "euclid", "mathematical",
	"cambriamath", "cmsy", "cmex", "ams",
}

// mathRanges are the code point ranges that mark short text as a formula.
var mathRanges = [][2]rune{
	{0x2200, 0x22FF}, // mathematical operators
	{0x2190, 0x21FF}, // arrows
	{0x0370, 0x03FF}, // greek
	{0x2A00, 0x2AFF}, // supplemental operators
	{0x27C0, 0x27EF}, // misc math symbols A
}

// Extractor collects the elements of one page. It implements engine.Listener.
type Extractor struct {
	page     int
	th       types.ExtractThresholds
	elements []element.Element
	dropped  int
}

// NewExtractor creates an extractor for a 1-based page.
func NewExtractor(page int, th types.ExtractThresholds) *Extractor {
	return &Extractor{page: page, th: th}
}

// Elements returns the raw elements in content order.
func (x *Extractor) Elements() []element.Element {
	return x.elements
}

// add appends e, stamping its position in the content stream.
func (x *Extractor) add(e element.Element) {
	e.Seq = len(x.elements)
	x.elements = append(x.elements, e)
}

// Dropped returns how many primitives failed and were skipped.
func (x *Extractor) Dropped() int {
	return x.dropped
}

// guard turns a panic while handling one primitive into a logged extraction
// error so the rest of the page survives.
func (x *Extractor) guard(kind string) {
	if r := recover(); r != nil {
		x.dropped++
		err := types.NewPDFErrorWithPage(types.ErrExtractFailed,
			fmt.Sprintf("failed to extract %s", kind), x.page, fmt.Errorf("%v", r))
		logger.Warn("element dropped", logger.Err(err))
	}
}

// OnText records a text run. Whitespace-only text is ignored.
func (x *Extractor) OnText(ev engine.TextEvent) {
	defer x.guard("text")

	if strings.TrimSpace(ev.Text) == "" {
		return
	}
	text := norm.NFC.String(ev.Text)
	kind := ClassifyText(ev.FontName, text, x.th.MaxFormulaLength)

	hscale := ev.HScale
	if hscale == 0 {
		hscale = 100
	}
	run := &element.TextRun{
		Text:        text,
		Start:       ev.Start,
		End:         ev.End,
		FontName:    ev.FontName,
		Font:        ev.Font,
		Size:        ev.Size,
		Fill:        ev.Fill,
		CharSpacing: ev.CharSpacing,
		WordSpacing: ev.WordSpacing,
		HScale:      hscale,
		Row:         -1,
		Col:         -1,
	}

	e := element.NewText(x.page, kind, textBox(ev, text), run)
	e.NeedsTranslation = kind == element.KindText
	x.add(e)
}

// textBox spans the baseline from start to end and the descent to ascent
// lines. Degenerate extents fall back to size based estimates.
func textBox(ev engine.TextEvent, text string) element.Rect {
	left := ev.Start.X
	width := ev.End.X - ev.Start.X
	if width < 0 {
		left, width = ev.End.X, -width
	}
	if width == 0 {
		width = ev.Size * float64(len([]rune(text))) * 0.6
	}

	bottom := ev.Descent
	height := ev.Ascent - ev.Descent
	if height < 0 {
		bottom, height = ev.Ascent, -height
	}
	if height == 0 {
		height = ev.Size * 1.2
		bottom = ev.Start.Y - ev.Size*0.2
	}
	return element.NewRect(left, bottom, width, height)
}

// OnImage records a placed image. Images without a handle or matrix are
// dropped with a warning.
func (x *Extractor) OnImage(ev engine.ImageEvent) {
	defer x.guard("image")

	if ev.Handle == nil || ev.Matrix == nil {
		x.dropped++
		logger.Warn("image without object or matrix dropped", logger.Int("page", x.page))
		return
	}
	x.add(element.NewImage(x.page, &element.ImageRun{
		Handle: ev.Handle,
		Matrix: *ev.Matrix,
	}))
}

// OnStroke records every single-segment subpath that is long enough and
// axis-aligned.
func (x *Extractor) OnStroke(ev engine.StrokeEvent) {
	defer x.guard("line")

	for _, sp := range ev.Subpaths {
		if !sp.IsStraightSegment() {
			continue
		}
		run := &element.LineRun{
			Start:  sp.Points[0],
			End:    sp.Points[1],
			Width:  ev.Width,
			Stroke: ev.Stroke,
		}
		if run.Length() < x.th.MinLineLength {
			continue
		}
		if !run.IsHorizontal(x.th.LineAxisTolerance) && !run.IsVertical(x.th.LineAxisTolerance) {
			continue
		}
		x.add(element.NewLine(x.page, run))
	}
}

// ClassifyText returns KindFormula for runs set in a math font or short runs
// containing mathematical symbols, KindText otherwise.
func ClassifyText(fontName, text string, maxFormulaLen int) element.Kind {
	lower := strings.ToLower(fontName)
	for _, m := range mathFontMarkers {
		if strings.Contains(lower, m) {
			return element.KindFormula
		}
	}
	if maxFormulaLen <= 0 || len([]rune(text)) >= maxFormulaLen {
		return element.KindText
	}
	for _, r := range text {
		for _, rg := range mathRanges {
			if r >= rg[0] && r <= rg[1] {
				return element.KindFormula
			}
		}
	}
	return element.KindText
}

var _ engine.Listener = (*Extractor)(nil)
