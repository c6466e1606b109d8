// Package element defines the page elements produced by extraction and consumed
// by layout analysis, translation and document rebuild.
//
// An Element is a tagged union: exactly one of Text, Image or Line is set, and
// Variant reports which one. Kind carries the layout classification, which for
// text may change during analysis (Text, Formula, TableCell) while the variant
// never does.
package element

import (
	"fmt"
	"image"
	"math"
	"sort"
	"strings"
)

// LineBreak separates the original lines of a paragraph.
const LineBreak = "\n"

// Kind is the layout classification of an element.
type Kind int

const (
	KindText Kind = iota
	KindFormula
	KindTableCell
	KindImage
	KindLine
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindFormula:
		return "formula"
	case KindTableCell:
		return "table_cell"
	case KindImage:
		return "image"
	case KindLine:
		return "line"
	default:
		return "unknown"
	}
}

// IsTextual reports whether elements of this kind carry a TextRun.
func (k Kind) IsTextual() bool {
	return k == KindText || k == KindFormula || k == KindTableCell
}

// Variant identifies which payload an Element carries.
type Variant int

const (
	VariantNone Variant = iota
	VariantText
	VariantImage
	VariantLine
)

// FontHandle is the capability a font must expose to layout and rebuild.
type FontHandle interface {
	ContainsRune(r rune) bool
	MeasureWidth(text string, size float64) float64
}

// ImageHandle is an engine-owned reference to a source image object. Each
// accessor is one independent way of getting the picture back out.
type ImageHandle interface {
	Name() string
	// RawPixels decodes the raw image stream into pixels.
	RawPixels() (image.Image, error)
	// DecodedBytes returns an encoded image file (JPEG, PNG) for the object.
	DecodedBytes() ([]byte, error)
	// Object returns the stream bytes as stored in the source document.
	Object() ([]byte, error)
}

// TextRun is a piece of text drawn with one style.
type TextRun struct {
	Text        string     `json:"text"`
	Start       Point      `json:"start"` // baseline start
	End         Point      `json:"end"`   // baseline end
	FontName    string     `json:"font_name"`
	Font        FontHandle `json:"-"`
	Size        float64    `json:"size"`
	Fill        Color      `json:"fill"`
	CharSpacing float64    `json:"char_spacing"`
	WordSpacing float64    `json:"word_spacing"`
	HScale      float64    `json:"hscale"` // percent, 100 = normal
	Translated  string     `json:"translated,omitempty"`
	Row         int        `json:"row"`
	Col         int        `json:"col"`

	// Segments lists the source runs of a stitched line in reading order.
	// It is empty for a run taken directly from the page.
	Segments []Segment `json:"segments,omitempty"`
}

// Segment records the geometry and style of one source run inside a line.
type Segment struct {
	BBox     Rect    `json:"bbox"`
	Start    Point   `json:"start"`
	FontName string  `json:"font_name"`
	Size     float64 `json:"size"`
	Fill     Color   `json:"fill"`
	HScale   float64 `json:"hscale"`
	Runes    int     `json:"runes"`
}

// Segments returns the source runs making up a text element: its recorded
// segments, or the element itself when it was never stitched.
func (e Element) Segments() []Segment {
	if e.Text == nil {
		return nil
	}
	if len(e.Text.Segments) > 0 {
		return e.Text.Segments
	}
	t := e.Text
	return []Segment{{
		BBox:     e.BBox,
		Start:    t.Start,
		FontName: t.FontName,
		Size:     t.Size,
		Fill:     t.Fill,
		HScale:   t.HScale,
		Runes:    t.RuneCount(),
	}}
}

// RuneCount returns the number of code points in the run text.
func (t *TextRun) RuneCount() int {
	return len([]rune(t.Text))
}

// ImageRun places an image object with its transformation matrix.
type ImageRun struct {
	Handle ImageHandle `json:"-"`
	Matrix Matrix      `json:"matrix"`
}

// LineRun is a single stroked segment.
type LineRun struct {
	Start  Point   `json:"start"`
	End    Point   `json:"end"`
	Width  float64 `json:"width"`
	Stroke Color   `json:"stroke"`
}

// Length returns the Euclidean length of the segment.
func (l *LineRun) Length() float64 {
	return math.Hypot(l.End.X-l.Start.X, l.End.Y-l.Start.Y)
}

// IsHorizontal reports whether the endpoints differ by less than tol in Y.
func (l *LineRun) IsHorizontal(tol float64) bool {
	return math.Abs(l.End.Y-l.Start.Y) < tol
}

// IsVertical reports whether the endpoints differ by less than tol in X.
func (l *LineRun) IsVertical(tol float64) bool {
	return math.Abs(l.End.X-l.Start.X) < tol
}

// Element is one positioned item on a page.
type Element struct {
	page             int
	Kind             Kind
	BBox             Rect
	NeedsTranslation bool
	// Seq is the position of the primitive in the page content stream.
	Seq int

	Text  *TextRun
	Image *ImageRun
	Line  *LineRun
}

// NewText creates a text element. The kind must be textual.
func NewText(page int, kind Kind, bbox Rect, run *TextRun) Element {
	if !kind.IsTextual() {
		kind = KindText
	}
	return Element{
		page: page,
		Kind: kind,
		BBox: NewRect(bbox.X, bbox.Y, bbox.W, bbox.H),
		Text: run,
	}
}

// NewImage creates an image element whose box is derived from the matrix.
func NewImage(page int, run *ImageRun) Element {
	return Element{
		page:  page,
		Kind:  KindImage,
		BBox:  run.Matrix.UnitBounds(),
		Image: run,
	}
}

// NewLine creates a line element whose box spans the segment endpoints.
func NewLine(page int, run *LineRun) Element {
	return Element{
		page: page,
		Kind: KindLine,
		BBox: RectFromPoints(run.Start, run.End),
		Line: run,
	}
}

// Page returns the 1-based page the element belongs to.
func (e Element) Page() int { return e.page }

// Variant reports which payload the element carries.
func (e Element) Variant() Variant {
	switch {
	case e.Text != nil:
		return VariantText
	case e.Image != nil:
		return VariantImage
	case e.Line != nil:
		return VariantLine
	default:
		return VariantNone
	}
}

// RestoreContentOrder keeps the slots that a positional sort gave to images
// and lines but refills them in content stream order, so whatever painted
// later still lands on top. Text elements are not moved.
func RestoreContentOrder(elems []Element) {
	var slots []int
	var graphics []Element
	for i, e := range elems {
		if e.Text == nil {
			slots = append(slots, i)
			graphics = append(graphics, e)
		}
	}
	sort.SliceStable(graphics, func(i, j int) bool {
		a, b := graphics[i], graphics[j]
		if a.Page() != b.Page() {
			return a.Page() < b.Page()
		}
		return a.Seq < b.Seq
	})
	for k, i := range slots {
		elems[i] = graphics[k]
	}
}

// DisplayText returns the text to draw: the translation when the element
// asked for one and received it, the original otherwise.
func (e Element) DisplayText() string {
	if e.Text == nil {
		return ""
	}
	if e.NeedsTranslation && e.Text.Translated != "" {
		return e.Text.Translated
	}
	return e.Text.Text
}

// IsTranslatable reports whether the element should be sent for translation.
func (e Element) IsTranslatable() bool {
	if e.Text == nil || !e.NeedsTranslation {
		return false
	}
	if e.Kind != KindText && e.Kind != KindTableCell {
		return false
	}
	return strings.TrimSpace(e.Text.Text) != ""
}

func (e Element) String() string {
	switch e.Variant() {
	case VariantText:
		return fmt.Sprintf("%s(p%d %q @%.1f,%.1f)", e.Kind, e.page, e.Text.Text, e.BBox.X, e.BBox.Y)
	case VariantImage:
		return fmt.Sprintf("image(p%d %.1fx%.1f @%.1f,%.1f)", e.page, e.BBox.W, e.BBox.H, e.BBox.X, e.BBox.Y)
	case VariantLine:
		return fmt.Sprintf("line(p%d %.1f,%.1f-%.1f,%.1f)", e.page, e.Line.Start.X, e.Line.Start.Y, e.Line.End.X, e.Line.End.Y)
	}
	return fmt.Sprintf("element(p%d)", e.page)
}
