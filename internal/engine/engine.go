// Package engine adapts third-party PDF libraries to the narrow interfaces the
// translator needs: a content walker that reports drawing primitives, a source
// document that answers page geometry, and a writer that draws new pages.
package engine

import (
	"context"
	"image"

	"pdf-translator/internal/element"
)

// TextEvent describes one shown string with its resolved graphics state.
type TextEvent struct {
	Text        string
	Start       element.Point // baseline start in user space
	End         element.Point // baseline end in user space
	Ascent      float64       // ascent line Y
	Descent     float64       // descent line Y
	FontName    string
	Font        element.FontHandle
	Size        float64 // effective size in user space
	Fill        element.Color
	CharSpacing float64
	WordSpacing float64
	HScale      float64 // percent
}

// ImageEvent describes one painted image XObject.
type ImageEvent struct {
	Handle element.ImageHandle
	Matrix *element.Matrix
}

// Subpath is a sequence of connected points already mapped to user space.
type Subpath struct {
	Points []element.Point
	Curved bool
	Closed bool
}

// IsStraightSegment reports whether the subpath is a single straight line.
func (s Subpath) IsStraightSegment() bool {
	return len(s.Points) == 2 && !s.Curved && !s.Closed
}

// StrokeEvent describes a stroked path.
type StrokeEvent struct {
	Subpaths []Subpath
	Width    float64
	Stroke   element.Color
}

// Listener receives the primitives of a page in content order.
type Listener interface {
	OnText(ev TextEvent)
	OnImage(ev ImageEvent)
	OnStroke(ev StrokeEvent)
}

// Walker interprets the content of one page and reports its primitives.
type Walker interface {
	NumPages() int
	Walk(ctx context.Context, page int, l Listener) error
}

// PageSize is the media box size of a source page plus its rotation.
type PageSize struct {
	Width    float64
	Height   float64
	Rotation int
}

// Effective returns the displayed size, swapping axes for quarter turns.
func (s PageSize) Effective() (w, h float64) {
	r := ((s.Rotation % 360) + 360) % 360
	if r == 90 || r == 270 {
		return s.Height, s.Width
	}
	return s.Width, s.Height
}

// SourceDocument answers geometry questions about the input document.
type SourceDocument interface {
	NumPages() int
	PageSize(page int) (PageSize, error)
}

// Surface is the drawing API of one output page. Coordinates are PDF user
// space with the origin at the bottom-left.
type Surface interface {
	SetFont(name string, size float64) error
	SetFillColor(c element.Color)
	SetCharSpacing(v float64) error
	SetWordSpacing(v float64)
	SetHorizontalScaling(pct float64)
	ShowText(x, y float64, text string) error
	StrokeLine(from, to element.Point, width float64, c element.Color) error
	DrawImage(img image.Image, m element.Matrix) error
	DrawImageBytes(data []byte, m element.Matrix) error
	CopyImageObject(h element.ImageHandle, m element.Matrix) error
}

// Writer creates the output document page by page. Commit publishes the
// result; Close releases resources and discards anything not committed.
type Writer interface {
	NewPage(width, height float64) (Surface, error)
	Commit() error
	Close() error
}
