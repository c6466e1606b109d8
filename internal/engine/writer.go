package engine

import (
	"fmt"
	"image"
	"os"

	gopdf "github.com/VantageDataChat/GoPDF2"

	"pdf-translator/internal/element"
	"pdf-translator/internal/logger"
)

// FontFile names a TrueType font to embed in the output.
type FontFile struct {
	Name string
	Path string
}

// GoPDFWriter renders pages with GoPDF2. Output goes to a temporary file next
// to the destination and is renamed into place on Commit.
type GoPDFWriter struct {
	pdf       *gopdf.GoPdf
	outPath   string
	tmpPath   string
	committed bool
	closed    bool
	pages     int
}

// NewGoPDFWriter prepares a writer for outPath and embeds the given fonts.
func NewGoPDFWriter(outPath string, fonts []FontFile) (*GoPDFWriter, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4, Unit: gopdf.UnitPT})

	for _, f := range fonts {
		if f.Path == "" {
			continue
		}
		if err := pdf.AddTTFFont(f.Name, f.Path); err != nil {
			return nil, fmt.Errorf("load font %s from %s: %w", f.Name, f.Path, err)
		}
		logger.Debug("embedded font", logger.String("name", f.Name), logger.String("path", f.Path))
	}

	return &GoPDFWriter{
		pdf:     pdf,
		outPath: outPath,
		tmpPath: outPath + ".part",
	}, nil
}

// NewPage appends a page of the given size in points.
func (w *GoPDFWriter) NewPage(width, height float64) (Surface, error) {
	if w.closed {
		return nil, fmt.Errorf("writer closed")
	}
	w.pdf.AddPageWithOption(gopdf.PageOption{PageSize: &gopdf.Rect{W: width, H: height}})
	w.pages++
	return &gopdfSurface{pdf: w.pdf, height: height}, nil
}

// Commit writes the document and moves it to the destination path.
func (w *GoPDFWriter) Commit() error {
	if w.closed {
		return fmt.Errorf("writer closed")
	}
	if err := w.pdf.WritePdf(w.tmpPath); err != nil {
		return fmt.Errorf("write %s: %w", w.tmpPath, err)
	}
	if err := os.Rename(w.tmpPath, w.outPath); err != nil {
		return fmt.Errorf("rename to %s: %w", w.outPath, err)
	}
	w.committed = true
	logger.Info("output document written",
		logger.String("path", w.outPath),
		logger.Int("pages", w.pages))
	return nil
}

// Close removes any uncommitted temporary output. It is safe to call twice.
func (w *GoPDFWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.committed {
		return nil
	}
	if err := os.Remove(w.tmpPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// gopdfSurface maps PDF user space (origin bottom-left) onto GoPDF's
// top-left coordinates.
type gopdfSurface struct {
	pdf    *gopdf.GoPdf
	height float64
}

func (s *gopdfSurface) y(v float64) float64 { return s.height - v }

func (s *gopdfSurface) SetFont(name string, size float64) error {
	return s.pdf.SetFont(name, "", size)
}

func (s *gopdfSurface) SetFillColor(c element.Color) {
	r, g, b := c.RGB8()
	s.pdf.SetTextColor(r, g, b)
}

func (s *gopdfSurface) SetCharSpacing(v float64) error {
	return s.pdf.SetCharSpacing(v)
}

// SetWordSpacing is not supported by GoPDF; words keep the font's spacing.
func (s *gopdfSurface) SetWordSpacing(float64) {}

// SetHorizontalScaling is not supported by GoPDF; glyphs keep their width.
func (s *gopdfSurface) SetHorizontalScaling(float64) {}

// ShowText draws text with its baseline starting at (x, y).
func (s *gopdfSurface) ShowText(x, y float64, text string) error {
	s.pdf.SetXY(x, s.y(y))
	return s.pdf.Text(text)
}

func (s *gopdfSurface) StrokeLine(from, to element.Point, width float64, c element.Color) error {
	r, g, b := c.RGB8()
	s.pdf.SetLineWidth(width)
	s.pdf.SetStrokeColor(r, g, b)
	s.pdf.Line(from.X, s.y(from.Y), to.X, s.y(to.Y))
	return nil
}

func (s *gopdfSurface) DrawImage(img image.Image, m element.Matrix) error {
	box := m.UnitBounds()
	return s.pdf.ImageFrom(img, box.X, s.y(box.Top()), &gopdf.Rect{W: box.W, H: box.H})
}

func (s *gopdfSurface) DrawImageBytes(data []byte, m element.Matrix) error {
	holder, err := gopdf.ImageHolderByBytes(data)
	if err != nil {
		return err
	}
	box := m.UnitBounds()
	return s.pdf.ImageByHolder(holder, box.X, s.y(box.Top()), &gopdf.Rect{W: box.W, H: box.H})
}

// CopyImageObject embeds the stored object bytes unchanged.
func (s *gopdfSurface) CopyImageObject(h element.ImageHandle, m element.Matrix) error {
	data, err := h.Object()
	if err != nil {
		return err
	}
	return s.DrawImageBytes(data, m)
}

var (
	_ Writer  = (*GoPDFWriter)(nil)
	_ Surface = (*gopdfSurface)(nil)
)
