package rebuild

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"pdf-translator/internal/element"
	"pdf-translator/internal/engine"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// PageElements is the ordered content of one source page.
type PageElements struct {
	Page     int
	Elements []element.Element
}

// Report summarises a rebuild.
type Report struct {
	Pages       int     `json:"pages"`
	Drawn       int     `json:"drawn"`
	Skipped     int     `json:"skipped"`
	Shrunk      int     `json:"shrunk"`
	Overflowed  int     `json:"overflowed"`
	ImageCopies int     `json:"image_copies"`
	PageErrors  []error `json:"-"`
}

// Rebuilder draws translated elements into new pages.
type Rebuilder struct {
	fonts FontSet
	th    types.LayoutThresholds
}

// NewRebuilder creates a rebuilder. At least one font must be usable.
func NewRebuilder(fonts FontSet, th types.LayoutThresholds) (*Rebuilder, error) {
	if !fonts.Latin.valid() && !fonts.CJK.valid() {
		return nil, types.NewPDFError(types.ErrRebuildFailed, "no usable output font", nil)
	}
	return &Rebuilder{fonts: fonts, th: th}, nil
}

// Rebuild writes one output page per entry of pages, in order, and commits
// the writer when done. The writer is always closed, so a failed rebuild
// leaves no output behind. A page whose size cannot be read is skipped and
// reported; a nil source aborts the job.
func (r *Rebuilder) Rebuild(ctx context.Context, src engine.SourceDocument, pages []PageElements, w engine.Writer) (rep Report, err error) {
	defer func() {
		if cerr := w.Close(); cerr != nil {
			logger.Warn("failed to close output writer", logger.Err(cerr))
		}
	}()

	if src == nil {
		return rep, types.NewPDFError(types.ErrRebuildFailed, "source document is not available", nil)
	}

	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return rep, types.NewPDFError(types.ErrCancelled, "rebuild cancelled", err)
		}

		size, err := src.PageSize(p.Page)
		if err != nil {
			perr := types.NewPDFErrorWithPage(types.ErrRebuildFailed, "cannot read source page size", p.Page, err)
			logger.Error("page skipped", perr, logger.Int("page", p.Page))
			rep.PageErrors = append(rep.PageErrors, perr)
			continue
		}

		width, height := size.Effective()
		surf, err := w.NewPage(width, height)
		if err != nil {
			return rep, types.NewPDFErrorWithPage(types.ErrRebuildFailed, "failed to create output page", p.Page, err)
		}
		rep.Pages++

		for i := range p.Elements {
			if err := r.drawIsolated(surf, &p.Elements[i], &rep); err != nil {
				rep.Skipped++
				logger.Warn("element skipped", logger.Err(err))
				continue
			}
			rep.Drawn++
		}
		logger.Debug("page rebuilt",
			logger.Int("page", p.Page),
			logger.Float64("width", width),
			logger.Float64("height", height),
			logger.Int("elements", len(p.Elements)))
	}

	if rep.Pages == 0 {
		return rep, types.NewPDFError(types.ErrRebuildFailed, "no page could be rebuilt", nil)
	}
	if err := w.Commit(); err != nil {
		return rep, types.NewPDFError(types.ErrRebuildFailed, "failed to write output document", err)
	}
	return rep, nil
}

// drawIsolated draws one element and turns a panic into a draw error.
func (r *Rebuilder) drawIsolated(surf engine.Surface, e *element.Element, rep *Report) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = types.NewPDFErrorWithPage(types.ErrDrawFailed,
				fmt.Sprintf("panic drawing %s", e.Kind), e.Page(), fmt.Errorf("%v", rec))
		}
	}()

	switch e.Variant() {
	case element.VariantText:
		err = r.drawText(surf, e, rep)
	case element.VariantImage:
		err = r.drawImage(surf, e, rep)
	case element.VariantLine:
		err = r.drawLine(surf, e)
	default:
		err = fmt.Errorf("element without content")
	}
	if err != nil && !types.HasCode(err, types.ErrDrawFailed) {
		err = types.NewPDFErrorWithPage(types.ErrDrawFailed, fmt.Sprintf("failed to draw %s", e.Kind), e.Page(), err)
	}
	return err
}

func (r *Rebuilder) drawText(surf engine.Surface, e *element.Element, rep *Report) error {
	run := e.Text
	text := e.DisplayText()
	translated := text != run.Text
	if translated {
		text = reflow(text)
	}

	font := r.fonts.Select(text)
	lay := FitText(text, font.Handle, run.Size, e.BBox, r.th)
	if lay.Size < run.Size {
		rep.Shrunk++
	}
	if !lay.Fits {
		rep.Overflowed++
		logger.Debug("text overflows its box at the minimum size",
			logger.Int("page", e.Page()),
			logger.Float64("size", lay.Size))
	}

	if err := surf.SetFont(font.Name, lay.Size); err != nil {
		return err
	}
	surf.SetFillColor(run.Fill)
	if translated {
		if err := surf.SetCharSpacing(0); err != nil {
			return err
		}
		surf.SetWordSpacing(0)
		surf.SetHorizontalScaling(100)
	} else {
		if err := surf.SetCharSpacing(run.CharSpacing); err != nil {
			return err
		}
		surf.SetWordSpacing(run.WordSpacing)
		surf.SetHorizontalScaling(run.HScale)
	}

	x := e.BBox.Left()
	y := e.BBox.Top() - ascentRatio(e)*lay.Size
	for _, line := range lay.Lines {
		if line != "" {
			if err := surf.ShowText(x, y, line); err != nil {
				return err
			}
		}
		y -= lay.Size * r.th.LineSpacing
	}
	return nil
}

// ascentRatio is the share of the font size above the baseline of the first
// line, taken from the original geometry when it is plausible.
func ascentRatio(e *element.Element) float64 {
	const fallback = 0.8
	if e.Text.Size <= 0 {
		return fallback
	}
	a := (e.BBox.Top() - e.Text.Start.Y) / e.Text.Size
	if a < 0.5 || a > 1.2 {
		return fallback
	}
	return a
}

// drawImage tries the raw pixels, then the decoded bytes, then a copy of the
// stored object.
func (r *Rebuilder) drawImage(surf engine.Surface, e *element.Element, rep *Report) error {
	h, m := e.Image.Handle, e.Image.Matrix

	img, errRaw := h.RawPixels()
	if errRaw == nil {
		if errRaw = surf.DrawImage(img, m); errRaw == nil {
			return nil
		}
	}

	data, errDecoded := h.DecodedBytes()
	if errDecoded == nil {
		var decoded image.Image
		decoded, _, errDecoded = image.Decode(bytes.NewReader(data))
		if errDecoded == nil {
			if errDecoded = surf.DrawImage(decoded, m); errDecoded == nil {
				return nil
			}
		}
	}

	errCopy := surf.CopyImageObject(h, m)
	if errCopy == nil {
		rep.ImageCopies++
		return nil
	}
	return types.NewPDFErrorWithDetails(types.ErrDrawFailed,
		fmt.Sprintf("image %s could not be placed", h.Name()),
		fmt.Sprintf("raw: %v; decoded: %v", errRaw, errDecoded),
		errCopy)
}

func (r *Rebuilder) drawLine(surf engine.Surface, e *element.Element) error {
	l := e.Line
	width := l.Width
	if width <= 0 {
		width = r.th.DefaultStroke
	}
	return surf.StrokeLine(l.Start, l.End, width, l.Stroke)
}
