package extract

import (
	"context"
	"sort"

	"pdf-translator/internal/element"
	"pdf-translator/internal/engine"
	"pdf-translator/internal/layout"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/table"
	"pdf-translator/internal/types"
)

// PageResult is the analysed content of one page.
type PageResult struct {
	Page     int
	Elements []element.Element
	Grid     *table.Grid
	Dropped  int
}

// ExtractPage walks one page and runs stitching, paragraph building and table
// detection over its elements. The returned elements are ordered by
// descending top edge, then ascending left edge.
func ExtractPage(ctx context.Context, w engine.Walker, page int, th types.Thresholds) (*PageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.NewPDFErrorWithPage(types.ErrCancelled, "extraction cancelled", page, err)
	}

	x := NewExtractor(page, th.Extract)
	if err := w.Walk(ctx, page, x); err != nil {
		return nil, types.NewPDFErrorWithPage(types.ErrExtractFailed, "failed to walk page content", page, err)
	}
	raw := x.Elements()

	lines := layout.Stitch(raw, th.Stitch)
	paras := layout.BuildParagraphs(lines, layout.ColumnWidth(lines, th.Paragraph.DefaultPageWidth), th.Paragraph)
	grid := table.Detect(page, paras, th.Table)
	SortTopDown(paras)

	logger.Debug("page extracted",
		logger.Int("page", page),
		logger.Int("raw", len(raw)),
		logger.Int("lines", len(lines)),
		logger.Int("elements", len(paras)),
		logger.Int("dropped", x.Dropped()))

	return &PageResult{Page: page, Elements: paras, Grid: grid, Dropped: x.Dropped()}, nil
}

// SortTopDown orders elements by descending top edge, then ascending left
// edge. Images and lines keep their content stream order among themselves.
func SortTopDown(elems []element.Element) {
	sort.SliceStable(elems, func(i, j int) bool {
		a, b := elems[i].BBox, elems[j].BBox
		if a.Top() != b.Top() {
			return a.Top() > b.Top()
		}
		return a.Left() < b.Left()
	})
	element.RestoreContentOrder(elems)
}
