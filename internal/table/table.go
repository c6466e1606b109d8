// Package table reconstructs ruled table grids from stroked lines and tags
// the text runs that fall inside their cells.
package table

import (
	"math"
	"sort"

	"pdf-translator/internal/element"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// Cell is one grid cell. Rows count from the top, columns from the left.
type Cell struct {
	Rect element.Rect `json:"rect"`
	Row  int          `json:"row"`
	Col  int          `json:"col"`
}

// Grid is a table detected on one page.
type Grid struct {
	Page  int       `json:"page"`
	Xs    []float64 `json:"xs"` // column boundaries, ascending
	Ys    []float64 `json:"ys"` // row boundaries, ascending
	Cells []Cell    `json:"cells"`
}

// Rows returns the number of rows.
func (g *Grid) Rows() int { return len(g.Ys) - 1 }

// Cols returns the number of columns.
func (g *Grid) Cols() int { return len(g.Xs) - 1 }

// Cluster groups sorted coordinates whose distance to the running mean of the
// current cluster is within tol and returns the cluster means, ascending.
func Cluster(values []float64, tol float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var out []float64
	sum, n := sorted[0], 1
	for _, v := range sorted[1:] {
		mean := sum / float64(n)
		if math.Abs(v-mean) <= tol {
			sum += v
			n++
			continue
		}
		out = append(out, mean)
		sum, n = v, 1
	}
	return append(out, sum/float64(n))
}

// NewGrid builds a grid from the page's line elements. It returns a geometry
// error when fewer than two distinct coordinates exist on either axis.
func NewGrid(page int, elems []element.Element, th types.TableThresholds) (*Grid, error) {
	var hs, vs []float64
	for _, e := range elems {
		if e.Line == nil || e.Page() != page {
			continue
		}
		l := e.Line
		switch {
		case l.IsHorizontal(axisTolerance):
			hs = append(hs, l.Start.Y, l.End.Y)
		case l.IsVertical(axisTolerance):
			vs = append(vs, l.Start.X, l.End.X)
		}
	}

	ys := Cluster(hs, th.ClusterTolerance)
	xs := Cluster(vs, th.ClusterTolerance)
	if len(ys) < 2 || len(xs) < 2 {
		return nil, types.NewPDFErrorWithPage(types.ErrGeometry, "not enough ruling lines for a grid", page, nil)
	}

	g := &Grid{Page: page, Xs: xs, Ys: ys}
	rows := len(ys) - 1
	for r := rows - 1; r >= 0; r-- {
		for c := 0; c < len(xs)-1; c++ {
			g.Cells = append(g.Cells, Cell{
				Rect: element.Rect{X: xs[c], Y: ys[r], W: xs[c+1] - xs[c], H: ys[r+1] - ys[r]},
				Row:  rows - 1 - r,
				Col:  c,
			})
		}
	}
	return g, nil
}

// axisTolerance separates horizontal from vertical rules; extraction has
// already discarded slanted lines.
const axisTolerance = 1.5

// Locate returns the first cell whose padded interior strictly contains p.
func (g *Grid) Locate(p element.Point, padding float64) (Cell, bool) {
	for _, c := range g.Cells {
		if c.Rect.ContainsStrict(p, padding) {
			return c, true
		}
	}
	return Cell{}, false
}

// Assign retags text runs whose box centre lies in a cell as table cells and
// records the row and column. Formula runs are left alone. It returns the
// number of runs assigned.
func (g *Grid) Assign(elems []element.Element, padding float64) int {
	n := 0
	for i := range elems {
		e := &elems[i]
		if e.Text == nil || e.Kind == element.KindFormula || e.Page() != g.Page {
			continue
		}
		cell, ok := g.Locate(e.BBox.Center(), padding)
		if !ok {
			continue
		}
		e.Kind = element.KindTableCell
		e.Text.Row = cell.Row
		e.Text.Col = cell.Col
		n++
	}
	return n
}

// Detect builds the grid for page and assigns its text runs in place. Pages
// without a grid are left untouched and yield a nil grid.
func Detect(page int, elems []element.Element, th types.TableThresholds) *Grid {
	g, err := NewGrid(page, elems, th)
	if err != nil {
		logger.Debug("no table grid", logger.Int("page", page), logger.Err(err))
		return nil
	}
	n := g.Assign(elems, th.CellPadding)
	logger.Debug("table grid detected",
		logger.Int("page", page),
		logger.Int("rows", g.Rows()),
		logger.Int("cols", g.Cols()),
		logger.Int("cells", n))
	return g
}
