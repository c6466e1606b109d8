package element

import "math"

// Point is a position in PDF user space (origin bottom-left, Y up).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned box anchored at its bottom-left corner.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// NewRect builds a rectangle, folding negative extents back into the origin
// so that width and height are never negative.
func NewRect(x, y, w, h float64) Rect {
	if w < 0 {
		x += w
		w = -w
	}
	if h < 0 {
		y += h
		h = -h
	}
	return Rect{X: x, Y: y, W: w, H: h}
}

// RectFromPoints returns the smallest rectangle containing both points.
func RectFromPoints(a, b Point) Rect {
	return Rect{
		X: math.Min(a.X, b.X),
		Y: math.Min(a.Y, b.Y),
		W: math.Abs(a.X - b.X),
		H: math.Abs(a.Y - b.Y),
	}
}

func (r Rect) Left() float64 { return r.X }
func (r Rect) Right() float64 { return r.X + r.W }
func (r Rect) Bottom() float64 { return r.Y }
func (r Rect) Top() float64 { return r.Y + r.H }

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Union returns the smallest rectangle covering r and o.
func (r Rect) Union(o Rect) Rect {
	left := math.Min(r.Left(), o.Left())
	bottom := math.Min(r.Bottom(), o.Bottom())
	right := math.Max(r.Right(), o.Right())
	top := math.Max(r.Top(), o.Top())
	return Rect{X: left, Y: bottom, W: right - left, H: top - bottom}
}

// ContainsStrict reports whether p lies inside r shrunk by pad on every side.
func (r Rect) ContainsStrict(p Point, pad float64) bool {
	return p.X > r.Left()+pad && p.X < r.Right()-pad &&
		p.Y > r.Bottom()+pad && p.Y < r.Top()-pad
}

// Matrix is a PDF affine transform [a b c d e f].
type Matrix struct {
	A, B, C, D, E, F float64
}

// Identity is the identity transform.
var Identity = Matrix{A: 1, D: 1}

// Translate returns a pure translation matrix.
func Translate(tx, ty float64) Matrix {
	return Matrix{A: 1, D: 1, E: tx, F: ty}
}

// Multiply returns m × n, i.e. m applied first, then n.
func (m Matrix) Multiply(n Matrix) Matrix {
	return Matrix{
		A: m.A*n.A + m.B*n.C,
		B: m.A*n.B + m.B*n.D,
		C: m.C*n.A + m.D*n.C,
		D: m.C*n.B + m.D*n.D,
		E: m.E*n.A + m.F*n.C + n.E,
		F: m.E*n.B + m.F*n.D + n.F,
	}
}

// Apply transforms p by m.
func (m Matrix) Apply(p Point) Point {
	return Point{
		X: p.X*m.A + p.Y*m.C + m.E,
		Y: p.X*m.B + p.Y*m.D + m.F,
	}
}

// UnitBounds returns the bounding box of the unit square mapped through m.
// Image XObjects are painted into exactly this region.
func (m Matrix) UnitBounds() Rect {
	corners := [4]Point{
		m.Apply(Point{0, 0}),
		m.Apply(Point{1, 0}),
		m.Apply(Point{0, 1}),
		m.Apply(Point{1, 1}),
	}
	minX, minY := corners[0].X, corners[0].Y
	maxX, maxY := minX, minY
	for _, c := range corners[1:] {
		minX = math.Min(minX, c.X)
		minY = math.Min(minY, c.Y)
		maxX = math.Max(maxX, c.X)
		maxY = math.Max(maxY, c.Y)
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// VerticalScale is the length of the transformed unit Y vector.
func (m Matrix) VerticalScale() float64 {
	return math.Hypot(m.C, m.D)
}

// Color is an RGB colour with channels in [0,1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// Black is the default fill and stroke colour.
var Black = Color{}

// Gray converts a DeviceGray level.
func Gray(g float64) Color { return Color{R: g, G: g, B: g} }

// CMYK converts DeviceCMYK components with the naive complement formula.
func CMYK(c, m, y, k float64) Color {
	return Color{
		R: (1 - c) * (1 - k),
		G: (1 - m) * (1 - k),
		B: (1 - y) * (1 - k),
	}
}

// Similar reports whether every channel differs by at most tol.
func (c Color) Similar(o Color, tol float64) bool {
	return math.Abs(c.R-o.R) <= tol &&
		math.Abs(c.G-o.G) <= tol &&
		math.Abs(c.B-o.B) <= tol
}

// RGB8 returns the colour as 8-bit channels.
func (c Color) RGB8() (uint8, uint8, uint8) {
	return to8(c.R), to8(c.G), to8(c.B)
}

func to8(v float64) uint8 {
	v = math.Max(0, math.Min(1, v))
	return uint8(math.Round(v * 255))
}
