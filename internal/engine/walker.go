package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	lpdf "github.com/ledongthuc/pdf"

	"pdf-translator/internal/element"
	"pdf-translator/internal/logger"
)

// tjSpaceThreshold is the TJ adjustment (thousandths of an em) treated as an
// inter-word space rather than kerning.
const tjSpaceThreshold = 200

// ImageResolver returns stream data for a named image XObject of a page.
type ImageResolver interface {
	ImageStream(page int, name string) (*ImageStream, error)
}

// LedongthucWalker interprets page content streams with ledongthuc/pdf.
type LedongthucWalker struct {
	file     *os.File
	reader   *lpdf.Reader
	resolver ImageResolver
}

// OpenWalker opens the PDF at path. The resolver, when non-nil, serves the
// encoded-bytes and object-copy image paths.
func OpenWalker(path string, resolver ImageResolver) (*LedongthucWalker, error) {
	f, r, err := lpdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &LedongthucWalker{file: f, reader: r, resolver: resolver}, nil
}

// NumPages returns the page count seen by the content reader.
func (w *LedongthucWalker) NumPages() int {
	return w.reader.NumPage()
}

// Close releases the underlying file.
func (w *LedongthucWalker) Close() error {
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

// gstate is the subset of the PDF graphics state the walker tracks.
type gstate struct {
	ctm       element.Matrix
	tc        float64
	tw        float64
	th        float64 // percent
	tl        float64
	trise     float64
	font      *sourceFont
	enc       lpdf.TextEncoding
	fontSize  float64
	fill      element.Color
	stroke    element.Color
	lineWidth float64
}

type pageWalk struct {
	page     int
	pg       lpdf.Page
	l        Listener
	resolver ImageResolver
	fonts    map[string]*sourceFont

	g      gstate
	stack  []gstate
	tm     element.Matrix
	tlm    element.Matrix
	path   []Subpath
	cur    int // index of the open subpath, -1 when none
	errors int
}

// Walk interprets page (1-based) and reports each primitive to l. Failures on
// a single operator are logged and skipped; a broken content stream stops the
// page with an error.
func (w *LedongthucWalker) Walk(ctx context.Context, page int, l Listener) (err error) {
	if page < 1 || page > w.reader.NumPage() {
		return fmt.Errorf("page %d out of range (1-%d)", page, w.reader.NumPage())
	}
	pg := w.reader.Page(page)
	if pg.V.IsNull() {
		return fmt.Errorf("page %d not found", page)
	}

	pw := &pageWalk{
		page:     page,
		pg:       pg,
		l:        l,
		resolver: w.resolver,
		fonts:    make(map[string]*sourceFont),
		g: gstate{
			ctm:       element.Identity,
			th:        100,
			fill:      element.Black,
			stroke:    element.Black,
			lineWidth: 1,
		},
		tm:  element.Identity,
		tlm: element.Identity,
		cur: -1,
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("content stream of page %d: %v", page, r)
		}
	}()

	contents := pg.V.Key("Contents")
	switch contents.Kind() {
	case lpdf.Array:
		for i := 0; i < contents.Len(); i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			pw.interpret(contents.Index(i))
		}
	case lpdf.Null:
		return nil
	default:
		pw.interpret(contents)
	}

	if pw.errors > 0 {
		logger.Warn("skipped malformed operators",
			logger.Int("page", page),
			logger.Int("count", pw.errors))
	}
	return ctx.Err()
}

func (pw *pageWalk) interpret(strm lpdf.Value) {
	lpdf.Interpret(strm, func(stk *lpdf.Stack, op string) {
		n := stk.Len()
		args := make([]lpdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		pw.apply(op, args)
	})
}

// apply runs one operator in isolation so a bad operand only loses that operator.
func (pw *pageWalk) apply(op string, args []lpdf.Value) {
	defer func() {
		if r := recover(); r != nil {
			pw.errors++
			logger.Debug("operator failed",
				logger.Int("page", pw.page),
				logger.String("op", op),
				logger.Any("panic", r))
		}
	}()

	g := &pw.g
	switch op {
	case "q":
		pw.stack = append(pw.stack, *g)
	case "Q":
		if len(pw.stack) > 0 {
			*g = pw.stack[len(pw.stack)-1]
			pw.stack = pw.stack[:len(pw.stack)-1]
		}
	case "cm":
		need(op, args, 6)
		g.ctm = matrixFrom(args).Multiply(g.ctm)
	case "w":
		need(op, args, 1)
		g.lineWidth = args[0].Float64()

	// colour
	case "g":
		need(op, args, 1)
		g.fill = element.Gray(args[0].Float64())
	case "G":
		need(op, args, 1)
		g.stroke = element.Gray(args[0].Float64())
	case "rg":
		need(op, args, 3)
		g.fill = element.Color{R: args[0].Float64(), G: args[1].Float64(), B: args[2].Float64()}
	case "RG":
		need(op, args, 3)
		g.stroke = element.Color{R: args[0].Float64(), G: args[1].Float64(), B: args[2].Float64()}
	case "k":
		need(op, args, 4)
		g.fill = element.CMYK(args[0].Float64(), args[1].Float64(), args[2].Float64(), args[3].Float64())
	case "K":
		need(op, args, 4)
		g.stroke = element.CMYK(args[0].Float64(), args[1].Float64(), args[2].Float64(), args[3].Float64())
	case "sc", "scn":
		if c, ok := colorFrom(args); ok {
			g.fill = c
		}
	case "SC", "SCN":
		if c, ok := colorFrom(args); ok {
			g.stroke = c
		}

	// paths
	case "m":
		need(op, args, 2)
		pw.path = append(pw.path, Subpath{Points: []element.Point{pointFrom(args[0], args[1])}})
		pw.cur = len(pw.path) - 1
	case "l":
		need(op, args, 2)
		pw.lineTo(pointFrom(args[0], args[1]), false)
	case "c":
		need(op, args, 6)
		pw.lineTo(pointFrom(args[4], args[5]), true)
	case "v", "y":
		need(op, args, 4)
		pw.lineTo(pointFrom(args[2], args[3]), true)
	case "re":
		need(op, args, 4)
		x, y, w, h := args[0].Float64(), args[1].Float64(), args[2].Float64(), args[3].Float64()
		pw.path = append(pw.path, Subpath{
			Points: []element.Point{{X: x, Y: y}, {X: x + w, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h}},
			Closed: true,
		})
		pw.cur = -1
	case "h":
		if pw.cur >= 0 {
			pw.path[pw.cur].Closed = true
		}
	case "S", "s":
		if op == "s" && pw.cur >= 0 {
			pw.path[pw.cur].Closed = true
		}
		pw.emitStroke()
		pw.resetPath()
	case "f", "F", "f*", "B", "B*", "b", "b*", "n":
		pw.resetPath()

	// text
	case "BT":
		pw.tm = element.Identity
		pw.tlm = element.Identity
	case "ET":
	case "Tc":
		need(op, args, 1)
		g.tc = args[0].Float64()
	case "Tw":
		need(op, args, 1)
		g.tw = args[0].Float64()
	case "Tz":
		need(op, args, 1)
		g.th = args[0].Float64()
	case "TL":
		need(op, args, 1)
		g.tl = args[0].Float64()
	case "Ts":
		need(op, args, 1)
		g.trise = args[0].Float64()
	case "Tf":
		need(op, args, 2)
		g.font = pw.font(args[0].Name())
		g.enc = g.font.encoder()
		g.fontSize = args[1].Float64()
	case "Td":
		need(op, args, 2)
		pw.moveText(args[0].Float64(), args[1].Float64())
	case "TD":
		need(op, args, 2)
		g.tl = -args[1].Float64()
		pw.moveText(args[0].Float64(), args[1].Float64())
	case "Tm":
		need(op, args, 6)
		pw.tm = matrixFrom(args)
		pw.tlm = pw.tm
	case "T*":
		pw.moveText(0, -g.tl)
	case "Tj":
		need(op, args, 1)
		pw.showText([]lpdf.Value{args[0]})
	case "'":
		need(op, args, 1)
		pw.moveText(0, -g.tl)
		pw.showText([]lpdf.Value{args[0]})
	case "\"":
		need(op, args, 3)
		g.tw = args[0].Float64()
		g.tc = args[1].Float64()
		pw.moveText(0, -g.tl)
		pw.showText([]lpdf.Value{args[2]})
	case "TJ":
		need(op, args, 1)
		arr := args[0]
		items := make([]lpdf.Value, 0, arr.Len())
		for i := 0; i < arr.Len(); i++ {
			items = append(items, arr.Index(i))
		}
		pw.showText(items)

	case "Do":
		need(op, args, 1)
		pw.doXObject(args[0].Name())
	}
}

func (pw *pageWalk) lineTo(p element.Point, curved bool) {
	if pw.cur < 0 {
		pw.path = append(pw.path, Subpath{Points: []element.Point{p}})
		pw.cur = len(pw.path) - 1
		return
	}
	sp := &pw.path[pw.cur]
	sp.Points = append(sp.Points, p)
	sp.Curved = sp.Curved || curved
}

func (pw *pageWalk) resetPath() {
	pw.path = nil
	pw.cur = -1
}

func (pw *pageWalk) emitStroke() {
	if len(pw.path) == 0 {
		return
	}
	ctm := pw.g.ctm
	subpaths := make([]Subpath, 0, len(pw.path))
	for _, sp := range pw.path {
		pts := make([]element.Point, len(sp.Points))
		for i, p := range sp.Points {
			pts[i] = ctm.Apply(p)
		}
		subpaths = append(subpaths, Subpath{Points: pts, Curved: sp.Curved, Closed: sp.Closed})
	}
	pw.l.OnStroke(StrokeEvent{
		Subpaths: subpaths,
		Width:    pw.g.lineWidth * ctm.VerticalScale(),
		Stroke:   pw.g.stroke,
	})
}

func (pw *pageWalk) moveText(tx, ty float64) {
	pw.tlm = element.Translate(tx, ty).Multiply(pw.tlm)
	pw.tm = pw.tlm
}

// showText emits one TextEvent for a Tj string or a whole TJ array. Large
// negative TJ adjustments become spaces so words of one array stay apart.
func (pw *pageWalk) showText(items []lpdf.Value) {
	g := &pw.g
	if g.font == nil {
		g.font = &sourceFont{}
		g.enc = nil
	}
	trm := pw.tm.Multiply(g.ctm)
	start := trm.Apply(element.Point{X: 0, Y: g.trise})

	var sb strings.Builder
	adv := 0.0
	hs := g.th / 100
	for _, it := range items {
		if it.Kind() == lpdf.String {
			raw := it.RawString()
			sb.WriteString(g.font.decode(g.enc, raw))
			for _, code := range g.font.codes(raw) {
				w0 := g.font.glyphWidth(code)
				tx := (w0/1000*g.fontSize + g.tc) * hs
				// Word spacing applies to the single-byte code 32 only.
				if code == ' ' && !g.font.composite {
					tx += g.tw * hs
				}
				adv += tx
			}
			continue
		}
		n := it.Float64()
		adv += -n / 1000 * g.fontSize * hs
		if n <= -tjSpaceThreshold && sb.Len() > 0 && !strings.HasSuffix(sb.String(), " ") {
			sb.WriteByte(' ')
		}
	}

	end := trm.Apply(element.Point{X: adv, Y: g.trise})
	pw.tm = element.Translate(adv, 0).Multiply(pw.tm)

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return
	}
	scale := trm.VerticalScale()
	size := g.fontSize * scale
	asc, desc := g.font.metrics()
	base := element.Point{X: 0, Y: g.trise}
	pw.l.OnText(TextEvent{
		Text:        text,
		Start:       start,
		End:         end,
		Ascent:      trm.Apply(element.Point{X: base.X, Y: base.Y + asc*g.fontSize}).Y,
		Descent:     trm.Apply(element.Point{X: base.X, Y: base.Y + desc*g.fontSize}).Y,
		FontName:    g.font.name,
		Font:        g.font,
		Size:        size,
		Fill:        g.fill,
		CharSpacing: g.tc * scale,
		WordSpacing: g.tw * scale,
		HScale:      g.th,
	})
}

func (pw *pageWalk) font(name string) *sourceFont {
	if f, ok := pw.fonts[name]; ok {
		return f
	}
	f := newSourceFont(pw.pg.Font(name))
	pw.fonts[name] = f
	return f
}

func (pw *pageWalk) doXObject(name string) {
	xobj := pw.pg.Resources().Key("XObject").Key(name)
	if xobj.IsNull() {
		logger.Debug("missing XObject", logger.Int("page", pw.page), logger.String("name", name))
		return
	}
	if xobj.Key("Subtype").Name() != "Image" {
		// Form XObjects are not expanded.
		return
	}
	m := pw.g.ctm
	pw.l.OnImage(ImageEvent{
		Handle: &xobjectImage{
			page:     pw.page,
			name:     name,
			v:        xobj,
			resolver: pw.resolver,
		},
		Matrix: &m,
	})
}

func need(op string, args []lpdf.Value, n int) {
	if len(args) < n {
		panic(fmt.Sprintf("%s: want %d operands, got %d", op, n, len(args)))
	}
}

func matrixFrom(args []lpdf.Value) element.Matrix {
	return element.Matrix{
		A: args[0].Float64(), B: args[1].Float64(),
		C: args[2].Float64(), D: args[3].Float64(),
		E: args[4].Float64(), F: args[5].Float64(),
	}
}

func pointFrom(x, y lpdf.Value) element.Point {
	return element.Point{X: x.Float64(), Y: y.Float64()}
}

// colorFrom maps sc/scn operands by component count; pattern names are ignored.
func colorFrom(args []lpdf.Value) (element.Color, bool) {
	nums := make([]float64, 0, len(args))
	for _, a := range args {
		if a.Kind() == lpdf.Integer || a.Kind() == lpdf.Real {
			nums = append(nums, a.Float64())
		}
	}
	switch len(nums) {
	case 1:
		return element.Gray(nums[0]), true
	case 3:
		return element.Color{R: nums[0], G: nums[1], B: nums[2]}, true
	case 4:
		return element.CMYK(nums[0], nums[1], nums[2], nums[3]), true
	}
	return element.Color{}, false
}

// sourceFont wraps a font resource of the input document.
type sourceFont struct {
	name     string
	f        lpdf.Font
	ok       bool
	avgWidth float64
	ascent   float64
	descent  float64

	// Type0 fonts use two-byte codes taken as CIDs (Identity-H/V) with
	// widths from the descendant CIDFont.
	composite bool
	cidWidths map[int]float64
	dw        float64
}

// maxCIDRange bounds a single "first last width" entry of a /W array.
const maxCIDRange = 1 << 16

func newSourceFont(f lpdf.Font) *sourceFont {
	sf := &sourceFont{f: f, ok: !f.V.IsNull(), avgWidth: 500, ascent: 0.8, descent: -0.2}
	if !sf.ok {
		return sf
	}
	sf.name = stripSubsetPrefix(f.BaseFont())

	fd := f.V.Key("FontDescriptor")
	if f.V.Key("Subtype").Name() == "Type0" {
		desc := f.V.Key("DescendantFonts").Index(0)
		sf.composite = true
		sf.dw = 1000
		if dw := desc.Key("DW"); dw.Kind() == lpdf.Integer || dw.Kind() == lpdf.Real {
			sf.dw = dw.Float64()
		}
		sf.cidWidths = parseCIDWidths(desc.Key("W"))
		sf.avgWidth = sf.dw
		if len(sf.cidWidths) > 0 {
			total := 0.0
			for _, w := range sf.cidWidths {
				total += w
			}
			sf.avgWidth = total / float64(len(sf.cidWidths))
		}
		fd = desc.Key("FontDescriptor")
	} else {
		total, count := 0.0, 0
		for _, w := range f.Widths() {
			if w > 0 {
				total += w
				count++
			}
		}
		if count > 0 {
			sf.avgWidth = total / float64(count)
		}
	}

	if a := fd.Key("Ascent").Float64(); a > 0 {
		sf.ascent = a / 1000
	}
	if d := fd.Key("Descent").Float64(); d < 0 {
		sf.descent = d / 1000
	}
	return sf
}

// parseCIDWidths reads a CIDFont /W array, whose entries are either
// "c [w1 w2 ...]" or "cfirst clast w".
func parseCIDWidths(w lpdf.Value) map[int]float64 {
	out := make(map[int]float64)
	for i := 0; i+1 < w.Len(); {
		first := int(w.Index(i).Int64())
		next := w.Index(i + 1)
		if next.Kind() == lpdf.Array {
			for j := 0; j < next.Len(); j++ {
				out[first+j] = next.Index(j).Float64()
			}
			i += 2
			continue
		}
		if i+2 >= w.Len() {
			break
		}
		last := int(next.Int64())
		width := w.Index(i + 2).Float64()
		if last >= first && last-first < maxCIDRange {
			for c := first; c <= last; c++ {
				out[c] = width
			}
		}
		i += 3
	}
	return out
}

// stripSubsetPrefix removes the "ABCDEF+" tag of embedded subsets.
func stripSubsetPrefix(name string) string {
	if i := strings.IndexByte(name, '+'); i == 6 {
		return name[i+1:]
	}
	return name
}

func (sf *sourceFont) encoder() lpdf.TextEncoding {
	if !sf.ok {
		return nil
	}
	return sf.f.Encoder()
}

func (sf *sourceFont) decode(enc lpdf.TextEncoding, raw string) string {
	if enc == nil {
		return raw
	}
	return enc.Decode(raw)
}

// codes splits a shown string into character codes: bytes for simple fonts,
// big-endian byte pairs for composite ones.
func (sf *sourceFont) codes(raw string) []int {
	if !sf.composite {
		out := make([]int, len(raw))
		for i := 0; i < len(raw); i++ {
			out[i] = int(raw[i])
		}
		return out
	}
	out := make([]int, 0, (len(raw)+1)/2)
	for i := 0; i < len(raw); i += 2 {
		if i+1 == len(raw) {
			out = append(out, int(raw[i]))
			break
		}
		out = append(out, int(raw[i])<<8|int(raw[i+1]))
	}
	return out
}

func (sf *sourceFont) glyphWidth(code int) float64 {
	if !sf.ok {
		return sf.avgWidth
	}
	if sf.composite {
		if w, ok := sf.cidWidths[code]; ok {
			return w
		}
		return sf.dw
	}
	first := sf.f.FirstChar()
	if code < first || code > sf.f.LastChar() {
		return sf.avgWidth
	}
	if w := sf.f.Width(code); w > 0 {
		return w
	}
	return sf.avgWidth
}

func (sf *sourceFont) metrics() (ascent, descent float64) {
	return sf.ascent, sf.descent
}

// ContainsRune is optimistic: source fonts are subsets we cannot query reliably.
func (sf *sourceFont) ContainsRune(r rune) bool {
	return r >= 0x20
}

// MeasureWidth estimates width from the average glyph advance.
func (sf *sourceFont) MeasureWidth(text string, size float64) float64 {
	return float64(len([]rune(text))) * sf.avgWidth / 1000 * size
}

var _ element.FontHandle = (*sourceFont)(nil)
