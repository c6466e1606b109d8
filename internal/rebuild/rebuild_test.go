package rebuild

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-translator/internal/element"
	"pdf-translator/internal/engine"
	"pdf-translator/internal/types"
)

// monoFont gives every rune half the font size and covers the runes accepted
// by covers.
type monoFont struct {
	covers func(r rune) bool
}

func (f monoFont) ContainsRune(r rune) bool { return f.covers(r) }

func (f monoFont) MeasureWidth(text string, size float64) float64 {
	return float64(utf8.RuneCountInString(text)) * size * 0.5
}

func latinOnly(r rune) bool { return r < 0x2E80 }
func cjkOnly(r rune) bool { return r >= 0x2E80 || r == ' ' }

func testFonts() FontSet {
	return FontSet{
		Latin: Font{Name: "latin", Handle: monoFont{covers: latinOnly}},
		CJK:   Font{Name: "cjk", Handle: monoFont{covers: cjkOnly}},
	}
}

type op struct {
	Name string
	Args []any
}

type fakeSurface struct {
	ops     []op
	panicOn string
}

func (s *fakeSurface) record(name string, args ...any) { s.ops = append(s.ops, op{name, args}) }

func (s *fakeSurface) SetFont(name string, size float64) error {
	s.record("SetFont", name, size)
	return nil
}
func (s *fakeSurface) SetFillColor(c element.Color) { s.record("SetFillColor", c) }
func (s *fakeSurface) SetCharSpacing(v float64) error { s.record("SetCharSpacing", v); return nil }
func (s *fakeSurface) SetWordSpacing(v float64) { s.record("SetWordSpacing", v) }
func (s *fakeSurface) SetHorizontalScaling(v float64) { s.record("SetHorizontalScaling", v) }
func (s *fakeSurface) ShowText(x, y float64, text string) error {
	if s.panicOn != "" && text == s.panicOn {
		panic("glyph table corrupted")
	}
	s.record("ShowText", x, y, text)
	return nil
}
func (s *fakeSurface) StrokeLine(from, to element.Point, width float64, c element.Color) error {
	s.record("StrokeLine", from, to, width, c)
	return nil
}
func (s *fakeSurface) DrawImage(img image.Image, m element.Matrix) error {
	s.record("DrawImage", m)
	return nil
}
func (s *fakeSurface) DrawImageBytes(data []byte, m element.Matrix) error {
	s.record("DrawImageBytes", m)
	return nil
}
func (s *fakeSurface) CopyImageObject(h element.ImageHandle, m element.Matrix) error {
	if _, err := h.Object(); err != nil {
		return err
	}
	s.record("CopyImageObject", m)
	return nil
}

func (s *fakeSurface) named(name string) []op {
	var out []op
	for _, o := range s.ops {
		if o.Name == name {
			out = append(out, o)
		}
	}
	return out
}

type fakeWriter struct {
	sizes     [][2]float64
	surfaces  []*fakeSurface
	panicOn   string
	committed bool
	closed    bool
}

func (w *fakeWriter) NewPage(width, height float64) (engine.Surface, error) {
	w.sizes = append(w.sizes, [2]float64{width, height})
	s := &fakeSurface{panicOn: w.panicOn}
	w.surfaces = append(w.surfaces, s)
	return s, nil
}

func (w *fakeWriter) Commit() error { w.committed = true; return nil }
func (w *fakeWriter) Close() error { w.closed = true; return nil }

type fakeSource struct {
	sizes map[int]engine.PageSize
}

func (s *fakeSource) NumPages() int { return len(s.sizes) }

func (s *fakeSource) PageSize(page int) (engine.PageSize, error) {
	size, ok := s.sizes[page]
	if !ok {
		return engine.PageSize{}, fmt.Errorf("page %d out of range", page)
	}
	return size, nil
}

type fakeImage struct {
	raw     image.Image
	decoded []byte
	object  []byte
}

func (f *fakeImage) Name() string { return "Im0" }

func (f *fakeImage) RawPixels() (image.Image, error) {
	if f.raw == nil {
		return nil, errors.New("unsupported filter")
	}
	return f.raw, nil
}

func (f *fakeImage) DecodedBytes() ([]byte, error) {
	if f.decoded == nil {
		return nil, errors.New("no decoded stream")
	}
	return f.decoded, nil
}

func (f *fakeImage) Object() ([]byte, error) {
	if f.object == nil {
		return nil, errors.New("no object")
	}
	return f.object, nil
}

func a4() *fakeSource {
	return &fakeSource{sizes: map[int]engine.PageSize{1: {Width: 595, Height: 842}}}
}

func newTestRebuilder(t *testing.T) *Rebuilder {
	t.Helper()
	r, err := NewRebuilder(testFonts(), types.DefaultThresholds().Layout)
	require.NoError(t, err)
	return r
}

func textEl(text string, box element.Rect, size float64) element.Element {
	run := &element.TextRun{
		Text:   text,
		Start:  element.Point{X: box.X, Y: box.Top() - 0.8*size},
		Size:   size,
		HScale: 100,
		Row:    -1,
		Col:    -1,
	}
	e := element.NewText(1, element.KindText, box, run)
	e.NeedsTranslation = true
	return e
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestFontSetSelect(t *testing.T) {
	fs := testFonts()
	assert.Equal(t, "latin", fs.Select("Hello").Name)
	assert.Equal(t, "cjk", fs.Select("你好").Name)
	assert.Equal(t, "latin", fs.Select("你 world").Name, "neither covers it all, Latin covers more")

	// The preferred Latin font misses a rune the CJK font has.
	fs.Latin.Handle = monoFont{covers: func(r rune) bool { return r != 'é' }}
	fs.CJK.Handle = monoFont{covers: func(r rune) bool { return true }}
	assert.Equal(t, "cjk", fs.Select("café").Name)

	// Neither covers everything: more coverage wins.
	fs.Latin.Handle = monoFont{covers: func(r rune) bool { return r == 'a' }}
	fs.CJK.Handle = monoFont{covers: func(r rune) bool { return r == 'b' }}
	assert.Equal(t, "latin", fs.Select("aab").Name)
	assert.Equal(t, "cjk", fs.Select("abb").Name)

	// Only one font configured.
	assert.Equal(t, "latin", FontSet{Latin: fs.Latin}.Select("你好").Name)
}

func TestNewRebuilderNeedsAFont(t *testing.T) {
	_, err := NewRebuilder(FontSet{}, types.DefaultThresholds().Layout)
	assert.True(t, types.HasCode(err, types.ErrRebuildFailed))
}

func TestFitTextKeepsFittingText(t *testing.T) {
	th := types.DefaultThresholds().Layout
	lay := FitText("one\ntwo", monoFont{covers: latinOnly}, 10, element.Rect{W: 100, H: 22}, th)
	assert.True(t, lay.Fits)
	assert.Equal(t, 10.0, lay.Size)
	assert.Equal(t, []string{"one", "two"}, lay.Lines)
}

func TestFitTextWrapsBeforeShrinking(t *testing.T) {
	th := types.DefaultThresholds().Layout
	text := "alpha beta gamma delta" // 110pt at size 10
	box := element.Rect{W: 55, H: 46}

	lay := FitText(text, monoFont{covers: latinOnly}, 10, box, th)
	assert.True(t, lay.Fits)
	assert.Equal(t, 10.0, lay.Size)
	assert.GreaterOrEqual(t, len(lay.Lines), 2)
	assert.Equal(t, []string{"alpha beta", "gamma delta"}, lay.Lines)
}

func TestFitTextShrinksWhenWrappingIsNotEnough(t *testing.T) {
	th := types.DefaultThresholds().Layout
	// One line of height only: the wrapped text must shrink until it fits on one line.
	lay := FitText("alpha beta", monoFont{covers: latinOnly}, 10, element.Rect{W: 40, H: 10}, th)
	assert.True(t, lay.Fits)
	assert.Equal(t, 8.0, lay.Size)
	assert.Equal(t, []string{"alpha beta"}, lay.Lines)
}

func TestFitTextFloorSize(t *testing.T) {
	th := types.DefaultThresholds().Layout
	lay := FitText("an extremely long sentence that cannot possibly fit", monoFont{covers: latinOnly}, 12, element.Rect{W: 10, H: 2}, th)
	assert.False(t, lay.Fits)
	assert.Equal(t, th.MinFontSize, lay.Size)
	assert.NotEmpty(t, lay.Lines)
}

func TestFitTextWrapsCJKByCharacter(t *testing.T) {
	th := types.DefaultThresholds().Layout
	lay := FitText("这是一个很长的句子", monoFont{covers: cjkOnly}, 10, element.Rect{W: 20, H: 100}, th)
	assert.True(t, lay.Fits)
	assert.Equal(t, []string{"这是一个", "很长的句", "子"}, lay.Lines)
}

func TestReflow(t *testing.T) {
	assert.Equal(t, "first line second line", reflow("first line\nsecond line"))
	assert.Equal(t, "第一行第二行", reflow("第一行\n第二行"))
	assert.Equal(t, "no breaks", reflow("no breaks"))
}

func TestRebuildEmptyPage(t *testing.T) {
	r := newTestRebuilder(t)
	w := &fakeWriter{}

	rep, err := r.Rebuild(context.Background(), a4(), []PageElements{{Page: 1}}, w)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pages)
	assert.Equal(t, [][2]float64{{595, 842}}, w.sizes)
	assert.Empty(t, w.surfaces[0].ops)
	assert.True(t, w.committed)
	assert.True(t, w.closed)
}

func TestRebuildRotatedPage(t *testing.T) {
	r := newTestRebuilder(t)
	w := &fakeWriter{}
	src := &fakeSource{sizes: map[int]engine.PageSize{1: {Width: 595, Height: 842, Rotation: 90}}}

	_, err := r.Rebuild(context.Background(), src, []PageElements{{Page: 1}}, w)
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{842, 595}}, w.sizes)
}

func TestRebuildUntranslatedTextUnchanged(t *testing.T) {
	r := newTestRebuilder(t)
	w := &fakeWriter{}
	e := textEl("Hello world", element.Rect{X: 72, Y: 700, W: 200, H: 12}, 10)
	e.NeedsTranslation = false
	e.Text.Translated = "Bonjour le monde"
	e.Text.CharSpacing = 0.3

	_, err := r.Rebuild(context.Background(), a4(), []PageElements{{Page: 1, Elements: []element.Element{e}}}, w)
	require.NoError(t, err)

	shows := w.surfaces[0].named("ShowText")
	require.Len(t, shows, 1)
	assert.Equal(t, "Hello world", shows[0].Args[2])
	assert.InDelta(t, 72, shows[0].Args[0].(float64), 1e-9)
	assert.InDelta(t, e.Text.Start.Y, shows[0].Args[1].(float64), 1e-9)
	assert.Equal(t, []any{0.3}, w.surfaces[0].named("SetCharSpacing")[0].Args)
}

func TestRebuildTranslatedTextWraps(t *testing.T) {
	r := newTestRebuilder(t)
	w := &fakeWriter{}
	e := textEl("original", element.Rect{X: 72, Y: 600, W: 55, H: 46}, 10)
	e.Text.Translated = "alpha beta\ngamma delta"

	rep, err := r.Rebuild(context.Background(), a4(), []PageElements{{Page: 1, Elements: []element.Element{e}}}, w)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Shrunk)

	surf := w.surfaces[0]
	assert.Equal(t, []any{"latin", 10.0}, surf.named("SetFont")[0].Args)
	shows := surf.named("ShowText")
	require.Len(t, shows, 2)
	assert.Equal(t, "alpha beta", shows[0].Args[2])
	assert.Equal(t, "gamma delta", shows[1].Args[2])
	assert.InDelta(t, 12, shows[0].Args[1].(float64)-shows[1].Args[1].(float64), 1e-9)
}

func TestRebuildDrawsAtFloorSize(t *testing.T) {
	r := newTestRebuilder(t)
	w := &fakeWriter{}
	e := textEl("x", element.Rect{X: 10, Y: 10, W: 5, H: 2}, 12)
	e.Text.Translated = "a translation far too long for its tiny box"

	rep, err := r.Rebuild(context.Background(), a4(), []PageElements{{Page: 1, Elements: []element.Element{e}}}, w)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Overflowed)
	assert.Equal(t, []any{"latin", 2.0}, w.surfaces[0].named("SetFont")[0].Args)
	assert.NotEmpty(t, w.surfaces[0].named("ShowText"))
}

func TestRebuildImageFallbackChain(t *testing.T) {
	m := element.Matrix{A: 50, D: 40, E: 100, F: 100}
	tests := []struct {
		name   string
		handle *fakeImage
		want   string
	}{
		{"raw pixels", &fakeImage{raw: image.NewGray(image.Rect(0, 0, 1, 1)), object: []byte("x")}, "DrawImage"},
		{"decoded bytes", &fakeImage{decoded: pngBytes(t), object: []byte("x")}, "DrawImage"},
		{"object copy", &fakeImage{decoded: []byte("not an image"), object: []byte("x")}, "CopyImageObject"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRebuilder(t)
			w := &fakeWriter{}
			e := element.NewImage(1, &element.ImageRun{Handle: tt.handle, Matrix: m})

			rep, err := r.Rebuild(context.Background(), a4(), []PageElements{{Page: 1, Elements: []element.Element{e}}}, w)
			require.NoError(t, err)
			assert.Equal(t, 1, rep.Drawn)
			require.Len(t, w.surfaces[0].ops, 1)
			assert.Equal(t, tt.want, w.surfaces[0].ops[0].Name)
			assert.Equal(t, []any{m}, w.surfaces[0].ops[0].Args)
		})
	}
}

func TestRebuildSkipsFailingElements(t *testing.T) {
	r := newTestRebuilder(t)
	w := &fakeWriter{panicOn: "boom"}
	broken := element.NewImage(1, &element.ImageRun{Handle: &fakeImage{}, Matrix: element.Matrix{A: 1, D: 1}})
	panicky := textEl("boom", element.Rect{X: 0, Y: 100, W: 100, H: 12}, 10)
	line := element.NewLine(1, &element.LineRun{Start: element.Point{X: 0, Y: 50}, End: element.Point{X: 100, Y: 50}})
	fine := textEl("fine", element.Rect{X: 0, Y: 10, W: 100, H: 12}, 10)

	rep, err := r.Rebuild(context.Background(), a4(), []PageElements{{Page: 1, Elements: []element.Element{broken, panicky, line, fine}}}, w)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Skipped)
	assert.Equal(t, 2, rep.Drawn)

	strokes := w.surfaces[0].named("StrokeLine")
	require.Len(t, strokes, 1)
	assert.Equal(t, 0.5, strokes[0].Args[2], "zero width falls back to the default stroke")
	assert.Equal(t, element.Black, strokes[0].Args[3])
	assert.Len(t, w.surfaces[0].named("ShowText"), 1)
}

func TestRebuildSkipsPageWithoutSize(t *testing.T) {
	r := newTestRebuilder(t)
	w := &fakeWriter{}
	pages := []PageElements{{Page: 1}, {Page: 7}}

	rep, err := r.Rebuild(context.Background(), a4(), pages, w)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pages)
	require.Len(t, rep.PageErrors, 1)
	assert.True(t, types.HasCode(rep.PageErrors[0], types.ErrRebuildFailed))
}

func TestRebuildAbortsWithoutSource(t *testing.T) {
	r := newTestRebuilder(t)
	w := &fakeWriter{}

	_, err := r.Rebuild(context.Background(), nil, []PageElements{{Page: 1}}, w)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrRebuildFailed))
	assert.False(t, w.committed)
	assert.True(t, w.closed)
}

func TestRebuildFailsWhenNoPageSurvives(t *testing.T) {
	r := newTestRebuilder(t)
	w := &fakeWriter{}

	_, err := r.Rebuild(context.Background(), a4(), []PageElements{{Page: 3}}, w)
	require.Error(t, err)
	assert.False(t, w.committed)
	assert.True(t, w.closed)
}
