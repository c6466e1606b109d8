package pdf

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-translator/internal/element"
	"pdf-translator/internal/engine"
	"pdf-translator/internal/rebuild"
	"pdf-translator/internal/translate"
	"pdf-translator/internal/types"
)

type pageWalker struct {
	pages map[int][]engine.TextEvent
	fail  map[int]error
}

func (w *pageWalker) NumPages() int { return len(w.pages) }

func (w *pageWalker) Walk(_ context.Context, page int, l engine.Listener) error {
	if err := w.fail[page]; err != nil {
		return err
	}
	for _, ev := range w.pages[page] {
		l.OnText(ev)
	}
	return nil
}

type a4Source struct{ n int }

func (s a4Source) NumPages() int { return s.n }
func (s a4Source) PageSize(page int) (engine.PageSize, error) {
	return engine.PageSize{Width: 595, Height: 842}, nil
}

type wideFont struct{}

func (wideFont) ContainsRune(rune) bool { return true }
func (wideFont) MeasureWidth(text string, size float64) float64 {
	return float64(utf8.RuneCountInString(text)) * size * 0.5
}

type textSurface struct {
	shown []string
}

func (s *textSurface) SetFont(string, float64) error { return nil }
func (s *textSurface) SetFillColor(element.Color) {}
func (s *textSurface) SetCharSpacing(float64) error { return nil }
func (s *textSurface) SetWordSpacing(float64) {}
func (s *textSurface) SetHorizontalScaling(float64) {}
func (s *textSurface) DrawImage(image.Image, element.Matrix) error { return nil }
func (s *textSurface) DrawImageBytes([]byte, element.Matrix) error { return nil }
func (s *textSurface) CopyImageObject(element.ImageHandle, element.Matrix) error {
	return nil
}
func (s *textSurface) StrokeLine(element.Point, element.Point, float64, element.Color) error {
	return nil
}
func (s *textSurface) ShowText(_, _ float64, text string) error {
	s.shown = append(s.shown, text)
	return nil
}

type memWriter struct {
	pages     []*textSurface
	committed bool
	closed    bool
}

func (w *memWriter) NewPage(float64, float64) (engine.Surface, error) {
	s := &textSurface{}
	w.pages = append(w.pages, s)
	return s, nil
}
func (w *memWriter) Commit() error { w.committed = true; return nil }
func (w *memWriter) Close() error { w.closed = true; return nil }

type dictBackend struct {
	mu    sync.Mutex
	dict  map[string]string
	err   error
	calls int
}

func (b *dictBackend) Translate(_ context.Context, text, _, _ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return "", b.err
	}
	if out, ok := b.dict[text]; ok {
		return out, nil
	}
	return text, nil
}

func line(text string, x, y float64) engine.TextEvent {
	const size = 10
	return engine.TextEvent{
		Text:     text,
		Start:    element.Point{X: x, Y: y},
		End:      element.Point{X: x + float64(len(text))*size*0.5, Y: y},
		Ascent:   y + size*0.8,
		Descent:  y - size*0.2,
		FontName: "Helvetica",
		Font:     wideFont{},
		Size:     size,
		HScale:   100,
	}
}

type harness struct {
	walker  *pageWalker
	writer  *memWriter
	backend *dictBackend
	opened  bool
	wrote   bool

	mu       sync.Mutex
	statuses []PDFStatus
}

func newHarness() *harness {
	return &harness{
		walker: &pageWalker{pages: map[int][]engine.TextEvent{
			1: {line("Hello world", 72, 700)},
			2: {line("Goodbye", 72, 700)},
		}},
		writer: &memWriter{},
		backend: &dictBackend{dict: map[string]string{
			"Hello world": "Hallo Welt",
			"Goodbye":     "Tschüss",
		}},
	}
}

func (h *harness) translator(t *testing.T) *PDFTranslator {
	t.Helper()
	orch := translate.NewOrchestrator(h.backend, translate.NewThrottle(2, 0), nil,
		translate.Options{Source: "en", Target: "de"})
	p, err := NewPDFTranslator(PDFTranslatorConfig{
		Thresholds:   types.DefaultThresholds(),
		Fonts:        rebuild.FontSet{Latin: rebuild.Font{Name: LatinFontName, Handle: wideFont{}}},
		Orchestrator: orch,
		Open: func(path string) (*Document, error) {
			h.opened = true
			return &Document{
				Info:   &PDFInfo{FilePath: path, FileName: filepath.Base(path), PageCount: len(h.walker.pages)},
				Walker: h.walker,
				Source: a4Source{n: len(h.walker.pages)},
			}, nil
		},
		NewWriter: func(string) (engine.Writer, error) {
			h.wrote = true
			return h.writer, nil
		},
		OnStatus: func(st PDFStatus) {
			h.mu.Lock()
			h.statuses = append(h.statuses, st)
			h.mu.Unlock()
		},
	})
	require.NoError(t, err)
	return p
}

func (h *harness) phases() []PDFPhase {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []PDFPhase
	for _, st := range h.statuses {
		if len(out) == 0 || out[len(out)-1] != st.Phase {
			out = append(out, st.Phase)
		}
	}
	return out
}

func TestTranslatePDF(t *testing.T) {
	h := newHarness()
	p := h.translator(t)

	res, err := p.TranslatePDF(context.Background(), "in.pdf", "out.pdf")
	require.NoError(t, err)
	assert.True(t, h.opened)

	_, perr := uuid.Parse(res.JobID)
	assert.NoError(t, perr)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 2, res.Elements)
	assert.Equal(t, 2, res.Units)
	assert.Equal(t, 2, res.Translated)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 2, res.Drawn)
	assert.Empty(t, res.PageErrors)

	require.Len(t, h.writer.pages, 2)
	assert.Equal(t, []string{"Hallo Welt"}, h.writer.pages[0].shown)
	assert.Equal(t, []string{"Tschüss"}, h.writer.pages[1].shown)
	assert.True(t, h.writer.committed)
	assert.True(t, h.writer.closed)

	st := p.GetStatus()
	assert.Equal(t, PDFPhaseComplete, st.Phase)
	assert.Equal(t, 100, st.Progress)
	assert.Equal(t, res.JobID, st.JobID)
	assert.Equal(t, 2, st.CompletedUnits)
	assert.True(t, st.IsValidStatus())

	assert.Equal(t, []PDFPhase{
		PDFPhaseLoading, PDFPhaseExtracting, PDFPhaseTranslating, PDFPhaseGenerating, PDFPhaseComplete,
	}, h.phases())
}

func TestTranslatePDFPermanentErrorStopsBeforeWriting(t *testing.T) {
	h := newHarness()
	h.backend.err = translate.NewPermanent(translate.CodeAuth, "invalid api key", nil)
	p := h.translator(t)

	res, err := p.TranslatePDF(context.Background(), "in.pdf", "out.pdf")
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrTranslateFailed))
	require.NotNil(t, res)
	assert.Equal(t, 2, res.Units)
	assert.Equal(t, 0, res.Translated)
	assert.False(t, h.wrote, "no output may be created after a permanent error")

	st := p.GetStatus()
	assert.Equal(t, PDFPhaseError, st.Phase)
	assert.Contains(t, st.Error, string(types.ErrTranslateFailed))

	// Extraction results survive the aborted translation.
	pages := p.Pages()
	require.Len(t, pages, 2)
	assert.Equal(t, "Hello world", pages[0].Elements[0].Text.Text)
}

func TestTranslatePDFTransientFailureKeepsOriginal(t *testing.T) {
	h := newHarness()
	h.backend.err = translate.NewTransient(translate.CodeServer, "bad gateway", nil)
	orch := translate.NewOrchestrator(h.backend, translate.NewThrottle(2, 0), nil, translate.Options{
		Retry: translate.RetryPolicy{
			MaxAttempts:  2,
			InitialDelay: 1,
			MaxDelay:     1,
			Sleep:        func(context.Context, time.Duration) error { return nil },
		},
	})
	p := h.translator(t)
	p.cfg.Orchestrator = orch

	res, err := p.TranslatePDF(context.Background(), "in.pdf", "out.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 4, h.backend.calls)
	assert.Equal(t, []string{"Hello world"}, h.writer.pages[0].shown)
	assert.Equal(t, []string{"Goodbye"}, h.writer.pages[1].shown)
}

func TestTranslatePDFUnreadablePageIsKeptEmpty(t *testing.T) {
	h := newHarness()
	h.walker.fail = map[int]error{2: errors.New("bad content stream")}
	p := h.translator(t)

	res, err := p.TranslatePDF(context.Background(), "in.pdf", "out.pdf")
	require.NoError(t, err)
	require.Len(t, res.PageErrors, 1)
	assert.Contains(t, res.PageErrors[0], "page 2")
	require.Len(t, h.writer.pages, 2)
	assert.Empty(t, h.writer.pages[1].shown)
}

func TestTranslatePDFCancelled(t *testing.T) {
	h := newHarness()
	p := h.translator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.TranslatePDF(ctx, "in.pdf", "out.pdf")
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCancelled))
	assert.False(t, h.wrote)
	assert.Equal(t, PDFPhaseError, p.GetStatus().Phase)
}

func TestTranslatePDFOpenFailure(t *testing.T) {
	h := newHarness()
	p := h.translator(t)
	p.cfg.Open = OpenDocument

	res, err := p.TranslatePDF(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), "out.pdf")
	assert.Nil(t, res)
	assert.True(t, types.HasCode(err, types.ErrPDFNotFound))
	assert.Equal(t, PDFPhaseError, p.GetStatus().Phase)
}

func TestNewPDFTranslatorRequiresCollaborators(t *testing.T) {
	_, err := NewPDFTranslator(PDFTranslatorConfig{})
	assert.Error(t, err)

	orch := translate.NewOrchestrator(&dictBackend{}, nil, nil, translate.Options{})
	_, err = NewPDFTranslator(PDFTranslatorConfig{Orchestrator: orch})
	assert.True(t, types.HasCode(err, types.ErrRebuildFailed))
}

func TestOpenDocumentRejectsDirectory(t *testing.T) {
	_, err := OpenDocument(t.TempDir())
	assert.True(t, types.HasCode(err, types.ErrPDFInvalid))
}

func TestOpenDocumentRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0o644))
	_, err := OpenDocument(path)
	assert.True(t, types.HasCode(err, types.ErrPDFInvalid))
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		workDir string
		want    string
	}{
		{"next to original", filepath.Join("docs", "paper.pdf"), "", filepath.Join("docs", "paper_translated.pdf")},
		{"work dir", filepath.Join("docs", "paper.pdf"), "out", filepath.Join("out", "paper_translated.pdf")},
		{"no extension", "paper", "", "paper_translated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OutputPath(tt.in, tt.workDir))
		})
	}
}

func TestLoadFonts(t *testing.T) {
	_, _, err := LoadFonts("", "")
	assert.True(t, types.HasCode(err, types.ErrRebuildFailed))

	_, _, err = LoadFonts(filepath.Join(t.TempDir(), "missing.ttf"), "")
	assert.True(t, types.HasCode(err, types.ErrRebuildFailed))
}

func TestIsValidStatus(t *testing.T) {
	tests := []struct {
		name string
		st   PDFStatus
		want bool
	}{
		{"idle", PDFStatus{Phase: PDFPhaseIdle}, true},
		{"midway", PDFStatus{Phase: PDFPhaseTranslating, Progress: 50, TotalUnits: 4, CompletedUnits: 2}, true},
		{"unknown phase", PDFStatus{Phase: "paused"}, false},
		{"progress overflow", PDFStatus{Phase: PDFPhaseComplete, Progress: 101}, false},
		{"too many completed", PDFStatus{Phase: PDFPhaseTranslating, TotalUnits: 1, CompletedUnits: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.st.IsValidStatus())
		})
	}
}
