package engine

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"pdf-translator/internal/element"
)

// SFNTFont answers coverage and width queries for a TrueType/OpenType file,
// the same file the writer embeds under Name.
type SFNTFont struct {
	Name string
	Path string

	f   *sfnt.Font
	mu  sync.Mutex
	buf sfnt.Buffer
}

// LoadSFNTFont parses the font at path.
func LoadSFNTFont(name, path string) (*SFNTFont, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font %s: %w", path, err)
	}
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	return &SFNTFont{Name: name, Path: path, f: f}, nil
}

// ContainsRune reports whether the font maps r to a real glyph.
func (s *SFNTFont) ContainsRune(r rune) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.f.GlyphIndex(&s.buf, r)
	return err == nil && idx != 0
}

// MeasureWidth sums glyph advances at size points. Unmapped runes count as
// the width of the .notdef glyph.
func (s *SFNTFont) MeasureWidth(text string, size float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ppem := fixed.Int26_6(size * 64)
	var total fixed.Int26_6
	for _, r := range text {
		idx, err := s.f.GlyphIndex(&s.buf, r)
		if err != nil {
			continue
		}
		adv, err := s.f.GlyphAdvance(&s.buf, idx, ppem, font.HintingNone)
		if err != nil {
			continue
		}
		total += adv
	}
	return float64(total) / 64
}

// File returns the embedding descriptor for the writer.
func (s *SFNTFont) File() FontFile {
	return FontFile{Name: s.Name, Path: s.Path}
}

var _ element.FontHandle = (*SFNTFont)(nil)
