package pdf

import (
	"os"
	"path/filepath"
	"strings"

	"pdf-translator/internal/engine"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/rebuild"
	"pdf-translator/internal/types"
)

// Document is an opened source PDF: a content walker for extraction and a
// geometry source for rebuilding.
type Document struct {
	Info   *PDFInfo
	Walker engine.Walker
	Source engine.SourceDocument

	closers []func() error
}

// Close releases everything the document holds.
func (d *Document) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	d.closers = nil
	return first
}

// OpenFunc opens the document at path.
type OpenFunc func(path string) (*Document, error)

// WriterFunc creates the output writer for path.
type WriterFunc func(path string) (engine.Writer, error)

// OpenDocument opens path with pdfcpu for geometry and images and with
// ledongthuc/pdf for the content walk.
func OpenDocument(path string) (*Document, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewPDFError(types.ErrPDFNotFound, "file does not exist", err)
		}
		return nil, types.NewPDFError(types.ErrPDFInvalid, "cannot access file", err)
	}
	if fi.IsDir() {
		return nil, types.NewPDFError(types.ErrPDFInvalid, "path is a directory", nil)
	}

	src, err := engine.OpenSource(path)
	if err != nil {
		return nil, types.NewPDFError(types.ErrPDFInvalid, "cannot read PDF structure", err)
	}
	walker, err := engine.OpenWalker(path, src)
	if err != nil {
		return nil, types.NewPDFError(types.ErrPDFInvalid, "cannot open PDF content", err)
	}

	pages := src.NumPages()
	if n := walker.NumPages(); n != pages {
		logger.Warn("page count differs between readers",
			logger.Int("pdfcpu", pages),
			logger.Int("content", n))
		if n < pages {
			pages = n
		}
	}

	return &Document{
		Info: &PDFInfo{
			FilePath:  path,
			FileName:  filepath.Base(path),
			PageCount: pages,
			FileSize:  fi.Size(),
		},
		Walker:  walker,
		Source:  src,
		closers: []func() error{walker.Close},
	}, nil
}

// OutputPath returns where the translation of originalPath is written: next
// to the original, or in workDir when set, with a "_translated" suffix.
func OutputPath(originalPath, workDir string) string {
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext) + "_translated" + ext
	if workDir != "" {
		return filepath.Join(workDir, name)
	}
	return filepath.Join(filepath.Dir(originalPath), name)
}

// Font names the output fonts are embedded under.
const (
	LatinFontName = "latin"
	CJKFontName   = "cjk"
)

// LoadFonts loads the configured output fonts. A missing path leaves that
// slot empty; at least one font must load.
func LoadFonts(latinPath, cjkPath string) (rebuild.FontSet, []engine.FontFile, error) {
	var fs rebuild.FontSet
	var files []engine.FontFile

	load := func(name, path string) (rebuild.Font, error) {
		if path == "" {
			return rebuild.Font{}, nil
		}
		f, err := engine.LoadSFNTFont(name, path)
		if err != nil {
			return rebuild.Font{}, err
		}
		files = append(files, f.File())
		return rebuild.Font{Name: name, Handle: f}, nil
	}

	var err error
	if fs.Latin, err = load(LatinFontName, latinPath); err != nil {
		return fs, nil, types.NewPDFError(types.ErrRebuildFailed, "cannot load Latin font", err)
	}
	if fs.CJK, err = load(CJKFontName, cjkPath); err != nil {
		return fs, nil, types.NewPDFError(types.ErrRebuildFailed, "cannot load CJK font", err)
	}
	if len(files) == 0 {
		return fs, nil, types.NewPDFError(types.ErrRebuildFailed, "no output font configured", nil)
	}
	return fs, files, nil
}
