package engine

import (
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"pdf-translator/internal/logger"
)

// PDFCPUSource answers page geometry and serves image streams from a pdfcpu
// context. It implements SourceDocument and ImageResolver.
type PDFCPUSource struct {
	path string
	ctx  *model.Context
	mu   sync.Mutex
}

// OpenSource reads and validates the document at path. Validation problems are
// logged, not fatal: many real-world files fail strict validation but still
// render.
func OpenSource(path string) (*PDFCPUSource, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		logger.Warn("source document failed validation",
			logger.String("path", path),
			logger.Err(err))
	}
	return &PDFCPUSource{path: path, ctx: ctx}, nil
}

// NumPages returns the page count.
func (s *PDFCPUSource) NumPages() int {
	return s.ctx.PageCount
}

// PageSize returns the media box size and rotation of a 1-based page.
func (s *PDFCPUSource) PageSize(page int) (PageSize, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if page < 1 || page > s.ctx.PageCount {
		return PageSize{}, fmt.Errorf("page %d out of range [1, %d]", page, s.ctx.PageCount)
	}
	_, _, attrs, err := s.ctx.PageDict(page, false)
	if err != nil {
		return PageSize{}, fmt.Errorf("page %d: %w", page, err)
	}
	if attrs == nil {
		return PageSize{}, fmt.Errorf("page %d: no page attributes", page)
	}
	box := attrs.MediaBox
	if box == nil {
		box = attrs.CropBox
	}
	if box == nil {
		return PageSize{}, fmt.Errorf("page %d: no media box", page)
	}
	return PageSize{
		Width:    box.Width(),
		Height:   box.Height(),
		Rotation: attrs.Rotate,
	}, nil
}

// ImageStream looks up the image XObject name in the page resources.
func (s *PDFCPUSource) ImageStream(page int, name string) (*ImageStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, _, attrs, err := s.ctx.PageDict(page, false)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}
	if attrs == nil || attrs.Resources == nil {
		return nil, fmt.Errorf("page %d: no resources", page)
	}
	xobjects, err := s.ctx.DereferenceDict(attrs.Resources["XObject"])
	if err != nil || xobjects == nil {
		return nil, fmt.Errorf("page %d: no XObject resources", page)
	}
	obj, ok := xobjects[name]
	if !ok {
		return nil, fmt.Errorf("page %d: XObject %s not found", page, name)
	}
	sd, _, err := s.ctx.DereferenceStreamDict(obj)
	if err != nil {
		return nil, fmt.Errorf("XObject %s: %w", name, err)
	}
	if sd == nil {
		return nil, fmt.Errorf("XObject %s is not a stream", name)
	}

	st := &ImageStream{
		Raw:        sd.Raw,
		Components: s.components(sd.Dict["ColorSpace"]),
	}
	if n := len(sd.FilterPipeline); n > 0 {
		st.Filter = sd.FilterPipeline[n-1].Name
	}
	if w := sd.IntEntry("Width"); w != nil {
		st.Width = *w
	}
	if h := sd.IntEntry("Height"); h != nil {
		st.Height = *h
	}
	if bpc := sd.IntEntry("BitsPerComponent"); bpc != nil {
		st.BPC = *bpc
	}
	if !isEncodedImageFilter(st.Filter) {
		if err := sd.Decode(); err != nil {
			return nil, fmt.Errorf("decode XObject %s: %w", name, err)
		}
		st.Content = sd.Content
	}
	return st, nil
}

func (s *PDFCPUSource) components(o types.Object) int {
	o, err := s.ctx.Dereference(o)
	if err != nil || o == nil {
		return 0
	}
	switch cs := o.(type) {
	case types.Name:
		return componentsByName(string(cs))
	case types.Array:
		if len(cs) == 0 {
			return 0
		}
		first, ok := cs[0].(types.Name)
		if !ok {
			return 0
		}
		if string(first) == "ICCBased" && len(cs) > 1 {
			if icc, _, err := s.ctx.DereferenceStreamDict(cs[1]); err == nil && icc != nil {
				if n := icc.IntEntry("N"); n != nil {
					return *n
				}
			}
		}
		return componentsByName(string(first))
	}
	return 0
}

var (
	_ SourceDocument = (*PDFCPUSource)(nil)
	_ ImageResolver  = (*PDFCPUSource)(nil)
)
