package pdf

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"pdf-translator/internal/element"
	"pdf-translator/internal/engine"
	"pdf-translator/internal/extract"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/rebuild"
	"pdf-translator/internal/translate"
	"pdf-translator/internal/types"
)

// StatusCallback receives a copy of the status after every change.
type StatusCallback func(PDFStatus)

// PDFTranslatorConfig holds the collaborators of a PDFTranslator.
type PDFTranslatorConfig struct {
	Thresholds types.Thresholds
	Fonts      rebuild.FontSet
	FontFiles  []engine.FontFile

	// Orchestrator translates the collected text units.
	Orchestrator *translate.Orchestrator

	// Open and NewWriter default to OpenDocument and a GoPDF2 writer.
	Open      OpenFunc
	NewWriter WriterFunc

	OnStatus StatusCallback
}

// PDFTranslator 是 PDF 翻译功能的主控制器
type PDFTranslator struct {
	cfg       PDFTranslatorConfig
	rebuilder *rebuild.Rebuilder

	mu     sync.RWMutex
	status *PDFStatus
	pages  []*extract.PageResult
}

// NewPDFTranslator creates a PDFTranslator.
func NewPDFTranslator(cfg PDFTranslatorConfig) (*PDFTranslator, error) {
	if cfg.Orchestrator == nil {
		return nil, types.NewPDFError(types.ErrTranslateFailed, "no translation backend configured", nil)
	}
	rb, err := rebuild.NewRebuilder(cfg.Fonts, cfg.Thresholds.Layout)
	if err != nil {
		return nil, err
	}
	if cfg.Open == nil {
		cfg.Open = OpenDocument
	}
	if cfg.NewWriter == nil {
		files := cfg.FontFiles
		cfg.NewWriter = func(path string) (engine.Writer, error) {
			return engine.NewGoPDFWriter(path, files)
		}
	}
	return &PDFTranslator{
		cfg:       cfg,
		rebuilder: rb,
		status:    &PDFStatus{Phase: PDFPhaseIdle},
	}, nil
}

// TranslatePDF translates inputPath into outputPath. Pages are extracted
// and rebuilt one after another in page order; only the translation calls
// run concurrently. A permanent translation error stops the job before
// anything is written, but the extracted pages stay available through Pages.
func (p *PDFTranslator) TranslatePDF(ctx context.Context, inputPath, outputPath string) (*TranslationResult, error) {
	start := time.Now()
	jobID := uuid.NewString()
	res := &TranslationResult{
		JobID:             jobID,
		OriginalPDFPath:   inputPath,
		TranslatedPDFPath: outputPath,
	}

	p.mu.Lock()
	p.status = &PDFStatus{JobID: jobID}
	p.pages = nil
	p.mu.Unlock()

	logger.Info("starting PDF translation",
		logger.String("job", jobID),
		logger.String("input", inputPath),
		logger.String("output", outputPath))

	p.setStatus(PDFPhaseLoading, 0, "loading document")
	doc, err := p.cfg.Open(inputPath)
	if err != nil {
		return nil, p.fail(err)
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			logger.Warn("failed to close source document", logger.Err(cerr))
		}
	}()
	res.Pages = doc.Info.PageCount

	pages, err := p.extractAll(ctx, doc, res)
	if err != nil {
		return nil, p.fail(err)
	}

	if err := p.translateAll(ctx, pages, res); err != nil {
		return res, p.fail(err)
	}

	if err := p.rebuildAll(ctx, doc, pages, outputPath, res); err != nil {
		return res, p.fail(err)
	}

	res.Duration = time.Since(start)
	p.setStatus(PDFPhaseComplete, 100, "translation complete")
	logger.Info("PDF translation completed",
		logger.String("job", jobID),
		logger.String("output", outputPath),
		logger.Int("units", res.Units),
		logger.Int("failed", res.Failed),
		logger.Duration("duration", res.Duration))
	return res, nil
}

func (p *PDFTranslator) extractAll(ctx context.Context, doc *Document, res *TranslationResult) ([]*extract.PageResult, error) {
	n := doc.Info.PageCount
	pages := make([]*extract.PageResult, 0, n)
	for page := 1; page <= n; page++ {
		p.setStatus(PDFPhaseExtracting, scale(page-1, n, 0, 30), fmt.Sprintf("extracting page %d/%d", page, n))

		pr, err := extract.ExtractPage(ctx, doc.Walker, page, p.cfg.Thresholds)
		if err != nil {
			if types.HasCode(err, types.ErrCancelled) {
				return nil, err
			}
			// An unreadable page is rebuilt empty so the page count is kept.
			logger.Error("page extraction failed", err, logger.Int("page", page))
			res.PageErrors = append(res.PageErrors, err.Error())
			pr = &extract.PageResult{Page: page}
		}
		res.Elements += len(pr.Elements)
		res.Dropped += pr.Dropped
		if pr.Grid != nil {
			res.Tables++
		}
		pages = append(pages, pr)
	}

	p.mu.Lock()
	p.pages = pages
	p.mu.Unlock()
	return pages, nil
}

func (p *PDFTranslator) translateAll(ctx context.Context, pages []*extract.PageResult, res *TranslationResult) error {
	all := make([][]element.Element, len(pages))
	for i, pr := range pages {
		all[i] = pr.Elements
	}
	units := translate.CollectUnits(all)

	p.mu.Lock()
	p.status.TotalUnits = len(units)
	p.status.CompletedUnits = 0
	p.mu.Unlock()
	p.setStatus(PDFPhaseTranslating, 30, fmt.Sprintf("translating %d text units", len(units)))

	orch := p.cfg.Orchestrator.WithProgress(func(completed, total int) {
		p.mu.Lock()
		p.status.CompletedUnits = completed
		p.mu.Unlock()
		p.setStatus(PDFPhaseTranslating, scale(completed, total, 30, 90),
			fmt.Sprintf("translated %d/%d", completed, total))
	})

	stats, err := orch.TranslateElements(ctx, units)
	res.Units = stats.Units
	res.Translated = stats.Translated
	res.Cached = stats.Cached
	res.Failed = stats.Failed
	res.Skipped = stats.Skipped
	return err
}

func (p *PDFTranslator) rebuildAll(ctx context.Context, doc *Document, pages []*extract.PageResult, outputPath string, res *TranslationResult) error {
	p.setStatus(PDFPhaseGenerating, 90, "writing translated document")

	w, err := p.cfg.NewWriter(outputPath)
	if err != nil {
		return types.NewPDFError(types.ErrRebuildFailed, "cannot create output writer", err)
	}

	in := make([]rebuild.PageElements, len(pages))
	for i, pr := range pages {
		in[i] = rebuild.PageElements{Page: pr.Page, Elements: pr.Elements}
	}
	rep, err := p.rebuilder.Rebuild(ctx, doc.Source, in, w)
	res.Drawn = rep.Drawn
	res.DrawSkipped = rep.Skipped
	res.Shrunk = rep.Shrunk
	res.Overflowed = rep.Overflowed
	res.ImageCopies = rep.ImageCopies
	for _, perr := range rep.PageErrors {
		res.PageErrors = append(res.PageErrors, perr.Error())
	}
	return err
}

// fail moves the job into the error phase and returns err.
func (p *PDFTranslator) fail(err error) error {
	msg := err.Error()
	var perr *types.PDFError
	if errors.As(err, &perr) {
		msg = string(perr.Code) + ": " + perr.Error()
	}
	logger.Error("PDF translation failed", err)

	p.mu.Lock()
	p.updateStatusLocked(PDFPhaseError, p.status.Progress, msg)
	p.status.Error = msg
	st := *p.status
	p.mu.Unlock()
	p.notify(st)
	return err
}

func (p *PDFTranslator) setStatus(phase PDFPhase, progress int, message string) {
	p.mu.Lock()
	p.updateStatusLocked(phase, progress, message)
	st := *p.status
	p.mu.Unlock()
	p.notify(st)
}

func (p *PDFTranslator) notify(st PDFStatus) {
	if p.cfg.OnStatus != nil {
		p.cfg.OnStatus(st)
	}
}

// updateStatusLocked updates the status (must be called with lock held)
func (p *PDFTranslator) updateStatusLocked(phase PDFPhase, progress int, message string) {
	if !IsValidPhase(phase) {
		logger.Warn("invalid phase, defaulting to error", logger.String("phase", string(phase)))
		phase = PDFPhaseError
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	p.status.Phase = phase
	p.status.Progress = progress
	p.status.Message = message
	if phase != PDFPhaseError {
		p.status.Error = ""
	}
}

// GetStatus 获取当前处理状态
func (p *PDFTranslator) GetStatus() PDFStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return *p.status
}

// Pages returns the pages extracted by the last job.
func (p *PDFTranslator) Pages() []*extract.PageResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*extract.PageResult, len(p.pages))
	copy(out, p.pages)
	return out
}

// scale maps done/total onto [from, to].
func scale(done, total, from, to int) int {
	if total <= 0 {
		return from
	}
	return from + done*(to-from)/total
}
