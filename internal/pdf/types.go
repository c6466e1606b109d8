// Package pdf drives the translation of one PDF document: it opens the
// source, extracts and analyses every page, translates the text units and
// rebuilds a new document with the translations in place.
package pdf

import "time"

// PDFInfo PDF 文件信息
type PDFInfo struct {
	FilePath  string `json:"file_path"`
	FileName  string `json:"file_name"`
	PageCount int    `json:"page_count"`
	FileSize  int64  `json:"file_size"`
}

// PDFPhase PDF 处理阶段
type PDFPhase string

const (
	PDFPhaseIdle        PDFPhase = "idle"
	PDFPhaseLoading     PDFPhase = "loading"
	PDFPhaseExtracting  PDFPhase = "extracting"
	PDFPhaseTranslating PDFPhase = "translating"
	PDFPhaseGenerating  PDFPhase = "generating"
	PDFPhaseComplete    PDFPhase = "complete"
	PDFPhaseError       PDFPhase = "error"
)

// PDFStatus PDF 处理状态
type PDFStatus struct {
	JobID          string   `json:"job_id,omitempty"`
	Phase          PDFPhase `json:"phase"`
	Progress       int      `json:"progress"`
	Message        string   `json:"message"`
	TotalUnits     int      `json:"total_units"`
	CompletedUnits int      `json:"completed_units"`
	Error          string   `json:"error,omitempty"`
}

// TranslationResult 翻译结果
type TranslationResult struct {
	JobID             string        `json:"job_id"`
	OriginalPDFPath   string        `json:"original_pdf_path"`
	TranslatedPDFPath string        `json:"translated_pdf_path"`
	Pages             int           `json:"pages"`
	Elements          int           `json:"elements"`
	Tables            int           `json:"tables"`
	Dropped           int           `json:"dropped"`
	Units             int           `json:"units"`
	Translated        int           `json:"translated"`
	Cached            int           `json:"cached"`
	Failed            int           `json:"failed"`
	Skipped           int           `json:"skipped"`
	Drawn             int           `json:"drawn"`
	DrawSkipped       int           `json:"draw_skipped"`
	Shrunk            int           `json:"shrunk"`
	Overflowed        int           `json:"overflowed"`
	ImageCopies       int           `json:"image_copies"`
	PageErrors        []string      `json:"page_errors,omitempty"`
	Duration          time.Duration `json:"duration"`
}

// IsValidPhase checks if the given phase is a valid PDFPhase
func IsValidPhase(phase PDFPhase) bool {
	switch phase {
	case PDFPhaseIdle, PDFPhaseLoading, PDFPhaseExtracting,
		PDFPhaseTranslating, PDFPhaseGenerating, PDFPhaseComplete, PDFPhaseError:
		return true
	default:
		return false
	}
}

// IsValidStatus checks if the PDFStatus has valid values
func (s *PDFStatus) IsValidStatus() bool {
	return IsValidPhase(s.Phase) &&
		s.Progress >= 0 && s.Progress <= 100 &&
		s.CompletedUnits <= s.TotalUnits
}
