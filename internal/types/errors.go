package types

import (
	"errors"
	"fmt"
)

// PDFErrorCode 错误代码枚举
type PDFErrorCode string

const (
	ErrPDFNotFound     PDFErrorCode = "PDF_NOT_FOUND"
	ErrPDFInvalid      PDFErrorCode = "PDF_INVALID"
	ErrExtractFailed   PDFErrorCode = "EXTRACT_FAILED"
	ErrGeometry        PDFErrorCode = "GEOMETRY"
	ErrTranslateFailed PDFErrorCode = "TRANSLATE_FAILED"
	ErrDrawFailed      PDFErrorCode = "DRAW_FAILED"
	ErrRebuildFailed   PDFErrorCode = "REBUILD_FAILED"
	ErrCacheFailed     PDFErrorCode = "CACHE_FAILED"
	ErrCancelled       PDFErrorCode = "CANCELLED"
)

// PDFError PDF 处理错误
type PDFError struct {
	Code    PDFErrorCode `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
	Page    int          `json:"page,omitempty"`
	Cause   error        `json:"-"`
}

// Error implements the error interface for PDFError
func (e *PDFError) Error() string {
	msg := e.Message
	if e.Page > 0 {
		msg = fmt.Sprintf("page %d: %s", e.Page, msg)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause of the error
func (e *PDFError) Unwrap() error {
	return e.Cause
}

// NewPDFError creates a new PDFError with the given code, message, and optional cause
func NewPDFError(code PDFErrorCode, message string, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewPDFErrorWithDetails creates a new PDFError with details
func NewPDFErrorWithDetails(code PDFErrorCode, message, details string, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// NewPDFErrorWithPage creates a new PDFError with page information
func NewPDFErrorWithPage(code PDFErrorCode, message string, page int, cause error) *PDFError {
	return &PDFError{
		Code:    code,
		Message: message,
		Page:    page,
		Cause:   cause,
	}
}

// HasCode reports whether err wraps a PDFError with the given code.
func HasCode(err error, code PDFErrorCode) bool {
	var pe *PDFError
	return errors.As(err, &pe) && pe.Code == code
}
