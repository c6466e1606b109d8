// Package types defines core configuration and error types shared by the PDF translator packages.
package types

import "time"

// Config 应用配置
type Config struct {
	// Translation backend
	Backend       string `json:"backend"` // "http" 或 "eino"
	OpenAIAPIKey  string `json:"openai_api_key"`
	OpenAIBaseURL string `json:"openai_base_url"` // OpenAI 兼容 API 的 Base URL
	OpenAIModel   string `json:"openai_model"`

	SourceLang string `json:"source_lang"` // BCP 47, e.g. "en"
	TargetLang string `json:"target_lang"` // BCP 47, e.g. "zh-Hans"

	// Throttling and retry
	Concurrency    int `json:"concurrency"`      // 并发翻译请求上限，默认为 5
	PacingMillis   int `json:"pacing_millis"`    // 两次请求开始之间的最小间隔
	MaxAttempts    int `json:"max_attempts"`     // 单个文本的最大尝试次数
	InitialDelayMs int `json:"initial_delay_ms"` // 首次重试等待
	MaxDelayMs     int `json:"max_delay_ms"`     // 重试等待上限
	TimeoutSeconds int `json:"timeout_seconds"`  // 单次请求超时
	ChunkLimit     int `json:"chunk_limit"`      // 超过该字符数的文本被切分

	// Fonts used by the rebuilder
	LatinFontPath string `json:"latin_font_path"`
	CJKFontPath   string `json:"cjk_font_path"`

	// Translation cache: a JSON file path, or a Redis URL when set
	CachePath string `json:"cache_path"`
	RedisURL  string `json:"redis_url"`

	WorkDirectory    string `json:"work_directory"`
	ResultsDirectory string `json:"results_directory"` // 翻译历史记录目录
	LogFilePath      string `json:"log_file_path"`

	Thresholds Thresholds `json:"thresholds"`
}

// Thresholds groups the geometric tolerances used during layout analysis and rebuild.
type Thresholds struct {
	Stitch    StitchThresholds    `json:"stitch"`
	Paragraph ParagraphThresholds `json:"paragraph"`
	Table     TableThresholds     `json:"table"`
	Extract   ExtractThresholds   `json:"extract"`
	Layout    LayoutThresholds    `json:"layout"`
}

// StitchThresholds controls how adjacent text runs are joined into lines.
type StitchThresholds struct {
	BaselineFactor    float64 `json:"baseline_factor"`     // max baseline Y diff as a fraction of font size
	GapFactor         float64 `json:"gap_factor"`          // max horizontal gap in average char widths
	OverlapTolerance  float64 `json:"overlap_tolerance"`   // allowed overlap in points, plus half a char width
	FontSizeTolerance float64 `json:"font_size_tolerance"` // absolute, in points
	ColorTolerance    float64 `json:"color_tolerance"`     // per channel
	HScaleTolerance   float64 `json:"hscale_tolerance"`
	MinAccurateSize   float64 `json:"min_accurate_size"` // below this the char width is estimated from size
	CharWidthFactor   float64 `json:"char_width_factor"`
}

// ParagraphThresholds controls how stitched lines are grouped into paragraphs.
type ParagraphThresholds struct {
	SpacingFactor    float64 `json:"spacing_factor"`
	MaxOverlapRatio  float64 `json:"max_overlap_ratio"`
	IndentFactor     float64 `json:"indent_factor"`
	HangingFactor    float64 `json:"hanging_factor"`
	SizeRelTolerance float64 `json:"size_rel_tolerance"`
	MarginRatio      float64 `json:"margin_ratio"`
	DefaultPageWidth float64 `json:"default_page_width"`
	StrictFontName   bool    `json:"strict_font_name"`
	LineHeightFactor float64 `json:"line_height_factor"`
}

// TableThresholds controls ruling-line clustering and cell assignment.
type TableThresholds struct {
	ClusterTolerance float64 `json:"cluster_tolerance"`
	CellPadding      float64 `json:"cell_padding"`
}

// ExtractThresholds controls which stroked segments survive extraction.
type ExtractThresholds struct {
	MinLineLength     float64 `json:"min_line_length"`
	LineAxisTolerance float64 `json:"line_axis_tolerance"`
	MaxFormulaLength  int     `json:"max_formula_length"`
}

// LayoutThresholds controls how text is fitted back into its box.
type LayoutThresholds struct {
	LineSpacing   float64 `json:"line_spacing"`
	ShrinkStep    float64 `json:"shrink_step"`
	MinFontSize   float64 `json:"min_font_size"`
	DefaultStroke float64 `json:"default_stroke"`
}

// DefaultThresholds returns the tolerances tuned for typical single-column documents.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Stitch: StitchThresholds{
			BaselineFactor:    0.7,
			GapFactor:         2.5,
			OverlapTolerance:  2.0,
			FontSizeTolerance: 0.5,
			ColorTolerance:    0.05,
			HScaleTolerance:   0.05,
			MinAccurateSize:   8,
			CharWidthFactor:   0.6,
		},
		Paragraph: ParagraphThresholds{
			SpacingFactor:    1.0,
			MaxOverlapRatio:  0.1,
			IndentFactor:     0.8,
			HangingFactor:    2.0,
			SizeRelTolerance: 0.1,
			MarginRatio:      0.65,
			DefaultPageWidth: 600,
			LineHeightFactor: 1.2,
		},
		Table: TableThresholds{
			ClusterTolerance: 5,
			CellPadding:      1,
		},
		Extract: ExtractThresholds{
			MinLineLength:     5,
			LineAxisTolerance: 1.5,
			MaxFormulaLength:  20,
		},
		Layout: LayoutThresholds{
			LineSpacing:   1.2,
			ShrinkStep:    0.5,
			MinFontSize:   2,
			DefaultStroke: 0.5,
		},
	}
}

// Retry returns the retry delays as durations.
func (c *Config) Retry() (initial, max time.Duration) {
	return time.Duration(c.InitialDelayMs) * time.Millisecond, time.Duration(c.MaxDelayMs) * time.Millisecond
}

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	ErrNetwork      ErrorCode = "NETWORK_ERROR"
	ErrFileNotFound ErrorCode = "FILE_NOT_FOUND"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrAPICall      ErrorCode = "API_CALL_ERROR"
	ErrAPIRateLimit ErrorCode = "API_RATE_LIMIT"
	ErrConfig       ErrorCode = "CONFIG_ERROR"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrTranslation  ErrorCode = "TRANSLATION_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}
