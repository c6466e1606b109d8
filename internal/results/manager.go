// Package results keeps a history of translation jobs so an unchanged
// document is not translated twice into the same language.
package results

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pdf-translator/internal/pdf"
)

// TranslationStatus represents the status of a translation
type TranslationStatus string

const (
	StatusRunning  TranslationStatus = "running"
	StatusComplete TranslationStatus = "complete"
	StatusError    TranslationStatus = "error"
)

// JobRecord describes the last translation of one source document into one
// target language.
type JobRecord struct {
	JobID          string                 `json:"job_id"`
	SourceMD5      string                 `json:"source_md5"`
	SourceFileName string                 `json:"source_file_name"`
	OriginalPDF    string                 `json:"original_pdf"`
	TranslatedPDF  string                 `json:"translated_pdf"`
	SourceLang     string                 `json:"source_lang"`
	TargetLang     string                 `json:"target_lang"`
	Status         TranslationStatus      `json:"status"`
	LastPhase      pdf.PDFPhase           `json:"last_phase,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	StartedAt      time.Time              `json:"started_at"`
	FinishedAt     time.Time              `json:"finished_at,omitempty"`
	Result         *pdf.TranslationResult `json:"result,omitempty"`
}

// ResultManager stores job records as metadata.json files below baseDir.
type ResultManager struct {
	baseDir string
}

// NewResultManager creates a new ResultManager with the specified base directory
// If baseDir is empty, uses default location in user's home directory
func NewResultManager(baseDir string) (*ResultManager, error) {
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		baseDir = filepath.Join(homeDir, ".pdf-translator", "results")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &ResultManager{baseDir: baseDir}, nil
}

// GetBaseDir returns the base directory for results
func (m *ResultManager) GetBaseDir() string {
	return m.baseDir
}

// RecordDir returns the directory holding the record of md5Hash translated
// into target.
func (m *ResultManager) RecordDir(md5Hash, target string) string {
	id := md5Hash
	if len(id) > 16 {
		id = id[:16]
	}
	return filepath.Join(m.baseDir, "md5_"+id+"_"+sanitize(target))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

// Save writes rec to its directory.
func (m *ResultManager) Save(rec *JobRecord) error {
	if rec.SourceMD5 == "" {
		return os.ErrInvalid
	}
	dir := m.RecordDir(rec.SourceMD5, rec.TargetLang)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0644)
}

// Load reads the record of md5Hash translated into target.
func (m *ResultManager) Load(md5Hash, target string) (*JobRecord, error) {
	return readRecord(filepath.Join(m.RecordDir(md5Hash, target), "metadata.json"))
}

func readRecord(path string) (*JobRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns all records, newest first.
func (m *ResultManager) List() ([]*JobRecord, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*JobRecord{}, nil
		}
		return nil, err
	}

	var recs []*JobRecord
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := readRecord(filepath.Join(m.baseDir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].StartedAt.After(recs[j].StartedAt)
	})
	return recs, nil
}

// Delete removes the record of md5Hash translated into target.
func (m *ResultManager) Delete(md5Hash, target string) error {
	return os.RemoveAll(m.RecordDir(md5Hash, target))
}

// GetIncomplete returns records that did not finish successfully.
func (m *ResultManager) GetIncomplete() ([]*JobRecord, error) {
	recs, err := m.List()
	if err != nil {
		return nil, err
	}
	var out []*JobRecord
	for _, r := range recs {
		if r.Status != StatusComplete {
			out = append(out, r)
		}
	}
	return out, nil
}

// CalculateFileMD5 calculates the MD5 hash of a file
func CalculateFileMD5(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// ExistingTranslationInfo contains information about an existing translation
type ExistingTranslationInfo struct {
	Exists     bool       `json:"exists"`
	Record     *JobRecord `json:"record,omitempty"`
	IsComplete bool       `json:"is_complete"`
	Message    string     `json:"message"`
}

// CheckExisting looks up the last translation of input into target. A
// complete record only counts while its output file still exists.
func (m *ResultManager) CheckExisting(input, target string) (*ExistingTranslationInfo, error) {
	sum, err := CalculateFileMD5(input)
	if err != nil {
		return nil, err
	}
	info := &ExistingTranslationInfo{}

	rec, err := m.Load(sum, target)
	if err != nil {
		if os.IsNotExist(err) {
			info.Message = "no previous translation"
			return info, nil
		}
		return nil, err
	}
	info.Exists = true
	info.Record = rec

	switch rec.Status {
	case StatusComplete:
		if _, err := os.Stat(rec.TranslatedPDF); err != nil {
			info.Message = "previous output is missing, translating again"
			return info, nil
		}
		info.IsComplete = true
		info.Message = fmt.Sprintf("already translated on %s to %s",
			rec.FinishedAt.Format("2006-01-02 15:04"), rec.TranslatedPDF)
	case StatusError:
		info.Message = fmt.Sprintf("previous translation failed: %s", rec.ErrorMessage)
	default:
		info.Message = fmt.Sprintf("previous translation did not finish (phase: %s)", rec.LastPhase)
	}
	return info, nil
}

// Begin records a job as running and returns its record.
func (m *ResultManager) Begin(input, output, source, target string) (*JobRecord, error) {
	sum, err := CalculateFileMD5(input)
	if err != nil {
		return nil, err
	}
	rec := &JobRecord{
		SourceMD5:      sum,
		SourceFileName: filepath.Base(input),
		OriginalPDF:    input,
		TranslatedPDF:  output,
		SourceLang:     source,
		TargetLang:     target,
		Status:         StatusRunning,
		StartedAt:      time.Now(),
	}
	return rec, m.Save(rec)
}

// Finish stores the outcome of the job started with Begin.
func (m *ResultManager) Finish(rec *JobRecord, res *pdf.TranslationResult, phase pdf.PDFPhase, jobErr error) error {
	rec.FinishedAt = time.Now()
	rec.Result = res
	rec.LastPhase = phase
	if res != nil {
		rec.JobID = res.JobID
	}
	if jobErr != nil {
		rec.Status = StatusError
		rec.ErrorMessage = jobErr.Error()
	} else {
		rec.Status = StatusComplete
		rec.ErrorMessage = ""
	}
	return m.Save(rec)
}
