// Command pdftranslate translates the text of a PDF and writes a new PDF with
// the translations laid out in place of the original text.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"pdf-translator/internal/config"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/pdf"
	"pdf-translator/internal/results"
	"pdf-translator/internal/translate"
	"pdf-translator/internal/types"
)

type options struct {
	input      string
	output     string
	configPath string
	envFile    string
	source     string
	target     string
	backend    string
	logLevel   string
	jsonOut    bool
	quiet      bool
	force      bool
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.output, "o", "", "output PDF (default: <input>_translated.pdf)")
	flag.StringVar(&o.configPath, "config", "", "config file (default: ~/.config/pdf-translator/"+config.DefaultConfigFileName+")")
	flag.StringVar(&o.envFile, "env", ".env", "env file loaded before the config")
	flag.StringVar(&o.source, "from", "", "source language tag, e.g. en")
	flag.StringVar(&o.target, "to", "", "target language tag, e.g. zh-Hans")
	flag.StringVar(&o.backend, "backend", "", "translation backend: http or eino")
	flag.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	flag.BoolVar(&o.jsonOut, "json", false, "print the run summary as JSON")
	flag.BoolVar(&o.quiet, "q", false, "do not print progress")
	flag.BoolVar(&o.force, "force", false, "translate again even if a previous translation exists")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: pdftranslate [flags] <input.pdf>\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	o.input = flag.Arg(0)
	return o
}

func main() {
	o := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := run(ctx, o)
	if res != nil {
		if perr := printSummary(os.Stdout, res, o.jsonOut); perr != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to print summary: %v\n", perr)
			if err == nil {
				err = perr
			}
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logger.Close()
		stop()
		os.Exit(1)
	}
	logger.Close()
}

func run(ctx context.Context, o options) (*pdf.TranslationResult, error) {
	if err := config.LoadEnvFile(o.envFile); err != nil {
		return nil, err
	}
	cm, err := config.NewConfigManager(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := cm.Load(); err != nil {
		return nil, err
	}
	cfg := cm.GetConfig()
	if o.source != "" {
		cfg.SourceLang = o.source
	}
	if o.target != "" {
		cfg.TargetLang = o.target
	}
	if o.backend != "" {
		cfg.Backend = o.backend
	}

	if err := initLogger(cfg, o.logLevel); err != nil {
		return nil, err
	}
	if err := cm.Validate(); err != nil {
		return nil, err
	}

	fonts, fontFiles, err := pdf.LoadFonts(cfg.LatinFontPath, cfg.CJKFontPath)
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cache, closeCache, err := newCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeCache()

	initial, maxDelay := cfg.Retry()
	orch := translate.NewOrchestrator(backend,
		translate.NewThrottle(cfg.Concurrency, time.Duration(cfg.PacingMillis)*time.Millisecond),
		cache,
		translate.Options{
			Source:      cfg.SourceLang,
			Target:      cfg.TargetLang,
			ChunkLimit:  cfg.ChunkLimit,
			CallTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
			Retry: translate.RetryPolicy{
				MaxAttempts:  cfg.MaxAttempts,
				InitialDelay: initial,
				MaxDelay:     maxDelay,
			},
		})

	tr, err := pdf.NewPDFTranslator(pdf.PDFTranslatorConfig{
		Thresholds:   cfg.Thresholds,
		Fonts:        fonts,
		FontFiles:    fontFiles,
		Orchestrator: orch,
		OnStatus:     statusPrinter(o.quiet),
	})
	if err != nil {
		return nil, err
	}

	out := o.output
	if out == "" {
		out = pdf.OutputPath(o.input, cfg.WorkDirectory)
	}
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, types.NewPDFError(types.ErrRebuildFailed, "cannot create output directory", err)
		}
	}

	history, err := results.NewResultManager(cfg.ResultsDirectory)
	if err != nil {
		logger.Warn("translation history disabled", logger.Err(err))
		return tr.TranslatePDF(ctx, o.input, out)
	}
	return translateWithHistory(ctx, history, tr, job{
		input:  o.input,
		output: out,
		source: cfg.SourceLang,
		target: cfg.TargetLang,
		force:  o.force,
	}, os.Stderr)
}

// pdfJob is the part of pdf.PDFTranslator the history flow drives.
type pdfJob interface {
	TranslatePDF(ctx context.Context, inputPath, outputPath string) (*pdf.TranslationResult, error)
	GetStatus() pdf.PDFStatus
}

type job struct {
	input, output  string
	source, target string
	force          bool
}

// translateWithHistory reuses a complete earlier translation of the same
// document unless forced, and records the outcome of a new run.
func translateWithHistory(ctx context.Context, history *results.ResultManager, tr pdfJob, j job, notice io.Writer) (*pdf.TranslationResult, error) {
	if !j.force {
		if info, err := history.CheckExisting(j.input, j.target); err == nil && info.IsComplete && info.Record.Result != nil {
			fmt.Fprintf(notice, "%s (use -force to translate again)\n", info.Message)
			return info.Record.Result, nil
		}
	}

	rec, err := history.Begin(j.input, j.output, j.source, j.target)
	if err != nil {
		logger.Warn("failed to record job", logger.Err(err))
		return tr.TranslatePDF(ctx, j.input, j.output)
	}
	res, err := tr.TranslatePDF(ctx, j.input, j.output)
	if ferr := history.Finish(rec, res, tr.GetStatus().Phase, err); ferr != nil {
		logger.Warn("failed to record job result", logger.Err(ferr))
	}
	return res, err
}

// initLogger logs to the configured file, or to stderr when none is set.
// The console defaults to warnings so it does not fight the progress line.
func initLogger(cfg *types.Config, level string) error {
	lc := logger.DefaultConfig()
	lc.LogFilePath = cfg.LogFilePath
	lc.EnableConsole = cfg.LogFilePath == ""
	lc.StackTraces = cfg.LogFilePath != ""
	if lc.EnableConsole {
		lc.Level = logger.LevelWarn
	}
	if level != "" {
		l, ok := logger.ParseLevel(level)
		if !ok {
			return types.NewAppErrorWithDetails(types.ErrInvalidInput, "unknown log level", level, nil)
		}
		lc.Level = l
	}
	return logger.Init(lc)
}

func newBackend(ctx context.Context, cfg *types.Config) (translate.Translator, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	switch cfg.Backend {
	case config.BackendEino:
		return translate.NewOpenAIChatModelTranslator(ctx, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, timeout)
	default:
		return translate.NewHTTPTranslator(translate.HTTPTranslatorConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: timeout,
		}), nil
	}
}

// newCache returns the Redis cache when a URL is configured, else the JSON
// file cache. The returned func persists or closes it.
func newCache(ctx context.Context, cfg *types.Config) (translate.Cache, func(), error) {
	if cfg.RedisURL != "" {
		rc, err := translate.NewRedisCache(ctx, cfg.RedisURL, translate.DefaultCacheTTL)
		if err != nil {
			return nil, nil, err
		}
		return rc, func() {
			if err := rc.Close(); err != nil {
				logger.Warn("failed to close redis cache", logger.Err(err))
			}
		}, nil
	}

	path := cfg.CachePath
	if path == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil, func() {}, nil
		}
		path = filepath.Join(dir, "pdf-translator", "translations.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, types.NewPDFError(types.ErrCacheFailed, "cannot create cache directory", err)
	}
	fc := translate.NewFileCache(path)
	if err := fc.Load(); err != nil {
		logger.Warn("ignoring unreadable cache", logger.String("path", path), logger.Err(err))
		fc.Clear()
	}
	return fc, func() {
		if err := fc.Save(); err != nil {
			logger.Warn("failed to save cache", logger.Err(err))
		}
	}, nil
}

func statusPrinter(quiet bool) pdf.StatusCallback {
	if quiet {
		return nil
	}
	return func(st pdf.PDFStatus) {
		fmt.Fprintf(os.Stderr, "\r[%3d%%] %-12s %-48s", st.Progress, st.Phase, st.Message)
		if st.Phase == pdf.PDFPhaseComplete || st.Phase == pdf.PDFPhaseError {
			fmt.Fprintln(os.Stderr)
		}
	}
}

func printSummary(w io.Writer, res *pdf.TranslationResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(w, "Output:     %s\n", res.TranslatedPDFPath)
	fmt.Fprintf(w, "Pages:      %d (tables: %d)\n", res.Pages, res.Tables)
	fmt.Fprintf(w, "Elements:   %d (dropped: %d)\n", res.Elements, res.Dropped)
	fmt.Fprintf(w, "Units:      %d translated, %d cached, %d failed, %d skipped\n",
		res.Translated, res.Cached, res.Failed, res.Skipped)
	fmt.Fprintf(w, "Drawn:      %d (skipped: %d, shrunk: %d, overflowed: %d)\n",
		res.Drawn, res.DrawSkipped, res.Shrunk, res.Overflowed)
	for _, e := range res.PageErrors {
		fmt.Fprintf(w, "Page error: %s\n", e)
	}
	if res.Duration > 0 {
		fmt.Fprintf(w, "Duration:   %s\n", res.Duration.Round(time.Millisecond))
	}
	return nil
}
