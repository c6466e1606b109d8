// Package config provides configuration management for the PDF translator.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "pdf-translator-config.json"

	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvOpenAIModel   = "OPENAI_MODEL"
	EnvBackend       = "PDFT_BACKEND"
	EnvSourceLang    = "PDFT_SOURCE_LANG"
	EnvTargetLang    = "PDFT_TARGET_LANG"
	EnvRedisURL      = "PDFT_REDIS_URL"
	EnvLatinFont     = "PDFT_LATIN_FONT"
	EnvCJKFont       = "PDFT_CJK_FONT"

	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is the default OpenAI model to use
	DefaultModel = "gpt-4o-mini"

	BackendHTTP = "http"
	BackendEino = "eino"

	DefaultBackend    = BackendHTTP
	DefaultSourceLang = "en"
	DefaultTargetLang = "zh-Hans"

	DefaultConcurrency    = 5
	DefaultPacingMillis   = 100
	DefaultMaxAttempts    = 4
	DefaultInitialDelayMs = 500
	DefaultMaxDelayMs     = 5000
	DefaultTimeoutSeconds = 10
	DefaultChunkLimit     = 1000
)

// ConfigManager manages application configuration
type ConfigManager struct {
	configPath string
	config     *types.Config
	getenv     func(string) string
}

// NewConfigManager creates a new ConfigManager with the specified config path.
// If configPath is empty, it uses the default path in user's home directory.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Error("failed to get user home directory", err)
			return nil, types.NewAppError(types.ErrConfig, "failed to get user home directory", err)
		}
		configPath = filepath.Join(homeDir, ".config", "pdf-translator", DefaultConfigFileName)
	}

	logger.Debug("ConfigManager initialized", logger.String("configPath", configPath))
	return &ConfigManager{
		configPath: configPath,
		config:     defaultConfig(),
		getenv:     os.Getenv,
	}, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set are kept. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return types.NewAppError(types.ErrConfig, "failed to read env file", err)
	}
	logger.Debug("env file loaded", logger.String("path", path))
	return nil
}

// defaultConfig returns a Config with default values
func defaultConfig() *types.Config {
	cfg := &types.Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(c *types.Config) {
	setString(&c.Backend, DefaultBackend)
	setString(&c.OpenAIBaseURL, DefaultBaseURL)
	setString(&c.OpenAIModel, DefaultModel)
	setString(&c.SourceLang, DefaultSourceLang)
	setString(&c.TargetLang, DefaultTargetLang)
	setInt(&c.Concurrency, DefaultConcurrency)
	setInt(&c.PacingMillis, DefaultPacingMillis)
	setInt(&c.MaxAttempts, DefaultMaxAttempts)
	setInt(&c.InitialDelayMs, DefaultInitialDelayMs)
	setInt(&c.MaxDelayMs, DefaultMaxDelayMs)
	setInt(&c.TimeoutSeconds, DefaultTimeoutSeconds)
	setInt(&c.ChunkLimit, DefaultChunkLimit)
	applyThresholdDefaults(&c.Thresholds)
}

// applyThresholdDefaults fills every threshold group left out of the file.
func applyThresholdDefaults(t *types.Thresholds) {
	d := types.DefaultThresholds()
	if t.Stitch == (types.StitchThresholds{}) {
		t.Stitch = d.Stitch
	}
	if t.Paragraph == (types.ParagraphThresholds{}) {
		t.Paragraph = d.Paragraph
	}
	if t.Table == (types.TableThresholds{}) {
		t.Table = d.Table
	}
	if t.Extract == (types.ExtractThresholds{}) {
		t.Extract = d.Extract
	}
	if t.Layout == (types.LayoutThresholds{}) {
		t.Layout = d.Layout
	}
}

func setString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if *dst <= 0 {
		*dst = v
	}
}

// Load loads configuration from the config file.
// If the file doesn't exist, it uses default values.
// Environment variables fill the fields the file leaves empty.
func (m *ConfigManager) Load() error {
	logger.Debug("loading configuration", logger.String("path", m.configPath))

	config := &types.Config{}
	data, err := os.ReadFile(m.configPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, config); err != nil {
			logger.Warn("invalid config file format, using defaults",
				logger.String("path", m.configPath), logger.Err(err))
			config = &types.Config{}
		}
	case os.IsNotExist(err):
		logger.Info("config file not found, using defaults", logger.String("path", m.configPath))
	default:
		logger.Error("failed to read config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to read config file", err)
	}

	m.applyEnv(config)
	applyDefaults(config)
	m.config = config

	logger.Info("configuration loaded",
		logger.String("backend", config.Backend),
		logger.Int("apiKeyLength", len(config.OpenAIAPIKey)),
		logger.String("baseURL", config.OpenAIBaseURL),
		logger.String("model", config.OpenAIModel),
		logger.String("source", config.SourceLang),
		logger.String("target", config.TargetLang))
	return nil
}

func (m *ConfigManager) applyEnv(c *types.Config) {
	setString(&c.OpenAIAPIKey, m.getenv(EnvOpenAIAPIKey))
	setString(&c.OpenAIBaseURL, m.getenv(EnvOpenAIBaseURL))
	setString(&c.OpenAIModel, m.getenv(EnvOpenAIModel))
	setString(&c.Backend, m.getenv(EnvBackend))
	setString(&c.SourceLang, m.getenv(EnvSourceLang))
	setString(&c.TargetLang, m.getenv(EnvTargetLang))
	setString(&c.RedisURL, m.getenv(EnvRedisURL))
	setString(&c.LatinFontPath, m.getenv(EnvLatinFont))
	setString(&c.CJKFontPath, m.getenv(EnvCJKFont))
}

// Validate checks the settings a translation job depends on.
func (m *ConfigManager) Validate() error {
	c := m.GetConfig()
	if c.Backend != BackendHTTP && c.Backend != BackendEino {
		return types.NewAppErrorWithDetails(types.ErrInvalidInput, "unknown translation backend",
			fmt.Sprintf("%q, want %q or %q", c.Backend, BackendHTTP, BackendEino), nil)
	}
	if c.OpenAIAPIKey == "" {
		return types.NewAppErrorWithDetails(types.ErrConfig, "API key is not configured",
			"set "+EnvOpenAIAPIKey+" or openai_api_key", nil)
	}
	for _, tag := range []string{c.SourceLang, c.TargetLang} {
		if _, err := language.Parse(tag); err != nil {
			return types.NewAppErrorWithDetails(types.ErrInvalidInput, "invalid language tag", tag, err)
		}
	}
	if c.LatinFontPath == "" && c.CJKFontPath == "" {
		return types.NewAppErrorWithDetails(types.ErrConfig, "no output font configured",
			"set latin_font_path or cjk_font_path", nil)
	}
	if c.InitialDelayMs > c.MaxDelayMs {
		return types.NewAppErrorWithDetails(types.ErrInvalidInput, "retry delay exceeds its cap",
			fmt.Sprintf("initial %dms > max %dms", c.InitialDelayMs, c.MaxDelayMs), nil)
	}
	if c.Thresholds.Layout.MinFontSize <= 0 || c.Thresholds.Layout.LineSpacing <= 0 {
		return types.NewAppError(types.ErrInvalidInput, "layout thresholds must be positive", nil)
	}
	return nil
}

// Save saves the current configuration to the config file.
func (m *ConfigManager) Save() error {
	logger.Debug("saving configuration", logger.String("path", m.configPath))

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewAppError(types.ErrConfig, "failed to create config directory", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		logger.Error("failed to marshal config", err)
		return types.NewAppError(types.ErrConfig, "failed to marshal config", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved successfully", logger.String("path", m.configPath))
	return nil
}

// GetConfig returns the current configuration.
func (m *ConfigManager) GetConfig() *types.Config {
	if m.config == nil {
		return defaultConfig()
	}
	return m.config
}

// SetConfig sets the entire configuration.
func (m *ConfigManager) SetConfig(config *types.Config) {
	m.config = config
}

// GetConfigPath returns the path to the config file.
func (m *ConfigManager) GetConfigPath() string {
	return m.configPath
}

// GetAPIKey returns the OpenAI API key.
// It first checks the config file value, then falls back to the environment variable.
func (m *ConfigManager) GetAPIKey() string {
	if m.config != nil && m.config.OpenAIAPIKey != "" {
		return m.config.OpenAIAPIKey
	}
	return m.getenv(EnvOpenAIAPIKey)
}

// GetWorkDirectory returns the work directory.
func (m *ConfigManager) GetWorkDirectory() string {
	if m.config != nil {
		return m.config.WorkDirectory
	}
	return ""
}
