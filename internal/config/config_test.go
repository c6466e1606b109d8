package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pdf-translator/internal/types"
)

func newTestManager(t *testing.T, path string, env map[string]string) *ConfigManager {
	t.Helper()
	cm, err := NewConfigManager(path)
	if err != nil {
		t.Fatalf("NewConfigManager failed: %v", err)
	}
	cm.getenv = func(k string) string { return env[k] }
	return cm
}

func TestNewConfigManager(t *testing.T) {
	t.Run("with custom path", func(t *testing.T) {
		customPath := filepath.Join(t.TempDir(), "test-config.json")
		cm, err := NewConfigManager(customPath)
		if err != nil {
			t.Fatalf("NewConfigManager failed: %v", err)
		}
		if cm.GetConfigPath() != customPath {
			t.Errorf("expected config path %s, got %s", customPath, cm.GetConfigPath())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		cm, err := NewConfigManager("")
		if err != nil {
			t.Fatalf("NewConfigManager failed: %v", err)
		}
		if filepath.Base(cm.GetConfigPath()) != DefaultConfigFileName {
			t.Errorf("expected default file name, got %s", cm.GetConfigPath())
		}
	})
}

func TestConfigManager_LoadSave(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "test-config.json")

	t.Run("Load with non-existent file uses defaults", func(t *testing.T) {
		cm := newTestManager(t, configPath, nil)
		if err := cm.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		config := cm.GetConfig()
		if config.OpenAIModel != DefaultModel {
			t.Errorf("expected default model %s, got %s", DefaultModel, config.OpenAIModel)
		}
		if config.Backend != DefaultBackend {
			t.Errorf("expected default backend %s, got %s", DefaultBackend, config.Backend)
		}
		if config.Concurrency != DefaultConcurrency || config.MaxAttempts != DefaultMaxAttempts {
			t.Errorf("unexpected retry defaults: %+v", config)
		}
		if config.Thresholds != types.DefaultThresholds() {
			t.Errorf("expected default thresholds, got %+v", config.Thresholds)
		}
	})

	t.Run("Save creates config file", func(t *testing.T) {
		cm := newTestManager(t, configPath, nil)
		cm.SetConfig(&types.Config{
			OpenAIAPIKey:  "test-api-key",
			OpenAIModel:   "gpt-3.5-turbo",
			TargetLang:    "de",
			LatinFontPath: "/fonts/latin.ttf",
			Thresholds: types.Thresholds{
				Layout: types.LayoutThresholds{LineSpacing: 1.5, ShrinkStep: 1, MinFontSize: 4, DefaultStroke: 1},
			},
		})

		if err := cm.Save(); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			t.Error("config file was not created")
		}
	})

	t.Run("Load reads saved config", func(t *testing.T) {
		cm := newTestManager(t, configPath, nil)
		if err := cm.Load(); err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		config := cm.GetConfig()
		if config.OpenAIAPIKey != "test-api-key" {
			t.Errorf("expected API key 'test-api-key', got '%s'", config.OpenAIAPIKey)
		}
		if config.OpenAIModel != "gpt-3.5-turbo" {
			t.Errorf("expected model 'gpt-3.5-turbo', got '%s'", config.OpenAIModel)
		}
		if config.TargetLang != "de" {
			t.Errorf("expected target 'de', got '%s'", config.TargetLang)
		}
		if config.Thresholds.Layout.MinFontSize != 4 {
			t.Errorf("expected saved layout thresholds, got %+v", config.Thresholds.Layout)
		}
		if config.Thresholds.Stitch != types.DefaultThresholds().Stitch {
			t.Errorf("expected default stitch thresholds, got %+v", config.Thresholds.Stitch)
		}
	})

	t.Run("Load with invalid JSON uses defaults", func(t *testing.T) {
		invalidConfigPath := filepath.Join(t.TempDir(), "invalid-config.json")
		if err := os.WriteFile(invalidConfigPath, []byte("invalid json"), 0644); err != nil {
			t.Fatalf("failed to write invalid config: %v", err)
		}

		cm := newTestManager(t, invalidConfigPath, nil)
		if err := cm.Load(); err != nil {
			t.Fatalf("Load should not fail on invalid JSON: %v", err)
		}
		if cm.GetConfig().OpenAIModel != DefaultModel {
			t.Errorf("expected default model, got %s", cm.GetConfig().OpenAIModel)
		}
	})
}

func TestConfigManager_EnvFillsEmptyFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"openai_model":"from-file"}`), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cm := newTestManager(t, path, map[string]string{
		EnvOpenAIAPIKey: "env-key",
		EnvOpenAIModel:  "from-env",
		EnvTargetLang:   "ja",
		EnvRedisURL:     "redis://localhost:6379/0",
	})
	if err := cm.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	config := cm.GetConfig()
	if config.OpenAIAPIKey != "env-key" {
		t.Errorf("expected API key from env, got %q", config.OpenAIAPIKey)
	}
	if config.OpenAIModel != "from-file" {
		t.Errorf("file value should win, got %q", config.OpenAIModel)
	}
	if config.TargetLang != "ja" {
		t.Errorf("expected target from env, got %q", config.TargetLang)
	}
	if config.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("expected redis URL from env, got %q", config.RedisURL)
	}
}

func TestConfigManager_Validate(t *testing.T) {
	valid := func() *types.Config {
		c := defaultConfig()
		c.OpenAIAPIKey = "key"
		c.LatinFontPath = "/fonts/latin.ttf"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *types.Config)
		wantErr bool
		code    types.ErrorCode
	}{
		{"valid", func(c *types.Config) {}, false, ""},
		{"eino backend", func(c *types.Config) { c.Backend = BackendEino }, false, ""},
		{"unknown backend", func(c *types.Config) { c.Backend = "grpc" }, true, types.ErrInvalidInput},
		{"missing key", func(c *types.Config) { c.OpenAIAPIKey = "" }, true, types.ErrConfig},
		{"bad language", func(c *types.Config) { c.TargetLang = "not a tag!" }, true, types.ErrInvalidInput},
		{"no font", func(c *types.Config) { c.LatinFontPath = "" }, true, types.ErrConfig},
		{"cjk font only", func(c *types.Config) { c.LatinFontPath = ""; c.CJKFontPath = "/fonts/cjk.ttf" }, false, ""},
		{"delay over cap", func(c *types.Config) { c.InitialDelayMs = 9000 }, true, types.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			cm := newTestManager(t, filepath.Join(t.TempDir(), "c.json"), nil)
			cm.SetConfig(c)

			err := cm.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected AppError, got %T", err)
			}
			if appErr.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, appErr.Code)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		if err := LoadEnvFile(filepath.Join(t.TempDir(), ".env")); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("sets unset variables", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(path, []byte("PDFT_TEST_DOTENV=from-file\n"), 0644); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}
		t.Setenv("PDFT_TEST_DOTENV", "")
		os.Unsetenv("PDFT_TEST_DOTENV")

		if err := LoadEnvFile(path); err != nil {
			t.Fatalf("LoadEnvFile failed: %v", err)
		}
		if got := os.Getenv("PDFT_TEST_DOTENV"); got != "from-file" {
			t.Errorf("expected from-file, got %q", got)
		}
	})
}

func TestGetAPIKeyFallsBackToEnv(t *testing.T) {
	cm := newTestManager(t, filepath.Join(t.TempDir(), "c.json"), map[string]string{EnvOpenAIAPIKey: "env-key"})
	cm.SetConfig(&types.Config{})
	if got := cm.GetAPIKey(); got != "env-key" {
		t.Errorf("expected env-key, got %q", got)
	}
}
