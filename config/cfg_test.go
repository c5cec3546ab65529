package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ebr/common"
)

func TestLoadConfiguration_NoFile(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() with empty path error = %v", err)
	}

	if cfg == nil {
		t.Fatal("LoadConfiguration() returned nil config")
	}

	if cfg.Version != 1 {
		t.Errorf("Default config version = %d, want 1", cfg.Version)
	}
}

func TestLoadConfiguration_WithFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `version: 1
reader:
  cache:
    max_chapters: 5
    chapter_budget_mb: 64
    image_budget_mb: 16
  images:
    use_broken: true
    rasterize_svg: true
    max_dimension: 2048
    jpeg_quality_level: 85
  positions:
    path: ` + filepath.ToSlash(filepath.Join(tmpDir, "positions.db")) + `
  default_mode: page
  scroll_step: 0.5
logging:
  console:
    level: normal
  file:
    level: debug
    destination: ` + filepath.ToSlash(filepath.Join(tmpDir, "test.log")) + `
    mode: append
reporting:
  destination: ` + filepath.ToSlash(filepath.Join(tmpDir, "test-report.zip")) + `
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfiguration(configPath)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	if cfg.Reader.Cache.MaxChapters != 5 {
		t.Errorf("MaxChapters = %d, want 5", cfg.Reader.Cache.MaxChapters)
	}

	if cfg.Reader.Cache.ChapterBudgetBytes() != 64*1024*1024 {
		t.Errorf("ChapterBudgetBytes() = %d, want %d", cfg.Reader.Cache.ChapterBudgetBytes(), 64*1024*1024)
	}

	if cfg.Reader.Images.JPEGQuality != 85 {
		t.Errorf("JPEGQuality = %d, want 85", cfg.Reader.Images.JPEGQuality)
	}

	if cfg.Reader.DefaultMode != common.ModePage {
		t.Errorf("DefaultMode = %v, want %v", cfg.Reader.DefaultMode, common.ModePage)
	}

	if cfg.Reader.ScrollStep != 0.5 {
		t.Errorf("ScrollStep = %f, want 0.5", cfg.Reader.ScrollStep)
	}
}

func TestLoadConfiguration_NonExistentFile(t *testing.T) {
	_, err := LoadConfiguration("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestLoadConfiguration_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `version: 1
reader:
  cache:
  invalid indent
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := LoadConfiguration(configPath)
	if err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestLoadConfiguration_UnknownFields(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "unknown.yaml")

	configWithUnknown := `version: 1
unknown_field: value
`

	if err := os.WriteFile(configPath, []byte(configWithUnknown), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := LoadConfiguration(configPath)
	if err == nil {
		t.Error("Expected error for unknown fields")
	}
}

func TestLoadConfiguration_ValidationError(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_values.yaml")

	// Invalid version number
	configWithInvalidVersion := `version: 2
`

	if err := os.WriteFile(configPath, []byte(configWithInvalidVersion), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := LoadConfiguration(configPath)
	if err == nil {
		t.Error("Expected validation error for invalid version")
	}
}

func TestPrepare(t *testing.T) {
	data, err := Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if len(data) == 0 {
		t.Error("Prepare() returned empty data")
	}

	// Verify it's valid YAML by trying to unmarshal
	cfg := &Config{}
	_, err = unmarshalConfig(data, cfg, true)
	if err != nil {
		t.Errorf("Prepared config is not valid: %v", err)
	}
}

func TestDump(t *testing.T) {
	cfg := &Config{
		Version: 1,
		Reader: ReaderConfig{
			Cache: CacheConfig{
				MaxChapters:     10,
				ChapterBudgetMB: 150,
				ImageBudgetMB:   50,
			},
			Images: ImagesConfig{
				UseBroken:   true,
				JPEGQuality: 80,
			},
			DefaultMode: common.ModeScroll,
			ScrollStep:  0.9,
		},
	}

	data, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}

	if len(data) == 0 {
		t.Error("Dump() returned empty data")
	}

	// Verify we can load it back
	cfg2 := &Config{}
	_, err = unmarshalConfig(data, cfg2, false)
	if err != nil {
		t.Errorf("Dumped config cannot be loaded: %v", err)
	}

	if cfg2.Reader.Cache.MaxChapters != cfg.Reader.Cache.MaxChapters {
		t.Errorf("MaxChapters mismatch after dump/load: got %d, want %d",
			cfg2.Reader.Cache.MaxChapters, cfg.Reader.Cache.MaxChapters)
	}
}

func TestConfig_DefaultValues(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	if cfg.Reader.Cache.MaxChapters < 1 {
		t.Errorf("MaxChapters = %d, should be at least 1", cfg.Reader.Cache.MaxChapters)
	}

	if cfg.Reader.Cache.ChapterBudgetMB < cfg.Reader.Cache.ImageBudgetMB {
		t.Error("chapter budget is expected to dominate image budget by default")
	}

	if cfg.Reader.Images.JPEGQuality < 40 || cfg.Reader.Images.JPEGQuality > 100 {
		t.Errorf("JPEGQuality = %d, should be between 40 and 100", cfg.Reader.Images.JPEGQuality)
	}

	if cfg.Reader.ScrollStep <= 0 || cfg.Reader.ScrollStep > 1 {
		t.Errorf("ScrollStep = %f, should be in (0, 1]", cfg.Reader.ScrollStep)
	}

	if cfg.Reader.DefaultMode != common.ModeScroll {
		t.Errorf("DefaultMode = %v, want scroll", cfg.Reader.DefaultMode)
	}
}

func TestLoadConfiguration_MergeWithDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.yaml")

	// Partial config that only overrides some values
	partialConfig := `version: 1
reader:
  default_mode: page
`

	if err := os.WriteFile(configPath, []byte(partialConfig), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadConfiguration(configPath)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	if cfg.Reader.DefaultMode != common.ModePage {
		t.Error("Expected DefaultMode to be page from config file")
	}

	// Defaults are still present for unspecified fields
	if cfg.Reader.Cache.MaxChapters < 1 {
		t.Error("MaxChapters should have default value")
	}
}

func TestUnmarshalConfig_WrapsValidationError(t *testing.T) {
	// version: 99 will fail validation (validate:"eq=1").
	data := []byte("version: 99\n")
	cfg := &Config{}

	_, err := unmarshalConfig(data, cfg, true)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}

	if !strings.Contains(err.Error(), "validat") {
		t.Errorf("expected error to mention validation, got: %v", err)
	}

	// The error should preserve the chain so that the underlying validation
	// error is reachable via errors.Unwrap.
	if errors.Unwrap(err) == nil {
		t.Errorf("expected wrapped error (errors.Unwrap non-nil), got bare error: %v", err)
	}
}
