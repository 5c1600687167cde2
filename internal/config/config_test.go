package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_defaults(t *testing.T) {
	path := writeConfig(t, `
input:
  pdf_dir: "./pdf"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Dir(path)
	if cfg.Input.PDFDir != filepath.Join(dir, "pdf") {
		t.Errorf("pdf_dir = %s", cfg.Input.PDFDir)
	}
	if cfg.Output.ReviewDir != filepath.Join(dir, "out", "results", "manual_review") {
		t.Errorf("review_dir = %s", cfg.Output.ReviewDir)
	}
	if cfg.EffectiveDPI() != 300 || cfg.ImageFormat() != "png" {
		t.Errorf("dpi/format = %d/%s, want 300/png", cfg.EffectiveDPI(), cfg.ImageFormat())
	}
	if cfg.Raster.ColorMode != "grayscale" {
		t.Errorf("color_mode = %s, want grayscale", cfg.Raster.ColorMode)
	}
	if cfg.Triage.ThresholdOrDefault() != 65 {
		t.Errorf("threshold = %v, want 65", cfg.Triage.ThresholdOrDefault())
	}
	if cfg.OCR.Language != "eng" || cfg.OCR.PSM != 3 {
		t.Errorf("ocr = %+v", cfg.OCR)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_qualityPresetAndDPIOverride(t *testing.T) {
	path := writeConfig(t, `
input:
  pdf_dir: "./pdf"
raster:
  quality: low
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EffectiveDPI() != 150 || cfg.ImageFormat() != "jpeg" {
		t.Errorf("low preset: dpi/format = %d/%s", cfg.EffectiveDPI(), cfg.ImageFormat())
	}

	path = writeConfig(t, `
input:
  pdf_dir: "./pdf"
raster:
  quality: medium
  dpi: 400
`)
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EffectiveDPI() != 400 {
		t.Errorf("explicit dpi: got %d, want 400", cfg.EffectiveDPI())
	}
}

func TestLoad_explicitZeroThreshold(t *testing.T) {
	path := writeConfig(t, `
input:
  image_dir: "./images"
triage:
  threshold: 0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Triage.ThresholdOrDefault() != 0 {
		t.Errorf("threshold = %v, want 0", cfg.Triage.ThresholdOrDefault())
	}
}

func TestLoad_envExpansion(t *testing.T) {
	t.Setenv("YOMITORI_TEST_KEY", "sk-test")
	path := writeConfig(t, `
input:
  pdf_dir: "./pdf"
correction:
  enabled: true
  api_key: "${YOMITORI_TEST_KEY}"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Correction.APIKey != "sk-test" {
		t.Errorf("api_key = %q, want sk-test", cfg.Correction.APIKey)
	}
	if cfg.Correction.Model != "gpt-3.5-turbo" {
		t.Errorf("model = %q", cfg.Correction.Model)
	}
}

func TestLoad_validationErrors(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no input", "debug: true\n", "input.pdf_dir"},
		{"bad quality", "input:\n  pdf_dir: ./p\nraster:\n  quality: ultra\n", "raster.quality"},
		{"bad color", "input:\n  pdf_dir: ./p\nraster:\n  color_mode: sepia\n", "raster.color_mode"},
		{"threshold above 100", "input:\n  pdf_dir: ./p\ntriage:\n  threshold: 101\n", "triage.threshold"},
		{"bad engine", "input:\n  pdf_dir: ./p\nocr:\n  engine: cloud\n", "ocr.engine"},
		{"correction without key", "input:\n  pdf_dir: ./p\ncorrection:\n  enabled: true\n", "correction.api_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_apiKeyFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	cfg, err := Load(writeConfig(t, "input:\n  pdf_dir: ./p\ncorrection:\n  enabled: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Correction.APIKey != "sk-env" {
		t.Errorf("api_key = %q, want sk-env", cfg.Correction.APIKey)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestExpandPath(t *testing.T) {
	if got := expandPath("/abs/path", "/cfg"); got != "/abs/path" {
		t.Errorf("absolute: got %s", got)
	}
	if got := expandPath("./out", "/cfg"); got != filepath.Join("/cfg", "out") {
		t.Errorf("dot-relative: got %s", got)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandPath("scans", "/cfg"); got != filepath.Join(home, "scans") {
		t.Errorf("home-relative: got %s", got)
	}
}

func TestDefault(t *testing.T) {
	base := t.TempDir()
	cfg := Default(filepath.Join(base, "pdf"), base)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
	if cfg.Output.ResultsDir != filepath.Join(base, "out", "results") {
		t.Errorf("results_dir = %s", cfg.Output.ResultsDir)
	}
}
