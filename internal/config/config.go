// Package config provides configuration loading and structs for yomitori.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Input      InputConfig      `yaml:"input"`
	Output     OutputConfig     `yaml:"output"`
	Raster     RasterConfig     `yaml:"raster"`
	OCR        OCRConfig        `yaml:"ocr"`
	Triage     TriageConfig     `yaml:"triage"`
	Correction CorrectionConfig `yaml:"correction"`
	Storage    StorageConfig    `yaml:"storage"`
	Server     ServerConfig     `yaml:"server"`
	Watch      WatchConfig      `yaml:"watch"`
}

// InputConfig holds the source directories. Either may be empty.
type InputConfig struct {
	PDFDir   string `yaml:"pdf_dir"`
	ImageDir string `yaml:"image_dir"`
}

// OutputConfig holds one output directory per stage.
type OutputConfig struct {
	RasterDir      string `yaml:"raster_dir"`
	GrayDir        string `yaml:"gray_dir"`
	ResultsDir     string `yaml:"results_dir"`
	ReviewDir      string `yaml:"review_dir"`
	CorrectionsDir string `yaml:"corrections_dir"`
}

// Dirs returns each output directory keyed by its config name.
func (o *OutputConfig) Dirs() map[string]string {
	return map[string]string{
		"raster_dir":      o.RasterDir,
		"gray_dir":        o.GrayDir,
		"results_dir":     o.ResultsDir,
		"review_dir":      o.ReviewDir,
		"corrections_dir": o.CorrectionsDir,
	}
}

// RasterConfig holds PDF rasterization settings.
type RasterConfig struct {
	// DPI overrides the quality preset resolution when non-zero.
	DPI          int    `yaml:"dpi"`
	Quality      string `yaml:"quality"`
	ColorMode    string `yaml:"color_mode"`
	Workers      int    `yaml:"workers"`
	PdftoppmPath string `yaml:"pdftoppm_path"`
}

// OCRConfig holds recognition engine settings.
type OCRConfig struct {
	Engine         string `yaml:"engine"`
	TesseractPath  string `yaml:"tesseract_path"`
	Language       string `yaml:"language"`
	PSM            int    `yaml:"psm"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-image recognition timeout.
func (o *OCRConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// TriageConfig holds review routing settings.
type TriageConfig struct {
	// Threshold is a pointer so an explicit 0 survives ApplyDefaults.
	Threshold *float64 `yaml:"threshold"`
}

// ThresholdOrDefault returns the configured threshold or DefaultThreshold.
func (t *TriageConfig) ThresholdOrDefault() float64 {
	if t.Threshold != nil {
		return *t.Threshold
	}
	return DefaultThreshold
}

// CorrectionConfig holds the optional LLM correction settings.
type CorrectionConfig struct {
	Enabled        bool   `yaml:"enabled"`
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-file correction timeout.
func (c *CorrectionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StorageConfig holds paths for the run ledger and search index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WatchConfig holds inbox watch settings.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMS int  `yaml:"debounce_ms"`
}

// Load reads and parses the config file at path, expands paths, applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	cfg.ExpandPaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ExpandPaths makes every configured path absolute relative to configDir.
func (c *Config) ExpandPaths(configDir string) {
	for _, p := range []*string{
		&c.Input.PDFDir,
		&c.Input.ImageDir,
		&c.Output.RasterDir,
		&c.Output.GrayDir,
		&c.Output.ResultsDir,
		&c.Output.ReviewDir,
		&c.Output.CorrectionsDir,
		&c.Storage.DatabasePath,
		&c.Storage.BleveIndexPath,
	} {
		if *p != "" {
			*p = expandPath(*p, configDir)
		}
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Input.PDFDir == "" && c.Input.ImageDir == "" {
		return fmt.Errorf("input.pdf_dir or input.image_dir is required")
	}
	if _, ok := QualityPresets[c.Raster.Quality]; !ok {
		return fmt.Errorf("raster.quality must be high, medium or low, got %q", c.Raster.Quality)
	}
	if c.Raster.DPI < 0 || c.Raster.DPI > 1200 {
		return fmt.Errorf("raster.dpi must be between 0 and 1200, got %d", c.Raster.DPI)
	}
	if c.Raster.ColorMode != "grayscale" && c.Raster.ColorMode != "color" {
		return fmt.Errorf("raster.color_mode must be grayscale or color, got %q", c.Raster.ColorMode)
	}
	if c.Raster.Workers < 1 || c.Raster.Workers > 32 {
		return fmt.Errorf("raster.workers must be between 1 and 32, got %d", c.Raster.Workers)
	}
	if c.OCR.Engine != "cli" && c.OCR.Engine != "library" {
		return fmt.Errorf("ocr.engine must be cli or library, got %q", c.OCR.Engine)
	}
	if c.OCR.PSM < 0 || c.OCR.PSM > 13 {
		return fmt.Errorf("ocr.psm must be between 0 and 13, got %d", c.OCR.PSM)
	}
	if th := c.Triage.ThresholdOrDefault(); th < 0 || th > 100 {
		return fmt.Errorf("triage.threshold must be between 0 and 100, got %v", th)
	}
	if c.Correction.Enabled && c.Correction.APIKey == "" {
		return fmt.Errorf("correction.api_key is required when correction is enabled")
	}
	return nil
}

// EffectiveDPI returns the explicit DPI or the quality preset's DPI.
func (c *Config) EffectiveDPI() int {
	if c.Raster.DPI > 0 {
		return c.Raster.DPI
	}
	return QualityPresets[c.Raster.Quality].DPI
}

// ImageFormat returns the raster output format of the quality preset.
func (c *Config) ImageFormat() string {
	return QualityPresets[c.Raster.Quality].Format
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars substitutes ${VAR} with the environment value (empty when unset).
func expandEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envVarPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
