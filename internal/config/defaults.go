package config

import "os"

// DefaultThreshold is the aggregate confidence below which a result is routed for review.
const DefaultThreshold = 65.0

// QualityPreset pairs a rasterization resolution with an output format.
type QualityPreset struct {
	DPI    int
	Format string
}

// QualityPresets maps quality names to rasterization settings.
var QualityPresets = map[string]QualityPreset{
	"high":   {DPI: 300, Format: "png"},
	"medium": {DPI: 200, Format: "png"},
	"low":    {DPI: 150, Format: "jpeg"},
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Output.RasterDir == "" {
		cfg.Output.RasterDir = "./out/converted_images"
	}
	if cfg.Output.GrayDir == "" {
		cfg.Output.GrayDir = "./out/grayscale_images"
	}
	if cfg.Output.ResultsDir == "" {
		cfg.Output.ResultsDir = "./out/results"
	}
	if cfg.Output.ReviewDir == "" {
		cfg.Output.ReviewDir = "./out/results/manual_review"
	}
	if cfg.Output.CorrectionsDir == "" {
		cfg.Output.CorrectionsDir = "./out/corrections"
	}
	if cfg.Raster.Quality == "" {
		cfg.Raster.Quality = "high"
	}
	if cfg.Raster.ColorMode == "" {
		cfg.Raster.ColorMode = "grayscale"
	}
	if cfg.Raster.Workers == 0 {
		cfg.Raster.Workers = 2
	}
	if cfg.Raster.PdftoppmPath == "" {
		cfg.Raster.PdftoppmPath = "pdftoppm"
	}
	if cfg.OCR.Engine == "" {
		cfg.OCR.Engine = "cli"
	}
	if cfg.OCR.TesseractPath == "" {
		cfg.OCR.TesseractPath = "tesseract"
	}
	if cfg.OCR.Language == "" {
		cfg.OCR.Language = "eng"
	}
	if cfg.OCR.PSM == 0 {
		cfg.OCR.PSM = 3
	}
	if cfg.OCR.TimeoutSeconds == 0 {
		cfg.OCR.TimeoutSeconds = 120
	}
	if cfg.Correction.APIKey == "" {
		cfg.Correction.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Correction.Model == "" {
		cfg.Correction.Model = "gpt-3.5-turbo"
	}
	if cfg.Correction.TimeoutSeconds == 0 {
		cfg.Correction.TimeoutSeconds = 60
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/yomitori.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "./data/index"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 400
	}
}

// Default returns a configuration reading PDFs from pdfDir with every other value defaulted.
// Relative output paths resolve against baseDir.
func Default(pdfDir, baseDir string) *Config {
	cfg := &Config{Input: InputConfig{PDFDir: pdfDir}}
	ApplyDefaults(cfg)
	cfg.ExpandPaths(baseDir)
	return cfg
}
