package main

import (
	"context"
	"errors"
	"flag"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/hyperjump/yomitori/internal/config"
	"github.com/hyperjump/yomitori/internal/keyword"
	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/internal/server"
	"github.com/hyperjump/yomitori/internal/storage"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"parish register", "-limit", "5"},
			expected: []string{"-limit", "5", "parish register"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-fuzzy", "parish register"},
			expected: []string{"-fuzzy", "parish register"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"parish register"},
			expected: []string{"parish register"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"boundary", "stone", "--flagged"},
			expected: []string{"--flagged", "boundary", "stone"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"harvest"}, "harvest"},
		{"multiple words", []string{"harvest", "festival"}, "harvest festival"},
		{"single quoted phrase", []string{"harvest festival"}, "harvest festival"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildSearchQuery(tt.args); got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, "debug: true\ninput:\n  pdf_dir: ./pdfs\n")
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, "input:\n  pdf_dir: ./pdfs\nserver:\n  host: 127.0.0.1\n  port: 9000\n")
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Input.PDFDir != filepath.Join(dir, "pdfs") {
		t.Errorf("pdf_dir = %s", cfg.Input.PDFDir)
	}
}

func parseOverrides(t *testing.T, args ...string) *overrides {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	o := registerOverrides(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}
	return o
}

func TestOverrides_apply(t *testing.T) {
	cfg := config.Default("/in/pdfs", t.TempDir())
	o := parseOverrides(t, "--threshold", "0", "--dpi", "150", "--quality", "low", "--color", "--lang", "eng+lat", "--debug")
	if err := o.apply(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Triage.ThresholdOrDefault() != 0 {
		t.Errorf("threshold = %v, want explicit 0", cfg.Triage.ThresholdOrDefault())
	}
	if cfg.EffectiveDPI() != 150 || cfg.ImageFormat() != "jpeg" {
		t.Errorf("dpi/format = %d/%s", cfg.EffectiveDPI(), cfg.ImageFormat())
	}
	if cfg.Raster.ColorMode != "color" || cfg.OCR.Language != "eng+lat" || !cfg.Debug {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestOverrides_unsetLeavesConfig(t *testing.T) {
	cfg := config.Default("/in/pdfs", t.TempDir())
	if err := parseOverrides(t).apply(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Triage.Threshold != nil || cfg.Raster.ColorMode != "grayscale" || cfg.EffectiveDPI() != 300 {
		t.Errorf("unset flags changed config: %+v", cfg)
	}
}

func TestOverrides_invalid(t *testing.T) {
	cfg := config.Default("/in/pdfs", t.TempDir())
	if err := parseOverrides(t, "--threshold", "150").apply(cfg); err == nil {
		t.Error("expected threshold validation error")
	}
	cfg = config.Default("/in/pdfs", t.TempDir())
	if err := parseOverrides(t, "--quality", "ultra").apply(cfg); err == nil {
		t.Error("expected quality validation error")
	}
}

func TestResolveConfig_inputWithoutConfigFile(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.yaml")

	if _, _, err := resolveConfig(missing, parseOverrides(t)); err == nil {
		t.Error("missing config without --input should fail")
	}

	pdfs := filepath.Join(dir, "pdfs")
	cfg, resolved, err := resolveConfig(missing, parseOverrides(t, "--input", pdfs))
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" || cfg.Input.PDFDir != pdfs {
		t.Errorf("resolved = %q pdf_dir = %q", resolved, cfg.Input.PDFDir)
	}
	if !filepath.IsAbs(cfg.Output.ResultsDir) {
		t.Errorf("results dir should be absolute: %s", cfg.Output.ResultsDir)
	}
}

func TestResolveConfig_badConfigNotMasked(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "input: [unclosed\n")
	if _, _, err := resolveConfig(path, parseOverrides(t, "--input", dir)); err == nil {
		t.Error("a malformed config file should not fall back to defaults")
	}
}

func TestSearchWithFallback(t *testing.T) {
	hit := &models.SearchHit{ID: "page:1"}
	var calls []bool
	search := func(_ context.Context, req searchRequest) ([]*models.SearchHit, error) {
		calls = append(calls, req.Fuzzy)
		if req.Fuzzy {
			return []*models.SearchHit{hit}, nil
		}
		return nil, nil
	}
	hits, err := searchWithFallback(context.Background(), search, searchRequest{SearchQuery: models.SearchQuery{Query: "harvcst"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || !reflect.DeepEqual(calls, []bool{false, true}) {
		t.Errorf("hits = %v calls = %v", hits, calls)
	}

	boom := errors.New("down")
	failing := func(context.Context, searchRequest) ([]*models.SearchHit, error) { return nil, boom }
	if _, err := searchWithFallback(context.Background(), failing, searchRequest{}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestSearchViaHTTP(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(filepath.Join(dir, "pdfs"), dir)
	ledger, err := storage.NewSQLiteLedger(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer ledger.Close()
	idx, err := keyword.NewMemoryIndex()
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()
	if err := idx.Index(ctx, "page:7", &keyword.PageDoc{Title: "tithe.png", Content: "tithe barn accounts", Document: "tithe.pdf", PageIndex: 1}); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(server.NewServer(ledger, idx, cfg, nil, nil).Router())
	defer ts.Close()

	hits, err := searchViaHTTP(ctx, ts.URL, searchRequest{SearchQuery: models.SearchQuery{Query: "barn"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "page:7" {
		t.Errorf("hits = %+v", hits)
	}
	if _, err := searchViaHTTP(ctx, ts.URL, searchRequest{}); err == nil {
		t.Error("empty query should return a server error")
	}
}

func TestCollectStatus(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(filepath.Join(dir, "pdfs"), dir)
	ledger, err := storage.NewSQLiteLedger(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	now := time.Now().UTC()
	if err := ledger.CreateRun(ctx, &models.RunRecord{ID: "run-1", StartedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := ledger.UpsertPage(ctx, &models.PageRecord{ID: "page:1", RunID: "run-1", Document: "a.pdf", PageIndex: 1, State: models.StateFlagged, Flagged: true, UpdatedAt: now}); err != nil {
		t.Fatal(err)
	}

	st, err := collectStatus(ctx, cfg, ledger)
	if err != nil {
		t.Fatal(err)
	}
	if st.Pages.Total != 1 || st.Pages.Flagged != 1 {
		t.Errorf("pages = %+v", st.Pages)
	}
	if st.LastRun == nil || st.LastRun.ID != "run-1" {
		t.Errorf("last run = %+v", st.LastRun)
	}
	if st.DiskUsage["database"] == 0 {
		t.Error("database size should be reported")
	}
	if st.Config["threshold"] != "65" || st.Config["dpi"] != "300" {
		t.Errorf("config = %v", st.Config)
	}
}
