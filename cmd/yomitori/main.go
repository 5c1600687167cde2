// Package main is the yomitori CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/yomitori/internal/cli"
	"github.com/hyperjump/yomitori/internal/config"
	"github.com/hyperjump/yomitori/internal/deps"
	"github.com/hyperjump/yomitori/internal/keyword"
	"github.com/hyperjump/yomitori/internal/metrics"
	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/internal/pipeline"
	"github.com/hyperjump/yomitori/internal/recognize"
	"github.com/hyperjump/yomitori/internal/server"
	"github.com/hyperjump/yomitori/internal/storage"
	"github.com/hyperjump/yomitori/internal/watcher"
	"github.com/hyperjump/yomitori/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/yomitori/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory takes precedence if it exists.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// .env is optional; it usually carries OPENAI_API_KEY.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "run":
		runBatch()
	case "serve", "server":
		runServer()
	case "search":
		runSearch()
	case "review":
		runReview()
	case "status":
		runStatus()
	case "check-deps":
		runCheckDeps()
	case "version", "--version", "-v":
		fmt.Printf("yomitori version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`yomitori - confidence-gated OCR for scanned documents

Usage: yomitori <command> [flags]

Commands:
  run          OCR every PDF and image in the input directories, then exit
  serve        Start the review API; with --watch, process files as they arrive
  search       Search recognized text: yomitori search [flags] <query>
  review       List pages routed to manual review
  status       Show page counts, last run and output disk usage
  check-deps   Verify pdftoppm, tesseract and language data are installed
  version      Print version
  help         Show this help

Common flags:
  --config PATH      config file (default: ./config.yaml, then ` + defaultConfigPath + `)
  --input DIR        PDF directory (works without a config file)
  --images DIR       page image directory
  --threshold N      review threshold, 0-100 (default 65)
  --dpi N            rasterization DPI
  --quality Q        high (300 DPI PNG), medium (200 DPI PNG), low (150 DPI JPEG)
  --color            skip grayscale conversion
  --lang CODE        OCR language (default eng)
  --debug            debug logging
  --output FORMAT    text or json
`)
}

// setup parses the common flags for a command and returns the config and logger.
func setup(name string, args []string, extra func(fs *flag.FlagSet)) (*config.Config, *zap.Logger, *flag.FlagSet) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	o := registerOverrides(fs)
	if extra != nil {
		extra(fs)
	}
	_ = fs.Parse(args)

	cfg, resolved, err := resolveConfig(*configPath, o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", cfg.Debug))
	return cfg, logger, fs
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func runBatch() {
	var output *string
	cfg, logger, _ := setup("run", os.Args[2:], func(fs *flag.FlagSet) {
		output = fs.String("output", "text", "summary format: text or json")
	})
	defer logger.Sync()
	format := parseFormat(*output)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup failed: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	summary, err := components.Pipeline.Run(ctx)
	if summary == nil {
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		os.Exit(1)
	}
	if err != nil {
		logger.Warn("run interrupted", zap.Error(err))
	}
	if err := cli.WriteSummary(os.Stdout, summary.Snapshot(), format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	var watchFlag *bool
	cfg, logger, _ := setup("serve", os.Args[2:], func(fs *flag.FlagSet) {
		watchFlag = fs.Bool("watch", false, "process PDFs and images as they arrive in the input directories")
	})
	defer logger.Sync()
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup failed: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()
	if components.Ledger == nil {
		fmt.Fprintln(os.Stderr, "serve requires the run ledger")
		os.Exit(1)
	}

	var watchSvc server.WatchService
	if cfg.Watch.Enabled || *watchFlag {
		p := components.Pipeline
		summary := p.Begin(ctx)
		defer p.Finish(context.Background(), summary)

		w := watcher.New([]watcher.Inbox{
			{Dir: cfg.Input.PDFDir, Extensions: pipeline.PDFExtensions},
			{Dir: cfg.Input.ImageDir, Extensions: pipeline.ImageExtensions},
		}, func(path string) {
			if err := p.ProcessDocument(ctx, path, summary); err != nil {
				logger.Warn("inbox document failed", zap.String("path", path), zap.Error(err))
			}
		},
			watcher.WithLogger(logger),
			watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMS)*time.Millisecond),
		)
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
		go w.SyncExisting()
		watchSvc = w
	}

	srv := server.NewServer(components.Ledger, components.Index, cfg, logger, watchSvc)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: yomitori search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
When nothing matches, the search is retried with fuzzy matching, which
tolerates single-character OCR misreads.

Examples:
  yomitori search boundary stone
  yomitori search --flagged --limit 20 parish register
  yomitori search --fuzzy harvcst
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves flags that appear after the query to the front so
// flag.Parse sees them; the flag package stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

type searchRequest struct {
	models.SearchQuery
	Fuzzy bool `json:"fuzzy,omitempty"`
}

type searchResponse struct {
	Query string              `json:"query"`
	Total int                 `json:"total"`
	Hits  []*models.SearchHit `json:"hits"`
}

type searchFunc func(ctx context.Context, req searchRequest) ([]*models.SearchHit, error)

// searchWithFallback runs req and, when nothing matched, retries once with fuzzy matching.
func searchWithFallback(ctx context.Context, search searchFunc, req searchRequest) ([]*models.SearchHit, error) {
	hits, err := search(ctx, req)
	if err != nil || len(hits) > 0 || req.Fuzzy {
		return hits, err
	}
	req.Fuzzy = true
	fuzzy, fuzzyErr := search(ctx, req)
	if fuzzyErr == nil && len(fuzzy) > 0 {
		return fuzzy, nil
	}
	return hits, nil
}

func runSearch() {
	var (
		serverURL   *string
		limit       *int
		fuzzy       *bool
		flaggedOnly *bool
		output      *string
	)
	cfg, logger, fs := setup("search", searchArgsReorder(os.Args[2:]), func(fs *flag.FlagSet) {
		serverURL = fs.String("server", "http://localhost:8080", "server URL (empty = open the index directly)")
		limit = fs.Int("limit", 10, "number of results")
		fuzzy = fs.Bool("fuzzy", false, "enable fuzzy matching for OCR misreads")
		flaggedOnly = fs.Bool("flagged", false, "only search pages routed to manual review")
		output = fs.String("output", "text", "output format: text or json")
		fs.Usage = func() { printSearchUsage(fs) }
	})
	defer logger.Sync()
	format := parseFormat(*output)

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	req := searchRequest{
		SearchQuery: models.SearchQuery{Query: queryStr, Limit: *limit, FlaggedOnly: *flaggedOnly},
		Fuzzy:       *fuzzy,
	}
	ctx := context.Background()

	var search searchFunc
	if *serverURL != "" {
		// The server holds the index lock, so query through its API.
		search = func(ctx context.Context, req searchRequest) ([]*models.SearchHit, error) {
			return searchViaHTTP(ctx, *serverURL, req)
		}
	} else {
		idx, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open index: %v\n", err)
			os.Exit(1)
		}
		defer idx.Close()
		search = func(ctx context.Context, req searchRequest) ([]*models.SearchHit, error) {
			var opts *keyword.SearchOptions
			if req.Fuzzy {
				opts = &keyword.SearchOptions{FuzzyEnabled: true}
			}
			return idx.Search(ctx, req.SearchQuery, opts)
		}
	}

	hits, err := searchWithFallback(ctx, search, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, queryStr, hits, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(ctx context.Context, serverURL string, req searchRequest) ([]*models.SearchHit, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/api/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Hits, nil
}

func openLedger(cfg *config.Config) storage.Ledger {
	ledger, err := storage.NewSQLiteLedger(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open ledger: %v\n", err)
		os.Exit(1)
	}
	return ledger
}

func runReview() {
	var (
		limit  *int
		output *string
	)
	cfg, logger, _ := setup("review", os.Args[2:], func(fs *flag.FlagSet) {
		limit = fs.Int("limit", 100, "maximum pages to list")
		output = fs.String("output", "text", "output format: text or json")
	})
	defer logger.Sync()
	format := parseFormat(*output)

	ledger := openLedger(cfg)
	defer ledger.Close()
	pages, err := ledger.ListFlagged(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Review failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteReview(os.Stdout, pages, cfg.Triage.ThresholdOrDefault(), format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	var output *string
	cfg, logger, _ := setup("status", os.Args[2:], func(fs *flag.FlagSet) {
		output = fs.String("output", "text", "output format: text or json")
	})
	defer logger.Sync()
	format := parseFormat(*output)

	st, err := collectStatus(context.Background(), cfg, openLedger(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, st, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// collectStatus gathers ledger counts, the latest run and output sizes. It closes ledger.
func collectStatus(ctx context.Context, cfg *config.Config, ledger storage.Ledger) (*cli.Status, error) {
	defer ledger.Close()
	counts, err := ledger.CountPages(ctx)
	if err != nil {
		return nil, err
	}
	st := &cli.Status{Pages: counts}
	runs, err := ledger.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		st.LastRun = runs[0]
	}
	dirs := cfg.Output.Dirs()
	dirs["database"] = cfg.Storage.DatabasePath
	dirs["index"] = cfg.Storage.BleveIndexPath
	if st.DiskUsage, err = storage.OutputUsage(dirs); err != nil {
		return nil, err
	}
	st.Config = map[string]string{
		"threshold":  fmt.Sprintf("%g", cfg.Triage.ThresholdOrDefault()),
		"dpi":        fmt.Sprintf("%d", cfg.EffectiveDPI()),
		"quality":    cfg.Raster.Quality,
		"color_mode": cfg.Raster.ColorMode,
		"language":   cfg.OCR.Language,
		"engine":     cfg.OCR.Engine,
		"pdf_dir":    cfg.Input.PDFDir,
		"image_dir":  cfg.Input.ImageDir,
	}
	return st, nil
}

func runCheckDeps() {
	cfg, logger, _ := setup("check-deps", os.Args[2:], nil)
	defer logger.Sync()

	engine, err := recognize.NewEngine(cfg.OCR.Engine, cfg.OCR.TesseractPath, cfg.OCR.Language, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	report := deps.Check(context.Background(), cfg, engine)
	report.Print(os.Stdout)
	if err := report.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "\n%v\n", err)
		os.Exit(1)
	}
}
