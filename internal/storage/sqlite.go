package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/yomitori/internal/models"
)

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS pages (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		document TEXT NOT NULL,
		page_index INTEGER NOT NULL,
		image_path TEXT NOT NULL,
		state TEXT NOT NULL,
		failed_stage TEXT,
		confidence REAL,
		word_count INTEGER NOT NULL DEFAULT 0,
		flagged INTEGER NOT NULL DEFAULT 0,
		result_path TEXT,
		review_path TEXT,
		error TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_pages_flagged ON pages(flagged, document, page_index);
	CREATE INDEX IF NOT EXISTS idx_pages_run_id ON pages(run_id);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateRun inserts a run.
func (s *SQLiteLedger) CreateRun(ctx context.Context, run *models.RunRecord) error {
	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, summary) VALUES (?, ?, ?)`,
		run.ID, run.StartedAt, string(summaryJSON),
	)
	return err
}

// FinishRun stores the final summary and finish time of the run named in summary.
func (s *SQLiteLedger) FinishRun(ctx context.Context, summary models.SummarySnapshot) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	finished := summary.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, summary = ? WHERE id = ?`,
		finished, string(summaryJSON), summary.RunID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s: %w", summary.RunID, ErrNotFound)
	}
	return nil
}

// GetRun returns a run by ID.
func (s *SQLiteLedger) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, summary FROM runs WHERE id = ?`, id,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs first.
func (s *SQLiteLedger) ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, summary
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*models.RunRecord, error) {
	var run models.RunRecord
	var finished sql.NullTime
	var summaryJSON sql.NullString
	if err := sc.Scan(&run.ID, &run.StartedAt, &finished, &summaryJSON); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		if err := json.Unmarshal([]byte(summaryJSON.String), &run.Summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
		}
	}
	return &run, nil
}

// UpsertPage inserts or replaces the record for page.ID.
func (s *SQLiteLedger) UpsertPage(ctx context.Context, page *models.PageRecord) error {
	page.UpdatedAt = time.Now()
	var conf sql.NullFloat64
	if page.Confidence != nil {
		conf = sql.NullFloat64{Float64: *page.Confidence, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pages (id, run_id, document, page_index, image_path, state, failed_stage,
		     confidence, word_count, flagged, result_path, review_path, error, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     run_id = excluded.run_id,
		     document = excluded.document,
		     page_index = excluded.page_index,
		     image_path = excluded.image_path,
		     state = excluded.state,
		     failed_stage = excluded.failed_stage,
		     confidence = excluded.confidence,
		     word_count = excluded.word_count,
		     flagged = excluded.flagged,
		     result_path = excluded.result_path,
		     review_path = excluded.review_path,
		     error = excluded.error,
		     updated_at = excluded.updated_at`,
		page.ID, page.RunID, page.Document, page.PageIndex, page.ImagePath, string(page.State),
		page.FailedStage, conf, page.WordCount, page.Flagged, page.ResultPath, page.ReviewPath,
		page.Error, page.UpdatedAt,
	)
	return err
}

const pageColumns = `id, run_id, document, page_index, image_path, state, failed_stage,
	confidence, word_count, flagged, result_path, review_path, error, updated_at`

// GetPage returns a page record by ID.
func (s *SQLiteLedger) GetPage(ctx context.Context, id string) (*models.PageRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = ?`, id)
	page, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("page %s: %w", id, ErrNotFound)
	}
	return page, err
}

// ListFlagged returns flagged pages ordered by document, then ascending page index.
func (s *SQLiteLedger) ListFlagged(ctx context.Context, limit int) ([]*models.PageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pageColumns+` FROM pages
		 WHERE flagged = 1 ORDER BY document ASC, page_index ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []*models.PageRecord
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

func scanPage(sc scanner) (*models.PageRecord, error) {
	var p models.PageRecord
	var state string
	var failedStage, resultPath, reviewPath, errText sql.NullString
	var conf sql.NullFloat64
	err := sc.Scan(&p.ID, &p.RunID, &p.Document, &p.PageIndex, &p.ImagePath, &state, &failedStage,
		&conf, &p.WordCount, &p.Flagged, &resultPath, &reviewPath, &errText, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.State = models.PageState(state)
	p.FailedStage = failedStage.String
	p.ResultPath = resultPath.String
	p.ReviewPath = reviewPath.String
	p.Error = errText.String
	if conf.Valid {
		c := conf.Float64
		p.Confidence = &c
	}
	return &p, nil
}

// CountPages returns page totals by outcome.
func (s *SQLiteLedger) CountPages(ctx context.Context) (models.PageCounts, error) {
	var c models.PageCounts
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0)
		 FROM pages`,
		string(models.StateFiled), string(models.StateFlagged), string(models.StateFailed),
	).Scan(&c.Total, &c.Filed, &c.Flagged, &c.Failed)
	return c, err
}

// Close closes the database.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}
