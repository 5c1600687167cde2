// Package storage defines the run ledger: batch runs and the latest outcome of every page.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/yomitori/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Ledger persists runs and page outcomes.
type Ledger interface {
	// Run operations
	CreateRun(ctx context.Context, run *models.RunRecord) error
	FinishRun(ctx context.Context, summary models.SummarySnapshot) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)

	// Page operations
	UpsertPage(ctx context.Context, page *models.PageRecord) error
	GetPage(ctx context.Context, id string) (*models.PageRecord, error)
	ListFlagged(ctx context.Context, limit int) ([]*models.PageRecord, error)

	// Stats
	CountPages(ctx context.Context) (models.PageCounts, error)

	Close() error
}
