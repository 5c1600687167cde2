package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/yomitori/internal/models"
)

func openLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	ledger, err := NewSQLiteLedger(filepath.Join(t.TempDir(), "data", "yomitori.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

func confidence(v float64) *float64 { return &v }

func TestSQLiteLedger_Runs(t *testing.T) {
	ledger := openLedger(t)
	ctx := context.Background()

	started := time.Now().Add(-time.Minute)
	if err := ledger.CreateRun(ctx, &models.RunRecord{ID: "run1", StartedAt: started}); err != nil {
		t.Fatal(err)
	}
	if err := ledger.CreateRun(ctx, &models.RunRecord{ID: "run2", StartedAt: started.Add(30 * time.Second)}); err != nil {
		t.Fatal(err)
	}

	got, err := ledger.GetRun(ctx, "run1")
	if err != nil {
		t.Fatal(err)
	}
	if got.FinishedAt != nil {
		t.Error("unfinished run should have nil FinishedAt")
	}

	summary := models.SummarySnapshot{RunID: "run1", DocumentsTotal: 3, DocumentsSucceeded: 2, DocumentsFailed: 1, TotalWords: 412, FinishedAt: time.Now()}
	if err := ledger.FinishRun(ctx, summary); err != nil {
		t.Fatal(err)
	}
	got, err = ledger.GetRun(ctx, "run1")
	if err != nil {
		t.Fatal(err)
	}
	if got.FinishedAt == nil {
		t.Fatal("finished run should have FinishedAt")
	}
	if got.Summary.DocumentsFailed != 1 || got.Summary.TotalWords != 412 {
		t.Errorf("summary = %+v", got.Summary)
	}

	runs, err := ledger.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "run2" {
		t.Errorf("expected newest run first, got %d runs", len(runs))
	}

	if err := ledger.FinishRun(ctx, models.SummarySnapshot{RunID: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishRun unknown: expected ErrNotFound, got %v", err)
	}
	if _, err := ledger.GetRun(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun unknown: expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteLedger_Pages(t *testing.T) {
	ledger := openLedger(t)
	ctx := context.Background()

	pages := []*models.PageRecord{
		{ID: "p3", RunID: "r", Document: "ledger.pdf", PageIndex: 3, ImagePath: "/g/ledger_page_003.png", State: models.StateFlagged, Confidence: confidence(40), Flagged: true, WordCount: 12},
		{ID: "p1", RunID: "r", Document: "ledger.pdf", PageIndex: 1, ImagePath: "/g/ledger_page_001.png", State: models.StateFlagged, Confidence: confidence(56), Flagged: true},
		{ID: "p2", RunID: "r", Document: "ledger.pdf", PageIndex: 2, ImagePath: "/g/ledger_page_002.png", State: models.StateFiled, Confidence: confidence(93), WordCount: 200},
		{ID: "a1", RunID: "r", Document: "album.pdf", PageIndex: 1, ImagePath: "/g/album.png", State: models.StateFlagged, Flagged: true},
		{ID: "x1", RunID: "r", Document: "broken.pdf", PageIndex: 1, ImagePath: "/g/broken.png", State: models.StateFailed, FailedStage: "recognize", Error: "timeout"},
	}
	for _, p := range pages {
		if err := ledger.UpsertPage(ctx, p); err != nil {
			t.Fatalf("UpsertPage %s: %v", p.ID, err)
		}
	}

	got, err := ledger.GetPage(ctx, "p3")
	if err != nil {
		t.Fatal(err)
	}
	if got.Confidence == nil || *got.Confidence != 40 || !got.Flagged || got.WordCount != 12 {
		t.Errorf("GetPage = %+v", got)
	}
	blank, err := ledger.GetPage(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if blank.Confidence != nil {
		t.Error("undefined confidence should round-trip as nil")
	}

	flagged, err := ledger.ListFlagged(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, p := range flagged {
		ids = append(ids, p.ID)
	}
	want := []string{"a1", "p1", "p3"}
	if len(ids) != len(want) {
		t.Fatalf("ListFlagged = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ListFlagged[%d] = %s, want %s", i, ids[i], want[i])
		}
	}

	counts, err := ledger.CountPages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts.Total != 5 || counts.Filed != 1 || counts.Flagged != 3 || counts.Failed != 1 {
		t.Errorf("CountPages = %+v", counts)
	}

	if _, err := ledger.GetPage(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteLedger_UpsertReplaces(t *testing.T) {
	ledger := openLedger(t)
	ctx := context.Background()

	page := &models.PageRecord{ID: "p1", RunID: "r1", Document: "d.pdf", PageIndex: 1, ImagePath: "/g/d.png", State: models.StateFlagged, Confidence: confidence(50), Flagged: true}
	if err := ledger.UpsertPage(ctx, page); err != nil {
		t.Fatal(err)
	}
	page = &models.PageRecord{ID: "p1", RunID: "r2", Document: "d.pdf", PageIndex: 1, ImagePath: "/g/d.png", State: models.StateFiled, Confidence: confidence(90)}
	if err := ledger.UpsertPage(ctx, page); err != nil {
		t.Fatal(err)
	}

	got, err := ledger.GetPage(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.RunID != "r2" || got.Flagged || got.State != models.StateFiled {
		t.Errorf("upsert did not replace: %+v", got)
	}
	counts, _ := ledger.CountPages(ctx)
	if counts.Total != 1 {
		t.Errorf("Total = %d, want 1", counts.Total)
	}
}

func TestSQLiteLedger_CountPagesEmpty(t *testing.T) {
	counts, err := openLedger(t).CountPages(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if counts != (models.PageCounts{}) {
		t.Errorf("empty ledger counts = %+v", counts)
	}
}
