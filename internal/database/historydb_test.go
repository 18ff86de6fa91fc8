package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/originlink/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *HistoryDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// newTestRun creates a finished run whose downloads are given as url -> status.
func newTestRun(outcomes map[string]model.Status) *model.Run {
	run := model.NewRun("dist", "dist-local", "assets", model.LinkTypeAbsolute, "http://127.0.0.1:8080")
	run.StartedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	batch := model.NewBatch()
	for url, status := range outcomes {
		run.Provenance.Record(url, model.Occurrence{FilePath: "dist/index.html", Replace: "/assets/x"})
		o := model.Outcome{URL: url, Destination: "assets/x", Status: status}
		if status == model.StatusFail {
			o.Error = "unexpected status code: 404"
		}
		batch.Add(o)
	}
	run.AddBatch(batch)
	run.FetchPhases = 1
	run.DownloadSize = 1234
	run.Finish(nil)
	return run
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, DBFileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, DBFileName) {
			t.Errorf("unexpected path %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{CreateIfNotExists: false})
		if err == nil {
			t.Fatal("expected error for missing database")
		}
	})

	t.Run("reopens existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		if _, err := db.SaveRun(context.Background(), newTestRun(nil)); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), 0)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 1 {
			t.Errorf("expected 1 run after reopen, got %d", len(runs))
		}
	})
}

// TestSaveAndGetRun tests that a run survives a round trip through the database.
func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	run := newTestRun(map[string]model.Status{
		"https://cdn.example.com/a.js": model.StatusSuccess,
		"https://cdn.example.com/b.js": model.StatusFail,
	})

	id, err := db.SaveRun(ctx, run)
	if err != nil {
		t.Fatalf("failed to save run: %v", err)
	}
	if id == 0 || run.ID != id {
		t.Fatalf("expected run.ID to be set, got id=%d run.ID=%d", id, run.ID)
	}

	got, err := db.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.ID != id {
		t.Errorf("expected ID %d, got %d", id, got.ID)
	}
	if got.Total() != 2 || got.FailCount() != 1 {
		t.Errorf("unexpected outcomes: total=%d fail=%d", got.Total(), got.FailCount())
	}
	if got.Provenance.Len() != 2 {
		t.Errorf("expected 2 mapping entries, got %d", got.Provenance.Len())
	}
	if got.Origin != "http://127.0.0.1:8080" {
		t.Errorf("unexpected origin %q", got.Origin)
	}
	if !got.StartedAt.Equal(run.StartedAt) {
		t.Errorf("expected StartedAt %v, got %v", run.StartedAt, got.StartedAt)
	}

	refs, err := db.GetRunReferences(ctx, id)
	if err != nil {
		t.Fatalf("failed to get references: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 references, got %d", len(refs))
	}
	for _, ref := range refs {
		if ref.SourceFile != "dist/index.html" {
			t.Errorf("unexpected source file %q", ref.SourceFile)
		}
		if ref.Status == "" {
			t.Errorf("expected status for %s", ref.OriginalURL)
		}
	}
}

// TestGetRunNotFound tests the missing run error.
func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)

	_, err := db.GetRun(context.Background(), 42)
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

// TestListRuns tests listing run metadata.
func TestListRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	for i := range 3 {
		run := newTestRun(map[string]model.Status{"https://cdn.example.com/a.js": model.StatusSuccess})
		if i == 2 {
			run.Interrupted = true
		}
		if _, err := db.SaveRun(ctx, run); err != nil {
			t.Fatalf("failed to save run %d: %v", i, err)
		}
	}

	t.Run("newest first", func(t *testing.T) {
		t.Parallel()

		runs, err := db.ListRuns(ctx, 0)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 3 {
			t.Fatalf("expected 3 runs, got %d", len(runs))
		}
		if runs[0].ID < runs[1].ID || runs[1].ID < runs[2].ID {
			t.Errorf("expected descending IDs, got %d %d %d", runs[0].ID, runs[1].ID, runs[2].ID)
		}
		if runs[0].State != model.RunInterrupted {
			t.Errorf("expected newest run interrupted, got %q", runs[0].State)
		}
		if runs[1].State != model.RunComplete {
			t.Errorf("expected complete, got %q", runs[1].State)
		}
		if runs[1].Total != 1 || runs[1].Success != 1 || runs[1].DownloadSize != 1234 {
			t.Errorf("unexpected metadata: %+v", runs[1])
		}
		if runs[1].LinkType != model.LinkTypeAbsolute {
			t.Errorf("unexpected link type %q", runs[1].LinkType)
		}
		if runs[1].StartedAt.IsZero() {
			t.Error("expected StartedAt to be parsed")
		}
	})

	t.Run("respects limit", func(t *testing.T) {
		t.Parallel()

		runs, err := db.ListRuns(ctx, 2)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 2 {
			t.Errorf("expected 2 runs, got %d", len(runs))
		}
	})
}

// TestDiffRuns tests comparing the downloads of two runs.
func TestDiffRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	first, err := db.SaveRun(ctx, newTestRun(map[string]model.Status{
		"https://cdn.example.com/kept.js":    model.StatusSuccess,
		"https://cdn.example.com/broken.css": model.StatusSuccess,
		"https://cdn.example.com/old.png":    model.StatusSuccess,
	}))
	if err != nil {
		t.Fatalf("failed to save run: %v", err)
	}
	second, err := db.SaveRun(ctx, newTestRun(map[string]model.Status{
		"https://cdn.example.com/kept.js":    model.StatusSuccess,
		"https://cdn.example.com/broken.css": model.StatusFail,
		"https://cdn.example.com/new.svg":    model.StatusSuccess,
	}))
	if err != nil {
		t.Fatalf("failed to save run: %v", err)
	}

	t.Run("reports added removed and changed", func(t *testing.T) {
		t.Parallel()

		diff, err := db.DiffRuns(ctx, first, second)
		if err != nil {
			t.Fatalf("failed to diff runs: %v", err)
		}
		if diff.Empty() {
			t.Fatal("expected a non-empty diff")
		}
		if len(diff.Added) != 1 || diff.Added[0] != "https://cdn.example.com/new.svg" {
			t.Errorf("unexpected added: %v", diff.Added)
		}
		if len(diff.Removed) != 1 || diff.Removed[0] != "https://cdn.example.com/old.png" {
			t.Errorf("unexpected removed: %v", diff.Removed)
		}
		if len(diff.Changed) != 1 {
			t.Fatalf("expected 1 change, got %v", diff.Changed)
		}
		c := diff.Changed[0]
		if c.URL != "https://cdn.example.com/broken.css" || c.Before != model.StatusSuccess || c.After != model.StatusFail {
			t.Errorf("unexpected change: %+v", c)
		}
	})

	t.Run("same run is empty", func(t *testing.T) {
		t.Parallel()

		diff, err := db.DiffRuns(ctx, first, first)
		if err != nil {
			t.Fatalf("failed to diff runs: %v", err)
		}
		if !diff.Empty() {
			t.Errorf("expected empty diff, got %+v", diff)
		}
	})

	t.Run("reports content updates", func(t *testing.T) {
		t.Parallel()

		withDigest := func(digest string) *model.Run {
			run := model.NewRun("dist", "dist-local", "assets", model.LinkTypeRelative, "")
			batch := model.NewBatch()
			batch.Add(model.Outcome{URL: "https://cdn.example.com/lib.js", Destination: "lib.js", Status: model.StatusSuccess, Digest: digest})
			run.AddBatch(batch)
			run.Finish(nil)
			return run
		}

		older, err := db.SaveRun(ctx, withDigest("aaaa"))
		if err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		newer, err := db.SaveRun(ctx, withDigest("bbbb"))
		if err != nil {
			t.Fatalf("failed to save run: %v", err)
		}

		diff, err := db.DiffRuns(ctx, older, newer)
		if err != nil {
			t.Fatalf("failed to diff runs: %v", err)
		}
		if len(diff.Updated) != 1 || diff.Updated[0] != "https://cdn.example.com/lib.js" {
			t.Errorf("unexpected updated: %v", diff.Updated)
		}
		if len(diff.Changed) != 0 {
			t.Errorf("status did not change, got %v", diff.Changed)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		t.Parallel()

		if _, err := db.DiffRuns(ctx, first, 999); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})
}

// TestParseTimestamp tests timestamp parsing with various formats.
func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		wantZero bool
	}{
		{"2026-03-01T12:00:00.123456789Z", false},
		{"2026-03-01T12:00:00Z", false},
		{"2026-03-01 12:00:00", false},
		{"2026-03-01T12:00:00", false},
		{"not a timestamp", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := parseTimestamp(tt.input)
			if got.IsZero() != tt.wantZero {
				t.Errorf("parseTimestamp(%q) = %v, wantZero %v", tt.input, got, tt.wantZero)
			}
		})
	}
}
