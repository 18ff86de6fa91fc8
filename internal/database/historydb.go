package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/originlink/internal/model"
)

// DBFileName is the name of the history database file.
const DBFileName = "originlink.db"

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// HistoryDB provides SQLite-based storage for past runs.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw&_pragma=foreign_keys(1)"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Path returns the database file path.
func (hdb *HistoryDB) Path() string {
	return hdb.dbPath
}

// Close closes the database connection.
func (hdb *HistoryDB) Close() error {
	return hdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (hdb *HistoryDB) createTables() error {
	schema := `
	-- One row per localization run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		source_dir TEXT NOT NULL,
		replaced_dir TEXT NOT NULL,
		download_dir TEXT NOT NULL,
		link_type TEXT NOT NULL,
		origin TEXT,
		state TEXT NOT NULL,
		total INTEGER DEFAULT 0,
		success INTEGER DEFAULT 0,
		fail INTEGER DEFAULT 0,
		download_size INTEGER DEFAULT 0,
		run_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Download attempts of a run
	CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		destination TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		size INTEGER DEFAULT 0,
		digest TEXT,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_downloads_run ON downloads(run_id);

	-- Rewritten references of a run
	CREATE TABLE IF NOT EXISTS refs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		original_url TEXT NOT NULL,
		source_file TEXT NOT NULL,
		rewritten_value TEXT NOT NULL,
		status TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_refs_run ON refs(run_id);
	CREATE INDEX IF NOT EXISTS idx_refs_url ON refs(original_url);
	`

	_, err := hdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a finished run with its downloads and references in one
// transaction and sets run.ID.
func (hdb *HistoryDB) SaveRun(ctx context.Context, run *model.Run) (int64, error) {
	runJSON, err := json.Marshal(run)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize run: %w", err)
	}

	tx, err := hdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (started_at, finished_at, source_dir, replaced_dir, download_dir, link_type,
		origin, state, total, success, fail, download_size, run_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.SourceDir,
		run.ReplacedDir,
		run.DownloadDir,
		string(run.LinkType),
		run.Origin,
		run.State(),
		run.Total(),
		run.SuccessCount(),
		run.FailCount(),
		run.DownloadSize,
		string(runJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	for _, o := range run.Outcomes {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO downloads (run_id, url, destination, status, error, size, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, url) DO NOTHING
		`, id, o.URL, o.Destination, string(o.Status), o.Error, o.Size, o.Digest); err != nil {
			return 0, fmt.Errorf("failed to insert download: %w", err)
		}
	}

	for _, ref := range run.Provenance.References() {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO refs (run_id, original_url, source_file, rewritten_value, status)
		VALUES (?, ?, ?, ?, ?)
		`, id, ref.OriginalURL, ref.SourceFile, ref.RewrittenValue, string(ref.Status)); err != nil {
			return 0, fmt.Errorf("failed to insert reference: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}

	run.ID = id
	return id, nil
}

// RunMetadata contains summary information about a stored run.
// This is used for displaying the history without loading the full run.
type RunMetadata struct {
	ID           int64
	StartedAt    time.Time
	FinishedAt   time.Time
	SourceDir    string
	ReplacedDir  string
	LinkType     model.LinkType
	State        string
	Total        int
	Success      int
	Fail         int
	DownloadSize int64
}

// ListRuns returns the metadata of the most recent runs, newest first.
// A limit of zero or less returns every run.
func (hdb *HistoryDB) ListRuns(ctx context.Context, limit int) ([]RunMetadata, error) {
	query := `
	SELECT id, started_at, finished_at, source_dir, replaced_dir, link_type, state,
		total, success, fail, download_size
	FROM runs
	ORDER BY id DESC
	`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var started, linkType string
		var finished sql.NullString

		if err := rows.Scan(
			&meta.ID,
			&started,
			&finished,
			&meta.SourceDir,
			&meta.ReplacedDir,
			&linkType,
			&meta.State,
			&meta.Total,
			&meta.Success,
			&meta.Fail,
			&meta.DownloadSize,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		meta.StartedAt = parseTimestamp(started)
		if finished.Valid {
			meta.FinishedAt = parseTimestamp(finished.String)
		}
		meta.LinkType = model.LinkType(linkType)
		results = append(results, meta)
	}

	return results, rows.Err()
}

// GetRun retrieves a stored run by its ID.
// It returns ErrRunNotFound when no run has the ID.
func (hdb *HistoryDB) GetRun(ctx context.Context, id int64) (*model.Run, error) {
	var runJSON string
	err := hdb.db.QueryRowContext(ctx, `SELECT run_json FROM runs WHERE id = ?`, id).Scan(&runJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run model.Run
	if err := json.Unmarshal([]byte(runJSON), &run); err != nil {
		return nil, fmt.Errorf("failed to parse run: %w", err)
	}
	run.ID = id
	if run.Provenance == nil {
		run.Provenance = model.NewProvenance()
	}

	return &run, nil
}

// GetRunReferences returns the rewritten references of a run in the order
// they were recorded.
func (hdb *HistoryDB) GetRunReferences(ctx context.Context, id int64) ([]model.Reference, error) {
	rows, err := hdb.db.QueryContext(ctx, `
	SELECT original_url, source_file, rewritten_value, status
	FROM refs
	WHERE run_id = ?
	ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get references: %w", err)
	}
	defer rows.Close()

	var refs []model.Reference
	for rows.Next() {
		var ref model.Reference
		var status sql.NullString
		if err := rows.Scan(&ref.OriginalURL, &ref.SourceFile, &ref.RewrittenValue, &status); err != nil {
			return nil, fmt.Errorf("failed to scan reference: %w", err)
		}
		ref.Status = model.Status(status.String)
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}

// download is the stored result of one URL.
type download struct {
	status model.Status
	digest string
}

// downloads returns url -> result for the downloads of a run.
func (hdb *HistoryDB) downloads(ctx context.Context, id int64) (map[string]download, error) {
	rows, err := hdb.db.QueryContext(ctx, `SELECT url, status, digest FROM downloads WHERE run_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get downloads: %w", err)
	}
	defer rows.Close()

	results := make(map[string]download)
	for rows.Next() {
		var url, status string
		var digest sql.NullString
		if err := rows.Scan(&url, &status, &digest); err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}
		results[url] = download{status: model.Status(status), digest: digest.String}
	}
	return results, rows.Err()
}

// StatusChange is a URL downloaded by both runs with different results.
type StatusChange struct {
	URL    string
	Before model.Status
	After  model.Status
}

// RunDiff compares the downloads of two runs.
type RunDiff struct {
	From, To int64

	// Added are URLs only the newer run downloaded.
	Added []string

	// Removed are URLs only the older run downloaded.
	Removed []string

	// Changed are URLs whose status differs.
	Changed []StatusChange

	// Updated are URLs both runs downloaded successfully whose content
	// digest differs.
	Updated []string
}

// Empty reports whether the two runs downloaded the same URLs with the
// same results.
func (d *RunDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0 && len(d.Updated) == 0
}

// DiffRuns compares the downloads of run from with those of run to.
// All lists are sorted by URL.
func (hdb *HistoryDB) DiffRuns(ctx context.Context, from, to int64) (*RunDiff, error) {
	for _, id := range []int64{from, to} {
		var exists int
		err := hdb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, id).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("failed to check run: %w", err)
		}
		if exists == 0 {
			return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
		}
	}

	before, err := hdb.downloads(ctx, from)
	if err != nil {
		return nil, err
	}
	after, err := hdb.downloads(ctx, to)
	if err != nil {
		return nil, err
	}

	diff := &RunDiff{From: from, To: to}
	for url, cur := range after {
		prev, ok := before[url]
		switch {
		case !ok:
			diff.Added = append(diff.Added, url)
		case prev.status != cur.status:
			diff.Changed = append(diff.Changed, StatusChange{URL: url, Before: prev.status, After: cur.status})
		case prev.digest != "" && cur.digest != "" && prev.digest != cur.digest:
			diff.Updated = append(diff.Updated, url)
		}
	}
	for url := range before {
		if _, ok := after[url]; !ok {
			diff.Removed = append(diff.Removed, url)
		}
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Updated)
	sort.Slice(diff.Changed, func(i, j int) bool { return diff.Changed[i].URL < diff.Changed[j].URL })
	return diff, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,          // Format written by SaveRun
	time.RFC3339,              // Full RFC3339 format
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
