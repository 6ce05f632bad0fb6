// Package backup implements the versioned-snapshot store: before any local
// overwrite, the pre-overwrite bytes are copied under
// sites-versions/<siteName>/<timestamp>.html, with an embedded SQLite index
// tracking snapshots for retention pruning. The index is a bookkeeping
// optimization only — if absent or corrupt, snapshotting still works and
// pruning resumes once the index is rebuilt.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"

	"github.com/hyperclay/sitesync/internal/siteid"
)

// timestampFormat renders YYYY-MM-DD-HH-MM-SS.mmm; Snapshot replaces the
// fractional-second dot with a hyphen, so snapshot names read
// YYYY-MM-DD-HH-MM-SS-mmm and sort lexically by time.
const timestampFormat = "2006-01-02-15-04-05.000"

// Store manages versioned snapshots under a sites-versions directory.
type Store struct {
	rootDir    string // absolute path to the sites-versions directory
	maxPerSite int
	logger     *slog.Logger

	db *sql.DB // nil if the index could not be opened; store still functions
}

// Snapshot describes one row in the retention index.
type Snapshot struct {
	ID        int64
	SiteName  string
	AbsPath   string
	ByteSize  int64
	CreatedAt time.Time
}

// Open creates or opens the backup store rooted at rootDir (normally
// <SyncFolder>/sites-versions). maxPerSite bounds how many snapshots are
// retained per site name; older snapshots beyond that count are pruned on
// each new Snapshot call. If the index cannot be opened, Open still
// succeeds — snapshotting is unaffected, pruning is simply disabled until
// Rebuild runs successfully.
func Open(rootDir string, maxPerSite int, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: creating %s: %w", rootDir, err)
	}

	s := &Store{rootDir: rootDir, maxPerSite: maxPerSite, logger: logger}

	db, err := s.openIndex()
	if err != nil {
		logger.Warn("backup: retention index unavailable, pruning disabled until rebuild", "error", err)

		return s, nil
	}

	s.db = db

	return s, nil
}

func (s *Store) openIndex() (*sql.DB, error) {
	indexPath := filepath.Join(s.rootDir, ".index.db")

	db, err := sql.Open("sqlite", indexPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()

		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(ctx, db, s.logger); err != nil {
		db.Close()

		return nil, err
	}

	return db, nil
}

// Close releases the underlying index handle, if open.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	return s.db.Close()
}

// Snapshot copies contents to a new timestamped file under
// sites-versions/<siteName>/ and records it in the index. Failure to
// snapshot is returned to the caller to log and report, but per the
// invariant that the engine must "survive, keep syncing", a snapshot
// failure must never block the overwrite it precedes — callers enforce that
// by treating this error as non-fatal.
func (s *Store) Snapshot(site siteid.SiteName, contents []byte) (string, error) {
	dir := filepath.Join(s.rootDir, site.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("backup: creating site directory: %w", err)
	}

	name := strings.Replace(time.Now().UTC().Format(timestampFormat), ".", "-", 1) + ".html"
	absPath := filepath.Join(dir, name)

	if err := os.WriteFile(absPath, contents, 0o644); err != nil {
		return "", fmt.Errorf("backup: writing snapshot: %w", err)
	}

	if s.db != nil {
		if err := s.recordAndPrune(site.String(), absPath, int64(len(contents))); err != nil {
			s.logger.Warn("backup: retention index update failed", "error", err)
		}
	}

	return absPath, nil
}

func (s *Store) recordAndPrune(siteName, absPath string, size int64) error {
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (site_name, abs_path, byte_size, created_at) VALUES (?, ?, ?, ?)`,
		siteName, absPath, size, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot row: %w", err)
	}

	return s.prune(ctx, siteName)
}

// prune removes the oldest rows (and their files) for siteName beyond
// maxPerSite.
func (s *Store) prune(ctx context.Context, siteName string) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, abs_path FROM snapshots WHERE site_name = ? ORDER BY created_at DESC`,
		siteName,
	)
	if err != nil {
		return fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	type row struct {
		id      int64
		absPath string
	}

	var all []row

	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.absPath); err != nil {
			return fmt.Errorf("scanning snapshot row: %w", err)
		}

		all = append(all, r)
	}

	if err := rows.Err(); err != nil {
		return err
	}

	if len(all) <= s.maxPerSite {
		return nil
	}

	for _, r := range all[s.maxPerSite:] {
		if err := os.Remove(r.absPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("backup: failed to remove pruned snapshot file", "path", r.absPath, "error", err)
		}

		if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, r.id); err != nil {
			return fmt.Errorf("deleting pruned row: %w", err)
		}
	}

	return nil
}

// Rebuild scans sites-versions/<siteName>/ directories on disk and
// re-populates the index from the files found there, ignoring whatever rows
// currently exist. Used to recover after the index is found missing or
// corrupt.
func (s *Store) Rebuild() error {
	db, err := s.openIndex()
	if err != nil {
		return fmt.Errorf("backup: rebuilding index: %w", err)
	}

	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		db.Close()

		return fmt.Errorf("backup: reading %s: %w", s.rootDir, err)
	}

	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "DELETE FROM snapshots"); err != nil {
		db.Close()

		return fmt.Errorf("backup: clearing index: %w", err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		if err := rebuildSite(ctx, db, s.rootDir, e.Name()); err != nil {
			s.logger.Warn("backup: rebuild failed for site", "site", e.Name(), "error", err)
		}
	}

	if s.db != nil {
		s.db.Close()
	}

	s.db = db

	return nil
}

func rebuildSite(ctx context.Context, db *sql.DB, rootDir, siteName string) error {
	dir := filepath.Join(rootDir, siteName)

	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}

	for _, f := range files {
		if f.IsDir() {
			continue
		}

		info, err := f.Info()
		if err != nil {
			continue
		}

		_, err = db.ExecContext(ctx,
			`INSERT INTO snapshots (site_name, abs_path, byte_size, created_at) VALUES (?, ?, ?, ?)`,
			siteName, filepath.Join(dir, f.Name()), info.Size(), info.ModTime().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("inserting rebuilt row for %s: %w", f.Name(), err)
		}
	}

	return nil
}

// List returns all recorded snapshots for a site, newest first. Returns an
// empty slice (not an error) when the index is unavailable.
func (s *Store) List(siteName string) ([]Snapshot, error) {
	if s.db == nil {
		return nil, nil
	}

	rows, err := s.db.QueryContext(context.Background(),
		`SELECT id, site_name, abs_path, byte_size, created_at FROM snapshots WHERE site_name = ? ORDER BY created_at DESC`,
		siteName,
	)
	if err != nil {
		return nil, fmt.Errorf("backup: listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot

	for rows.Next() {
		var (
			snap      Snapshot
			createdAt string
		)

		if err := rows.Scan(&snap.ID, &snap.SiteName, &snap.AbsPath, &snap.ByteSize, &createdAt); err != nil {
			return nil, fmt.Errorf("backup: scanning snapshot: %w", err)
		}

		snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, snap)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return out, rows.Err()
}
