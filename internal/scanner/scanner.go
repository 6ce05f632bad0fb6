// Package scanner walks the local SyncRoot and yields the current set of
// synced files, keyed by their NFC-normalized relative path.
package scanner

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperclay/sitesync/internal/siteid"
)

// ExcludedDirs are directory basenames skipped entirely during the walk,
// in addition to any hidden (dot-prefixed) entry.
var ExcludedDirs = map[string]bool{
	"node_modules":   true,
	"sites-versions": true,
}

// LocalFile describes one file found under SyncRoot.
type LocalFile struct {
	RelativePath siteid.RelativePath
	AbsolutePath string
	Mtime        time.Time
	Size         int64
}

// Scanner performs a single-pass, depth-first walk of SyncRoot on demand.
type Scanner struct {
	syncRoot string
	logger   *slog.Logger
}

// New creates a Scanner rooted at syncRoot.
func New(syncRoot string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Scanner{syncRoot: syncRoot, logger: logger}
}

// Scan walks SyncRoot and returns a map of RelativePath.String() to LocalFile
// for every non-excluded, non-hidden .html file found.
func (s *Scanner) Scan() (map[string]LocalFile, error) {
	out := make(map[string]LocalFile)

	err := s.walk(s.syncRoot, "", out)
	if err != nil {
		return nil, fmt.Errorf("scanner: walk failed: %w", err)
	}

	return out, nil
}

func (s *Scanner) walk(fsDir, relPrefix string, out map[string]LocalFile) error {
	entries, err := os.ReadDir(fsDir)
	if err != nil {
		return fmt.Errorf("reading directory %q: %w", fsDir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		fsPath := filepath.Join(fsDir, name)

		if entry.IsDir() {
			if ExcludedDirs[name] {
				continue
			}

			childPrefix := name
			if relPrefix != "" {
				childPrefix = relPrefix + "/" + name
			}

			if err := s.walk(fsPath, childPrefix, out); err != nil {
				return err
			}

			continue
		}

		if !strings.HasSuffix(name, ".html") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("scanner: cannot stat entry, skipping", "path", fsPath, "error", err)

			continue
		}

		rawRel := name
		if relPrefix != "" {
			rawRel = relPrefix + "/" + name
		}

		rel := siteid.NewRelativePath(rawRel)

		out[rel.String()] = LocalFile{
			RelativePath: rel,
			AbsolutePath: fsPath,
			Mtime:        info.ModTime(),
			Size:         info.Size(),
		}
	}

	return nil
}
