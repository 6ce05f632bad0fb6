package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanFindsTopLevelHTMLFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "home.html"), "<html></html>")
	writeFile(t, filepath.Join(root, "notes.txt"), "ignored")

	s := New(root, nil)
	files, err := s.Scan()
	require.NoError(t, err)

	assert.Len(t, files, 1)
	assert.Contains(t, files, "home.html")
}

func TestScanFindsNestedHTMLFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "blog", "post.html"), "<html></html>")

	s := New(root, nil)
	files, err := s.Scan()
	require.NoError(t, err)

	assert.Contains(t, files, "blog/post.html")
}

func TestScanExcludesHiddenEntries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".hidden.html"), "x")
	writeFile(t, filepath.Join(root, ".git", "config.html"), "x")

	s := New(root, nil)
	files, err := s.Scan()
	require.NoError(t, err)

	assert.Empty(t, files)
}

func TestScanExcludesReservedDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "node_modules", "pkg.html"), "x")
	writeFile(t, filepath.Join(root, "sites-versions", "home", "snap.html"), "x")

	s := New(root, nil)
	files, err := s.Scan()
	require.NoError(t, err)

	assert.Empty(t, files)
}

func TestScanReportsSizeAndMtime(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "home.html"), "12345")

	s := New(root, nil)
	files, err := s.Scan()
	require.NoError(t, err)

	f := files["home.html"]
	assert.Equal(t, int64(5), f.Size)
	assert.False(t, f.Mtime.IsZero())
}
