package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func collectPaths(t *testing.T, src *Source) []string {
	t.Helper()

	files, errs := src.Files(context.Background())

	var paths []string
	for f := range files {
		paths = append(paths, f.Path)
	}
	require.NoError(t, <-errs)

	sort.Strings(paths)
	return paths
}

func TestFilesWalksTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "internal/auth/token.go", "package auth\n")
	writeFile(t, root, "docs/guide.md", "# Guide\n")

	src := NewSource(root)
	defer src.Close()

	paths := collectPaths(t, src)
	assert.Equal(t, []string{"docs/guide.md", "internal/auth/token.go", "main.go"}, paths)
}

func TestFilesSkipsIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, ".git/config", "[core]\n")
	writeFile(t, root, "node_modules/pkg/index.js", "module.exports = {}\n")
	writeFile(t, root, "vendor/dep/dep.go", "package dep\n")

	src := NewSource(root)
	defer src.Close()

	assert.Equal(t, []string{"main.go"}, collectPaths(t, src))
}

func TestFilesSkipsBinaryAndOversized(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ok.go", "package ok\n")
	writeFile(t, root, "blob.bin", "elf\x00data")

	big := make([]byte, DefaultMaxFileSize+1)
	for i := range big {
		big[i] = 'a'
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), big, 0644))

	src := NewSource(root)
	defer src.Close()

	assert.Equal(t, []string{"ok.go"}, collectPaths(t, src))
}

func TestFilesReportsMissingRoot(t *testing.T) {
	src := NewSource(filepath.Join(t.TempDir(), "nope"))
	defer src.Close()

	files, errs := src.Files(context.Background())
	for range files {
	}
	assert.Error(t, <-errs)
}

func TestRead(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "internal/auth/token.go", "package auth\n")

	src := NewSource(root)
	defer src.Close()

	file, err := src.Read(context.Background(), "internal/auth/token.go")
	require.NoError(t, err)
	assert.Equal(t, "internal/auth/token.go", file.Path)
	assert.Equal(t, "package auth\n", file.Content)
}

func TestReadMissingFile(t *testing.T) {
	src := NewSource(t.TempDir())
	defer src.Close()

	_, err := src.Read(context.Background(), "ghost.go")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReadRejectsEscapingPaths(t *testing.T) {
	src := NewSource(t.TempDir())
	defer src.Close()

	_, err := src.Read(context.Background(), "../outside.go")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestWatchEmitsChangedPaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "watched.go", "package watched\n")

	src := NewSource(root)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := src.Watch(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(filepath.Join(root, "watched.go"), []byte("package watched // changed\n"), 0644)
	}()

	select {
	case path := <-changes:
		assert.Equal(t, "watched.go", path)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change event")
	}
}

func TestWatchMissingRoot(t *testing.T) {
	src := NewSource(filepath.Join(t.TempDir(), "nope"))
	defer src.Close()

	changes, err := src.Watch(context.Background())
	assert.Error(t, err)
	assert.Nil(t, changes)
}

func TestWatchClosesOnCancel(t *testing.T) {
	src := NewSource(t.TempDir())
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	changes, err := src.Watch(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-changes:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	src := NewSource(t.TempDir())
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
}
