// Package filesystem provides a corpus source backed by a local
// directory tree.
package filesystem

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
)

// Ensure Source implements the interface.
var _ driven.CorpusSource = (*Source)(nil)

const (
	// DefaultMaxFileSize caps the files we read into memory (1 MiB).
	DefaultMaxFileSize = 1 << 20

	// sniffLen is how many leading bytes we inspect for binary data.
	sniffLen = 8000
)

// skipDirs are directory names never walked.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
}

// Source walks a directory tree and surfaces its text files.
type Source struct {
	root        string
	maxFileSize int64

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewSource creates a corpus source rooted at the given directory.
func NewSource(root string) *Source {
	return &Source{
		root:        root,
		maxFileSize: DefaultMaxFileSize,
	}
}

// Files streams every eligible file under the root. The file channel
// closes when the walk finishes; at most one error is emitted.
func (s *Source) Files(ctx context.Context) (<-chan driven.CorpusFile, <-chan error) {
	files := make(chan driven.CorpusFile)
	errs := make(chan error, 1)

	go func() {
		defer close(files)
		defer close(errs)

		err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() {
				if path != s.root && skipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			file, err := s.readEligible(path)
			if err != nil {
				return err
			}
			if file == nil {
				return nil
			}

			select {
			case files <- *file:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			errs <- fmt.Errorf("walk corpus: %w", err)
		}
	}()

	return files, errs
}

// Read returns one file by its corpus-relative path.
func (s *Source) Read(_ context.Context, path string) (*driven.CorpusFile, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	file, err := s.readEligible(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("%w: %s is not indexable", domain.ErrNotFound, path)
	}

	return file, nil
}

// readEligible reads the file at abs and returns nil when the file is
// too large or binary.
func (s *Source) readEligible(abs string) (*driven.CorpusFile, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.Size() > s.maxFileSize {
		return nil, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	if isBinary(data) {
		return nil, nil
	}

	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return nil, err
	}

	return &driven.CorpusFile{
		Path:    filepath.ToSlash(rel),
		Content: string(data),
	}, nil
}

// resolve turns a corpus-relative path into an absolute one and
// rejects escapes from the root.
func (s *Source) resolve(path string) (string, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(path))

	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path %q escapes corpus root", domain.ErrInvalidInput, path)
	}
	return abs, nil
}

// Watch emits corpus-relative paths whose content changed. The
// channel closes when ctx is cancelled.
func (s *Source) Watch(ctx context.Context) (<-chan string, error) {
	if _, err := os.Stat(s.root); err != nil {
		return nil, fmt.Errorf("root path error: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Watch the root and every subdirectory; fsnotify is not
	// recursive on its own.
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != s.root && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch corpus: %w", err)
	}

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	changes := make(chan string)
	go s.watchLoop(ctx, watcher, changes)

	return changes, nil
}

func (s *Source) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, changes chan<- string) {
	defer close(changes)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			// New directories join the watch set.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !skipDirs[filepath.Base(event.Name)] {
						_ = watcher.Add(event.Name)
					}
					continue
				}
			}

			rel, err := filepath.Rel(s.root, event.Name)
			if err != nil {
				continue
			}

			select {
			case changes <- filepath.ToSlash(rel):
			case <-ctx.Done():
				return
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close releases the watcher if one is active.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

// isBinary reports whether data looks like binary content, using the
// NUL byte heuristic on the leading bytes.
func isBinary(data []byte) bool {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}
