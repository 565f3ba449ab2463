package driven

import "context"

// CorpusFile is one eligible file surfaced by a corpus source.
type CorpusFile struct {
	// Path is the corpus-relative file path.
	Path string

	// Content is the file text.
	Content string
}

// CorpusSource enumerates the files of a corpus and optionally watches
// it for changes. Backed by the local filesystem.
type CorpusSource interface {
	// Files streams every eligible file. The channel is closed when
	// enumeration finishes; errors arrive on the second channel.
	Files(ctx context.Context) (<-chan CorpusFile, <-chan error)

	// Read returns one file by path.
	Read(ctx context.Context, path string) (*CorpusFile, error)

	// Watch emits paths whose content changed until ctx is cancelled.
	Watch(ctx context.Context) (<-chan string, error)

	// Close releases resources.
	Close() error
}
