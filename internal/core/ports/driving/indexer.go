package driving

import "context"

// IndexStats summarises one indexing run.
type IndexStats struct {
	// Files is the number of files processed.
	Files int

	// Chunks is the number of chunks written.
	Chunks int

	// Skipped is the number of chunks dropped because embedding failed.
	Skipped int
}

// IndexerService ingests a corpus into the chunk store and vector index.
type IndexerService interface {
	// IndexCorpus indexes every file of the configured corpus source.
	IndexCorpus(ctx context.Context) (*IndexStats, error)

	// IndexPath re-indexes a single path, atomically replacing its
	// prior chunks.
	IndexPath(ctx context.Context, path string) (*IndexStats, error)

	// Watch re-indexes paths as the corpus source reports changes,
	// until ctx is cancelled.
	Watch(ctx context.Context) error
}
