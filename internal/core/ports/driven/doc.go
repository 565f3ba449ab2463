// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - ChunkStore: chunk persistence with atomic per-path replacement
//   - VectorIndex: vector storage and nearest-neighbour search
//   - EmbeddingService: vector generation for chunks and queries
//   - AIProvider: text generation against one AI backend
//   - HistoryStore: append-only audit sink
//   - WorkflowStore: workflow record persistence
//   - ConfigStore: application configuration
//
// # Optional Interfaces
//
//   - RepositoryService: repository operations; only needed by the
//     workflow engine
//   - CorpusSource: file enumeration and change watching; only needed
//     by the indexer
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: any adapter package
package driven
