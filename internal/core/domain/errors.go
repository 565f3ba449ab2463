package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured. Semantic retrieval is disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not
	// configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// ErrRetrievalUnavailable indicates the chunk store is unreachable.
	// No partial or corrupt bundle is ever returned in its place.
	ErrRetrievalUnavailable = errors.New("retrieval store unavailable")

	// ErrNoProviders indicates no AI backend is configured.
	ErrNoProviders = errors.New("no providers configured")

	// ErrUnknownProvider indicates a provider has no pricing entry.
	// Ledger consistency cannot be guessed, so this is fatal to the
	// session.
	ErrUnknownProvider = errors.New("unknown provider in pricing table")
)

// Provider error kinds.
const (
	ProviderTimeout     = "timeout"
	ProviderRateLimited = "rate_limited"
	ProviderAuthFailure = "auth_failure"
	ProviderTransport   = "transport"
)

// ProviderError is a failed call against an AI backend, classified for
// retry decisions. Timeout and transport failures are transient;
// rate-limit and auth failures are not retried blindly.
type ProviderError struct {
	// Provider is the backend identifier.
	Provider string

	// Kind is one of the provider error kind constants.
	Kind string

	// Message is the human-readable failure description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure class is worth retrying.
func (e *ProviderError) Transient() bool {
	return e.Kind == ProviderTimeout || e.Kind == ProviderTransport
}

// WorkflowError is a rejected workflow state transition. The record is
// left unchanged when this error is returned.
type WorkflowError struct {
	// RecordID identifies the workflow record.
	RecordID string

	// From and To name the violated edge.
	From WorkflowState
	To   WorkflowState

	// Reason explains the rejection ("transition not allowed",
	// "not yet merged", "already rolled back", …).
	Reason string
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("workflow %s: %s → %s: %s", e.RecordID, e.From, e.To, e.Reason)
}

// IsWorkflowError reports whether err is a workflow transition failure.
func IsWorkflowError(err error) bool {
	var we *WorkflowError
	return errors.As(err, &we)
}
