// Package mcp provides an MCP (Model Context Protocol) server adapter.
// It lets AI assistants drive retrieval, orchestration and the change
// workflow over stdio or HTTP.
package mcp

import "errors"

// Errors returned when a required port is not provided.
var (
	ErrMissingRetrievalService    = errors.New("mcp: retrieval service is required")
	ErrMissingContextService      = errors.New("mcp: context service is required")
	ErrMissingOrchestratorService = errors.New("mcp: orchestrator service is required")
	ErrMissingWorkflowService     = errors.New("mcp: workflow service is required")
	ErrMissingIndexerService      = errors.New("mcp: indexer service is required")
	ErrMissingLedgerReader        = errors.New("mcp: ledger reader is required")
)
