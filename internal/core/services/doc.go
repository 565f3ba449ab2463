// Package services contains the core business logic for Forge: corpus
// indexing, hybrid retrieval, context assembly, multi-backend
// orchestration, cost accounting and the change workflow engine.
//
// Services implement the driving ports and depend only on domain types
// and driven ports. They never import adapter packages.
package services
