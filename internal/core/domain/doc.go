// Package domain contains the core business entities and rules for Forge.
// It has no dependencies on adapters or external libraries beyond the
// standard library; everything here is pure data and invariants.
package domain
