package domain

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ContentClass categorises corpus content for filtered retrieval.
type ContentClass string

// Available content classes.
const (
	// ClassCode is source code.
	ClassCode ContentClass = "code"

	// ClassDoc is prose documentation (markdown, text).
	ClassDoc ContentClass = "doc"

	// ClassConfig is configuration (yaml, toml, json, ini).
	ClassConfig ContentClass = "config"

	// ClassTest is test code.
	ClassTest ContentClass = "test"

	// ClassAny matches every class; used as the absence of a filter.
	ClassAny ContentClass = ""
)

// IsValid returns true if the content class is recognised.
func (c ContentClass) IsValid() bool {
	switch c {
	case ClassCode, ClassDoc, ClassConfig, ClassTest, ClassAny:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (c ContentClass) String() string {
	if c == ClassAny {
		return "any"
	}
	return string(c)
}

// ClassifyPath derives the content class of a file from its path.
// Test files are recognised before code files so that *_test.go and
// test/ trees are classed as tests rather than code.
func ClassifyPath(path string) ContentClass {
	base := strings.ToLower(filepath.Base(path))
	ext := filepath.Ext(base)

	if strings.HasSuffix(base, "_test.go") || strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.") || hasPathSegment(path, "test", "tests", "testdata") {
		return ClassTest
	}

	switch ext {
	case ".md", ".markdown", ".rst", ".txt", ".adoc":
		return ClassDoc
	case ".yaml", ".yml", ".toml", ".json", ".ini", ".env", ".tf", ".hcl":
		return ClassConfig
	}

	// Well-known config basenames without telling extensions.
	switch base {
	case "dockerfile", "makefile", ".gitignore", ".dockerignore":
		return ClassConfig
	}

	return ClassCode
}

// hasPathSegment reports whether any directory segment of path matches
// one of the given names.
func hasPathSegment(path string, names ...string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		for _, name := range names {
			if strings.EqualFold(seg, name) {
				return true
			}
		}
	}
	return false
}

// Chunk is a bounded, possibly overlapping substring of a corpus file.
// It is the unit of embedding and retrieval. A chunk is immutable once
// created; its identity is the (path, offset range) triple.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// Path is the corpus-relative file path the chunk was cut from.
	Path string

	// StartOffset is the byte offset of the chunk start within the file.
	StartOffset int

	// EndOffset is the byte offset one past the chunk end.
	EndOffset int

	// Content is the chunk text.
	Content string

	// Class is the content class derived from the file path.
	Class ContentClass

	// Embedding is the vector representation for semantic search.
	// Populated by the indexer; empty when embedding failed and the
	// chunk was skipped.
	Embedding []float32
}

// Identity returns the stable identity key for the chunk.
func (c Chunk) Identity() string {
	return fmt.Sprintf("%s:%d-%d", c.Path, c.StartOffset, c.EndOffset)
}

// Len returns the chunk length in bytes.
func (c Chunk) Len() int {
	return c.EndOffset - c.StartOffset
}
