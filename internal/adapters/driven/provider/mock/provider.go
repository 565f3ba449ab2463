// Package mock provides an offline AI provider for development and
// demos. Output is deterministic in the request, so repeated runs are
// reproducible.
package mock

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.AIProvider = (*Provider)(nil)

// Provider fabricates completions without network access.
type Provider struct {
	id    string
	model string
}

// NewProvider creates a mock provider. An empty id defaults to "mock".
func NewProvider(id string) *Provider {
	if id == "" {
		id = "mock"
	}
	return &Provider{id: id, model: id + "-offline"}
}

// Generate returns a canned completion. Token counts use the same
// four-characters-per-token estimate the assembler uses, so ledger
// entries stay plausible.
func (p *Provider) Generate(_ context.Context, req driven.GenerateRequest) (*driven.GenerateResult, error) {
	h := fnv.New32a()
	h.Write([]byte(req.SystemRole))
	h.Write([]byte(req.Prompt))
	h.Write([]byte(req.Context))

	text := fmt.Sprintf(
		"// %s response %08x\n// no backend configured; this output is a placeholder\n%s\n",
		p.id, h.Sum32(), firstLine(req.Prompt),
	)

	return &driven.GenerateResult{
		Text:         text,
		InputTokens:  (len(req.SystemRole) + len(req.Prompt) + len(req.Context) + 3) / 4,
		OutputTokens: (len(text) + 3) / 4,
	}, nil
}

// ID returns the provider identifier.
func (p *Provider) ID() string {
	return p.id
}

// ModelName returns the synthetic model name.
func (p *Provider) ModelName() string {
	return p.model
}

// Ping always succeeds.
func (p *Provider) Ping(_ context.Context) error {
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

// firstLine returns text up to the first newline.
func firstLine(text string) string {
	for i, r := range text {
		if r == '\n' {
			return text[:i]
		}
	}
	return text
}
