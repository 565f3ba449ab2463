// Package ai provides factory functions for creating AI backend adapters.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	mockembed "github.com/custodia-labs/forge-cli/internal/adapters/driven/embedding/mock"
	ollamaembed "github.com/custodia-labs/forge-cli/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/forge-cli/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/forge-cli/internal/adapters/driven/provider/anthropic"
	"github.com/custodia-labs/forge-cli/internal/adapters/driven/provider/bedrock"
	mockprov "github.com/custodia-labs/forge-cli/internal/adapters/driven/provider/mock"
	"github.com/custodia-labs/forge-cli/internal/adapters/driven/provider/ollama"
	"github.com/custodia-labs/forge-cli/internal/adapters/driven/provider/openai"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for connectivity validation.
const pingTimeout = 5 * time.Second

// ProviderSettings configures one AI backend.
type ProviderSettings struct {
	// Name selects the adapter: anthropic, openai, bedrock, ollama
	// or mock.
	Name string

	// APIKey authenticates hosted backends.
	APIKey string

	// BaseURL overrides the backend endpoint.
	BaseURL string

	// Model overrides the adapter's default model.
	Model string

	// Region selects the endpoint region (bedrock only).
	Region string
}

// EmbeddingSettings configures the embedding backend.
type EmbeddingSettings struct {
	// Provider selects the adapter: openai, ollama or mock.
	Provider string

	// APIKey authenticates hosted backends.
	APIKey string

	// BaseURL overrides the backend endpoint.
	BaseURL string

	// Model overrides the adapter's default model.
	Model string
}

// CreateProvider creates the AI provider the settings name.
func CreateProvider(s ProviderSettings) (driven.AIProvider, error) {
	switch strings.ToLower(s.Name) {
	case "anthropic":
		return anthropic.NewProvider(anthropic.Config{
			APIKey:  s.APIKey,
			BaseURL: s.BaseURL,
			Model:   s.Model,
		})

	case "openai":
		return openai.NewProvider(openai.Config{
			APIKey:  s.APIKey,
			BaseURL: s.BaseURL,
			Model:   s.Model,
		})

	case "bedrock":
		return bedrock.NewProvider(bedrock.Config{
			APIKey:  s.APIKey,
			Region:  s.Region,
			BaseURL: s.BaseURL,
			Model:   s.Model,
		})

	case "ollama":
		return ollama.NewProvider(ollama.Config{
			BaseURL: s.BaseURL,
			Model:   s.Model,
		}), nil

	case "mock":
		return mockprov.NewProvider("mock"), nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s", s.Name)
	}
}

// CreateProviders creates every configured backend, preserving order.
// Order matters: pipeline roles map onto it round-robin.
func CreateProviders(settings []ProviderSettings) ([]driven.AIProvider, error) {
	providers := make([]driven.AIProvider, 0, len(settings))
	for _, s := range settings {
		p, err := CreateProvider(s)
		if err != nil {
			for _, open := range providers {
				open.Close()
			}
			return nil, fmt.Errorf("create provider %s: %w", s.Name, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// CreateEmbeddingService creates the embedding backend the settings name.
func CreateEmbeddingService(s EmbeddingSettings) (driven.EmbeddingService, error) {
	switch strings.ToLower(s.Provider) {
	case "openai":
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:  s.APIKey,
			BaseURL: s.BaseURL,
			Model:   s.Model,
		})

	case "ollama":
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL: s.BaseURL,
			Model:   s.Model,
		}), nil

	case "mock", "":
		return mockembed.NewEmbeddingService(0), nil

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", s.Provider)
	}
}

// CreateAndValidateEmbeddingService creates an embedding service and
// validates connectivity before handing it out.
func CreateAndValidateEmbeddingService(s EmbeddingSettings) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(s)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("embedding service unreachable: %w", err)
	}

	return svc, nil
}

// ValidateProvider checks a backend's connectivity.
func ValidateProvider(p driven.AIProvider) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return p.Ping(ctx)
}
