// Package bedrock provides an AI provider adapter using the Amazon
// Bedrock runtime InvokeModel REST API with bearer-token auth.
package bedrock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/forge-cli/internal/adapters/driven/provider"
	"github.com/custodia-labs/forge-cli/internal/core/domain"
	"github.com/custodia-labs/forge-cli/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.AIProvider = (*Provider)(nil)

// Default configuration values.
const (
	DefaultRegion  = "us-east-1"
	DefaultModel   = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	DefaultTimeout = 120 * time.Second

	// anthropicVersion is the body version Bedrock requires for
	// Anthropic-family models.
	anthropicVersion = "bedrock-2023-05-31"
)

// Config holds configuration for the Bedrock provider.
type Config struct {
	// APIKey is the Bedrock API key (required).
	APIKey string

	// Region selects the runtime endpoint (default: us-east-1).
	// Ignored when BaseURL is set.
	Region string

	// BaseURL overrides the runtime endpoint.
	BaseURL string

	// Model is the model identifier to invoke.
	Model string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration
}

// Provider dispatches generation requests to the Bedrock runtime.
type Provider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// invokeRequest is the InvokeModel body for Anthropic-family models.
type invokeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	System           string          `json:"system,omitempty"`
	Messages         []invokeMessage `json:"messages"`
}

// invokeMessage is the message format inside the InvokeModel body.
type invokeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// invokeResponse is the InvokeModel response body.
type invokeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewProvider creates a new Bedrock provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("bedrock: API key is required")
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", cfg.Region)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Provider{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}, nil
}

// Generate produces a completion with true token usage from the API.
func (p *Provider) Generate(ctx context.Context, req driven.GenerateRequest) (*driven.GenerateResult, error) {
	maxTokens := req.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	reqBody := invokeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		System:           req.SystemRole,
		Messages: []invokeMessage{
			{Role: "user", Content: provider.UserContent(req.Prompt, req.Context)},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.invokeURL(),
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.ClassifyTransportError("bedrock", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ProviderError{
			Provider: "bedrock",
			Kind:     domain.ProviderTransport,
			Message:  "read response",
			Err:      err,
		}
	}

	if err := provider.ClassifyStatus("bedrock", resp.StatusCode, body); err != nil {
		return nil, err
	}

	var invResp invokeResponse
	if err := json.Unmarshal(body, &invResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(invResp.Content) == 0 {
		return nil, fmt.Errorf("bedrock: no response content returned")
	}

	var text strings.Builder
	for _, block := range invResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &driven.GenerateResult{
		Text:         text.String(),
		InputTokens:  invResp.Usage.InputTokens,
		OutputTokens: invResp.Usage.OutputTokens,
	}, nil
}

// invokeURL builds the InvokeModel URL. Model identifiers carry dots
// and colons, so the path segment is escaped.
func (p *Provider) invokeURL() string {
	return p.baseURL + "/model/" + url.PathEscape(p.model) + "/invoke"
}

// ID returns the provider identifier used for pricing and the ledger.
func (p *Provider) ID() string {
	return "bedrock"
}

// ModelName returns the model being used.
func (p *Provider) ModelName() string {
	return p.model
}

// Ping checks that the runtime endpoint is reachable. The runtime
// host exposes no listing endpoint, so any HTTP response counts as
// reachable; only transport failures are reported.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/", http.NoBody)
	if err != nil {
		return fmt.Errorf("bedrock: failed to create ping request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("bedrock: ping failed: %w", err)
	}
	resp.Body.Close()
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}
