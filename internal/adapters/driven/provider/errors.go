// Package provider contains shared plumbing for the AI backend
// adapters.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/custodia-labs/forge-cli/internal/core/domain"
)

// ClassifyTransportError maps a failed HTTP round trip to a typed
// provider error so the orchestrator can decide retryability.
func ClassifyTransportError(provider string, err error) error {
	kind := domain.ProviderTransport
	if errors.Is(err, context.DeadlineExceeded) {
		kind = domain.ProviderTimeout
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = domain.ProviderTimeout
	}
	return &domain.ProviderError{
		Provider: provider,
		Kind:     kind,
		Message:  "send request",
		Err:      err,
	}
}

// ClassifyStatus maps a non-200 HTTP status to a typed provider error.
// A 200 returns nil.
func ClassifyStatus(provider string, status int, body []byte) error {
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusTooManyRequests:
		return statusError(provider, domain.ProviderRateLimited, status, body)
	case http.StatusUnauthorized, http.StatusForbidden:
		return statusError(provider, domain.ProviderAuthFailure, status, body)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return statusError(provider, domain.ProviderTimeout, status, body)
	default:
		return statusError(provider, domain.ProviderTransport, status, body)
	}
}

func statusError(provider, kind string, status int, body []byte) error {
	return &domain.ProviderError{
		Provider: provider,
		Kind:     kind,
		Message:  fmt.Sprintf("status %d: %s", status, string(body)),
	}
}

// UserContent renders the prompt plus context bundle as a single user
// turn.
func UserContent(prompt, contextText string) string {
	if contextText == "" {
		return prompt
	}
	return prompt + "\n\nContext:\n" + contextText
}
