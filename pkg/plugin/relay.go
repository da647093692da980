package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"nlquery-app/pkg/dispatch"
	"nlquery-app/pkg/llm"
	"nlquery-app/pkg/rbac"
)

var errNoServerKey = &llm.ProviderError{
	StatusCode: http.StatusServiceUnavailable,
	Message:    "no API key configured for the backend relay",
}

// providerRelay forwards chat requests to the configured provider with the
// server-held key. The dispatcher calls it in-process; /delegateRequestToAPI
// exposes it over HTTP.
type providerRelay struct {
	client *llm.Client
	apiURL string
	apiKey string
}

// providerEndpoint is the chat completions URL requests are sent to for a
// configured apiUrl.
func providerEndpoint(apiURL string) string {
	if apiURL == "" {
		return llm.DefaultEndpoint
	}
	return apiURL
}

func (r *providerRelay) endpoint() string {
	return providerEndpoint(r.apiURL)
}

func (r *providerRelay) Complete(ctx context.Context, req llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	if r.apiKey == "" {
		return nil, errNoServerKey
	}
	return r.client.Complete(ctx, r.endpoint(), r.apiKey, req)
}

// Forward returns the provider's response body untouched.
func (r *providerRelay) Forward(ctx context.Context, req llm.ChatCompletionRequest) ([]byte, error) {
	if r.apiKey == "" {
		return nil, errNoServerKey
	}
	return r.client.Forward(ctx, r.endpoint(), r.apiKey, req)
}

var _ dispatch.Completer = (*providerRelay)(nil)

func (p *Plugin) handleDelegateRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeRelayError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !p.authorize(w, r, rbac.ActionAsk) {
		return
	}
	if !p.allow(w, r) {
		return
	}

	var req llm.ChatCompletionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		writeRelayError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeRelayError(w, http.StatusBadRequest, "messages is required")
		return
	}

	p.logger.Info("Relaying chat completion", "model", req.Model, "messageCount", len(req.Messages), "toolCount", len(req.Tools))

	body, err := p.relay.Forward(r.Context(), req)
	if err != nil {
		status := http.StatusBadGateway
		var pe *llm.ProviderError
		if errors.As(err, &pe) {
			status = pe.StatusCode
		}
		p.logger.Error("Relay request failed", "status", status, "error", err)
		writeRelayError(w, status, llm.ErrorMessage(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		p.logger.Error("Failed to write relay response", "error", err)
	}
}

// writeRelayError answers in the provider's error envelope so both paths fail
// the same way.
func writeRelayError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, llm.ErrorBody{Error: llm.ErrorDetail{Message: msg}})
}
