package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
)

const (
	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
	llmTimeout      = 120 * time.Second
	maxErrorBody    = 2048
)

// ProviderError is a non-2xx answer from the provider or the relay.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("LLM returned status %d: %s", e.StatusCode, e.Message)
}

// ErrorMessage returns the most specific human-readable message carried by err.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return err.Error()
}

type Client struct {
	httpClient *http.Client
	logger     log.Logger
}

func NewClient(logger log.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: llmTimeout},
		logger:     logger,
	}
}

// NewClientWithHTTP uses the given http.Client as transport.
func NewClientWithHTTP(httpClient *http.Client, logger log.Logger) *Client {
	return &Client{httpClient: httpClient, logger: logger}
}

func (c *Client) Complete(ctx context.Context, endpoint, bearer string, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	respBody, err := c.Forward(ctx, endpoint, bearer, req)
	if err != nil {
		return nil, err
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	return &result, nil
}

// Forward posts req and returns the successful response body as the provider
// sent it.
func (c *Client) Forward(ctx context.Context, endpoint, bearer string, req ChatCompletionRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	c.logger.Debug("Calling LLM", "url", endpoint, "model", req.Model, "messageCount", len(req.Messages), "toolCount", len(req.Tools))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("LLM request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, ok := errorMessageFromBody(respBody)
		if !ok {
			c.logger.Warn("LLM returned a non-JSON error body", "url", endpoint, "status", resp.StatusCode, "body", truncate(respBody))
			msg = statusMessage(resp.StatusCode)
		}
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: msg}
	}

	return respBody, nil
}

// errorMessageFromBody reads the error envelope. Any other body is never
// surfaced to callers, since the endpoint may not be a provider at all.
func errorMessageFromBody(body []byte) (string, bool) {
	var eb ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		return eb.Error.Message, true
	}
	return "", false
}

func statusMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("unexpected status %d", status)
}

func truncate(body []byte) string {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return msg
}
