package dispatch

import (
	"context"
	"strings"

	"nlquery-app/pkg/llm"
)

const (
	PluginID  = "nlquery-app"
	RelayPath = "/api/plugins/" + PluginID + "/resources/delegateRequestToAPI"
)

// RelayClient reaches the plugin backend relay through the Grafana HTTP API.
// Inside the plugin the relay is called in-process instead.
type RelayClient struct {
	url    string
	token  string
	client *llm.Client
}

// NewRelayClient targets the relay route of the Grafana server at grafanaURL,
// authenticating with a Grafana service account token.
func NewRelayClient(grafanaURL, token string, client *llm.Client) *RelayClient {
	return &RelayClient{
		url:    strings.TrimRight(grafanaURL, "/") + RelayPath,
		token:  token,
		client: client,
	}
}

func (r *RelayClient) URL() string {
	return r.url
}

func (r *RelayClient) Complete(ctx context.Context, req llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	return r.client.Complete(ctx, r.url, r.token, req)
}

var _ Completer = (*RelayClient)(nil)
