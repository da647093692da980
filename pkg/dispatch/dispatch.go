// Package dispatch sends prompts to the model, either through the plugin
// backend relay or directly to a provider, and folds every outcome into a
// Result.
package dispatch

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"

	"nlquery-app/pkg/extract"
	"nlquery-app/pkg/llm"
	"nlquery-app/pkg/panel"
	"nlquery-app/pkg/prompt"
)

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// Reason classifies an ERROR result.
type Reason string

const (
	ReasonInvalidInput  Reason = "invalid_input"
	ReasonConfiguration Reason = "configuration"
	ReasonTransport     Reason = "transport"
	ReasonNotFound      Reason = "not_found"
	ReasonMalformed     Reason = "malformed"
)

const (
	MsgMissingAPIKey     = "missing api key"
	MsgQuestionRequired  = "question is required"
	MsgQueryRequired     = "query is required"
	MsgRelayUnavailable  = "backend relay is not configured"
	MsgClientUnavailable = "LLM client is not configured"
	MsgSQLNotFound       = "SQL query not found in the response."
	MsgPanelNotFound     = "Panel options not found in the response."
	MsgNoResponseContent = "the model returned an empty response"

	pathRelay  = "relay"
	pathDirect = "direct"
)

// Result is the outcome of one ask. Data is the SQL string, a *panel.Options,
// or the error message.
type Result struct {
	Status Status      `json:"status"`
	Data   interface{} `json:"data"`
	Reason Reason      `json:"reason,omitempty"`
}

func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Query returns the SQL of a successful query result.
func (r Result) Query() (string, bool) {
	s, ok := r.Data.(string)
	return s, ok && r.OK()
}

// Options returns the panel options of a successful panel-options result.
func (r Result) Options() (*panel.Options, bool) {
	o, ok := r.Data.(*panel.Options)
	return o, ok && r.OK()
}

// Message returns the error message of a failed result.
func (r Result) Message() string {
	if r.OK() {
		return ""
	}
	s, _ := r.Data.(string)
	return s
}

func success(data interface{}) Result {
	return Result{Status: StatusSuccess, Data: data}
}

func failure(reason Reason, msg string) Result {
	return Result{Status: StatusError, Data: msg, Reason: reason}
}

// Completer runs a chat completion. The backend relay implements it.
type Completer interface {
	Complete(ctx context.Context, req llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error)
}

// Credentials select the direct path. An empty APIURL means the OpenAI endpoint.
type Credentials struct {
	APIKey string
	APIURL string
}

func (c Credentials) endpoint() string {
	if strings.TrimSpace(c.APIURL) == "" {
		return llm.DefaultEndpoint
	}
	return c.APIURL
}

type directCompleter struct {
	client *llm.Client
	creds  Credentials
}

func (d directCompleter) Complete(ctx context.Context, req llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	return d.client.Complete(ctx, d.creds.endpoint(), d.creds.APIKey, req)
}

type Dispatcher struct {
	relay  Completer
	direct *llm.Client
	logger log.Logger
}

// New returns a Dispatcher. relay may be nil when only the direct path is used.
func New(relay Completer, direct *llm.Client, logger log.Logger) *Dispatcher {
	return &Dispatcher{relay: relay, direct: direct, logger: logger}
}

// AskBackendForAQuery asks the backend relay for a SQL answer.
func (d *Dispatcher) AskBackendForAQuery(ctx context.Context, in prompt.Input) Result {
	id := uuid.NewString()
	if d.relay == nil {
		d.logger.Error("Backend relay unavailable", "requestId", id)
		return failure(ReasonConfiguration, MsgRelayUnavailable)
	}
	return d.askQuery(ctx, id, pathRelay, d.relay, in)
}

// AskBackendForPanelOptions asks the backend relay for panel options for query.
func (d *Dispatcher) AskBackendForPanelOptions(ctx context.Context, in prompt.Input, query string) Result {
	id := uuid.NewString()
	if d.relay == nil {
		d.logger.Error("Backend relay unavailable", "requestId", id)
		return failure(ReasonConfiguration, MsgRelayUnavailable)
	}
	return d.askPanelOptions(ctx, id, pathRelay, d.relay, in, query)
}

// AskGPTForAQuery asks the provider at creds.APIURL directly for a SQL answer.
// A missing key fails before any network call.
func (d *Dispatcher) AskGPTForAQuery(ctx context.Context, creds Credentials, in prompt.Input) Result {
	id := uuid.NewString()
	if res, ok := d.checkCredentials(id, creds); !ok {
		return res
	}
	return d.askQuery(ctx, id, pathDirect, directCompleter{client: d.direct, creds: creds}, in)
}

// AskGPTForPanelOptions asks the provider at creds.APIURL directly for panel
// options for query.
func (d *Dispatcher) AskGPTForPanelOptions(ctx context.Context, creds Credentials, in prompt.Input, query string) Result {
	id := uuid.NewString()
	if res, ok := d.checkCredentials(id, creds); !ok {
		return res
	}
	return d.askPanelOptions(ctx, id, pathDirect, directCompleter{client: d.direct, creds: creds}, in, query)
}

func (d *Dispatcher) checkCredentials(id string, creds Credentials) (Result, bool) {
	if strings.TrimSpace(creds.APIKey) == "" {
		d.logger.Error("Direct request rejected", "requestId", id, "error", MsgMissingAPIKey)
		return failure(ReasonConfiguration, MsgMissingAPIKey), false
	}
	if d.direct == nil {
		d.logger.Error("Direct request rejected", "requestId", id, "error", MsgClientUnavailable)
		return failure(ReasonConfiguration, MsgClientUnavailable), false
	}
	return Result{}, true
}

func (d *Dispatcher) askQuery(ctx context.Context, id, path string, c Completer, in prompt.Input) Result {
	if strings.TrimSpace(in.Question) == "" {
		d.logger.Warn("Ask rejected", "requestId", id, "path", path, "error", MsgQuestionRequired)
		return failure(ReasonInvalidInput, MsgQuestionRequired)
	}

	req, err := prompt.BuildQueryPrompt(in)
	if err != nil {
		d.logger.Error("Failed to build query prompt", "requestId", id, "error", err)
		return failure(ReasonInvalidInput, err.Error())
	}

	msg, res, ok := d.complete(ctx, id, path, c, req)
	if !ok {
		return res
	}

	query, found := extract.SQLQuery(msg.Content)
	if !found {
		d.logger.Warn("No SQL block in response", "requestId", id, "path", path, "contentLength", len(msg.Content))
		return failure(ReasonNotFound, MsgSQLNotFound)
	}
	d.logger.Info("Extracted SQL query", "requestId", id, "path", path, "queryLength", len(query))
	return success(query)
}

func (d *Dispatcher) askPanelOptions(ctx context.Context, id, path string, c Completer, in prompt.Input, query string) Result {
	if strings.TrimSpace(in.Question) == "" {
		d.logger.Warn("Ask rejected", "requestId", id, "path", path, "error", MsgQuestionRequired)
		return failure(ReasonInvalidInput, MsgQuestionRequired)
	}
	if strings.TrimSpace(query) == "" {
		d.logger.Warn("Ask rejected", "requestId", id, "path", path, "error", MsgQueryRequired)
		return failure(ReasonInvalidInput, MsgQueryRequired)
	}

	req, err := prompt.BuildPanelOptionsPrompt(in, query)
	if err != nil {
		d.logger.Error("Failed to build panel options prompt", "requestId", id, "error", err)
		return failure(ReasonInvalidInput, err.Error())
	}

	msg, res, ok := d.complete(ctx, id, path, c, req)
	if !ok {
		return res
	}

	opts, err := extract.PanelOptions(msg.ToolCalls)
	if err != nil {
		d.logger.Error("Malformed panel options", "requestId", id, "path", path, "error", err)
		return failure(ReasonMalformed, err.Error())
	}
	if opts == nil {
		d.logger.Warn("No tool call in response", "requestId", id, "path", path)
		return failure(ReasonNotFound, MsgPanelNotFound)
	}
	d.logger.Info("Extracted panel options", "requestId", id, "path", path, "panelType", string(opts.PanelType))
	return success(opts)
}

// complete issues the request and returns the first choice's message.
func (d *Dispatcher) complete(ctx context.Context, id, path string, c Completer, req llm.ChatCompletionRequest) (llm.Message, Result, bool) {
	d.logger.Info("Sending request", "requestId", id, "path", path, "model", req.Model, "messageCount", len(req.Messages), "toolCount", len(req.Tools))

	resp, err := c.Complete(ctx, req)
	if err != nil {
		msg := llm.ErrorMessage(err)
		d.logger.Error("Request failed", "requestId", id, "path", path, "error", msg)
		return llm.Message{}, failure(ReasonTransport, msg), false
	}
	if resp == nil || len(resp.Choices) == 0 {
		d.logger.Error("Request failed", "requestId", id, "path", path, "error", MsgNoResponseContent)
		return llm.Message{}, failure(ReasonTransport, MsgNoResponseContent), false
	}

	msg := resp.Choices[0].Message
	d.logger.Debug("Received response", "requestId", id, "path", path, "contentLength", len(msg.Content), "toolCalls", len(msg.ToolCalls))
	return msg, Result{}, true
}
