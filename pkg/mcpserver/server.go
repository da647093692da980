// Package mcpserver exposes query generation and panel suggestion as MCP tools
// so that assistants can ask the plugin the same questions the UI does.
package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"nlquery-app/pkg/dispatch"
	"nlquery-app/pkg/prompt"
	"nlquery-app/pkg/settings"
)

const (
	ServerName    = "nlquery-app"
	ServerVersion = "1.0.0"

	ToolGenerateSQL  = "generate_sql"
	ToolSuggestPanel = "suggest_panel"
)

// Asker is the relay half of the dispatcher.
type Asker interface {
	AskBackendForAQuery(ctx context.Context, in prompt.Input) dispatch.Result
	AskBackendForPanelOptions(ctx context.Context, in prompt.Input, query string) dispatch.Result
}

type GenerateSQLInput struct {
	Question string `json:"question" jsonschema:"natural-language question to answer with a Redshift SQL query"`
}

type SuggestPanelInput struct {
	Question string `json:"question" jsonschema:"the question the query answers"`
	Query    string `json:"query" jsonschema:"SQL query to visualize"`
}

type tools struct {
	asker  Asker
	store  settings.Store
	logger log.Logger
}

// New builds the MCP server. Questions are grounded on the settings in store.
func New(asker Asker, store settings.Store, logger log.Logger) *mcpsdk.Server {
	t := &tools{asker: asker, store: store, logger: logger}

	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, nil)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        ToolGenerateSQL,
		Description: "Translate a natural-language question into a Redshift SQL query over the configured data model",
	}, t.generateSQL)

	mcpsdk.AddTool(server, &mcpsdk.Tool{
		Name:        ToolSuggestPanel,
		Description: "Suggest Grafana panel options for visualizing a SQL query",
	}, t.suggestPanel)

	return server
}

// Handler serves server over streamable HTTP without session state, which
// suits Grafana's request-scoped resource calls.
func Handler(server *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return server
	}, &mcpsdk.StreamableHTTPOptions{Stateless: true})
}

func (t *tools) generateSQL(ctx context.Context, _ *mcpsdk.CallToolRequest, in GenerateSQLInput) (*mcpsdk.CallToolResult, any, error) {
	s, err := t.store.Get(ctx)
	if err != nil {
		t.logger.Error("Failed to load settings for MCP tool", "tool", ToolGenerateSQL, "error", err)
		return errorResult(err.Error()), nil, nil
	}

	res := t.asker.AskBackendForAQuery(ctx, s.Input(in.Question))
	if !res.OK() {
		return errorResult(res.Message()), nil, nil
	}
	query, _ := res.Query()
	return textResult(query), nil, nil
}

func (t *tools) suggestPanel(ctx context.Context, _ *mcpsdk.CallToolRequest, in SuggestPanelInput) (*mcpsdk.CallToolResult, any, error) {
	s, err := t.store.Get(ctx)
	if err != nil {
		t.logger.Error("Failed to load settings for MCP tool", "tool", ToolSuggestPanel, "error", err)
		return errorResult(err.Error()), nil, nil
	}

	res := t.asker.AskBackendForPanelOptions(ctx, s.Input(in.Question), in.Query)
	if !res.OK() {
		return errorResult(res.Message()), nil, nil
	}
	opts, _ := res.Options()
	data, err := json.MarshalIndent(opts, "", "  ")
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	return textResult(string(data)), nil, nil
}

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}

func errorResult(msg string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: msg}},
	}
}
