package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlquery-app/pkg/dispatch"
	"nlquery-app/pkg/llm"
	"nlquery-app/pkg/model"
	"nlquery-app/pkg/panel"
	"nlquery-app/pkg/settings"
)

const settingsYAML = `datasource: pg-main
db_model:
  tables:
    - table: deposits
      type: fact
      columns:
        - name: date
          type: date
        - name: amount
          type: numeric
db_schema:
  fields:
    - field: status
      values: [pending, complete]
context:
  context:
    - role: user
      content: deposits are in cents
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{envGrafanaURL, envGrafanaToken, envOpenAIKey, envOpenAIURL, envDatabaseURL} {
		t.Setenv(k, "")
	}
}

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// chatServer answers SQL requests with a fenced block and panel requests with
// a create_panel tool call.
type chatServer struct {
	mu      sync.Mutex
	tokens  []string
	paths   []string
	toolArg string
}

func (c *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req llm.ChatCompletionRequest
	json.NewDecoder(r.Body).Decode(&req)

	c.mu.Lock()
	c.tokens = append(c.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	c.paths = append(c.paths, r.URL.Path)
	c.mu.Unlock()

	msg := llm.Message{Role: model.RoleAssistant, Content: "```sql\nSELECT date AS time, sum(amount) FROM deposits GROUP BY 1 ORDER BY 1\n```"}
	if len(req.Tools) > 0 {
		msg = llm.Message{Role: model.RoleAssistant, ToolCalls: []llm.ToolCall{{
			Function: llm.FunctionCall{Name: panel.ToolName, Arguments: c.toolArg},
		}}}
	}
	json.NewEncoder(w).Encode(llm.ChatCompletionResponse{Choices: []llm.Choice{{Message: msg}}})
}

func TestPromptCommand(t *testing.T) {
	clearEnv(t)
	path := writeSettings(t, settingsYAML)

	out, err := run(t, "prompt", "--settings", path, "How many deposits per day")
	require.NoError(t, err)

	var req llm.ChatCompletionRequest
	require.NoError(t, json.Unmarshal([]byte(out), &req))
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Empty(t, req.Tools)

	last := req.Messages[len(req.Messages)-1]
	assert.Equal(t, "deposits are in cents", last.Content)
	user := req.Messages[len(req.Messages)-2]
	assert.Contains(t, user.Content, "deposits: fact")
	assert.Contains(t, user.Content, `"How many deposits per day"`)
}

func TestPromptCommand_PanelOptions(t *testing.T) {
	clearEnv(t)
	path := writeSettings(t, settingsYAML)

	out, err := run(t, "prompt", "-s", path, "--query", "SELECT 1", "q")
	require.NoError(t, err)

	var req llm.ChatCompletionRequest
	require.NoError(t, json.Unmarshal([]byte(out), &req))
	require.Len(t, req.Tools, 1)
	assert.Equal(t, panel.ToolName, req.Tools[0].Function.Name)
	assert.Equal(t, "Here is the query: SELECT 1", req.Messages[len(req.Messages)-2].Content)
}

func TestPromptCommand_NeedsSettings(t *testing.T) {
	clearEnv(t)
	_, err := run(t, "prompt", "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, errNoSettingsSource)
}

func TestAskCommand_Direct(t *testing.T) {
	clearEnv(t)
	provider := &chatServer{}
	server := httptest.NewServer(provider)
	defer server.Close()
	path := writeSettings(t, settingsYAML)

	out, err := run(t, "ask", "-s", path, "--api-key", "sk-user", "--api-url", server.URL, "--plain", "deposits per day")
	require.NoError(t, err)
	assert.Equal(t, "```sql\nSELECT date AS time, sum(amount) FROM deposits GROUP BY 1 ORDER BY 1\n```\n", out)
	assert.Equal(t, []string{"sk-user"}, provider.tokens)
}

func TestAskCommand_PanelThroughRelay(t *testing.T) {
	clearEnv(t)
	provider := &chatServer{toolArg: `{"title":"Deposits","panelType":"timeseries"}`}
	server := httptest.NewServer(provider)
	defer server.Close()
	path := writeSettings(t, settingsYAML)

	out, err := run(t, "ask", "-s", path, "--grafana-url", server.URL, "--grafana-token", "glsa_token", "--plain", "--panel", "deposits per day")
	require.NoError(t, err)
	assert.Equal(t, []string{dispatch.RelayPath, dispatch.RelayPath}, provider.paths)
	assert.Equal(t, []string{"glsa_token", "glsa_token"}, provider.tokens)

	jsonStart := strings.Index(out, "{")
	require.GreaterOrEqual(t, jsonStart, 0, out)
	var pnl panel.Panel
	require.NoError(t, json.Unmarshal([]byte(out[jsonStart:]), &pnl))
	assert.Equal(t, "timeseries", pnl.Type)
	assert.Equal(t, "Deposits", pnl.Title)
	assert.Equal(t, "pg-main", pnl.Datasource.UID)
	require.Len(t, pnl.Targets, 1)
	assert.Contains(t, pnl.Targets[0].RawSQL, "FROM deposits")
}

func TestAskCommand_KindOverridesMissingOptions(t *testing.T) {
	clearEnv(t)
	provider := &chatServer{toolArg: `{"panelType":"gauge"}`}
	server := httptest.NewServer(provider)
	defer server.Close()
	path := writeSettings(t, settingsYAML)

	out, err := run(t, "ask", "-s", path, "--api-key", "sk", "--api-url", server.URL, "--plain", "--panel", "--kind", "table", "q")
	require.NoError(t, err)
	assert.Contains(t, out, `"type": "table"`)
}

func TestAskCommand_Errors(t *testing.T) {
	clearEnv(t)
	path := writeSettings(t, settingsYAML)

	_, err := run(t, "ask", "-s", path, "q")
	assert.ErrorIs(t, err, errNoCredentials)

	_, err = run(t, "ask", "-s", path, "--api-key", "sk", "--kind", "heatmap", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown panel type "heatmap"`)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(llm.ChatCompletionResponse{Choices: []llm.Choice{{Message: llm.Message{Content: "no idea"}}}})
	}))
	defer server.Close()
	_, err = run(t, "ask", "-s", path, "--api-key", "sk", "--api-url", server.URL, "q")
	require.Error(t, err)
	assert.Equal(t, dispatch.MsgSQLNotFound, err.Error())
}

// fakeGrafana serves the plugin settings API.
type fakeGrafana struct {
	mu     sync.Mutex
	stored map[string]interface{}
	posted map[string]interface{}
}

func (g *fakeGrafana) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/plugins/nlquery-app/settings" {
		http.NotFound(w, r)
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		json.NewEncoder(w).Encode(g.stored)
	case http.MethodPost:
		json.NewDecoder(r.Body).Decode(&g.posted)
		w.Write([]byte(`{"message":"Plugin settings updated"}`))
	}
}

func TestSettingsShow(t *testing.T) {
	clearEnv(t)
	path := writeSettings(t, settingsYAML)

	out, err := run(t, "settings", "show", "-s", path)
	require.NoError(t, err)
	assert.Contains(t, out, "pg-main")
	assert.Contains(t, out, "not configured")
	assert.Contains(t, out, "amount: numeric")
	assert.Contains(t, out, "pending, complete")
	assert.Contains(t, out, "The possible values for status are pending,complete.")
}

func TestSettingsShow_FromGrafana(t *testing.T) {
	clearEnv(t)
	grafana := &fakeGrafana{stored: map[string]interface{}{
		"enabled":          true,
		"jsonData":         map[string]string{"datasource": "pg-remote", "db_model": `{"tables":[{"table":"users","type":"dimension","columns":[]}]}`},
		"secureJsonFields": map[string]bool{"apiKey": true},
	}}
	server := httptest.NewServer(grafana)
	defer server.Close()

	out, err := run(t, "settings", "show", "--grafana-url", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "pg-remote")
	assert.Contains(t, out, "users")
	assert.Contains(t, out, "configured")
}

func TestSettingsPush(t *testing.T) {
	clearEnv(t)
	grafana := &fakeGrafana{stored: map[string]interface{}{"enabled": true, "jsonData": map[string]string{"apiUrl": "https://llm.internal/v1/chat/completions"}}}
	server := httptest.NewServer(grafana)
	defer server.Close()
	path := writeSettings(t, settingsYAML)

	out, err := run(t, "settings", "push", "--grafana-url", server.URL, "--file", path)
	require.NoError(t, err)
	assert.Equal(t, "Saved settings: 1 tables, 1 fields, 1 context messages\n", out)

	jsonData := grafana.posted["jsonData"].(map[string]interface{})
	assert.Equal(t, "https://llm.internal/v1/chat/completions", jsonData["apiUrl"])
	assert.Equal(t, "pg-main", jsonData["datasource"])
	dm, err := model.ParseDataModel(jsonData["db_model"].(string))
	require.NoError(t, err)
	assert.Equal(t, "deposits", dm.Tables[0].Table)
	assert.NotContains(t, grafana.posted, "secureJsonData")
}

func TestSettingsPush_RejectsInvalidFile(t *testing.T) {
	clearEnv(t)
	grafana := &fakeGrafana{stored: map[string]interface{}{}}
	server := httptest.NewServer(grafana)
	defer server.Close()
	path := writeSettings(t, "db_model:\n  tables:\n    - table: \"\"\n")

	_, err := run(t, "settings", "push", "--grafana-url", server.URL, "--file", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table 0: name is required")
	assert.Nil(t, grafana.posted)
}

func TestUpdateFrom(t *testing.T) {
	u := updateFrom(&settings.Settings{Model: model.DataModel{Tables: []model.Table{{Table: "t"}}}})
	assert.Nil(t, u.APIURL)
	assert.Nil(t, u.APIKey)
	assert.Nil(t, u.Datasource)
	require.NotNil(t, u.Model)
	assert.Equal(t, "t", u.Model.Tables[0].Table)

	u = updateFrom(&settings.Settings{APIKey: "sk", Datasource: "ds"})
	require.NotNil(t, u.APIKey)
	assert.Equal(t, "sk", *u.APIKey)
	assert.Equal(t, "ds", *u.Datasource)
}

func TestBuildDataModel(t *testing.T) {
	rows := []columnRow{
		{Table: "deposits", TableType: "BASE TABLE", Column: "date", DataType: "date"},
		{Table: "deposits", TableType: "BASE TABLE", Column: "amount", DataType: "numeric"},
		{Table: "daily_totals", TableType: "VIEW", Column: "day", DataType: "date"},
		{Table: "users", TableType: "BASE TABLE", Column: "id", DataType: "bigint"},
	}

	dm := buildDataModel(rows, nil)
	require.Len(t, dm.Tables, 3)
	assert.Equal(t, model.Table{
		Table:   "deposits",
		Type:    "table",
		Columns: []model.Column{{Name: "date", Type: "date"}, {Name: "amount", Type: "numeric"}},
	}, dm.Tables[0])
	assert.Equal(t, "view", dm.Tables[1].Type)
	assert.NoError(t, dm.Validate())

	dm = buildDataModel(rows, []string{"users"})
	require.Len(t, dm.Tables, 1)
	assert.Equal(t, "users", dm.Tables[0].Table)

	assert.Empty(t, buildDataModel(nil, nil).Tables)
}

func TestWriteModel(t *testing.T) {
	dm := model.DataModel{Tables: []model.Table{{Table: "t", Type: "fact", Columns: []model.Column{{Name: "c", Type: "int"}}}}}

	var buf bytes.Buffer
	require.NoError(t, writeModel(&buf, dm, true))
	assert.Equal(t, `{"tables":[{"table":"t","type":"fact","columns":[{"name":"c","type":"int"}]}]}`+"\n", buf.String())

	parsed, err := model.ParseDataModel(buf.String())
	require.NoError(t, err)
	assert.Equal(t, dm, parsed)
}

func TestIntrospectRequiresDSN(t *testing.T) {
	clearEnv(t)
	_, err := run(t, "introspect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--dsn")
}
