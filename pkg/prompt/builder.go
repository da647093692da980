package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"nlquery-app/pkg/llm"
	"nlquery-app/pkg/model"
	"nlquery-app/pkg/panel"
)

var userTemplate = template.Must(template.New("user").Parse(userPromptTemplate))

// Input is everything a single question is grounded on.
type Input struct {
	Question string
	Model    model.DataModel
	Schema   model.DataSchema
	Context  model.Context
}

// BuildQueryPrompt assembles the chat request that asks for a SQL answer.
func BuildQueryPrompt(in Input) (llm.ChatCompletionRequest, error) {
	user, err := renderUserPrompt(in)
	if err != nil {
		return llm.ChatCompletionRequest{}, err
	}

	messages := make([]llm.Message, 0, len(GuidanceNotes)+3+len(in.Context.Context))
	messages = append(messages, llm.Message{Role: model.RoleDeveloper, Content: PersonaPrompt})
	for _, note := range GuidanceNotes {
		messages = append(messages, llm.Message{Role: model.RoleDeveloper, Content: note})
	}
	messages = append(messages,
		llm.Message{Role: model.RoleDeveloper, Content: RenderSchema(in.Schema)},
		llm.Message{Role: model.RoleUser, Content: user},
	)
	for _, e := range in.Context.Context {
		messages = append(messages, llm.Message{Role: e.Role, Content: e.Content})
	}

	return llm.ChatCompletionRequest{
		Model:       ChatModel,
		Messages:    messages,
		Temperature: Temperature,
	}, nil
}

// BuildPanelOptionsPrompt extends the query prompt with the generated query and
// asks for a create_panel tool call.
func BuildPanelOptionsPrompt(in Input, query string) (llm.ChatCompletionRequest, error) {
	req, err := BuildQueryPrompt(in)
	if err != nil {
		return llm.ChatCompletionRequest{}, err
	}
	req.Messages = append(req.Messages,
		llm.Message{Role: model.RoleAssistant, Content: queryEchoPrefix + query},
		llm.Message{Role: model.RoleUser, Content: visualizeQuestion},
	)
	req.Tools = []llm.Tool{PanelTool()}
	return req, nil
}

// PanelTool is the function tool the model answers panel questions with.
func PanelTool() llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.Function{
			Name:        panel.ToolName,
			Description: panel.ToolDescription,
			Parameters:  panel.Schema(),
		},
	}
}

// RenderSchema renders one sentence per field, newline-joined.
func RenderSchema(s model.DataSchema) string {
	lines := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		lines = append(lines, fmt.Sprintf(schemaSentence, f.Field, strings.Join(f.Values, ",")))
	}
	return strings.Join(lines, "\n")
}

func renderUserPrompt(in Input) (string, error) {
	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, in); err != nil {
		return "", fmt.Errorf("failed to render user prompt: %w", err)
	}
	return buf.String(), nil
}
