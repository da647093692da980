// Package extract pulls the SQL text and the panel tool call out of a chat
// completion answer.
package extract

import (
	"regexp"
	"strings"

	"nlquery-app/pkg/llm"
	"nlquery-app/pkg/panel"
)

var sqlBlock = regexp.MustCompile("(?s)```sql\r?\n(.*?)```")

// SQLQuery returns the trimmed body of the first ```sql fenced block. A block
// that is blank after trimming is treated as absent, so re-wrapping a result
// in a fence gives it back only when it is non-blank and holds no ``` run.
func SQLQuery(content string) (string, bool) {
	m := sqlBlock.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	query := strings.TrimSpace(m[1])
	if query == "" {
		return "", false
	}
	return query, true
}

// PanelOptions decodes the arguments of the first tool call. No calls means
// the model did not answer with a panel and yields (nil, nil).
func PanelOptions(calls []llm.ToolCall) (*panel.Options, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	return panel.Decode(calls[0].Function.Arguments)
}
