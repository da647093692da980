package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlquery-app/pkg/llm"
	"nlquery-app/pkg/panel"
)

func TestSQLQuery(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		found   bool
	}{
		{name: "empty", content: "", found: false},
		{name: "prose only", content: "I cannot answer that.", found: false},
		{name: "surrounded", content: "Here:\n```sql\nSELECT 1\n```\ndone", want: "SELECT 1", found: true},
		{name: "crlf", content: "```sql\r\nSELECT 2\r\n```", want: "SELECT 2", found: true},
		{name: "multi-line", content: "```sql\nSELECT a,\n  b\nFROM t\n```", want: "SELECT a,\n  b\nFROM t", found: true},
		{name: "first of two", content: "```sql\nSELECT 1\n```\nor\n```sql\nSELECT 2\n```", want: "SELECT 1", found: true},
		{name: "other language", content: "```python\nprint(1)\n```", found: false},
		{name: "unterminated", content: "```sql\nSELECT 1", found: false},
		{name: "blank block", content: "```sql\n   \n```", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SQLQuery(tt.content)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSQLQueryRewrap(t *testing.T) {
	wrap := func(x string) string { return "```sql\n" + x + "\n```" }

	bodies := []string{
		"SELECT 1",
		"  SELECT 1  ",
		"\n\tSELECT 1\n\n",
		"SELECT `a` FROM `t`",
		"SELECT 'x``' AS y",
		"SELECT 1\n``",
		"x`",
		"WITH d AS (\n  SELECT date, amount FROM deposits\n)\nSELECT date AS time, sum(amount)\nFROM d\nGROUP BY 1\nORDER BY 1",
		"SELECT 1\r",
	}

	for _, x := range bodies {
		got, ok := SQLQuery(wrap(x))
		require.True(t, ok, "%q", x)
		assert.Equal(t, strings.TrimSpace(x), got, "%q", x)

		again, ok := SQLQuery(wrap(got))
		require.True(t, ok, "%q", x)
		assert.Equal(t, got, again, "%q", x)
	}

	for _, x := range []string{"", " ", "\n\t\n"} {
		got, ok := SQLQuery(wrap(x))
		assert.False(t, ok, "%q", x)
		assert.Empty(t, got)
	}
}

func TestPanelOptionsStat(t *testing.T) {
	calls := []llm.ToolCall{{
		ID:   "call_1",
		Type: "function",
		Function: llm.FunctionCall{
			Name:      panel.ToolName,
			Arguments: `{"panelType":"stat","stat":{"textMode":"value"}}`,
		},
	}}

	opts, err := PanelOptions(calls)
	require.NoError(t, err)
	require.NotNil(t, opts)
	assert.Equal(t, panel.KindStat, opts.PanelType)
	require.NotNil(t, opts.Stat)
	assert.Equal(t, "value", opts.Stat.TextMode)
}

func TestPanelOptionsUsesFirstCall(t *testing.T) {
	calls := []llm.ToolCall{
		{Function: llm.FunctionCall{Arguments: `{"panelType":"table"}`}},
		{Function: llm.FunctionCall{Arguments: `{"panelType":"stat"}`}},
	}
	opts, err := PanelOptions(calls)
	require.NoError(t, err)
	assert.Equal(t, panel.KindTable, opts.PanelType)
}

func TestPanelOptionsNoCalls(t *testing.T) {
	opts, err := PanelOptions(nil)
	assert.NoError(t, err)
	assert.Nil(t, opts)

	opts, err = PanelOptions([]llm.ToolCall{})
	assert.NoError(t, err)
	assert.Nil(t, opts)
}

func TestPanelOptionsMalformed(t *testing.T) {
	_, err := PanelOptions([]llm.ToolCall{{Function: llm.FunctionCall{Arguments: `{"panelType":`}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, panel.ErrMalformedOptions))
}
