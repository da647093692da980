package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"nlquery-app/pkg/llm"
	"nlquery-app/pkg/prompt"
)

func newPromptCmd(opts *options) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "prompt <question>",
		Short: "Print the chat request sent for a question",
		Long: `Print the chat completion request the plugin would send for a question.
With --query the panel-options request for that query is printed instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.loadSettings(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load settings: %w", err)
			}

			in := s.Input(args[0])
			var req llm.ChatCompletionRequest
			if query != "" {
				req, err = prompt.BuildPanelOptionsPrompt(in, query)
			} else {
				req, err = prompt.BuildQueryPrompt(in)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(req)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "SQL query to build the panel-options request for")
	return cmd
}
