package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"nlquery-app/pkg/dispatch"
	"nlquery-app/pkg/llm"
	"nlquery-app/pkg/panel"
	"nlquery-app/pkg/prompt"
	"nlquery-app/pkg/settings"
)

var errNoCredentials = errors.New("pass --api-key for the direct path or --grafana-url for the backend relay")

type askOptions struct {
	apiKey string
	apiURL string
	panel  bool
	kind   string
	plain  bool
}

// asker runs one question down whichever path the flags select.
type asker struct {
	dispatcher *dispatch.Dispatcher
	creds      dispatch.Credentials
	direct     bool
}

func newAsker(opts *options, ask *askOptions, s *settings.Settings) (*asker, error) {
	client := llm.NewClient(opts.logger)

	if ask.apiKey != "" {
		url := ask.apiURL
		if url == "" {
			url = s.APIURL
		}
		return &asker{
			dispatcher: dispatch.New(nil, client, opts.logger),
			creds:      dispatch.Credentials{APIKey: ask.apiKey, APIURL: url},
			direct:     true,
		}, nil
	}

	if opts.grafanaURL == "" {
		return nil, errNoCredentials
	}
	relay := dispatch.NewRelayClient(opts.grafanaURL, opts.grafanaToken, client)
	opts.logger.Debug("Using backend relay", "url", relay.URL())
	return &asker{dispatcher: dispatch.New(relay, client, opts.logger)}, nil
}

func (a *asker) query(ctx context.Context, in prompt.Input) dispatch.Result {
	if a.direct {
		return a.dispatcher.AskGPTForAQuery(ctx, a.creds, in)
	}
	return a.dispatcher.AskBackendForAQuery(ctx, in)
}

func (a *asker) panelOptions(ctx context.Context, in prompt.Input, query string) dispatch.Result {
	if a.direct {
		return a.dispatcher.AskGPTForPanelOptions(ctx, a.creds, in, query)
	}
	return a.dispatcher.AskBackendForPanelOptions(ctx, in, query)
}

func newAskCmd(opts *options) *cobra.Command {
	ask := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask for a SQL query and, optionally, a panel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), cmd.OutOrStdout(), opts, ask, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&ask.apiKey, "api-key", os.Getenv(envOpenAIKey), "Provider API key for the direct path")
	flags.StringVar(&ask.apiURL, "api-url", os.Getenv(envOpenAIURL), "Provider chat completions URL (defaults to the settings or OpenAI)")
	flags.BoolVar(&ask.panel, "panel", false, "Also ask for panel options and print the panel JSON model")
	flags.StringVar(&ask.kind, "kind", "", "Force the panel type (timeseries, barchart, piechart, stat, table)")
	flags.BoolVar(&ask.plain, "plain", false, "Print the query without markdown rendering")
	return cmd
}

func runAsk(ctx context.Context, w io.Writer, opts *options, ask *askOptions, question string) error {
	var kind panel.Kind
	if ask.kind != "" {
		k, err := panel.ParseKind(ask.kind)
		if err != nil {
			return err
		}
		kind = k
	}

	s, err := opts.loadSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	a, err := newAsker(opts, ask, s)
	if err != nil {
		return err
	}

	in := s.Input(question)
	res := a.query(ctx, in)
	query, ok := res.Query()
	if !ok {
		return errors.New(res.Message())
	}
	if err := renderQuery(w, query, ask.plain); err != nil {
		return err
	}

	if !ask.panel {
		return nil
	}

	res = a.panelOptions(ctx, in, query)
	panelOpts, ok := res.Options()
	if !ok && kind == "" {
		return errors.New(res.Message())
	}

	pnl, err := panel.Build(panel.BuildRequest{
		Query:         query,
		DatasourceUID: s.Datasource,
		Kind:          kind,
		Options:       panelOpts,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(pnl)
}

// renderQuery prints the query as a fenced SQL block, through glamour unless
// plain output is requested or rendering fails.
func renderQuery(w io.Writer, query string, plain bool) error {
	md := "```sql\n" + query + "\n```\n"
	if !plain {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(120),
		)
		if err == nil {
			if out, err := r.Render(md); err == nil {
				_, err = io.WriteString(w, out)
				return err
			}
		}
	}
	_, err := io.WriteString(w, md)
	return err
}
