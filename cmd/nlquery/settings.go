package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"nlquery-app/pkg/prompt"
	"nlquery-app/pkg/settings"
)

func newSettingsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and update the plugin settings",
	}
	cmd.AddCommand(newSettingsShowCmd(opts), newSettingsPushCmd(opts))
	return cmd
}

func newSettingsShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the settings as tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.loadSettings(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load settings: %w", err)
			}
			renderSettings(cmd.OutOrStdout(), s)
			return nil
		},
	}
}

func newSettingsPushCmd(opts *options) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Validate a settings file and save it to Grafana",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.grafanaURL == "" {
				return fmt.Errorf("--grafana-url is required")
			}

			s, err := settings.FromFile(file)
			if err != nil {
				return err
			}
			if err := s.Validate(); err != nil {
				return fmt.Errorf("invalid settings: %w", err)
			}

			if err := opts.store().Set(cmd.Context(), updateFrom(s)); err != nil {
				return fmt.Errorf("failed to save settings: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved settings: %d tables, %d fields, %d context messages\n",
				len(s.Model.Tables), len(s.Schema.Fields), len(s.Context.Context))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON settings file to push")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// updateFrom replaces the grounding material wholesale. Connection fields and
// the key are only sent when the file sets them.
func updateFrom(s *settings.Settings) settings.Update {
	u := settings.Update{
		Model:   &s.Model,
		Schema:  &s.Schema,
		Context: &s.Context,
	}
	if s.APIURL != "" {
		u.APIURL = &s.APIURL
	}
	if s.Datasource != "" {
		u.Datasource = &s.Datasource
	}
	if s.APIKey != "" {
		u.APIKey = &s.APIKey
	}
	return u
}

func renderSettings(w io.Writer, s *settings.Settings) {
	general := newTable(w, "Settings")
	general.AppendHeader(table.Row{"Key", "Value"})
	general.AppendRows([]table.Row{
		{"API URL", valueOr(s.APIURL, "(OpenAI default)")},
		{"API key", keyState(s)},
		{"Datasource", valueOr(s.Datasource, "(none)")},
	})
	general.Render()

	tables := newTable(w, "Data model")
	tables.AppendHeader(table.Row{"Table", "Type", "Columns"})
	for _, t := range s.Model.Tables {
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, c.Name+": "+c.Type)
		}
		tables.AppendRow(table.Row{t.Table, t.Type, strings.Join(cols, "\n")})
		tables.AppendSeparator()
	}
	tables.AppendFooter(table.Row{"", "Total", len(s.Model.Tables)})
	tables.Render()

	schema := newTable(w, "Data schema")
	schema.AppendHeader(table.Row{"Field", "Values"})
	for _, f := range s.Schema.Fields {
		schema.AppendRow(table.Row{f.Field, strings.Join(f.Values, ", ")})
	}
	schema.Render()

	if len(s.Context.Context) > 0 {
		ctxTable := newTable(w, "Context")
		ctxTable.AppendHeader(table.Row{"#", "Role", "Content"})
		for i, e := range s.Context.Context {
			ctxTable.AppendRow(table.Row{i + 1, e.Role, e.Content})
		}
		ctxTable.Render()
	}

	fmt.Fprintf(w, "\nSchema prompt:\n%s\n", valueOr(prompt.RenderSchema(s.Schema), "(empty)"))
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
	})
	return t
}

func keyState(s *settings.Settings) string {
	if s.HasAPIKey() {
		return "configured"
	}
	return "not configured"
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
