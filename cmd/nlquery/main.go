// Command nlquery is a developer CLI for the nlquery-app plugin. It builds and
// sends the same prompts the plugin does, manages the plugin settings through
// the Grafana API and introspects PostgreSQL to seed the data model.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"nlquery-app/pkg/settings"
)

const (
	envGrafanaURL   = "GRAFANA_URL"
	envGrafanaToken = "GRAFANA_TOKEN"
	envOpenAIKey    = "OPENAI_API_KEY"
	envOpenAIURL    = "OPENAI_API_URL"
	envDatabaseURL  = "DATABASE_URL"
)

var errNoSettingsSource = errors.New("either --settings or --grafana-url is required")

// options holds the persistent flags shared by every subcommand.
type options struct {
	settingsFile string
	grafanaURL   string
	grafanaToken string
	logger       log.Logger
}

func (o *options) store() *settings.GrafanaStore {
	return settings.NewGrafanaStore(o.grafanaURL, o.grafanaToken, o.logger)
}

// loadSettings prefers a local file and falls back to the Grafana API.
func (o *options) loadSettings(ctx context.Context) (*settings.Settings, error) {
	switch {
	case o.settingsFile != "":
		return settings.FromFile(o.settingsFile)
	case o.grafanaURL != "":
		return o.store().Get(ctx)
	default:
		return nil, errNoSettingsSource
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{logger: log.DefaultLogger}

	root := &cobra.Command{
		Use:   "nlquery",
		Short: "Turn natural-language questions into SQL and Grafana panels",
		Long: `nlquery drives the nlquery-app Grafana plugin from the terminal.

It renders the exact chat request the plugin sends, asks the model directly
or through the plugin's backend relay, manages the plugin settings and
builds the data model from a PostgreSQL catalog.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.settingsFile, "settings", "s", "", "Path to a YAML or JSON settings file")
	flags.StringVar(&opts.grafanaURL, "grafana-url", os.Getenv(envGrafanaURL), "Grafana base URL")
	flags.StringVar(&opts.grafanaToken, "grafana-token", os.Getenv(envGrafanaToken), "Grafana service account token")

	root.AddCommand(
		newPromptCmd(opts),
		newAskCmd(opts),
		newSettingsCmd(opts),
		newIntrospectCmd(),
	)
	return root
}

func main() {
	// A missing .env is fine; flags and the environment still apply.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
