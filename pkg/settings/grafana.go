package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"

	"nlquery-app/pkg/model"
)

const (
	DefaultPluginID = "nlquery-app"
	grafanaTimeout  = 30 * time.Second
)

// pluginSettingsDTO is the body of GET/POST /api/plugins/<id>/settings.
type pluginSettingsDTO struct {
	Enabled          bool              `json:"enabled"`
	Pinned           bool              `json:"pinned"`
	JSONData         JSONData          `json:"jsonData"`
	SecureJSONData   map[string]string `json:"secureJsonData,omitempty"`
	SecureJSONFields map[string]bool   `json:"secureJsonFields,omitempty"`
}

// GrafanaStore reads and writes settings through the Grafana plugin settings API.
type GrafanaStore struct {
	baseURL    string
	pluginID   string
	token      string
	httpClient *http.Client
	logger     log.Logger
}

func NewGrafanaStore(grafanaURL, token string, logger log.Logger) *GrafanaStore {
	return &GrafanaStore{
		baseURL:    strings.TrimRight(grafanaURL, "/"),
		pluginID:   DefaultPluginID,
		token:      token,
		httpClient: &http.Client{Timeout: grafanaTimeout},
		logger:     logger,
	}
}

// WithHTTPClient replaces the transport.
func (g *GrafanaStore) WithHTTPClient(c *http.Client) *GrafanaStore {
	g.httpClient = c
	return g
}

func (g *GrafanaStore) settingsURL() string {
	return fmt.Sprintf("%s/api/plugins/%s/settings", g.baseURL, g.pluginID)
}

func (g *GrafanaStore) Get(ctx context.Context) (*Settings, error) {
	dto, err := g.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s, err := FromJSONData(dto.JSONData)
	if err != nil {
		return nil, err
	}
	s.KeyConfigured = dto.SecureJSONFields[SecureAPIKey]
	return s, nil
}

// Set merges u into the stored settings and posts them back. The models are
// validated first. The secure key is only sent when u carries a new one.
func (g *GrafanaStore) Set(ctx context.Context, u Update) error {
	dto, err := g.fetch(ctx)
	if err != nil {
		return err
	}
	current, err := decodeJSONData(dto.JSONData)
	if err != nil {
		g.logger.Warn("Stored settings do not fully parse", "error", err)
	}

	next := current.Apply(u)
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	jsonData, err := next.JSONData()
	if err != nil {
		return err
	}
	keepUnparsed(&jsonData, dto.JSONData, u)
	body := pluginSettingsDTO{
		Enabled:  dto.Enabled,
		Pinned:   dto.Pinned,
		JSONData: jsonData,
	}
	if u.APIKey != nil && *u.APIKey != "" {
		body.SecureJSONData = map[string]string{SecureAPIKey: *u.APIKey}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if _, err := g.do(ctx, http.MethodPost, payload); err != nil {
		return err
	}
	g.logger.Info("Plugin settings updated", "pluginId", g.pluginID, "tables", len(next.Model.Tables), "fields", len(next.Schema.Fields), "secureKey", body.SecureJSONData != nil)
	return nil
}

// keepUnparsed carries over stored grounding strings that do not decode and
// that u leaves alone.
func keepUnparsed(next *JSONData, stored JSONData, u Update) {
	if u.Model == nil {
		if _, err := model.ParseDataModel(stored.DBModel); err != nil {
			next.DBModel = stored.DBModel
		}
	}
	if u.Schema == nil {
		if _, err := model.ParseDataSchema(stored.DBSchema); err != nil {
			next.DBSchema = stored.DBSchema
		}
	}
	if u.Context == nil {
		if _, err := model.ParseContext(stored.Context); err != nil {
			next.Context = stored.Context
		}
	}
}

func (g *GrafanaStore) fetch(ctx context.Context) (*pluginSettingsDTO, error) {
	data, err := g.do(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	var dto pluginSettingsDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("decode plugin settings: %w", err)
	}
	return &dto, nil
}

func (g *GrafanaStore) do(ctx context.Context, method string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.settingsURL(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grafana request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("grafana returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
