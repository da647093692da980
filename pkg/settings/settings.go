// Package settings reads and writes the plugin configuration: provider
// endpoint, datasource and the grounding material every prompt is built from.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"nlquery-app/pkg/model"
	"nlquery-app/pkg/prompt"
)

// ErrReadOnly is returned by stores that cannot persist changes.
var ErrReadOnly = errors.New("settings store is read-only")

const SecureAPIKey = "apiKey"

// JSONData is the stored jsonData shape. DBModel, DBSchema and Context hold
// JSON-encoded strings.
type JSONData struct {
	APIURL     string `json:"apiUrl,omitempty"`
	Datasource string `json:"datasource,omitempty"`
	DBModel    string `json:"db_model,omitempty"`
	DBSchema   string `json:"db_schema,omitempty"`
	Context    string `json:"context,omitempty"`
}

// Settings is the decoded configuration.
type Settings struct {
	APIURL     string           `json:"apiUrl,omitempty" yaml:"apiUrl,omitempty"`
	APIKey     string           `json:"-" yaml:"apiKey,omitempty"`
	Datasource string           `json:"datasource,omitempty" yaml:"datasource,omitempty"`
	Model      model.DataModel  `json:"db_model" yaml:"db_model"`
	Schema     model.DataSchema `json:"db_schema" yaml:"db_schema"`
	Context    model.Context    `json:"context" yaml:"context"`

	// KeyConfigured reports a stored key the reader cannot see.
	KeyConfigured bool `json:"keyConfigured" yaml:"-"`
}

// Parse decodes stored jsonData and decrypted secureJsonData. Empty jsonData is
// an empty configuration.
func Parse(jsonData []byte, secure map[string]string) (*Settings, error) {
	s, err := ParsePartial(jsonData, secure)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ParsePartial is Parse that keeps what it could decode. When a grounding
// string is broken, that field is left empty and the error names it; the
// connection fields and the key survive. Settings are nil only when jsonData
// itself is unreadable.
func ParsePartial(jsonData []byte, secure map[string]string) (*Settings, error) {
	var raw JSONData
	if len(jsonData) > 0 {
		if err := json.Unmarshal(jsonData, &raw); err != nil {
			return nil, fmt.Errorf("parse jsonData: %w", err)
		}
	}
	s, err := decodeJSONData(raw)
	s.APIKey = secure[SecureAPIKey]
	s.KeyConfigured = s.APIKey != ""
	return s, err
}

// FromJSONData decodes the JSON-encoded grounding strings of raw.
func FromJSONData(raw JSONData) (*Settings, error) {
	s, err := decodeJSONData(raw)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// decodeJSONData never returns nil settings. Fields that fail to decode are
// zero and their errors are joined.
func decodeJSONData(raw JSONData) (*Settings, error) {
	dm, errModel := model.ParseDataModel(raw.DBModel)
	ds, errSchema := model.ParseDataSchema(raw.DBSchema)
	c, errContext := model.ParseContext(raw.Context)
	return &Settings{
		APIURL:     raw.APIURL,
		Datasource: raw.Datasource,
		Model:      dm,
		Schema:     ds,
		Context:    c,
	}, errors.Join(errModel, errSchema, errContext)
}

// JSONData encodes s back into the stored shape.
func (s *Settings) JSONData() (JSONData, error) {
	dm, err := json.Marshal(s.Model)
	if err != nil {
		return JSONData{}, fmt.Errorf("encode db_model: %w", err)
	}
	ds, err := json.Marshal(s.Schema)
	if err != nil {
		return JSONData{}, fmt.Errorf("encode db_schema: %w", err)
	}
	c, err := json.Marshal(s.Context)
	if err != nil {
		return JSONData{}, fmt.Errorf("encode context: %w", err)
	}
	return JSONData{
		APIURL:     s.APIURL,
		Datasource: s.Datasource,
		DBModel:    string(dm),
		DBSchema:   string(ds),
		Context:    string(c),
	}, nil
}

// Validate checks the grounding material before it is saved.
func (s *Settings) Validate() error {
	return errors.Join(s.Model.Validate(), s.Schema.Validate(), s.Context.Validate())
}

// Input grounds question on the configured model, schema and context.
func (s *Settings) Input(question string) prompt.Input {
	return prompt.Input{
		Question: question,
		Model:    s.Model,
		Schema:   s.Schema,
		Context:  s.Context,
	}
}

// HasAPIKey reports whether a server-held provider key is present.
func (s *Settings) HasAPIKey() bool {
	return s.APIKey != "" || s.KeyConfigured
}

// Update is a partial change. Nil fields are left as they are.
type Update struct {
	APIURL     *string
	APIKey     *string
	Datasource *string
	Model      *model.DataModel
	Schema     *model.DataSchema
	Context    *model.Context
}

// Apply returns a copy of s with u applied.
func (s Settings) Apply(u Update) *Settings {
	if u.APIURL != nil {
		s.APIURL = *u.APIURL
	}
	if u.APIKey != nil {
		s.APIKey = *u.APIKey
		s.KeyConfigured = *u.APIKey != ""
	}
	if u.Datasource != nil {
		s.Datasource = *u.Datasource
	}
	if u.Model != nil {
		s.Model = *u.Model
	}
	if u.Schema != nil {
		s.Schema = *u.Schema
	}
	if u.Context != nil {
		s.Context = *u.Context
	}
	return &s
}

// Store is the settings collaborator. Implementations give no transactional
// guarantee between Get and Set.
type Store interface {
	Get(ctx context.Context) (*Settings, error)
	Set(ctx context.Context, u Update) error
}

// StaticStore serves the settings Grafana handed to the plugin instance.
// Grafana re-creates the instance when settings change, so Set is refused.
type StaticStore struct {
	settings Settings
}

func NewStaticStore(s *Settings) *StaticStore {
	if s == nil {
		s = &Settings{}
	}
	return &StaticStore{settings: *s}
}

func (s *StaticStore) Get(_ context.Context) (*Settings, error) {
	cp := s.settings
	return &cp, nil
}

func (s *StaticStore) Set(_ context.Context, _ Update) error {
	return ErrReadOnly
}

var (
	_ Store = (*StaticStore)(nil)
	_ Store = (*GrafanaStore)(nil)
)
