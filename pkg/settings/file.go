package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile loads settings from a YAML or JSON file. In the file the grounding
// material is structured, not JSON-encoded strings.
func FromFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	var s Settings
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var f fileJSON
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		s = f.settings()
	default:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	s.KeyConfigured = s.APIKey != ""
	return &s, nil
}

// fileJSON lets a JSON settings file carry apiKey, which Settings never
// marshals.
type fileJSON struct {
	Settings
	APIKey string `json:"apiKey"`
}

func (f fileJSON) settings() Settings {
	s := f.Settings
	s.APIKey = f.APIKey
	return s
}
