// Package openapi embeds the OpenAPI document of the plugin resource routes.
package openapi

import (
	_ "embed"
	"encoding/json"
	"sort"
)

//go:embed openapi.json
var specJSON []byte

func GetSpec() (map[string]interface{}, error) {
	var spec map[string]interface{}
	if err := json.Unmarshal(specJSON, &spec); err != nil {
		return nil, err
	}
	return spec, nil
}

func GetSpecBytes() []byte {
	return specJSON
}

// Paths lists the documented resource paths, sorted.
func Paths() ([]string, error) {
	var spec struct {
		Paths map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal(specJSON, &spec); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(spec.Paths))
	for p := range spec.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}
