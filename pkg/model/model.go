package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	RoleDeveloper = "developer"
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

type Table struct {
	Table   string   `json:"table" yaml:"table"`
	Type    string   `json:"type" yaml:"type"`
	Columns []Column `json:"columns" yaml:"columns"`
}

// DataModel is the table/column description injected into every prompt.
type DataModel struct {
	Tables []Table `json:"tables" yaml:"tables"`
}

type Field struct {
	Field  string   `json:"field" yaml:"field"`
	Values []string `json:"values" yaml:"values"`
}

// DataSchema lists the permissible literal values of selected fields.
type DataSchema struct {
	Fields []Field `json:"fields" yaml:"fields"`
}

// Explanation is one conversation turn appended to every prompt.
type Explanation struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

type Context struct {
	Context []Explanation `json:"context" yaml:"context"`
}

func ParseDataModel(s string) (DataModel, error) {
	var m DataModel
	if err := decode(s, &m); err != nil {
		return DataModel{}, fmt.Errorf("parse db_model: %w", err)
	}
	return m, nil
}

func ParseDataSchema(s string) (DataSchema, error) {
	var m DataSchema
	if err := decode(s, &m); err != nil {
		return DataSchema{}, fmt.Errorf("parse db_schema: %w", err)
	}
	return m, nil
}

func ParseContext(s string) (Context, error) {
	var c Context
	if err := decode(s, &c); err != nil {
		return Context{}, fmt.Errorf("parse context: %w", err)
	}
	return c, nil
}

func decode(s string, v interface{}) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

func (m DataModel) Validate() error {
	for i, t := range m.Tables {
		if strings.TrimSpace(t.Table) == "" {
			return fmt.Errorf("table %d: name is required", i)
		}
		for j, c := range t.Columns {
			if strings.TrimSpace(c.Name) == "" {
				return fmt.Errorf("table %q column %d: name is required", t.Table, j)
			}
			if strings.TrimSpace(c.Type) == "" {
				return fmt.Errorf("table %q column %q: type is required", t.Table, c.Name)
			}
		}
	}
	return nil
}

func (s DataSchema) Validate() error {
	for i, f := range s.Fields {
		if strings.TrimSpace(f.Field) == "" {
			return fmt.Errorf("field %d: name is required", i)
		}
	}
	return nil
}

func (c Context) Validate() error {
	for i, e := range c.Context {
		if !IsValidRole(e.Role) {
			return fmt.Errorf("context %d: unknown role %q", i, e.Role)
		}
	}
	return nil
}

func IsValidRole(role string) bool {
	switch role {
	case RoleDeveloper, RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}
