package panel

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

const (
	ToolName        = "create_panel"
	ToolDescription = "Create a grafana visualization panel"
)

// ErrMalformedOptions marks tool-call arguments that are not a valid panel
// configuration. It is distinct from the model not answering at all.
var ErrMalformedOptions = errors.New("malformed panel options")

var (
	resolveOnce sync.Once
	resolved    *jsonschema.Resolved
	resolveErr  error
)

// Schema returns the parameter schema of the create_panel function tool.
func Schema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"title": {
				Type:        "string",
				Description: "Title of the panel",
			},
			"description": {
				Type:        "string",
				Description: "Description of the panel",
			},
			"panelType": {
				Type:        "string",
				Enum:        kindEnum(),
				Description: "Type of the visualization panel",
			},
			"timeseries": {
				Type:        "object",
				Description: "Timeseries specific options",
				Properties: map[string]*jsonschema.Schema{
					"legend": object(map[string]*jsonschema.Schema{
						"showLegend": boolean(),
						"placement":  enum("bottom", "right"),
						"calcs":      stringArray(),
					}),
					"tooltip": object(map[string]*jsonschema.Schema{
						"mode": enum("single", "multi", "none"),
						"sort": enum("none", "asc", "desc"),
					}),
					"series": object(map[string]*jsonschema.Schema{
						"lineWidth":    number(),
						"fillOpacity":  number(),
						"gradientMode": enum("none", "opacity", "hue"),
						"pointSize":    number(),
						"showPoints":   enum("auto", "never", "always"),
						"spanNulls":    boolean(),
					}),
					"axes": object(map[string]*jsonschema.Schema{
						"x": object(map[string]*jsonschema.Schema{
							"mode": enum("time"),
						}),
						"y": object(map[string]*jsonschema.Schema{
							"label":         {Type: "string"},
							"axisSoftMin":   number(),
							"axisSoftMax":   number(),
							"axisPlacement": enum("auto", "left", "right"),
						}),
					}),
				},
			},
			"barchart": {
				Type:        "object",
				Description: "Bar chart specific options",
				Properties: map[string]*jsonschema.Schema{
					"orientation": enum("auto", "horizontal", "vertical"),
					"groupWidth":  number(),
					"showValue":   enum("auto", "never", "always"),
					"stacking":    enum("none", "normal", "percent"),
					"legend": object(map[string]*jsonschema.Schema{
						"showLegend": boolean(),
						"placement":  enum("bottom", "right"),
					}),
				},
			},
			"piechart": {
				Type:        "object",
				Description: "Pie chart specific options",
				Properties: map[string]*jsonschema.Schema{
					"legend": object(map[string]*jsonschema.Schema{
						"showLegend": boolean(),
						"placement":  enum("bottom", "right"),
					}),
					"pieType":       enum("pie", "donut"),
					"reduceOptions": reduceOptions(),
				},
			},
			"stat": {
				Type:        "object",
				Description: "Stat specific options",
				Properties: map[string]*jsonschema.Schema{
					"textMode":      enum("auto", "value", "value_and_name"),
					"colorMode":     enum("value", "background"),
					"graphMode":     enum("area", "none"),
					"reduceOptions": reduceOptions(),
				},
			},
			"table": {
				Type:        "object",
				Description: "Table specific options",
				Properties: map[string]*jsonschema.Schema{
					"showHeader": boolean(),
					"footer": object(map[string]*jsonschema.Schema{
						"show":    boolean(),
						"reducer": stringArray(),
					}),
					"cellHeight": enum("sm", "md", "lg"),
				},
			},
		},
		Required: []string{"panelType"},
	}
}

// Decode parses create_panel tool-call arguments. The payload must be JSON that
// satisfies Schema; anything else wraps ErrMalformedOptions.
func Decode(arguments string) (*Options, error) {
	rs, err := resolvedSchema()
	if err != nil {
		return nil, err
	}

	var instance map[string]any
	if err := json.Unmarshal([]byte(arguments), &instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOptions, err)
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: arguments are null", ErrMalformedOptions)
	}
	if err := rs.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOptions, err)
	}

	var opts Options
	if err := json.Unmarshal([]byte(arguments), &opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOptions, err)
	}
	return &opts, nil
}

func resolvedSchema() (*jsonschema.Resolved, error) {
	resolveOnce.Do(func() {
		resolved, resolveErr = Schema().Resolve(nil)
		if resolveErr != nil {
			resolveErr = fmt.Errorf("resolve panel schema: %w", resolveErr)
		}
	})
	return resolved, resolveErr
}

func kindEnum() []any {
	kinds := Kinds()
	out := make([]any, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, string(k))
	}
	return out
}

func object(props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object", Properties: props}
}

func enum(values ...string) *jsonschema.Schema {
	e := make([]any, 0, len(values))
	for _, v := range values {
		e = append(e, v)
	}
	return &jsonschema.Schema{Type: "string", Enum: e}
}

func boolean() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean"}
}

func number() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "number"}
}

func stringArray() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "string"}}
}

func reduceOptions() *jsonschema.Schema {
	return object(map[string]*jsonschema.Schema{
		"values": boolean(),
		"calcs":  stringArray(),
	})
}
