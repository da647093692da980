package panel

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultTitle       = "Your Answer"
	DatasourceType     = "grafana-postgresql-datasource"
	defaultPanelWidth  = 24
	defaultPanelHeight = 10
)

// DefaultTimeRange is the range a freshly generated panel is embedded with.
var DefaultTimeRange = TimeRange{From: "now-24h", To: "now"}

type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type BuildRequest struct {
	Query         string
	DatasourceUID string
	Kind          Kind
	Options       *Options
}

// Panel is a Grafana dashboard panel model ready to be embedded by the front end.
type Panel struct {
	Type        string                 `json:"type"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Datasource  DatasourceRef          `json:"datasource"`
	Targets     []Target               `json:"targets"`
	Options     map[string]interface{} `json:"options"`
	FieldConfig FieldConfig            `json:"fieldConfig"`
	GridPos     GridPos                `json:"gridPos"`
}

type DatasourceRef struct {
	Type string `json:"type"`
	UID  string `json:"uid"`
}

type Target struct {
	RefID      string        `json:"refId"`
	Datasource DatasourceRef `json:"datasource"`
	EditorMode string        `json:"editorMode"`
	Format     string        `json:"format"`
	RawQuery   bool          `json:"rawQuery"`
	RawSQL     string        `json:"rawSql"`
}

type FieldConfig struct {
	Defaults  FieldDefaults `json:"defaults"`
	Overrides []interface{} `json:"overrides"`
}

type FieldDefaults struct {
	Custom map[string]interface{} `json:"custom,omitempty"`
}

type GridPos struct {
	H int `json:"h"`
	W int `json:"w"`
	X int `json:"x"`
	Y int `json:"y"`
}

type builderFunc func(p *Panel, o *Options)

// builders must hold an entry for every Kind.
var builders = map[Kind]builderFunc{
	KindTimeseries: buildTimeseries,
	KindBarchart:   buildBarchart,
	KindPiechart:   buildPiechart,
	KindStat:       buildStat,
	KindTable:      buildTable,
}

func Build(req BuildRequest) (*Panel, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("query is required")
	}

	kind := req.Kind
	if kind == "" && req.Options != nil {
		kind = req.Options.PanelType
	}
	build, ok := builders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown panel type %q", kind)
	}

	ds := DatasourceRef{Type: DatasourceType, UID: req.DatasourceUID}
	p := &Panel{
		Type:       string(kind),
		Title:      DefaultTitle,
		Datasource: ds,
		Targets: []Target{{
			RefID:      "A",
			Datasource: ds,
			EditorMode: "code",
			Format:     "table",
			RawQuery:   true,
			RawSQL:     req.Query,
		}},
		Options:     map[string]interface{}{},
		FieldConfig: FieldConfig{Defaults: FieldDefaults{Custom: map[string]interface{}{}}, Overrides: []interface{}{}},
		GridPos:     GridPos{H: defaultPanelHeight, W: defaultPanelWidth},
	}

	opts := req.Options
	if opts == nil {
		opts = &Options{}
	}
	if opts.Title != "" {
		p.Title = opts.Title
	}
	p.Description = opts.Description

	build(p, opts)
	return p, nil
}

func buildTimeseries(p *Panel, o *Options) {
	ts := o.Timeseries
	if ts == nil {
		return
	}
	if ts.Legend != nil {
		p.Options["legend"] = legendOptions(ts.Legend)
	}
	if ts.Tooltip != nil {
		tooltip := map[string]interface{}{}
		setString(tooltip, "mode", ts.Tooltip.Mode)
		setString(tooltip, "sort", ts.Tooltip.Sort)
		p.Options["tooltip"] = tooltip
	}
	custom := p.FieldConfig.Defaults.Custom
	if s := ts.Series; s != nil {
		setFloat(custom, "lineWidth", s.LineWidth)
		setFloat(custom, "fillOpacity", s.FillOpacity)
		setString(custom, "gradientMode", s.GradientMode)
		setFloat(custom, "pointSize", s.PointSize)
		setString(custom, "showPoints", s.ShowPoints)
		setBool(custom, "spanNulls", s.SpanNulls)
	}
	if ts.Axes != nil && ts.Axes.Y != nil {
		y := ts.Axes.Y
		setString(custom, "axisLabel", y.Label)
		setFloat(custom, "axisSoftMin", y.AxisSoftMin)
		setFloat(custom, "axisSoftMax", y.AxisSoftMax)
		setString(custom, "axisPlacement", y.AxisPlacement)
	}
}

func buildBarchart(p *Panel, o *Options) {
	bc := o.Barchart
	if bc == nil {
		return
	}
	setString(p.Options, "orientation", bc.Orientation)
	setFloat(p.Options, "groupWidth", bc.GroupWidth)
	setString(p.Options, "showValue", bc.ShowValue)
	setString(p.Options, "stacking", bc.Stacking)
	if bc.Legend != nil {
		p.Options["legend"] = legendOptions(bc.Legend)
	}
}

func buildPiechart(p *Panel, o *Options) {
	pc := o.Piechart
	if pc == nil {
		return
	}
	setString(p.Options, "pieType", pc.PieType)
	if pc.Legend != nil {
		p.Options["legend"] = legendOptions(pc.Legend)
	}
	if pc.ReduceOptions != nil {
		p.Options["reduceOptions"] = reduceOptionsMap(pc.ReduceOptions)
	}
}

func buildStat(p *Panel, o *Options) {
	st := o.Stat
	if st == nil {
		return
	}
	setString(p.Options, "textMode", st.TextMode)
	setString(p.Options, "colorMode", st.ColorMode)
	setString(p.Options, "graphMode", st.GraphMode)
	if st.ReduceOptions != nil {
		p.Options["reduceOptions"] = reduceOptionsMap(st.ReduceOptions)
	}
}

func buildTable(p *Panel, o *Options) {
	tb := o.Table
	if tb == nil {
		return
	}
	setBool(p.Options, "showHeader", tb.ShowHeader)
	setString(p.Options, "cellHeight", tb.CellHeight)
	if tb.Footer != nil {
		footer := map[string]interface{}{}
		setBool(footer, "show", tb.Footer.Show)
		if len(tb.Footer.Reducer) > 0 {
			footer["reducer"] = tb.Footer.Reducer
		}
		p.Options["footer"] = footer
	}
}

func legendOptions(l *Legend) map[string]interface{} {
	m := map[string]interface{}{"displayMode": "list"}
	setBool(m, "showLegend", l.ShowLegend)
	setString(m, "placement", l.Placement)
	if len(l.Calcs) > 0 {
		m["calcs"] = l.Calcs
	}
	return m
}

func reduceOptionsMap(r *ReduceOptions) map[string]interface{} {
	m := map[string]interface{}{}
	setBool(m, "values", r.Values)
	if len(r.Calcs) > 0 {
		m["calcs"] = r.Calcs
	}
	return m
}

func setString(m map[string]interface{}, key, v string) {
	if v != "" {
		m[key] = v
	}
}

func setFloat(m map[string]interface{}, key string, v *float64) {
	if v != nil {
		m[key] = *v
	}
}

func setBool(m map[string]interface{}, key string, v *bool) {
	if v != nil {
		m[key] = *v
	}
}
