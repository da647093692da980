package panel

import "fmt"

// Kind is the closed set of visualizations a generated panel can take.
type Kind string

const (
	KindTimeseries Kind = "timeseries"
	KindBarchart   Kind = "barchart"
	KindPiechart   Kind = "piechart"
	KindStat       Kind = "stat"
	KindTable      Kind = "table"
)

func Kinds() []Kind {
	return []Kind{KindTimeseries, KindBarchart, KindPiechart, KindStat, KindTable}
}

func (k Kind) Valid() bool {
	switch k {
	case KindTimeseries, KindBarchart, KindPiechart, KindStat, KindTable:
		return true
	}
	return false
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown panel type %q", s)
	}
	return k, nil
}

// Options is the sparse panel configuration produced by the model. Nil fields mean
// the host default applies.
type Options struct {
	Title       string             `json:"title,omitempty"`
	Description string             `json:"description,omitempty"`
	PanelType   Kind               `json:"panelType"`
	Timeseries  *TimeseriesOptions `json:"timeseries,omitempty"`
	Barchart    *BarchartOptions   `json:"barchart,omitempty"`
	Piechart    *PiechartOptions   `json:"piechart,omitempty"`
	Stat        *StatOptions       `json:"stat,omitempty"`
	Table       *TableOptions      `json:"table,omitempty"`
}

type Legend struct {
	ShowLegend *bool    `json:"showLegend,omitempty"`
	Placement  string   `json:"placement,omitempty"`
	Calcs      []string `json:"calcs,omitempty"`
}

type ReduceOptions struct {
	Values *bool    `json:"values,omitempty"`
	Calcs  []string `json:"calcs,omitempty"`
}

type TimeseriesOptions struct {
	Legend  *Legend  `json:"legend,omitempty"`
	Tooltip *Tooltip `json:"tooltip,omitempty"`
	Series  *Series  `json:"series,omitempty"`
	Axes    *Axes    `json:"axes,omitempty"`
}

type Tooltip struct {
	Mode string `json:"mode,omitempty"`
	Sort string `json:"sort,omitempty"`
}

type Series struct {
	LineWidth    *float64 `json:"lineWidth,omitempty"`
	FillOpacity  *float64 `json:"fillOpacity,omitempty"`
	GradientMode string   `json:"gradientMode,omitempty"`
	PointSize    *float64 `json:"pointSize,omitempty"`
	ShowPoints   string   `json:"showPoints,omitempty"`
	SpanNulls    *bool    `json:"spanNulls,omitempty"`
}

type Axes struct {
	X *AxisX `json:"x,omitempty"`
	Y *AxisY `json:"y,omitempty"`
}

type AxisX struct {
	Mode string `json:"mode,omitempty"`
}

type AxisY struct {
	Label         string   `json:"label,omitempty"`
	AxisSoftMin   *float64 `json:"axisSoftMin,omitempty"`
	AxisSoftMax   *float64 `json:"axisSoftMax,omitempty"`
	AxisPlacement string   `json:"axisPlacement,omitempty"`
}

type BarchartOptions struct {
	Orientation string   `json:"orientation,omitempty"`
	GroupWidth  *float64 `json:"groupWidth,omitempty"`
	ShowValue   string   `json:"showValue,omitempty"`
	Stacking    string   `json:"stacking,omitempty"`
	Legend      *Legend  `json:"legend,omitempty"`
}

type PiechartOptions struct {
	Legend        *Legend        `json:"legend,omitempty"`
	PieType       string         `json:"pieType,omitempty"`
	ReduceOptions *ReduceOptions `json:"reduceOptions,omitempty"`
}

type StatOptions struct {
	TextMode      string         `json:"textMode,omitempty"`
	ColorMode     string         `json:"colorMode,omitempty"`
	GraphMode     string         `json:"graphMode,omitempty"`
	ReduceOptions *ReduceOptions `json:"reduceOptions,omitempty"`
}

type TableOptions struct {
	ShowHeader *bool   `json:"showHeader,omitempty"`
	Footer     *Footer `json:"footer,omitempty"`
	CellHeight string  `json:"cellHeight,omitempty"`
}

type Footer struct {
	Show    *bool    `json:"show,omitempty"`
	Reducer []string `json:"reducer,omitempty"`
}
