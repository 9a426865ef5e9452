// Package chart renders the candlestick view with support/resistance zones and
// direction markers.
package chart

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/render"

	"github.com/dyike/tsladash/models"
)

const (
	supportFill    = "rgba(0,255,0,0.2)"
	resistanceFill = "rgba(255,0,0,0.2)"
	markerSize     = 10
)

type Options struct {
	Symbol  string
	MaxRows int
	Width   string
	Height  string
}

func (o Options) withDefaults() Options {
	if o.Symbol == "" {
		o.Symbol = "TSLA"
	}
	if o.MaxRows <= 0 {
		o.MaxRows = 100
	}
	if o.Width == "" {
		o.Width = "1100px"
	}
	if o.Height == "" {
		o.Height = "600px"
	}
	return o
}

// Title is the chart heading for opts.
func Title(o Options) string {
	o = o.withDefaults()
	return fmt.Sprintf("%s Chart (Last %d Rows)", o.Symbol, o.MaxRows)
}

// Marker is one direction glyph on the chart.
type Marker struct {
	Date      string           `json:"date"`
	Price     float64          `json:"price"`
	Direction models.Direction `json:"direction"`
}

type markerStyle struct {
	symbol string
	rotate int
	color  string
}

var markerStyles = map[models.Direction]markerStyle{
	models.DirectionLong:    {symbol: "triangle", color: "green"},
	models.DirectionShort:   {symbol: "triangle", rotate: 180, color: "red"},
	models.DirectionNeutral: {symbol: "circle", color: "yellow"},
}

// Markers places LONG just under the low, SHORT just over the high and
// NEUTRAL at the bar midpoint.
func Markers(bars []*models.Bar) []Marker {
	out := make([]Marker, 0, len(bars))
	for _, b := range bars {
		m := Marker{Date: b.Day(), Direction: b.Direction}
		switch b.Direction {
		case models.DirectionLong:
			m.Price = b.Low * 0.98
		case models.DirectionShort:
			m.Price = b.High * 1.02
		default:
			m.Direction = models.DirectionNeutral
			m.Price = (b.High + b.Low) / 2
		}
		m.Price = math.Round(m.Price*100) / 100
		out = append(out, m)
	}
	return out
}

func tail(bars []*models.Bar, n int) []*models.Bar {
	if len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}

// Build assembles the chart. Candles cover every bar; zones, level lines and
// markers cover the last MaxRows bars.
func Build(bars []*models.Bar, o Options) *charts.Kline {
	o = o.withDefaults()

	dates := make([]string, len(bars))
	candles := make([]opts.KlineData, len(bars))
	for i, b := range bars {
		dates[i] = b.Day()
		candles[i] = opts.KlineData{Value: [4]float64{b.Open, b.Close, b.Low, b.High}}
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: Title(o),
			Width:     o.Width,
			Height:    o.Height,
		}),
		charts.WithTitleOpts(opts.Title{Title: Title(o)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Date"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Price ($)", Scale: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "30px"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	kline.SetXAxis(dates)

	recent := tail(bars, o.MaxRows)
	kline.AddSeries(o.Symbol, candles,
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        "green",
			Color0:       "red",
			BorderColor:  "green",
			BorderColor0: "red",
		}),
		charts.WithMarkAreaNameCoordItemOpts(zoneAreas(bars, len(bars)-len(recent))...),
	)

	kline.Overlap(levelLines(bars, len(bars)-len(recent)))

	scatter := charts.NewScatter()
	grouped := map[models.Direction][]opts.ScatterData{}
	for _, m := range Markers(recent) {
		st := markerStyles[m.Direction]
		grouped[m.Direction] = append(grouped[m.Direction], opts.ScatterData{
			Value:        []any{m.Date, m.Price},
			Symbol:       st.symbol,
			SymbolSize:   markerSize,
			SymbolRotate: st.rotate,
		})
	}
	for _, d := range []models.Direction{models.DirectionLong, models.DirectionShort, models.DirectionNeutral} {
		data := grouped[d]
		if len(data) == 0 {
			continue
		}
		scatter.AddSeries(string(d), data,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: markerStyles[d].color}))
	}
	if len(scatter.MultiSeries) > 0 {
		kline.Overlap(scatter)
	}
	return kline
}

// zoneAreas shades each bar's zones from its date to the next one.
func zoneAreas(bars []*models.Bar, from int) []opts.MarkAreaNameCoordItem {
	var areas []opts.MarkAreaNameCoordItem
	for i := from; i < len(bars); i++ {
		b := bars[i]
		x0 := b.Day()
		x1 := x0
		if i+1 < len(bars) {
			x1 = bars[i+1].Day()
		}
		if z, ok := b.SupportZone(); ok {
			areas = append(areas, opts.MarkAreaNameCoordItem{
				Coordinate0: []any{x0, z.Lower},
				Coordinate1: []any{x1, z.Upper},
				ItemStyle:   &opts.ItemStyle{Color: supportFill},
			})
		}
		if z, ok := b.ResistanceZone(); ok {
			areas = append(areas, opts.MarkAreaNameCoordItem{
				Coordinate0: []any{x0, z.Lower},
				Coordinate1: []any{x1, z.Upper},
				ItemStyle:   &opts.ItemStyle{Color: resistanceFill},
			})
		}
	}
	return areas
}

// levelLines draws the top of support and the bottom of resistance, the two
// levels the classifier compares against. Bars before from are left blank.
func levelLines(bars []*models.Bar, from int) *charts.Line {
	support := make([]opts.LineData, len(bars))
	resistance := make([]opts.LineData, len(bars))
	for i, b := range bars {
		support[i] = opts.LineData{Value: "-"}
		resistance[i] = opts.LineData{Value: "-"}
		if i < from {
			continue
		}
		if z, ok := b.SupportZone(); ok {
			support[i].Value = z.Upper
		}
		if z, ok := b.ResistanceZone(); ok {
			resistance[i].Value = z.Lower
		}
	}

	line := charts.NewLine()
	line.AddSeries("Support", support,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: "green", Width: 1, Type: "dashed"}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "green"}),
	)
	line.AddSeries("Resistance", resistance,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: "red", Width: 1, Type: "dashed"}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "red"}),
	)
	return line
}

// Render writes a standalone HTML page.
func Render(w io.Writer, bars []*models.Bar, o Options) error {
	return Build(bars, o).Render(w)
}

// Snippet returns the element and script for embedding the chart in a page.
func Snippet(bars []*models.Bar, o Options) render.ChartSnippet {
	return Build(bars, o).RenderSnippet()
}
