package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"time"

	"reportd/pkg/errors"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"
)

// Fixed sizes keep the three pies identical on the page.
const (
	pieSize     = 630
	lineWidth   = 750
	lineHeight  = 225
	maxDayTicks = 12

	pieFontSize  = 9.0
	axisFontSize = 7.0
)

var hundred = decimal.NewFromInt(100)

// PieLabels renders "<key> <pct>%" labels with one decimal.
func PieLabels(rows []Row) []string {
	var sum decimal.Decimal
	for _, r := range rows {
		if r.Total.IsPositive() {
			sum = sum.Add(r.Total)
		}
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if !r.Total.IsPositive() || sum.IsZero() {
			continue
		}
		pct := r.Total.Mul(hundred).Div(sum)
		out = append(out, fmt.Sprintf("%s %s%%", r.Key, pct.StringFixed(1)))
	}
	return out
}

// PieChart renders rows as a PNG pie and returns it base64 encoded.
// Non-positive totals are left out; no data renders a single grey slice.
func PieChart(rows []Row) (string, error) {
	labels := PieLabels(rows)
	values := make([]chart.Value, 0, len(labels))
	i := 0
	for _, r := range rows {
		if !r.Total.IsPositive() || len(labels) == 0 {
			continue
		}
		values = append(values, chart.Value{Value: r.Total.InexactFloat64(), Label: labels[i]})
		i++
	}
	if len(values) == 0 {
		values = []chart.Value{{
			Value: 1,
			Label: "No data",
			Style: chart.Style{FillColor: chart.ColorLightGray},
		}}
	}

	pie := chart.PieChart{
		Width:      pieSize,
		Height:     pieSize,
		Values:     values,
		SliceStyle: chart.Style{FontSize: pieFontSize},
	}
	var buf bytes.Buffer
	if err := pie.Render(chart.PNG, &buf); err != nil {
		return "", errors.Wrap(err, "render pie chart")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DayTicks picks at most maxDayTicks evenly stepped labels, starting at the
// first day. Tick values are on the time axis used by LineChart.
func DayTicks(days []DayTotal) []chart.Tick {
	step := (len(days) + maxDayTicks - 1) / maxDayTicks
	if step < 1 {
		step = 1
	}
	ticks := make([]chart.Tick, 0, maxDayTicks+1)
	for i := 0; i < len(days); i += step {
		ticks = append(ticks, chart.Tick{Value: chart.TimeToFloat64(days[i].Date), Label: days[i].Date.Format("2006-01-02")})
	}
	return ticks
}

// LineChart renders the daily trend as a base64 PNG, plotted against the
// sale dates so calendar gaps keep their width.
func LineChart(days []DayTotal) (string, error) {
	xs := make([]time.Time, 0, len(days))
	ys := make([]float64, 0, len(days))
	lo, hi := 0.0, 0.0
	for i, d := range days {
		y := d.Total.InexactFloat64()
		xs = append(xs, d.Date)
		ys = append(ys, y)
		if i == 0 || y < lo {
			lo = y
		}
		if i == 0 || y > hi {
			hi = y
		}
	}
	if len(xs) == 0 {
		xs, ys = []time.Time{time.Unix(0, 0)}, []float64{0}
	}
	if len(xs) == 1 {
		xs = append(xs, xs[0].AddDate(0, 0, 1))
		ys = append(ys, ys[0])
	}
	if lo == hi {
		lo, hi = lo-1, hi+1
	}

	graph := chart.Chart{
		Width:  lineWidth,
		Height: lineHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 10, Left: 10, Right: 30, Bottom: 10},
		},
		XAxis: chart.XAxis{
			Name:      "Sale Date",
			NameStyle: chart.Style{FontSize: axisFontSize},
			Style:     chart.Style{FontSize: axisFontSize - 1, TextRotationDegrees: 45},
			Range:     &chart.ContinuousRange{Min: chart.TimeToFloat64(xs[0]), Max: chart.TimeToFloat64(xs[len(xs)-1])},
			Ticks:     DayTicks(days),
		},
		YAxis: chart.YAxis{
			Name:      "Total Sales",
			NameStyle: chart.Style{FontSize: axisFontSize},
			Style:     chart.Style{FontSize: axisFontSize - 1},
			Range:     &chart.ContinuousRange{Min: lo, Max: hi},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return FormatMoney(decimal.NewFromFloat(f))
				}
				return ""
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				XValues: xs,
				YValues: ys,
				Style:   chart.Style{StrokeWidth: 1.5, StrokeColor: chart.ColorBlue},
			},
		},
	}
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return "", errors.Wrap(err, "render line chart")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
