package pipeline

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/sells-group/ticker-ingest/internal/model"
)

const (
	chartWidth  = 800
	chartHeight = 400
)

var chartDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339,
}

func parseChartDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range chartDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// renderCloseChart draws the close price series of a price table as a PNG
// line chart with dates on the X axis.
func renderCloseChart(entity, period string, t model.Table) ([]byte, error) {
	var (
		dates  []time.Time
		closes []float64
	)
	for i := range t.Rows {
		d, ok := parseChartDate(t.Value(i, "Date"))
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(t.Value(i, "Close"), 64)
		if err != nil {
			continue
		}
		dates = append(dates, d)
		closes = append(closes, v)
	}
	if len(closes) == 0 {
		return nil, eris.New("pipeline: no close prices to chart")
	}

	xAxis := chart.XAxis{
		Name:           "Date",
		ValueFormatter: chart.TimeDateValueFormatter,
	}
	yAxis := chart.YAxis{
		Name: "Close Price (USD)",
	}

	// go-chart refuses a zero-width range, so a single bar or a flat series
	// gets an explicit one.
	if len(dates) == 1 {
		day := float64((24 * time.Hour).Nanoseconds())
		x := float64(dates[0].UnixNano())
		xAxis.Range = &chart.ContinuousRange{Min: x - day, Max: x + day}
	}
	lo, hi := closes[0], closes[0]
	for _, v := range closes {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi == lo {
		yAxis.Range = &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
	}

	graph := chart.Chart{
		Title:  entity + " Close Price (" + period + ")",
		Width:  chartWidth,
		Height: chartHeight,
		XAxis:  xAxis,
		YAxis:  yAxis,
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Close",
				XValues: dates,
				YValues: closes,
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, eris.Wrap(err, "pipeline: render chart")
	}
	return buf.Bytes(), nil
}
