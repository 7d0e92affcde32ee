package narrator

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/stockbuddy/advisor/internal/models"
)

// RenderPriceChart renders a PNG sparkline of recent closes for surfaces
// that attach a chart to the narrative. Returns raw PNG bytes.
func RenderPriceChart(points []models.ClosePoint, symbol string) ([]byte, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("need at least 2 close points for %s, got %d", symbol, len(points))
	}

	xValues := make([]float64, len(points))
	yValues := make([]float64, len(points))
	for i, p := range points {
		xValues[i] = float64(i)
		yValues[i] = p.Close
	}

	// Rising window in green, falling in red.
	color := drawing.ColorFromHex("16a34a")
	if yValues[len(yValues)-1] < yValues[0] {
		color = drawing.ColorFromHex("dc2626")
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s recent closes", symbol),
		Width:  700,
		Height: 260,
		Background: chart.Style{
			Padding: chart.Box{Top: 30, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{Style: chart.Hidden()},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.2f", f)
				}
				return ""
			},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name: symbol,
				Style: chart.Style{
					StrokeColor: color,
					StrokeWidth: 2.0,
				},
				XValues: xValues,
				YValues: yValues,
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed for %s: %w", symbol, err)
	}
	return buf.Bytes(), nil
}
