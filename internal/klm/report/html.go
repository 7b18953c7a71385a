package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/efficiency"
)

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// mapChart renders the non-empty bins of a map as a coloured scatter.
func mapChart(m efficiency.EfficiencyMap) *charts.Scatter {
	data := make([]opts.ScatterData, 0)
	for _, b := range m.Bins {
		if b.Total == 0 {
			continue
		}
		data = append(data, opts.ScatterData{Value: []interface{}{b.X, b.Y, b.Eff}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "KLM efficiency", Width: "800px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{Title: m.Name, Subtitle: fmt.Sprintf("bins=%d", len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: m.Min, Max: m.Max, Name: m.XLabel, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: m.Min, Max: m.Max, Name: m.YLabel, NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("efficiency", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	return scatter
}

// sectionChart shows one bar series per sector over the layers of a section.
func sectionChart(layers []efficiency.LayerEfficiency, section klm.Section) *charts.Bar {
	x := make([]string, klm.BKLMLayers)
	for i := range x {
		x[i] = fmt.Sprintf("L%d", i+1)
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s layer efficiency", klm.SectionLabel(section))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
	)
	bar.SetXAxis(x)
	for sector := klm.Sector(1); sector <= klm.BKLMSectors; sector++ {
		y := make([]opts.BarData, klm.BKLMLayers)
		for _, l := range layers {
			if l.Section == section && l.Sector == sector && l.Layer >= 1 && int(l.Layer) <= klm.BKLMLayers {
				y[l.Layer-1] = opts.BarData{Value: l.Eff}
			}
		}
		bar.AddSeries(fmt.Sprintf("S%d", sector), y)
	}
	return bar
}

// WriteHTML renders a page with the per-section layer efficiencies and
// both global maps.
func WriteHTML(w io.Writer, s efficiency.Summary) error {
	page := components.NewPage()
	page.PageTitle = "KLM standalone efficiency"
	for section := klm.Section(0); section < klm.BKLMSections; section++ {
		page.AddCharts(sectionChart(s.Layers, section))
	}
	page.AddCharts(mapChart(s.YX), mapChart(s.YZ))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render efficiency page: %w", err)
	}
	return nil
}
