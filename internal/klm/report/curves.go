// Package report renders finalised KLM efficiencies: per-sector layer
// curves and global efficiency maps as images, and an interactive HTML
// page.
package report

import (
	"fmt"
	"image/color"
	"math"

	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/efficiency"
)

// Image sizes.
const (
	curveWidth  = 6 * vg.Inch
	curveHeight = 4 * vg.Inch
	mapSize     = 7 * vg.Inch
)

// SectorCurve returns the layer efficiencies of one (section, sector) as
// a scatter with Clopper-Pearson error bars. Layers without entries are
// left out.
func SectorCurve(layers []efficiency.LayerEfficiency, section klm.Section, sector klm.Sector) *hbook.S2D {
	var pts []hbook.Point2D
	for _, l := range layers {
		if l.Section != section || l.Sector != sector || l.Total == 0 {
			continue
		}
		pts = append(pts, hbook.Point2D{
			X:    float64(l.Layer),
			Y:    l.Eff,
			ErrX: hbook.Range{Min: 0.5, Max: 0.5},
			ErrY: hbook.Range{Min: l.Eff - l.Low, Max: l.High - l.Eff},
		})
	}
	return hbook.NewS2D(pts...)
}

// CurvePlot plots the efficiency curve of one (section, sector).
func CurvePlot(layers []efficiency.LayerEfficiency, section klm.Section, sector klm.Sector) *hplot.Plot {
	p := hplot.New()
	p.Title.Text = fmt.Sprintf("%s sector %d", klm.SectionLabel(section), sector)
	p.X.Label.Text = "layer"
	p.Y.Label.Text = "efficiency"
	p.X.Min, p.X.Max = efficiency.LayerMin, efficiency.LayerMax
	p.Y.Min, p.Y.Max = 0, 1.1
	p.Add(plotter.NewGrid())

	s := SectorCurve(layers, section, sector)
	if s.Len() > 0 {
		pts := hplot.NewS2D(s, hplot.WithXErrBars(true), hplot.WithYErrBars(true))
		pts.GlyphStyle.Color = color.RGBA{R: 200, A: 255}
		pts.GlyphStyle.Radius = vg.Points(2.5)
		p.Add(pts)
	}
	return p
}

// mapGrid adapts an efficiency map to plotter.GridXYZ. Bins without
// entries are NaN.
type mapGrid struct {
	m efficiency.EfficiencyMap
}

func (g mapGrid) Dims() (c, r int) { return g.m.Nx, g.m.Ny }

func (g mapGrid) Z(c, r int) float64 {
	b := g.m.Bin(c, r)
	if b.Total == 0 {
		return math.NaN()
	}
	return b.Eff
}

func (g mapGrid) X(c int) float64 { return g.m.Bin(c, 0).X }
func (g mapGrid) Y(r int) float64 { return g.m.Bin(0, r).Y }

// MapPlot renders an efficiency map as a heat map on [0, 1].
func MapPlot(m efficiency.EfficiencyMap) *hplot.Plot {
	p := hplot.New()
	p.Title.Text = m.Name
	p.X.Label.Text = m.XLabel
	p.Y.Label.Text = m.YLabel

	cm := moreland.SmoothBlueRed()
	cm.SetMin(0)
	cm.SetMax(1)
	hm := plotter.NewHeatMap(mapGrid{m: m}, cm.Palette(64))
	hm.Min, hm.Max = 0, 1
	hm.NaN = color.Transparent
	p.Add(hm)

	p.X.Min, p.X.Max = m.Min, m.Max
	p.Y.Min, p.Y.Max = m.Min, m.Max
	return p
}
