package efficiency

import (
	"math"

	"github.com/golang/geo/r3"
	"go-hep.org/x/hep/hbook"

	"github.com/banshee-data/klmtrack/internal/klm"
)

// Histogram binning.
const (
	LayerBins = 16
	LayerMin  = 0.0
	LayerMax  = 16.0

	MapBins = 150
	MapMin  = -350.0
	MapMax  = 350.0
)

// Binomial counts pass/fail outcomes in layer bins.
type Binomial struct {
	Passed [LayerBins]int
	Total  [LayerBins]int
}

// Fill records one outcome at layer number x.
func (b *Binomial) Fill(passed bool, x int) {
	if x < 0 || x >= LayerBins {
		return
	}
	b.Total[x]++
	if passed {
		b.Passed[x]++
	}
}

// Accumulator holds the run-scoped efficiency histograms. It is not safe
// for concurrent use.
type Accumulator struct {
	Total [klm.BKLMSections][klm.BKLMSectors]*hbook.H1D
	Pass  [klm.BKLMSections][klm.BKLMSectors]*hbook.H1D
	Curve [klm.BKLMSections][klm.BKLMSectors]Binomial

	TotalYX, PassYX *hbook.H2D
	TotalYZ, PassYZ *hbook.H2D
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	a := &Accumulator{}
	a.Reset()
	return a
}

// Reset discards all counts.
func (a *Accumulator) Reset() {
	for s := 0; s < klm.BKLMSections; s++ {
		for j := 0; j < klm.BKLMSectors; j++ {
			a.Total[s][j] = hbook.NewH1D(LayerBins, LayerMin, LayerMax)
			a.Pass[s][j] = hbook.NewH1D(LayerBins, LayerMin, LayerMax)
			a.Curve[s][j] = Binomial{}
		}
	}
	a.TotalYX = hbook.NewH2D(MapBins, MapMin, MapMax, MapBins, MapMin, MapMax)
	a.PassYX = hbook.NewH2D(MapBins, MapMin, MapMax, MapBins, MapMin, MapMax)
	a.TotalYZ = hbook.NewH2D(MapBins, MapMin, MapMax, MapBins, MapMin, MapMax)
	a.PassYZ = hbook.NewH2D(MapBins, MapMin, MapMax, MapBins, MapMin, MapMax)
}

// FillTotal counts a track that entered the acceptance of a layer, with
// its predicted global position.
func (a *Accumulator) FillTotal(section klm.Section, sector klm.Sector, layer klm.Layer, global r3.Vector) {
	a.Total[section][sector-1].Fill(float64(layer), 1)
	a.TotalYX.Fill(global.X, global.Y, 1)
	a.TotalYZ.Fill(global.Z, global.Y, 1)
}

// FillPass counts a track that found its hit.
func (a *Accumulator) FillPass(section klm.Section, sector klm.Sector, layer klm.Layer, global r3.Vector) {
	a.Pass[section][sector-1].Fill(float64(layer), 1)
	a.PassYX.Fill(global.X, global.Y, 1)
	a.PassYZ.Fill(global.Z, global.Y, 1)
}

// FillCurve records the outcome of an accepted track.
func (a *Accumulator) FillCurve(section klm.Section, sector klm.Sector, layer klm.Layer, passed bool) {
	a.Curve[section][sector-1].Fill(passed, int(layer))
}

// BinomialRatio returns pass/total and the binomial-approximation error
// sqrt(pass*(total-pass)/total^3). A zero total gives zero for both.
func BinomialRatio(pass, total float64) (eff, err float64) {
	if total <= 0 {
		return 0, 0
	}
	eff = pass / total
	err = math.Sqrt(math.Max(pass*(total-pass), 0) / (total * total * total))
	return eff, err
}

// LayerEfficiency is the finalised efficiency of one barrel layer.
type LayerEfficiency struct {
	Section klm.Section
	Sector  klm.Sector
	Layer   klm.Layer
	Pass    int
	Total   int
	Eff     float64
	Err     float64
	// Low and High bound the Clopper-Pearson interval of the binomial curve.
	Low  float64
	High float64
}

// MapBin is one bin of a finalised efficiency map.
type MapBin struct {
	IX, IY int
	X, Y   float64 // bin centre
	Pass   float64
	Total  float64
	Eff    float64
	Err    float64
}

// EfficiencyMap is a finalised 2D efficiency map.
type EfficiencyMap struct {
	Name   string
	XLabel string
	YLabel string
	Nx, Ny int
	Min    float64
	Max    float64
	Bins   []MapBin // row-major, index iy*Nx+ix
}

// Summary is the end-of-run result.
type Summary struct {
	Layers []LayerEfficiency
	YX     EfficiencyMap
	YZ     EfficiencyMap
}

// Finalize computes efficiencies for every layer and map bin.
func (a *Accumulator) Finalize() Summary {
	var s Summary
	for sec := 0; sec < klm.BKLMSections; sec++ {
		for j := 0; j < klm.BKLMSectors; j++ {
			curve := a.Curve[sec][j]
			for layer := 1; layer <= klm.BKLMLayers; layer++ {
				pass := a.Pass[sec][j].Binning.Bins[layer].SumW()
				total := a.Total[sec][j].Binning.Bins[layer].SumW()
				eff, err := BinomialRatio(pass, total)
				low, high := ClopperPearson(curve.Passed[layer], curve.Total[layer], OneSigma)
				s.Layers = append(s.Layers, LayerEfficiency{
					Section: klm.Section(sec),
					Sector:  klm.Sector(j + 1),
					Layer:   klm.Layer(layer),
					Pass:    int(pass),
					Total:   int(total),
					Eff:     eff,
					Err:     err,
					Low:     low,
					High:    high,
				})
			}
		}
	}
	s.YX = finalizeMap("effiYX", "x (cm)", "y (cm)", a.PassYX, a.TotalYX)
	s.YZ = finalizeMap("effiYZ", "z (cm)", "y (cm)", a.PassYZ, a.TotalYZ)
	return s
}

func finalizeMap(name, xlabel, ylabel string, pass, total *hbook.H2D) EfficiencyMap {
	m := EfficiencyMap{
		Name: name, XLabel: xlabel, YLabel: ylabel,
		Nx: MapBins, Ny: MapBins, Min: MapMin, Max: MapMax,
		Bins: make([]MapBin, 0, MapBins*MapBins),
	}
	width := (MapMax - MapMin) / MapBins
	for iy := 0; iy < MapBins; iy++ {
		for ix := 0; ix < MapBins; ix++ {
			i := iy*MapBins + ix
			num := pass.Binning.Bins[i].SumW()
			den := total.Binning.Bins[i].SumW()
			eff, err := BinomialRatio(num, den)
			m.Bins = append(m.Bins, MapBin{
				IX: ix, IY: iy,
				X:    MapMin + (float64(ix)+0.5)*width,
				Y:    MapMin + (float64(iy)+0.5)*width,
				Pass: num, Total: den,
				Eff: eff, Err: err,
			})
		}
	}
	return m
}

// Bin returns the map bin at (ix, iy).
func (m EfficiencyMap) Bin(ix, iy int) MapBin {
	return m.Bins[iy*m.Nx+ix]
}

// BinAt returns the bin containing (x, y) and whether it is in range.
func (m EfficiencyMap) BinAt(x, y float64) (MapBin, bool) {
	width := (m.Max - m.Min) / float64(m.Nx)
	ix := int(math.Floor((x - m.Min) / width))
	iy := int(math.Floor((y - m.Min) / width))
	if ix < 0 || ix >= m.Nx || iy < 0 || iy >= m.Ny {
		return MapBin{}, false
	}
	return m.Bin(ix, iy), true
}
