package report

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/klmtrack/internal/fsutil"
	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/efficiency"
)

func sampleSummary() efficiency.Summary {
	acc := efficiency.NewAccumulator()
	pos := r3.Vector{X: 240, Y: 20, Z: 60}
	for layer := klm.Layer(2); layer <= 5; layer++ {
		for i := 0; i < 10; i++ {
			passed := i < int(layer)+4
			acc.FillTotal(1, 1, layer, pos)
			acc.FillCurve(1, 1, layer, passed)
			if passed {
				acc.FillPass(1, 1, layer, pos)
			}
		}
	}
	return acc.Finalize()
}

func TestSectorCurve(t *testing.T) {
	t.Parallel()

	s := sampleSummary()
	curve := SectorCurve(s.Layers, 1, 1)
	require.Equal(t, 4, curve.Len())

	for i := 0; i < curve.Len(); i++ {
		x, y := curve.XY(i)
		layer := int(x)
		assert.InDelta(t, float64(layer+4)/10, y, 1e-12, "layer %d", layer)
		lo, hi := curve.YError(i)
		assert.GreaterOrEqual(t, lo, 0.0)
		assert.GreaterOrEqual(t, hi, 0.0)
	}

	assert.Equal(t, 0, SectorCurve(s.Layers, 0, 1).Len(), "empty sector has no points")
}

func TestMapGrid(t *testing.T) {
	t.Parallel()

	s := sampleSummary()
	g := mapGrid{m: s.YX}
	c, r := g.Dims()
	assert.Equal(t, efficiency.MapBins, c)
	assert.Equal(t, efficiency.MapBins, r)

	bin, ok := s.YX.BinAt(240, 20)
	require.True(t, ok)
	assert.InDelta(t, bin.Eff, g.Z(bin.IX, bin.IY), 1e-12)
	assert.True(t, math.IsNaN(g.Z(0, 0)))
	assert.InDelta(t, bin.X, g.X(bin.IX), 1e-12)
	assert.InDelta(t, bin.Y, g.Y(bin.IY), 1e-12)
}

func TestWriteHTML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, sampleSummary()))
	out := buf.String()
	assert.True(t, strings.Contains(out, "effiYX"))
	assert.True(t, strings.Contains(out, "effiYZ"))
	assert.True(t, strings.Contains(out, "BF layer efficiency"))
}

func TestWriter_Write(t *testing.T) {
	t.Parallel()

	mem := fsutil.NewMemoryFileSystem()
	w := &Writer{Dir: "plots", FS: mem, Format: "png"}
	paths, err := w.Write(3, sampleSummary())
	require.NoError(t, err)

	// 2 sections x 8 sectors, 2 maps, 1 page
	assert.Len(t, paths, 2*8+2+1)
	assert.Equal(t, len(paths), len(mem.Files()))
	assert.True(t, mem.Exists(filepath.Join("plots", "run00003")))

	png, err := mem.ReadFile(filepath.Join("plots", "run00003", "effi_BF_S1.png"))
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, "\x89PNG", string(png[:4]))

	html, err := mem.ReadFile(filepath.Join("plots", "run00003", "efficiency.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "<html")
}
