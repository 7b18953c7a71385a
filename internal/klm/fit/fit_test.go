package fit

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/geometry"
)

func lineHits(n int, p [4]float64, wobble float64) []*klm.Hit2D {
	hits := make([]*klm.Hit2D, n)
	for i := 0; i < n; i++ {
		x := 200 + 9*float64(i)
		off := 0.0
		if i%2 == 1 {
			off = wobble
		}
		hits[i] = &klm.Hit2D{
			Subdetector: klm.BKLM,
			Section:     1,
			Sector:      1,
			Layer:       klm.Layer(i + 1),
			Position:    r3.Vector{X: x, Y: p[0] + p[1]*x + off, Z: p[2] + p[3]*x - off},
		}
	}
	return hits
}

func TestFit_PerfectLine(t *testing.T) {
	t.Parallel()

	want := [4]float64{1.5, 0.1, -3, 0.2}
	f := New(DefaultConfig(), nil)
	r := f.Fit(lineHits(6, want, 0))

	require.True(t, r.Valid)
	assert.True(t, r.Good)
	assert.Equal(t, 6, r.NumHit)
	assert.Equal(t, 8, r.NDF)
	assert.InDelta(t, 0, r.Chi2, 1e-9)
	for i := range want {
		assert.InDelta(t, want[i], r.Params[i], 1e-9, "param %d", i)
	}
	assert.Equal(t, r, f.Last())
}

func TestFit_Covariance(t *testing.T) {
	t.Parallel()

	r := New(DefaultConfig(), nil).Fit(lineHits(5, [4]float64{0, 0.1, 0, 0.2}, 0))
	require.True(t, r.Valid)

	// Projections are independent.
	for _, i := range []int{2, 3, 6, 7, 8, 9, 12, 13} {
		assert.Zero(t, r.Cov[i], "cov[%d]", i)
	}
	for _, i := range []int{0, 5, 10, 15} {
		assert.Greater(t, r.Cov[i], 0.0, "cov[%d]", i)
	}
	assert.InDelta(t, r.Cov[1], r.Cov[4], 1e-12)
	// Unit errors give identical y and z covariance blocks.
	assert.InDelta(t, r.Cov[0], r.Cov[10], 1e-12)
	assert.InDelta(t, r.Cov[5], r.Cov[15], 1e-12)
	// Slope variance of unit-weight regression is 1/Sxx.
	sxx := 0.0
	for i := 0; i < 5; i++ {
		d := 9 * (float64(i) - 2)
		sxx += d * d
	}
	assert.InDelta(t, 1/sxx, r.Cov[5], 1e-12)
}

func TestFit_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hits []*klm.Hit2D
	}{
		{"no hits", nil},
		{"single hit", lineHits(1, [4]float64{}, 0)},
		{"same x", []*klm.Hit2D{
			{Position: r3.Vector{X: 10, Y: 1, Z: 2}},
			{Position: r3.Vector{X: 10, Y: 3, Z: 4}},
			{Position: r3.Vector{X: 10, Y: 5, Z: 6}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(DefaultConfig(), nil)
			r := f.Fit(tt.hits)
			assert.False(t, r.Valid)
			assert.False(t, r.Good)
			assert.Equal(t, len(tt.hits), r.NumHit)

			d, e, s := f.DistanceToHit(&klm.Hit2D{Position: r3.Vector{X: 1}})
			assert.Equal(t, math.MaxFloat64, d)
			assert.Equal(t, math.MaxFloat64, e)
			assert.Equal(t, math.MaxFloat64, s)
		})
	}
}

func TestFit_GoodFlag(t *testing.T) {
	t.Parallel()

	p := [4]float64{0, 0.1, 0, 0.2}
	tests := []struct {
		name   string
		n      int
		wobble float64
		good   bool
	}{
		{"clean five hits", 5, 0, true},
		{"clean four hits is too short", 4, 0, false},
		{"scattered hits fail chi2", 8, 6, false},
		{"mildly scattered hits pass", 8, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(DefaultConfig(), nil).Fit(lineHits(tt.n, p, tt.wobble))
			require.True(t, r.Valid)
			assert.Equal(t, tt.good, r.Good)
		})
	}
}

func TestFitter_DistanceToHit(t *testing.T) {
	t.Parallel()

	f := New(DefaultConfig(), nil)
	require.True(t, f.Fit(lineHits(4, [4]float64{0, 0, 0, 0}, 0)).Valid)

	d, e, s := f.DistanceToHit(&klm.Hit2D{Position: r3.Vector{X: 250, Y: 3, Z: 4}})
	assert.InDelta(t, 5, d, 1e-9)
	assert.InDelta(t, math.Sqrt2, e, 1e-12)
	assert.InDelta(t, 5/math.Sqrt2, s, 1e-9)
}

// rotateToSector3 turns sector-1 hits by a quarter turn about z.
func rotateToSector3(hits []*klm.Hit2D) []*klm.Hit2D {
	out := make([]*klm.Hit2D, len(hits))
	for i, h := range hits {
		c := *h
		c.Sector = 3
		c.Position = r3.Vector{X: -h.Position.Y, Y: h.Position.X, Z: h.Position.Z}
		out[i] = &c
	}
	return out
}

func TestFit_SectorFrame(t *testing.T) {
	t.Parallel()

	p := [4]float64{1.5, 0.1, -3, 0.2}
	f1 := New(DefaultConfig(), nil)
	r1 := f1.Fit(lineHits(8, p, 1))
	require.True(t, r1.Valid)

	f3 := New(DefaultConfig(), nil)
	r3fit := f3.Fit(rotateToSector3(lineHits(8, p, 1)))
	require.True(t, r3fit.Valid)
	assert.InDelta(t, r1.Chi2, r3fit.Chi2, 1e-9)
	assert.Equal(t, r1.NDF, r3fit.NDF)

	// The rotated line is x = -(1.5 + 0.1*x'), y = x', z = -3 + 0.2*x'.
	clean := New(DefaultConfig(), nil).Fit(rotateToSector3(lineHits(6, p, 0)))
	require.True(t, clean.Valid)
	want := [4]float64{-15, -10, -6, -2}
	for i := range want {
		assert.InDelta(t, want[i], clean.Params[i], 1e-9, "param %d", i)
	}
	for i := 0; i < 4; i++ {
		assert.Greater(t, clean.Cov[i*4+i], 0.0, "cov[%d]", i*5)
		for j := 0; j < 4; j++ {
			assert.InDelta(t, clean.Cov[i*4+j], clean.Cov[j*4+i], 1e-9)
		}
	}

	// A tangential offset is scored the same in every sector, however
	// steep the line is in global x.
	off := &klm.Hit2D{Subdetector: klm.BKLM, Section: 1, Sector: 1,
		Position: r3.Vector{X: 250, Y: p[0] + p[1]*250 + 2, Z: p[2] + p[3]*250}}
	d1, _, _ := f1.DistanceToHit(off)
	d3, _, _ := f3.DistanceToHit(rotateToSector3([]*klm.Hit2D{off})[0])
	assert.InDelta(t, d1, d3, 1e-9)
	assert.Less(t, d3, 2.5)
}

func TestFit_ParallelToYIsInvalid(t *testing.T) {
	t.Parallel()

	hits := make([]*klm.Hit2D, 5)
	for i := range hits {
		y := 200 + 9*float64(i)
		hits[i] = &klm.Hit2D{Subdetector: klm.BKLM, Section: 1, Sector: 3, Layer: klm.Layer(i + 1),
			Position: r3.Vector{X: 4, Y: y, Z: 0.2 * y}}
	}
	f := New(DefaultConfig(), nil)
	assert.False(t, f.Fit(hits).Valid)
	d, _, _ := f.DistanceToHit(hits[0])
	assert.Equal(t, math.MaxFloat64, d)
}

func TestGeometryResolution(t *testing.T) {
	t.Parallel()

	cfg := geometry.DefaultBarrelConfig()
	res := GeometryResolution(geometry.NewBarrel(cfg))
	h, err := klm.NewHit2D(klm.BKLM, 1, 1, 7, r3.Vector{})
	require.NoError(t, err)

	sy, sz, err := res(h)
	require.NoError(t, err)
	assert.InDelta(t, cfg.RPCPhiStripWidth/math.Sqrt(12), sy, 1e-12)
	assert.InDelta(t, cfg.RPCZStripWidth/math.Sqrt(12), sz, 1e-12)

	// Unresolvable hits fall back to unit resolution.
	f := New(DefaultConfig(), res)
	require.True(t, f.Fit(lineHits(4, [4]float64{}, 0)).Valid)
	_, e, _ := f.DistanceToHit(&klm.Hit2D{Subdetector: klm.Subdetector(9), Position: r3.Vector{X: 230}})
	assert.InDelta(t, math.Sqrt2, e, 1e-12)
}
