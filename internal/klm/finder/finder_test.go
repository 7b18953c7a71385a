package finder

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/fit"
)

// onLine returns hits on y = 0.1x, z = 0.2x at successive layers.
func onLine(layers ...int) []*klm.Hit2D {
	hits := make([]*klm.Hit2D, len(layers))
	for i, l := range layers {
		x := 200 + 9*float64(l-1)
		hits[i] = &klm.Hit2D{
			Subdetector: klm.BKLM,
			Section:     1,
			Sector:      1,
			Layer:       klm.Layer(l),
			Position:    r3.Vector{X: x, Y: 0.1 * x, Z: 0.2 * x},
		}
	}
	return hits
}

func newFinder(cfg Config) *Finder {
	return New(cfg, fit.New(fit.DefaultConfig(), nil))
}

func TestFinder_AcceptsCleanTrack(t *testing.T) {
	t.Parallel()

	hits := onLine(1, 2, 3, 4, 5, 6, 7)
	f := newFinder(DefaultConfig())
	track, r, ok := f.Filter([2]*klm.Hit2D{hits[0], hits[6]}, hits[1:6])

	require.True(t, ok)
	assert.Len(t, track, 7)
	assert.Same(t, hits[0], track[0])
	assert.Same(t, hits[6], track[1])
	assert.True(t, r.Valid)
	assert.True(t, r.Good)
	assert.Equal(t, r, f.Fitter().Last())
}

func TestFinder_IgnoresNoise(t *testing.T) {
	t.Parallel()

	hits := onLine(1, 2, 3, 4, 5, 6)
	noise := &klm.Hit2D{
		Subdetector: klm.BKLM, Section: 1, Sector: 1, Layer: 3,
		Position: r3.Vector{X: 218, Y: 60, Z: -40},
	}
	pool := append([]*klm.Hit2D{noise}, hits[1:5]...)

	track, _, ok := newFinder(DefaultConfig()).Filter([2]*klm.Hit2D{hits[0], hits[5]}, pool)
	require.True(t, ok)
	assert.Len(t, track, 6)
	assert.NotContains(t, track, noise)
}

func TestFinder_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  func(*Config)
		seed [2]*klm.Hit2D
		pool []*klm.Hit2D
	}{
		{
			name: "too few hits",
			seed: [2]*klm.Hit2D{onLine(3)[0], onLine(9)[0]},
		},
		{
			name: "three hits below min four",
			seed: [2]*klm.Hit2D{onLine(3)[0], onLine(5)[0]},
			pool: onLine(4),
		},
		{
			name: "too many hits",
			cfg:  func(c *Config) { c.MaxHits = 4 },
			seed: [2]*klm.Hit2D{onLine(1)[0], onLine(6)[0]},
			pool: onLine(2, 3, 4, 5),
		},
		{
			name: "degenerate seed",
			seed: [2]*klm.Hit2D{
				{Position: r3.Vector{X: 5, Y: 1}},
				{Position: r3.Vector{X: 5, Y: 2}},
			},
			pool: onLine(1, 2, 3),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			track, _, ok := newFinder(cfg).Filter(tt.seed, tt.pool)
			assert.False(t, ok)
			assert.Nil(t, track)
		})
	}
}

func TestFinder_MinHitsBoundary(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MinHits = 3
	f := newFinder(cfg)

	track, _, ok := f.Filter([2]*klm.Hit2D{onLine(3)[0], onLine(6)[0]}, onLine(4))
	require.True(t, ok)
	assert.Len(t, track, 3)
}

func TestFinder_Chi2Cut(t *testing.T) {
	t.Parallel()

	hits := onLine(1, 2, 3, 4, 5, 6)
	// Pull the inner hits off the line by less than the sigma cut so
	// they join, but enough to spoil chi2/ndf.
	for i, h := range hits[1:5] {
		sign := float64(1 - 2*(i%2))
		h.Position.Y += 2.5 * sign
		h.Position.Z -= 2.5 * sign
	}
	cfg := DefaultConfig()
	cfg.MaxChi2PerNDF = 0.5
	_, r, ok := newFinder(cfg).Filter([2]*klm.Hit2D{hits[0], hits[5]}, hits[1:5])
	assert.False(t, ok)
	assert.True(t, r.Valid)
}
