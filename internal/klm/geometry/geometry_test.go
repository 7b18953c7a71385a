package geometry

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/klmtrack/internal/klm"
)

func TestBarrel_FindModule(t *testing.T) {
	t.Parallel()

	b := NewBarrel(DefaultBarrelConfig())
	m, err := b.FindModule(1, 3, 15)
	require.NoError(t, err)
	assert.Equal(t, 1, m.PhiStripMin())
	assert.Greater(t, m.PhiStripMax(), 1)
	assert.Greater(t, m.ZStripMax(), 1)

	_, err = b.FindModule(2, 1, 1)
	assert.ErrorIs(t, err, ErrNoModule)
	_, err = b.FindModule(0, 1, 16)
	assert.ErrorIs(t, err, ErrNoModule)
}

func TestBarrel_Transforms(t *testing.T) {
	t.Parallel()

	b := NewBarrel(DefaultBarrelConfig())
	tests := []struct {
		name    string
		section klm.Section
		sector  klm.Sector
		flipped bool
	}{
		{"forward sector 1", 1, 1, false},
		{"forward sector 6", 1, 6, false},
		{"backward sector 1", 0, 1, true},
		{"backward sector 4", 0, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := b.FindModule(tt.section, tt.sector, 5)
			require.NoError(t, err)
			assert.Equal(t, tt.flipped, m.IsFlipped())

			g := r3.Vector{X: 12.5, Y: -40, Z: 70}
			back := m.LocalToGlobal(m.GlobalToLocal(g))
			assert.InDelta(t, 0, back.Distance(g), 1e-9)

			// The module plane sits at local x = 0, at the layer radius.
			centre := m.LocalToGlobal(r3.Vector{})
			phi := SectorAngle(tt.sector)
			radial := centre.X*math.Cos(phi) + centre.Y*math.Sin(phi)
			assert.InDelta(t, b.ActiveMiddleRadius(tt.section, tt.sector, 5), radial, 1e-9)
		})
	}
}

func TestBarrel_LayerRadius(t *testing.T) {
	t.Parallel()

	cfg := DefaultBarrelConfig()
	b := NewBarrel(cfg)
	assert.InDelta(t, cfg.InnerRadius, b.ActiveMiddleRadius(0, 1, 1), 1e-12)
	assert.InDelta(t, cfg.InnerRadius+14*cfg.LayerPitch, b.ActiveMiddleRadius(1, 8, 15), 1e-12)
	assert.Equal(t, cfg.EndcapStripWidth, b.EndcapStripWidth())
}

func TestActiveBox_Strict(t *testing.T) {
	t.Parallel()

	b := NewBarrel(DefaultBarrelConfig())
	m, err := b.FindModule(1, 1, 7)
	require.NoError(t, err)
	box := ActiveBox(m)

	assert.True(t, box.Contains(r3.Vector{}))
	assert.False(t, box.Contains(r3.Vector{Y: box.MinY, Z: 0}), "lower y edge is outside")
	assert.False(t, box.Contains(r3.Vector{Y: box.MaxY, Z: 0}), "upper y edge is outside")
	assert.False(t, box.Contains(r3.Vector{Y: 0, Z: box.MinZ}), "lower z edge is outside")
	assert.False(t, box.Contains(r3.Vector{Y: 0, Z: box.MaxZ}), "upper z edge is outside")
	assert.True(t, box.Contains(r3.Vector{Y: math.Nextafter(box.MaxY, 0), Z: 0}))
}

func TestHitResolution(t *testing.T) {
	t.Parallel()

	cfg := DefaultBarrelConfig()
	b := NewBarrel(cfg)

	scint, err := klm.NewHit2D(klm.BKLM, 1, 1, 1, r3.Vector{})
	require.NoError(t, err)
	sy, sz, err := HitResolution(b, scint)
	require.NoError(t, err)
	assert.InDelta(t, cfg.ScintStripWidth/math.Sqrt(12), sy, 1e-12)
	assert.InDelta(t, cfg.ScintStripWidth/math.Sqrt(12), sz, 1e-12)

	rpc, err := klm.NewHit2D(klm.BKLM, 1, 1, 9, r3.Vector{})
	require.NoError(t, err)
	sy, sz, err = HitResolution(b, rpc)
	require.NoError(t, err)
	assert.InDelta(t, cfg.RPCPhiStripWidth/math.Sqrt(12), sy, 1e-12)
	assert.InDelta(t, cfg.RPCZStripWidth/math.Sqrt(12), sz, 1e-12)

	endcap, err := klm.NewHit2D(klm.EKLM, 1, 1, 1, r3.Vector{})
	require.NoError(t, err)
	endcap.XStripMin, endcap.XStripMax = 10, 12
	endcap.YStripMin, endcap.YStripMax = 5, 5
	sx, sy2, err := HitResolution(b, endcap)
	require.NoError(t, err)
	assert.InDelta(t, 3*cfg.EndcapStripWidth/math.Sqrt(12), sx, 1e-12)
	assert.InDelta(t, cfg.EndcapStripWidth/math.Sqrt(12), sy2, 1e-12)

	bad := &klm.Hit2D{Subdetector: klm.Subdetector(5)}
	_, _, err = HitResolution(b, bad)
	assert.Error(t, err)
}

func TestBarrel_Digitize(t *testing.T) {
	t.Parallel()

	b := NewBarrel(DefaultBarrelConfig())

	t.Run("forward track in sector 1", func(t *testing.T) {
		cs := b.Digitize(r3.Vector{}, r3.Vector{X: 1, Y: 0.1, Z: 0.2})
		require.Len(t, cs, klm.BKLMLayers)
		for i, c := range cs {
			assert.Equal(t, klm.Sector(1), c.Sector)
			assert.Equal(t, klm.BKLMSectionForward, c.Section)
			assert.Equal(t, klm.Layer(i+1), c.Layer)

			m, err := b.FindModule(c.Section, c.Sector, c.Layer)
			require.NoError(t, err)
			local := m.GlobalToLocal(c.Position)
			assert.InDelta(t, 0, local.X, 1e-9, "strip centre lies on the module plane")
			assert.InDelta(t, 0, m.LocalPosition(c.PhiStrip, c.ZStrip).Distance(local), 1e-9)
		}
	})

	t.Run("backward track in sector 5", func(t *testing.T) {
		cs := b.Digitize(r3.Vector{}, r3.Vector{X: -1, Y: 0.05, Z: -0.3})
		require.NotEmpty(t, cs)
		for _, c := range cs {
			assert.Equal(t, klm.Sector(5), c.Sector)
			assert.Equal(t, klm.BKLMSectionBackward, c.Section)
		}
	})

	t.Run("track leaving through the end", func(t *testing.T) {
		cs := b.Digitize(r3.Vector{}, r3.Vector{X: 1, Z: 2})
		assert.Empty(t, cs)
	})
}
