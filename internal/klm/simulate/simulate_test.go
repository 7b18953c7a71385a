package simulate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/eventio"
	"github.com/banshee-data/klmtrack/internal/klm/geometry"
)

func collect(t *testing.T, cfg Config) []eventio.EventRecord {
	t.Helper()
	var out []eventio.EventRecord
	err := New(cfg, geometry.NewBarrel(geometry.DefaultBarrelConfig())).Each(func(r eventio.EventRecord) error {
		out = append(out, r)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestGenerator_Deterministic(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Events = 20
	a := collect(t, cfg)
	b := collect(t, cfg)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different events (-a +b):\n%s", diff)
	}

	cfg.Seed = 2
	c := collect(t, cfg)
	assert.NotEqual(t, a, c)
}

func TestGenerator_Events(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Events = 50
	cfg.Run = 7
	events := collect(t, cfg)
	require.Len(t, events, 50)

	for i, rec := range events {
		assert.Equal(t, 7, rec.Run)
		assert.Equal(t, i, rec.Event)
		require.Len(t, rec.Trajectories, 1)
		assert.True(t, rec.Trajectories[0].Fitted)

		ev, err := rec.ToEvent()
		require.NoError(t, err, "event %d", i)
		for _, h := range ev.Hits.Hits() {
			assert.Equal(t, klm.BKLM, h.Subdetector)
		}
	}
}

func TestGenerator_CleanTracksStayInOneSector(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Events = 10
	cfg.Inefficiency = 0
	cfg.NoiseHits = 0
	cfg.VertexSigma = 0
	cfg.MaxCosTheta = 0.1
	for _, rec := range collect(t, cfg) {
		layers := make(map[int]bool)
		for _, h := range rec.Hits {
			assert.False(t, h.OutOfTime)
			assert.False(t, layers[h.Layer], "layer %d fired twice", h.Layer)
			layers[h.Layer] = true
			// A ray from the origin stays in one sector and one half.
			assert.Equal(t, rec.Hits[0].Sector, h.Sector)
			assert.Equal(t, rec.Hits[0].Section, h.Section)
		}
	}
}

func TestGenerator_DeadLayer(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Events = 30
	cfg.NoiseHits = 0
	cfg.DeadLayer = 7
	for _, rec := range collect(t, cfg) {
		for _, h := range rec.Hits {
			if h.Section == int(klm.BKLMSectionForward) {
				assert.NotEqual(t, 7, h.Layer)
			}
		}
	}
}

func TestGenerator_Poisson(t *testing.T) {
	t.Parallel()

	g := New(DefaultConfig(), geometry.NewBarrel(geometry.DefaultBarrelConfig()))
	assert.Zero(t, g.poisson(0))

	sum := 0
	const n = 4000
	for i := 0; i < n; i++ {
		sum += g.poisson(3)
	}
	assert.InDelta(t, 3, float64(sum)/n, 0.2)

	// Large means stay on the distribution.
	sum = 0
	for i := 0; i < 200; i++ {
		sum += g.poisson(1000)
	}
	assert.InDelta(t, 1000, float64(sum)/200, 10)
}
