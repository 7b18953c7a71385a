package sqlite

import (
	"encoding/json"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/efficiency"
	"github.com/banshee-data/klmtrack/internal/klm/tracking"
	"github.com/banshee-data/klmtrack/internal/testutil"
)

func TestRunStore_InsertFinishGet(t *testing.T) {
	d := testutil.NewTestDB(t)
	runs := NewRunStore(d.DB)

	r := &Run{RunNumber: 12, Mode: tracking.Standard.String(), ConfigJSON: json.RawMessage(`{"max_sigma":5}`)}
	require.NoError(t, runs.Insert(r))
	assert.NotEmpty(t, r.RunID)
	assert.NotZero(t, r.StartedAt)

	require.NoError(t, runs.Finish(r.RunID, tracking.RunSummary{
		Run: 12, TotalEvents: 10, EventsWithTracks: 4, TotalTracks: 6, MatchedTracks: 2,
	}))

	got, err := runs.Get(r.RunID)
	require.NoError(t, err)
	assert.Equal(t, 12, got.RunNumber)
	assert.Equal(t, "standard", got.Mode)
	assert.Equal(t, 10, got.TotalEvents)
	assert.Equal(t, 4, got.EventsWithTracks)
	assert.Equal(t, 6, got.TotalTracks)
	assert.Equal(t, 2, got.MatchedTracks)
	require.NotNil(t, got.EndedAt)
	assert.JSONEq(t, `{"max_sigma":5}`, string(got.ConfigJSON))

	list, err := runs.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRunStore_NotFound(t *testing.T) {
	d := testutil.NewTestDB(t)
	runs := NewRunStore(d.DB)

	_, err := runs.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, runs.Finish("missing", tracking.RunSummary{}), ErrNotFound)
}

func testTrack(t *testing.T) *klm.Track {
	h1 := testutil.Hit(t, klm.BKLM, 1, 1, 2, r3.Vector{X: 211, Y: 1, Z: 2})
	h2 := testutil.Hit(t, klm.BKLM, 1, 1, 5, r3.Vector{X: 238, Y: 1, Z: 2})
	h1.Index, h2.Index = 4, 9
	tr := &klm.Track{
		Params:           [4]float64{1, 0.01, 2, 0.02},
		Chi2:             1.5,
		NDF:              2,
		NumHit:           2,
		Valid:            true,
		Hits:             []*klm.Hit2D{h1, h2},
		MatchedRecoTrack: 7,
	}
	tr.Cov[0], tr.Cov[5] = 4, 0.01
	tr.SetSubdetectorCounts()
	return tr
}

func TestTrackStore_InsertEvent(t *testing.T) {
	d := testutil.NewTestDB(t)
	runs := NewRunStore(d.DB)
	tracks := NewTrackStore(d.DB)

	r := &Run{RunNumber: 1, Mode: "standard"}
	require.NoError(t, runs.Insert(r))

	ids, err := tracks.InsertEvent(r.RunID, 3, []*klm.Track{testTrack(t), testTrack(t)})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])

	got, err := tracks.ListByEvent(r.RunID, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ids[0], got[0].TrackID)
	assert.Equal(t, 1, got[1].TrackIndex)
	assert.InDelta(t, 0.02, got[0].Params[3], 1e-12)
	assert.InDelta(t, 2.0, got[0].ParamErr[0], 1e-12)
	assert.InDelta(t, 0.1, got[0].ParamErr[1], 1e-12)
	assert.True(t, got[0].Valid)
	assert.False(t, got[0].Good)
	assert.Equal(t, 2, got[0].NBKLM)
	assert.Equal(t, 7, got[0].MatchedRecoTrack)

	hits, err := tracks.Hits(ids[0])
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 4, hits[0].HitIndex)
	assert.Equal(t, 2, hits[0].Layer)
	assert.Equal(t, 5, hits[1].Layer)
	assert.Equal(t, "BKLM", hits[1].Subdetector)

	n, err := tracks.CountByRun(r.RunID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	empty, err := tracks.InsertEvent(r.RunID, 4, nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestTrackStore_CascadeOnRunDelete(t *testing.T) {
	d := testutil.NewTestDB(t)
	runs := NewRunStore(d.DB)
	tracks := NewTrackStore(d.DB)

	r := &Run{RunNumber: 1, Mode: "standard"}
	require.NoError(t, runs.Insert(r))
	ids, err := tracks.InsertEvent(r.RunID, 1, []*klm.Track{testTrack(t)})
	require.NoError(t, err)

	_, err = d.Exec(`DELETE FROM klm_runs WHERE run_id = ?`, r.RunID)
	require.NoError(t, err)

	hits, err := tracks.Hits(ids[0])
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestTrackStore_RequiresRun(t *testing.T) {
	d := testutil.NewTestDB(t)
	tracks := NewTrackStore(d.DB)

	_, err := tracks.InsertEvent("no-such-run", 1, []*klm.Track{testTrack(t)})
	assert.Error(t, err)
}

func TestEfficiencyStore_RoundTrip(t *testing.T) {
	d := testutil.NewTestDB(t)
	runs := NewRunStore(d.DB)
	effs := NewEfficiencyStore(d.DB)

	r := &Run{RunNumber: 5, Mode: "efficiency-study"}
	require.NoError(t, runs.Insert(r))

	acc := efficiency.NewAccumulator()
	pos := r3.Vector{X: 230, Y: 10, Z: 50}
	for i := 0; i < 4; i++ {
		acc.FillTotal(1, 1, 6, pos)
		acc.FillCurve(1, 1, 6, i < 3)
		if i < 3 {
			acc.FillPass(1, 1, 6, pos)
		}
	}
	sum := acc.Finalize()
	require.NoError(t, effs.InsertSummary(r.RunID, sum))

	layers, err := effs.LayerEfficiencies(r.RunID)
	require.NoError(t, err)
	assert.Len(t, layers, klm.BKLMSections*klm.BKLMSectors*klm.BKLMLayers)

	var found bool
	for _, l := range layers {
		if l.Section == 1 && l.Sector == 1 && l.Layer == 6 {
			found = true
			assert.Equal(t, 3, l.Pass)
			assert.Equal(t, 4, l.Total)
			assert.InDelta(t, 0.75, l.Eff, 1e-12)
			assert.Less(t, l.Low, 0.75)
			assert.Greater(t, l.High, 0.75)
		} else {
			assert.Zero(t, l.Total)
			assert.Zero(t, l.Eff)
			assert.Zero(t, l.Err)
		}
	}
	assert.True(t, found)

	bins, err := effs.MapBins(r.RunID, sum.YX.Name)
	require.NoError(t, err)
	require.Len(t, bins, 1, "only non-empty bins are stored")
	assert.InDelta(t, 0.75, bins[0].Eff, 1e-12)
	want, ok := sum.YX.BinAt(pos.X, pos.Y)
	require.True(t, ok)
	assert.Equal(t, want.IX, bins[0].IX)
	assert.Equal(t, want.IY, bins[0].IY)

	// Storing again replaces the rows.
	require.NoError(t, effs.InsertSummary(r.RunID, sum))
	layers, err = effs.LayerEfficiencies(r.RunID)
	require.NoError(t, err)
	assert.Len(t, layers, klm.BKLMSections*klm.BKLMSectors*klm.BKLMLayers)
}
