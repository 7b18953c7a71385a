// Package tracking drives KLM standalone track finding over events and
// runs, and feeds the efficiency study.
package tracking

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/efficiency"
	"github.com/banshee-data/klmtrack/internal/klm/finder"
	"github.com/banshee-data/klmtrack/internal/klm/fit"
	"github.com/banshee-data/klmtrack/internal/klm/geometry"
	"github.com/banshee-data/klmtrack/internal/klm/recomatch"
)

// ErrNoRun is returned when an event is processed outside BeginRun/EndRun.
var ErrNoRun = errors.New("tracking: no run in progress")

// Mode selects how RunTracking builds seeds and pools.
type Mode int

const (
	// Standard finds tracks among all hits of a subdetector.
	Standard Mode = 0
	// EfficiencyStudy finds tracks with one layer held out.
	EfficiencyStudy Mode = 1
)

func (m Mode) String() string {
	switch m {
	case Standard:
		return "standard"
	case EfficiencyStudy:
		return "efficiency-study"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Event is the input of one event.
type Event struct {
	Run          int
	Number       int
	Hits         *klm.HitStore
	Trajectories []recomatch.Trajectory
}

// EventResult is what ProcessEvent produced for one event.
type EventResult struct {
	// Tracks are the standard-mode tracks of the event. Empty in study mode.
	Tracks []*klm.Track
	// StudyTracks counts tracks built across all held-out layers.
	StudyTracks int
	// Outcomes counts efficiency outcomes across all held-out layers.
	Outcomes map[efficiency.Outcome]int
	Matched  int
}

// HasTracks reports whether any track was stored for the event.
func (r EventResult) HasTracks() bool {
	return len(r.Tracks) > 0 || r.StudyTracks > 0
}

// RunSummary is the bookkeeping of one run.
type RunSummary struct {
	Run              int
	TotalEvents      int
	EventsWithTracks int
	TotalTracks      int
	MatchedTracks    int
	// Efficiency is set at EndRun in study mode.
	Efficiency *efficiency.Summary
}

// TrackedPercent is the percentage of events with at least one track, 0
// for a run without events.
func (r RunSummary) TrackedPercent() float64 {
	if r.TotalEvents == 0 {
		return 0
	}
	return 100 * float64(r.EventsWithTracks) / float64(r.TotalEvents)
}

// Driver owns the per-pass track collection and the run-scoped efficiency
// accumulator. It is not safe for concurrent use: the on-track flags of
// the event's hits and the track collection are shared by every pass.
type Driver struct {
	cfg    Config
	geo    geometry.Adapter
	finder *finder.Finder
	acc    *efficiency.Accumulator
	eval   *efficiency.Evaluator

	tracks  []*klm.Track
	current *RunSummary
	runs    []RunSummary
}

// NewDriver returns a driver using geo for hit resolutions and layer
// projections.
func NewDriver(cfg Config, geo geometry.Adapter) *Driver {
	fitter := fit.New(cfg.Fit, fit.GeometryResolution(geo))
	acc := efficiency.NewAccumulator()
	return &Driver{
		cfg:    cfg,
		geo:    geo,
		finder: finder.New(cfg.Finder, fitter),
		acc:    acc,
		eval:   efficiency.NewEvaluator(cfg.Efficiency, geo, acc),
	}
}

// Config returns the driver configuration.
func (d *Driver) Config() Config { return d.cfg }

// Accumulator returns the run-scoped efficiency accumulator.
func (d *Driver) Accumulator() *efficiency.Accumulator { return d.acc }

// Tracks returns the tracks stored since the last ClearTracks.
func (d *Driver) Tracks() []*klm.Track { return d.tracks }

// ClearTracks empties the track collection.
func (d *Driver) ClearTracks() { d.tracks = nil }

// BeginRun starts bookkeeping for run and resets the efficiency
// accumulator. A run still open is ended first.
func (d *Driver) BeginRun(run int) {
	if d.current != nil {
		d.EndRun()
	}
	d.current = &RunSummary{Run: run}
	d.acc.Reset()
	klm.Opsf("run %d: begin (mode=%s)", run, d.mode())
}

// EndRun closes the current run and returns its summary. In study mode
// the efficiencies are finalised into the summary.
func (d *Driver) EndRun() (RunSummary, bool) {
	if d.current == nil {
		return RunSummary{}, false
	}
	r := *d.current
	if d.cfg.StudyEffiMode {
		s := d.acc.Finalize()
		r.Efficiency = &s
	}
	d.runs = append(d.runs, r)
	d.current = nil
	klm.Opsf("run %d: end, %d events, %d with tracks", r.Run, r.TotalEvents, r.EventsWithTracks)
	return r, true
}

// Terminate ends any open run, logs the per-run fraction of events with
// tracks and returns all run summaries.
func (d *Driver) Terminate() []RunSummary {
	if d.current != nil {
		d.EndRun()
	}
	for _, r := range d.runs {
		klm.Opsf("run %d: %.2f%% of %d events have at least one track",
			r.Run, r.TrackedPercent(), r.TotalEvents)
	}
	return d.runs
}

func (d *Driver) mode() Mode {
	if d.cfg.StudyEffiMode {
		return EfficiencyStudy
	}
	return Standard
}

// ProcessEvent runs the configured mode over one event. In standard mode
// barrel then endcap tracks are found and returned. In study mode every
// barrel (section, sector, layer) is held out in turn, tracks are found
// without it, evaluated against it and cleared.
func (d *Driver) ProcessEvent(ev *Event) (EventResult, error) {
	if d.current == nil {
		return EventResult{}, ErrNoRun
	}
	if ev.Hits == nil {
		ev.Hits = klm.NewHitStore()
	}
	d.ClearTracks()

	var res EventResult
	if d.cfg.StudyEffiMode {
		res.Outcomes = make(map[efficiency.Outcome]int)
		for section := klm.Section(0); section < klm.BKLMSections; section++ {
			for sector := klm.Sector(1); sector <= klm.BKLMSectors; sector++ {
				for layer := klm.Layer(1); layer <= klm.BKLMLayers; layer++ {
					ev.Hits.ResetOnTrack(0)
					n := d.RunTracking(ev, EfficiencyStudy, klm.BKLM, section, sector, layer)
					res.StudyTracks += n
					for _, o := range d.eval.Evaluate(d.tracks, ev.Hits, klm.BKLM, section, sector, layer) {
						res.Outcomes[o]++
					}
					d.ClearTracks()
				}
			}
		}
		ev.Hits.ResetOnTrack(0)
	} else {
		ev.Hits.ResetOnTrack(0)
		d.RunTracking(ev, Standard, klm.BKLM, 0, 0, 0)
		d.RunTracking(ev, Standard, klm.EKLM, 0, 0, 0)
		res.Tracks = d.tracks
	}
	for _, t := range res.Tracks {
		if t.MatchedRecoTrack != klm.NoMatch {
			res.Matched++
		}
	}

	d.current.TotalEvents++
	d.current.TotalTracks += len(res.Tracks) + res.StudyTracks
	d.current.MatchedTracks += res.Matched
	if res.HasTracks() {
		d.current.EventsWithTracks++
	}
	klm.Diagf("event %d/%d: %d hits, %d tracks, %d study tracks", ev.Run, ev.Number,
		ev.Hits.Len(), len(res.Tracks), res.StudyTracks)
	return res, nil
}

// RunTracking performs one finding pass over the event's hits in sub and
// returns the number of tracks stored. In EfficiencyStudy mode the hits
// of (section, sector, layer) never act as seed or pool member. Stored
// tracks have their hits marked on track, so no hit joins two tracks of
// the same pass.
func (d *Driver) RunTracking(ev *Event, mode Mode, sub klm.Subdetector,
	section klm.Section, sector klm.Sector, layer klm.Layer) int {
	hits := ev.Hits.Hits()
	stored := 0
	pool := make([]*klm.Hit2D, 0, len(hits))

	for i, hi := range hits {
		if !d.seedUsable(hi, sub) {
			continue
		}
		if mode == EfficiencyStudy && (!hi.InSector(section, sector) || hi.Layer == layer) {
			continue
		}
		for _, hj := range hits[i+1:] {
			if hi.IsOnTrack() {
				break
			}
			if !d.seedUsable(hj, sub) {
				continue
			}
			if mode == EfficiencyStudy && hj.InLayer(section, sector, layer) {
				continue
			}
			if hi.SameSector(hj) && absLayer(hi.Layer-hj.Layer) < 3 {
				continue
			}

			pool = pool[:0]
			for _, hk := range hits {
				if hk == hi || hk == hj || hk.IsOnTrack() || hk.OutOfTime {
					continue
				}
				switch mode {
				case EfficiencyStudy:
					if hk.Subdetector != sub || !hk.SameSector(hi) || hk.Layer == layer {
						continue
					}
				default:
					if hk.Subdetector != sub && !d.cfg.CrossSubdetectorPool {
						continue
					}
				}
				pool = append(pool, hk)
			}
			if len(pool) < d.cfg.MinHitList || len(pool) > d.cfg.MaxHitList {
				continue
			}

			found, result, ok := d.finder.Filter([2]*klm.Hit2D{hi, hj}, pool)
			if !ok || !result.Valid {
				continue
			}
			t := d.store(found, result)
			stored++
			if mode == Standard && d.cfg.MatchToRecoTrack {
				d.match(t, ev.Trajectories)
			}
		}
	}
	return stored
}

func (d *Driver) seedUsable(h *klm.Hit2D, sub klm.Subdetector) bool {
	return h.Subdetector == sub && !h.IsOnTrack() && !h.OutOfTime
}

func (d *Driver) store(hits []*klm.Hit2D, r fit.Result) *klm.Track {
	sorted := make([]*klm.Hit2D, len(hits))
	copy(sorted, hits)
	klm.SortByLayer(sorted)

	t := &klm.Track{
		Params:           r.Params,
		Cov:              r.Cov,
		Chi2:             r.Chi2,
		NDF:              r.NDF,
		NumHit:           r.NumHit,
		Valid:            r.Valid,
		Good:             r.Good,
		Hits:             sorted,
		MatchedRecoTrack: klm.NoMatch,
	}
	t.SetSubdetectorCounts()
	for _, h := range sorted {
		h.SetOnTrack(true)
	}
	d.tracks = append(d.tracks, t)
	klm.Diagf("track %d: %d hits (bklm=%d eklm=%d) chi2/ndf=%.2f good=%t",
		len(d.tracks)-1, t.NumHit, t.NBKLM, t.NEKLM, t.ChiSquarePerNDF(), t.Good)
	return t
}

func (d *Driver) match(t *klm.Track, trajectories []recomatch.Trajectory) {
	m, ok := recomatch.FindClosest(t, trajectories, d.cfg.MaxAngleRequired)
	if !ok {
		return
	}
	t.MatchedRecoTrack = m.Trajectory.ID()
	n := recomatch.AttachHits(t, m.Trajectory)
	klm.Diagf("track matched to trajectory %d, %d hits attached, dist=%.2fcm",
		m.Trajectory.ID(), n, math.Sqrt(m.DistanceSq))
}

func absLayer(l klm.Layer) klm.Layer {
	if l < 0 {
		return -l
	}
	return l
}
