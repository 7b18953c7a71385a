// Package recomatch associates KLM standalone tracks with trajectories
// fitted by the full tracking system.
package recomatch

import (
	"errors"
	"math"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/klmtrack/internal/klm"
)

// ErrExtrapolation is returned when a trajectory state cannot be
// propagated to the requested point.
var ErrExtrapolation = errors.New("recomatch: extrapolation failed")

// State is a trajectory state: a position and a momentum (direction).
type State struct {
	Position r3.Vector
	Momentum r3.Vector
}

// Trajectory is an externally fitted track.
type Trajectory interface {
	ID() int
	FitSuccessful() bool
	StateAtFirstHit() (State, error)
	StateAtLastHit() (State, error)
	// ExtrapolateToPoint propagates a state to its point of closest approach to point.
	ExtrapolateToPoint(from State, point r3.Vector) (State, error)
}

// HitAttacher is implemented by trajectories that accept KLM hits after a
// successful match.
type HitAttacher interface {
	NumberOfHits() int
	AttachKLMHit(h *klm.Hit2D, sortingParameter int)
}

// Match is the closest trajectory found for a track.
type Match struct {
	Trajectory Trajectory
	DistanceSq float64 // cm^2, from the track's innermost hit
	AngleDeg   float64 // between the track and trajectory directions
}

// FindClosest selects, among successfully fitted trajectories, the one
// whose extrapolated state lies closest to the track's innermost hit.
// Only distance decides the selection. The angle between the track
// direction and the selected trajectory's momentum is then used as a
// reject gate: if it exceeds maxAngleDeg there is no match, even when a
// farther trajectory would have passed.
//
// The state is taken at the trajectory's last hit unless that state points
// back towards the y=0 plane, in which case the first-hit state is used.
// Trajectories whose states cannot be obtained or extrapolated are skipped.
func FindClosest(track *klm.Track, trajectories []Trajectory, maxAngleDeg float64) (Match, bool) {
	if len(track.Hits) < 1 {
		klm.Opsf("recomatch: track without hits, cannot match")
		return Match{}, false
	}
	if len(trajectories) < 1 {
		klm.Diagf("recomatch: no external trajectories")
		return Match{}, false
	}

	first := track.Hits[0].Position
	dir := track.Direction()

	best := Match{DistanceSq: math.Inf(1), AngleDeg: math.Inf(1)}
	for _, tr := range trajectories {
		if !tr.FitSuccessful() {
			continue
		}
		st, err := tr.StateAtLastHit()
		if err != nil {
			klm.Diagf("recomatch: trajectory %d: last-hit state: %v", tr.ID(), err)
			continue
		}
		if st.Momentum.Y*st.Position.Y < 0 {
			if st, err = tr.StateAtFirstHit(); err != nil {
				klm.Diagf("recomatch: trajectory %d: first-hit state: %v", tr.ID(), err)
				continue
			}
		}
		ext, err := tr.ExtrapolateToPoint(st, first)
		if err != nil {
			klm.Diagf("recomatch: trajectory %d: %v", tr.ID(), err)
			continue
		}
		d2 := first.Sub(ext.Position).Norm2()
		if d2 < best.DistanceSq {
			best = Match{
				Trajectory: tr,
				DistanceSq: d2,
				AngleDeg:   dir.Angle(ext.Momentum).Degrees(),
			}
		}
	}

	if best.Trajectory == nil || best.AngleDeg > maxAngleDeg {
		return best, false
	}
	klm.Diagf("recomatch: matched trajectory %d dist=%.2fcm angle=%.2fdeg",
		best.Trajectory.ID(), math.Sqrt(best.DistanceSq), best.AngleDeg)
	return best, true
}

// AttachHits gives every track hit to the trajectory, if it accepts hits.
// The sorting parameter of each hit is the trajectory's hit count at the
// time of attachment.
func AttachHits(track *klm.Track, tr Trajectory) int {
	a, ok := tr.(HitAttacher)
	if !ok {
		return 0
	}
	for _, h := range track.Hits {
		a.AttachKLMHit(h, a.NumberOfHits())
	}
	return len(track.Hits)
}
