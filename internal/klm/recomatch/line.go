package recomatch

import (
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/klmtrack/internal/klm"
)

// LineTrajectory is a straight external trajectory defined by its states
// at the first and last measured hit.
type LineTrajectory struct {
	TrajID int
	Fitted bool
	First  State
	Last   State

	nInner   int
	attached []*klm.Hit2D
}

// NewLineTrajectory returns a fitted straight trajectory with nInner
// hits from inner detectors.
func NewLineTrajectory(id int, first, last State, nInner int) *LineTrajectory {
	return &LineTrajectory{TrajID: id, Fitted: true, First: first, Last: last, nInner: nInner}
}

func (l *LineTrajectory) ID() int                         { return l.TrajID }
func (l *LineTrajectory) FitSuccessful() bool             { return l.Fitted }
func (l *LineTrajectory) StateAtFirstHit() (State, error) { return l.First, nil }
func (l *LineTrajectory) StateAtLastHit() (State, error)  { return l.Last, nil }

// ExtrapolateToPoint moves along the momentum to the point of closest
// approach. A zero momentum cannot be extrapolated.
func (l *LineTrajectory) ExtrapolateToPoint(from State, point r3.Vector) (State, error) {
	n2 := from.Momentum.Norm2()
	if n2 == 0 {
		return State{}, fmt.Errorf("%w: trajectory %d has zero momentum", ErrExtrapolation, l.TrajID)
	}
	t := point.Sub(from.Position).Dot(from.Momentum) / n2
	return State{Position: from.Position.Add(from.Momentum.Mul(t)), Momentum: from.Momentum}, nil
}

// NumberOfHits implements HitAttacher.
func (l *LineTrajectory) NumberOfHits() int { return l.nInner + len(l.attached) }

// AttachKLMHit implements HitAttacher. Hits are kept in attachment order.
func (l *LineTrajectory) AttachKLMHit(h *klm.Hit2D, _ int) {
	l.attached = append(l.attached, h)
}

// KLMHits returns the attached KLM hits.
func (l *LineTrajectory) KLMHits() []*klm.Hit2D { return l.attached }
