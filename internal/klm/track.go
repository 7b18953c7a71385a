package klm

import (
	"math"

	"github.com/golang/geo/r3"
)

// NoMatch marks a track without a matched external trajectory.
const NoMatch = -1

// Track is a straight line fitted to KLM hits. The line is described by
// two independent projections on the global x axis:
//
//	y = Params[0] + Params[1]*x
//	z = Params[2] + Params[3]*x
type Track struct {
	Params [4]float64
	// Cov is the 4x4 parameter covariance, row-major.
	Cov    [16]float64
	Chi2   float64
	NDF    int
	NumHit int
	Valid  bool
	Good   bool

	NBKLM int
	NEKLM int

	// Hits are the contributing hits, ordered by ascending layer.
	Hits []*Hit2D

	// MatchedRecoTrack is the ID of the matched external trajectory, or NoMatch.
	MatchedRecoTrack int
}

// ParamErr returns the square roots of the covariance diagonal.
func (t *Track) ParamErr() [4]float64 {
	var e [4]float64
	for i := 0; i < 4; i++ {
		e[i] = math.Sqrt(math.Max(t.Cov[i*4+i], 0))
	}
	return e
}

// PointAtX returns the point of the line at global x.
func (t *Track) PointAtX(x float64) r3.Vector {
	return r3.Vector{X: x, Y: t.Params[0] + t.Params[1]*x, Z: t.Params[2] + t.Params[3]*x}
}

// Direction returns the (unnormalised) direction (1, dy/dx, dz/dx).
func (t *Track) Direction() r3.Vector {
	return r3.Vector{X: 1, Y: t.Params[1], Z: t.Params[3]}
}

// SetSubdetectorCounts counts hits per subdetector into NBKLM and NEKLM.
func (t *Track) SetSubdetectorCounts() {
	t.NBKLM, t.NEKLM = 0, 0
	for _, h := range t.Hits {
		switch h.Subdetector {
		case BKLM:
			t.NBKLM++
		case EKLM:
			t.NEKLM++
		}
	}
}

// ChiSquarePerNDF returns Chi2/NDF, or 0 for a fit with no degrees of freedom.
func (t *Track) ChiSquarePerNDF() float64 {
	if t.NDF <= 0 {
		return 0
	}
	return t.Chi2 / float64(t.NDF)
}
