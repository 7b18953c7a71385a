// Package fit fits straight lines to KLM hits in two decoupled
// projections, y(x) and z(x), by weighted least squares.
//
// Barrel hits are fitted in the frame of their sector, with local x along
// the sector normal and local y along the phi strips, so that the layer
// position is the abscissa and the strip readouts are the measurements.
// The parameters are rotated back to the global frame afterwards.
//
// A failed or degenerate fit is never an error: the returned Result has
// Valid set to false and callers must check it before using the
// parameters.
package fit

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/geometry"
)

// Resolution returns the positional uncertainties of a hit used as the
// y-projection and z-projection measurement errors.
type Resolution func(h *klm.Hit2D) (sigmaY, sigmaZ float64, err error)

// GeometryResolution derives hit uncertainties from strip widths.
func GeometryResolution(a geometry.Adapter) Resolution {
	return func(h *klm.Hit2D) (float64, float64, error) {
		return geometry.HitResolution(a, h)
	}
}

// UnitResolution assigns 1 cm to every measurement.
func UnitResolution(*klm.Hit2D) (float64, float64, error) { return 1, 1, nil }

// Config holds the quality thresholds of the fitter.
type Config struct {
	GoodMinHits       int     // minimum hits for a good fit
	GoodMaxChi2PerNDF float64 // maximum chi2/ndf for a good fit
	MaxCondition      float64 // normal matrices above this condition number are degenerate
}

// DefaultConfig returns the fitter defaults.
func DefaultConfig() Config {
	return Config{
		GoodMinHits:       5,
		GoodMaxChi2PerNDF: 5,
		MaxCondition:      1e10,
	}
}

// Result is the outcome of one fit. Params follow klm.Track:
// y = P0 + P1*x, z = P2 + P3*x.
type Result struct {
	Params [4]float64
	Cov    [16]float64
	Chi2   float64
	NDF    int
	NumHit int
	Valid  bool
	Good   bool
}

// Fitter fits hit clusters and remembers the last result so that hits can
// be tested against it.
type Fitter struct {
	cfg   Config
	res   Resolution
	last  Result
	local localLine
}

// localLine is the last valid fit in its fitting frame:
// v = A + B*u, z = C + D*u, with (u, v) the xy plane rotated by Azimuth.
type localLine struct {
	Azimuth    float64
	A, B, C, D float64
}

func (l localLine) toLocal(g r3.Vector) r3.Vector {
	s, c := math.Sincos(l.Azimuth)
	return r3.Vector{X: g.X*c + g.Y*s, Y: -g.X*s + g.Y*c, Z: g.Z}
}

// minSlopeX is the smallest |dx/du| a line may have and still be
// expressed as y(x), z(x).
const minSlopeX = 1e-9

// FrameAzimuth returns the rotation about z of the frame hits are fitted
// in: the sector normal of the first barrel hit, or zero.
func FrameAzimuth(hits []*klm.Hit2D) float64 {
	if len(hits) == 0 || hits[0].Subdetector != klm.BKLM {
		return 0
	}
	return geometry.SectorAngle(hits[0].Sector)
}

// New returns a Fitter. A nil resolution uses UnitResolution.
func New(cfg Config, res Resolution) *Fitter {
	if res == nil {
		res = UnitResolution
	}
	if cfg.MaxCondition <= 0 {
		cfg.MaxCondition = DefaultConfig().MaxCondition
	}
	return &Fitter{cfg: cfg, res: res}
}

// minResolution replaces missing or non-positive uncertainties.
const minResolution = 1.0

func (f *Fitter) sigmas(h *klm.Hit2D) (float64, float64) {
	sy, sz, err := f.res(h)
	if err != nil || !(sy > 0) {
		sy = minResolution
	}
	if err != nil || !(sz > 0) {
		sz = minResolution
	}
	return sy, sz
}

// Fit fits hits and stores the result as the reference for DistanceToHit.
func (f *Fitter) Fit(hits []*klm.Hit2D) Result {
	f.last = f.fit(hits)
	return f.last
}

// Last returns the most recent fit result.
func (f *Fitter) Last() Result { return f.last }

func (f *Fitter) fit(hits []*klm.Hit2D) Result {
	r := Result{NumHit: len(hits)}
	if len(hits) < 2 {
		return r
	}
	line := localLine{Azimuth: FrameAzimuth(hits)}
	n := len(hits)
	u := make([]float64, n)
	v := make([]float64, n)
	z := make([]float64, n)
	sv := make([]float64, n)
	sz := make([]float64, n)
	for i, h := range hits {
		p := line.toLocal(h.Position)
		u[i], v[i], z[i] = p.X, p.Y, p.Z
		sv[i], sz[i] = f.sigmas(h)
	}
	if floats.Max(u)-floats.Min(u) == 0 {
		return r
	}

	pv, covV, chiV, ok := fitLine(u, v, sv, f.cfg.MaxCondition)
	if !ok {
		return r
	}
	pz, covZ, chiZ, ok := fitLine(u, z, sz, f.cfg.MaxCondition)
	if !ok {
		return r
	}
	line.A, line.B, line.C, line.D = pv[0], pv[1], pz[0], pz[1]

	var localCov [16]float64
	localCov[0], localCov[1], localCov[4], localCov[5] = covV[0], covV[1], covV[2], covV[3]
	localCov[10], localCov[11], localCov[14], localCov[15] = covZ[0], covZ[1], covZ[2], covZ[3]
	if r.Params, r.Cov, ok = line.global(localCov); !ok {
		return r
	}
	r.Chi2 = chiV + chiZ
	r.NDF = 2*n - 4
	r.Valid = finite(r.Params[:]) && finite(r.Cov[:]) && finite([]float64{r.Chi2})
	if !r.Valid {
		return r
	}
	f.local = line
	chi2ndf := 0.0
	if r.NDF > 0 {
		chi2ndf = r.Chi2 / float64(r.NDF)
	}
	r.Good = r.NumHit >= f.cfg.GoodMinHits && chi2ndf <= f.cfg.GoodMaxChi2PerNDF
	return r
}

// global rotates the local line back to y = P0 + P1*x, z = P2 + P3*x and
// propagates the local covariance through the Jacobian of that mapping.
// Lines parallel to the global yz plane have no such form.
func (l localLine) global(localCov [16]float64) ([4]float64, [16]float64, bool) {
	var p [4]float64
	var cov [16]float64
	s, c := math.Sincos(l.Azimuth)
	dxdu := c - l.B*s
	if math.Abs(dxdu) < minSlopeX {
		return p, cov, false
	}
	d2 := dxdu * dxdu
	p[0] = l.A / dxdu
	p[1] = (s + l.B*c) / dxdu
	p[2] = l.C + l.D*l.A*s/dxdu
	p[3] = l.D / dxdu

	jac := mat.NewDense(4, 4, []float64{
		1 / dxdu, l.A * s / d2, 0, 0,
		0, 1 / d2, 0, 0,
		l.D * s / dxdu, l.D * l.A * s * s / d2, 1, l.A * s / dxdu,
		0, l.D * s / d2, 0, 1 / dxdu,
	})
	var tmp, out mat.Dense
	tmp.Mul(jac, mat.NewDense(4, 4, localCov[:]))
	out.Mul(&tmp, jac.T())
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			cov[i*4+j] = out.At(i, j)
		}
	}
	return p, cov, true
}

// fitLine fits v = a + b*x with measurement errors sigma. It returns
// (a, b), the row-major 2x2 covariance and the chi-square.
func fitLine(x, v, sigma []float64, maxCond float64) ([2]float64, [4]float64, float64, bool) {
	var p [2]float64
	var cov [4]float64
	n := len(x)
	w := make([]float64, n)
	wx := make([]float64, n)
	for i := range x {
		w[i] = 1 / (sigma[i] * sigma[i])
		wx[i] = w[i] * x[i]
	}
	sw := floats.Sum(w)
	swx := floats.Sum(wx)
	swxx := floats.Dot(wx, x)
	swv := floats.Dot(w, v)
	swxv := floats.Dot(wx, v)

	normal := mat.NewSymDense(2, []float64{sw, swx, swx, swxx})
	var chol mat.Cholesky
	if ok := chol.Factorize(normal); !ok {
		return p, cov, 0, false
	}
	if chol.Cond() > maxCond {
		return p, cov, 0, false
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return p, cov, 0, false
	}
	var sol mat.VecDense
	if err := chol.SolveVecTo(&sol, mat.NewVecDense(2, []float64{swv, swxv})); err != nil {
		return p, cov, 0, false
	}
	p[0], p[1] = sol.AtVec(0), sol.AtVec(1)
	cov = [4]float64{inv.At(0, 0), inv.At(0, 1), inv.At(1, 0), inv.At(1, 1)}

	chi2 := 0.0
	for i := range x {
		d := v[i] - p[0] - p[1]*x[i]
		chi2 += w[i] * d * d
	}
	return p, cov, chi2, true
}

// DistanceToHit returns the perpendicular distance of a hit from the last
// fitted line, its combined uncertainty and their ratio. Without a valid
// fit the distance and sigma are math.MaxFloat64.
func (f *Fitter) DistanceToHit(h *klm.Hit2D) (distance, hitErr, sigma float64) {
	if !f.last.Valid {
		return math.MaxFloat64, math.MaxFloat64, math.MaxFloat64
	}
	l := f.local
	rel := l.toLocal(h.Position).Sub(r3.Vector{Y: l.A, Z: l.C})
	dir := r3.Vector{X: 1, Y: l.B, Z: l.D}
	distance = rel.Cross(dir).Norm() / dir.Norm()
	sy, sz := f.sigmas(h)
	hitErr = math.Hypot(sy, sz)
	return distance, hitErr, distance / hitErr
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
