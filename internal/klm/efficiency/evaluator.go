package efficiency

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/geometry"
)

// Config holds the evaluator cuts.
type Config struct {
	MaxDistance float64 // cm between predicted and measured position
	MaxSigma    float64 // distance over hit resolution
	MinNLayer   int     // distinct layers a track needs besides the studied one
}

// Outcome is the result of evaluating one track against a layer.
type Outcome int

const (
	// TooFewLayers: the track covers fewer than MinNLayer layers.
	TooFewLayers Outcome = iota
	// Unbracketed: the track has no hit on one side of a non-extremal layer.
	Unbracketed
	// Unsupported: the subdetector or module is not available.
	Unsupported
	// OutsideAcceptance: the prediction misses the module's active area.
	OutsideAcceptance
	// Missed: accepted, no compatible hit.
	Missed
	// Found: accepted, a compatible hit was consumed.
	Found
)

func (o Outcome) String() string {
	switch o {
	case TooFewLayers:
		return "too-few-layers"
	case Unbracketed:
		return "unbracketed"
	case Unsupported:
		return "unsupported"
	case OutsideAcceptance:
		return "outside-acceptance"
	case Missed:
		return "missed"
	case Found:
		return "found"
	}
	return "unknown"
}

// Evaluator scores tracks found with one layer held out against the hits
// of that layer.
type Evaluator struct {
	cfg Config
	geo geometry.Adapter
	acc *Accumulator
}

// NewEvaluator returns an evaluator filling acc.
func NewEvaluator(cfg Config, geo geometry.Adapter, acc *Accumulator) *Evaluator {
	return &Evaluator{cfg: cfg, geo: geo, acc: acc}
}

// Accumulator returns the accumulator being filled.
func (e *Evaluator) Accumulator() *Accumulator { return e.acc }

// Evaluate scores every track against the studied (section, sector,
// layer) and returns one outcome per track. A hit matched by one track
// is consumed for the rest of the call. A track that cannot be scored is
// skipped without affecting the tracks after it.
func (e *Evaluator) Evaluate(tracks []*klm.Track, hits *klm.HitStore, sub klm.Subdetector,
	section klm.Section, sector klm.Sector, layer klm.Layer) []Outcome {
	if len(tracks) == 0 {
		return nil
	}
	klm.Tracef("efficiency: section=%d sector=%d layer=%d tracks=%d", section, sector, layer, len(tracks))

	used := make(map[int]bool)
	outcomes := make([]Outcome, len(tracks))
	for i, t := range tracks {
		outcomes[i] = e.evaluateTrack(t, hits, used, sub, section, sector, layer)
	}
	return outcomes
}

func (e *Evaluator) evaluateTrack(t *klm.Track, hits *klm.HitStore, used map[int]bool,
	sub klm.Subdetector, section klm.Section, sector klm.Sector, layer klm.Layer) Outcome {
	above, below := 0, 0
	layers := make(map[klm.Layer]struct{})
	for _, h := range t.Hits {
		if h.Subdetector != sub {
			continue
		}
		switch {
		case h.Layer > layer:
			above++
			layers[h.Layer] = struct{}{}
		case h.Layer < layer:
			below++
			layers[h.Layer] = struct{}{}
		}
	}
	if len(layers) < e.cfg.MinNLayer {
		return TooFewLayers
	}
	if layer != 1 && below < 1 {
		return Unbracketed
	}
	if layer != klm.BKLMLayers && above < 1 {
		return Unbracketed
	}
	if sub != klm.BKLM {
		return Unsupported
	}

	module, err := e.geo.FindModule(section, sector, layer)
	if err != nil {
		klm.Opsf("efficiency: %v", err)
		return Unsupported
	}
	ref, err := e.geo.FindModule(section, sector, 1)
	if err != nil {
		klm.Opsf("efficiency: %v", err)
		return Unsupported
	}
	global, local, ok := e.Predict(t, module, ref, section, sector, layer)
	if !ok {
		return Unsupported
	}
	klm.Tracef("efficiency: predicted global=(%.2f, %.2f, %.2f) local=(%.2f, %.2f, %.2f)",
		global.X, global.Y, global.Z, local.X, local.Y, local.Z)

	if !geometry.ActiveBox(module).Contains(local) {
		return OutsideAcceptance
	}

	e.acc.FillTotal(section, sector, layer, global)
	found := false
	for _, h := range hits.Hits() {
		if h.Subdetector != sub || !h.InLayer(section, sector, layer) {
			continue
		}
		if h.OutOfTime || used[h.Index] {
			continue
		}
		lineDist, hitErr, _ := DistanceToHit(t, h, e.geo)
		if lineDist < 0 {
			continue
		}
		dist := global.Distance(h.Position)
		sigma := math.MaxFloat64
		if hitErr > 0 {
			sigma = dist / hitErr
		}
		if klm.LogEnabled(klm.LogTrace) {
			klm.Tracef("efficiency: hit %d dist=%.2f line_dist=%.2f err=%.2f sigma=%.2f",
				h.Index, dist, lineDist, hitErr, sigma)
		}
		if dist < e.cfg.MaxDistance && sigma < e.cfg.MaxSigma {
			used[h.Index] = true
			e.acc.FillPass(section, sector, layer, global)
			found = true
			break
		}
	}
	e.acc.FillCurve(section, sector, layer, found)
	if found {
		return Found
	}
	return Missed
}

// Predict intersects the track with the studied layer. The track is
// expressed in the local frame of the layer-1 module of the same sector,
// moved along its direction to the radial offset of the studied layer
// (negated for flipped modules), and transformed back to global and to
// the studied module's local frame.
func (e *Evaluator) Predict(t *klm.Track, module, ref geometry.Module,
	section klm.Section, sector klm.Sector, layer klm.Layer) (global, local r3.Vector, ok bool) {
	p1 := t.PointAtX(0)
	p2 := t.PointAtX(1)
	ref1 := ref.GlobalToLocal(p1)
	ref2 := ref.GlobalToLocal(p2)
	slope := ref2.Sub(ref1)
	if slope.X == 0 {
		return global, local, false
	}

	refX := math.Abs(e.geo.ActiveMiddleRadius(section, sector, layer) - e.geo.ActiveMiddleRadius(section, sector, 1))
	if ref.IsFlipped() {
		refX = -refX
	}
	s := (refX - ref1.X) / slope.X
	refLocal := r3.Vector{X: refX, Y: ref1.Y + slope.Y*s, Z: ref1.Z + slope.Z*s}

	global = ref.LocalToGlobal(refLocal)
	local = module.GlobalToLocal(global)
	return global, local, true
}

// DistanceToHit returns the distance between a track and a hit evaluated
// on the hit's z plane, the hit resolution and their ratio.
//
// Barrel hits use the track point with the hit's z (falling back to the
// hit's x when the track has no z slope). Endcap hits use the same point
// but ignore the z difference. Hits from any other subdetector yield a
// distance of -1 and a warning.
func DistanceToHit(t *klm.Track, h *klm.Hit2D, geo geometry.Adapter) (distance, hitErr, sigma float64) {
	p := t.Params
	onPlane := func() r3.Vector {
		if p[3] == 0 {
			return t.PointAtX(h.Position.X)
		}
		x := (h.Position.Z - p[2]) / p[3]
		return r3.Vector{X: x, Y: p[0] + x*p[1], Z: h.Position.Z}
	}

	switch h.Subdetector {
	case klm.BKLM:
		distance = onPlane().Distance(h.Position)
	case klm.EKLM:
		d := onPlane().Sub(h.Position)
		distance = math.Hypot(d.X, d.Y)
	default:
		klm.Opsf("efficiency: hit from unsupported subdetector %s, distance set to -1", h.Subdetector)
		return -1, math.MaxFloat64, math.MaxFloat64
	}

	errA, errB, err := geometry.HitResolution(geo, h)
	if err != nil {
		klm.Opsf("efficiency: %v", err)
		return distance, math.MaxFloat64, math.MaxFloat64
	}
	hitErr = math.Hypot(errA, errB)
	if hitErr == 0 {
		return distance, 0, math.MaxFloat64
	}
	return distance, hitErr, distance / hitErr
}
