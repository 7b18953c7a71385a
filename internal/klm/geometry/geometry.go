// Package geometry describes the KLM detector geometry consumed by the
// tracking and efficiency code: module lookup, local/global transforms,
// strip bounds and strip widths.
//
// The Adapter and Module interfaces are the boundary to an external
// geometry service. Barrel is a parametrised octagonal barrel used by the
// command-line tools and tests.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/klmtrack/internal/klm"
)

// ErrNoModule is returned when no module exists at the requested indices.
var ErrNoModule = errors.New("geometry: no module")

// Module is one detector module (a single layer of one sector). Local
// coordinates have x normal to the module plane, y along the phi
// strips' measuring direction and z along the beam.
type Module interface {
	PhiStripMin() int
	PhiStripMax() int
	ZStripMin() int
	ZStripMax() int
	// LocalPosition returns the local centre of the crossing of a phi and a z strip.
	LocalPosition(phiStrip, zStrip int) r3.Vector
	GlobalToLocal(global r3.Vector) r3.Vector
	LocalToGlobal(local r3.Vector) r3.Vector
	IsFlipped() bool
	PhiStripWidth() float64
	ZStripWidth() float64
}

// Adapter looks up modules by their barrel indices.
type Adapter interface {
	FindModule(section klm.Section, sector klm.Sector, layer klm.Layer) (Module, error)
	// ActiveMiddleRadius is the radius of the active detector plane of a layer.
	ActiveMiddleRadius(section klm.Section, sector klm.Sector, layer klm.Layer) float64
	// EndcapStripWidth is the width of one endcap strip.
	EndcapStripWidth() float64
}

var sqrt12 = math.Sqrt(12)

// HitResolution returns the positional resolution of a hit along its two
// measuring directions, using a uniform-distribution width/sqrt(12) per
// strip readout.
func HitResolution(a Adapter, h *klm.Hit2D) (float64, float64, error) {
	switch h.Subdetector {
	case klm.BKLM:
		m, err := a.FindModule(h.Section, h.Sector, h.Layer)
		if err != nil {
			return 0, 0, err
		}
		return m.PhiStripWidth() / sqrt12, m.ZStripWidth() / sqrt12, nil
	case klm.EKLM:
		w := a.EndcapStripWidth()
		return w * float64(h.XStripMax-h.XStripMin+1) / sqrt12,
			w * float64(h.YStripMax-h.YStripMin+1) / sqrt12, nil
	}
	return 0, 0, fmt.Errorf("hit resolution: unsupported subdetector %s", h.Subdetector)
}

// Box is the active area of a module in local (y, z).
type Box struct {
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// ActiveBox returns the local bounding box spanned by the centres of the
// outermost strips of a module.
func ActiveBox(m Module) Box {
	lo := m.LocalPosition(m.PhiStripMin(), m.ZStripMin())
	hi := m.LocalPosition(m.PhiStripMax(), m.ZStripMax())
	return Box{
		MinY: math.Min(lo.Y, hi.Y), MaxY: math.Max(lo.Y, hi.Y),
		MinZ: math.Min(lo.Z, hi.Z), MaxZ: math.Max(lo.Z, hi.Z),
	}
}

// Contains reports whether a local position lies strictly inside the box.
// Points on the boundary are outside.
func (b Box) Contains(local r3.Vector) bool {
	return local.Y > b.MinY && local.Y < b.MaxY && local.Z > b.MinZ && local.Z < b.MaxZ
}
