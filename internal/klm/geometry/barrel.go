package geometry

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/klmtrack/internal/klm"
)

// BarrelConfig parametrises the synthetic octagonal barrel. Lengths are in cm.
type BarrelConfig struct {
	InnerRadius float64 // active middle radius of layer 1
	LayerPitch  float64 // radial distance between consecutive layers
	HalfLength  float64 // z length of one section

	// Scintillator layers (1 and 2) and RPC layers (3+) have different strips.
	ScintStripWidth  float64
	RPCPhiStripWidth float64
	RPCZStripWidth   float64

	EndcapStripWidth float64

	// FlipBackward rotates backward-section modules by 180 degrees about
	// their local z axis.
	FlipBackward bool
}

// DefaultBarrelConfig returns dimensions close to the real barrel.
func DefaultBarrelConfig() BarrelConfig {
	return BarrelConfig{
		InnerRadius:      201.9,
		LayerPitch:       9.1,
		HalfLength:       220,
		ScintStripWidth:  4.0,
		RPCPhiStripWidth: 4.8,
		RPCZStripWidth:   4.52,
		EndcapStripWidth: 4.0,
		FlipBackward:     true,
	}
}

// Barrel is an Adapter over a regular octagonal barrel.
type Barrel struct {
	cfg     BarrelConfig
	modules map[moduleKey]*barrelModule
}

type moduleKey struct {
	section klm.Section
	sector  klm.Sector
	layer   klm.Layer
}

// NewBarrel builds all 2x8x15 modules.
func NewBarrel(cfg BarrelConfig) *Barrel {
	b := &Barrel{cfg: cfg, modules: make(map[moduleKey]*barrelModule)}
	for section := klm.Section(0); section < klm.BKLMSections; section++ {
		for sector := klm.Sector(1); sector <= klm.BKLMSectors; sector++ {
			for layer := klm.Layer(1); layer <= klm.BKLMLayers; layer++ {
				b.modules[moduleKey{section, sector, layer}] = b.newModule(section, sector, layer)
			}
		}
	}
	return b
}

// SectorAngle returns the azimuth of the outward normal of a sector.
func SectorAngle(sector klm.Sector) float64 {
	return float64(sector-1) * math.Pi / 4
}

func (b *Barrel) newModule(section klm.Section, sector klm.Sector, layer klm.Layer) *barrelModule {
	r := b.radius(layer)
	phi := SectorAngle(sector)
	normal := r3.Vector{X: math.Cos(phi), Y: math.Sin(phi)}
	along := r3.Vector{X: -math.Sin(phi), Y: math.Cos(phi)}

	zc := b.cfg.HalfLength / 2
	if section == klm.BKLMSectionBackward {
		zc = -zc
	}
	m := &barrelModule{
		center: normal.Mul(r).Add(r3.Vector{Z: zc}),
		u:      normal,
		v:      along,
		w:      r3.Vector{Z: 1},
	}
	if b.cfg.FlipBackward && section == klm.BKLMSectionBackward {
		m.flipped = true
		m.u = m.u.Mul(-1)
		m.v = m.v.Mul(-1)
	}
	if layer <= 2 {
		m.phiWidth, m.zWidth = b.cfg.ScintStripWidth, b.cfg.ScintStripWidth
	} else {
		m.phiWidth, m.zWidth = b.cfg.RPCPhiStripWidth, b.cfg.RPCZStripWidth
	}
	width := 2 * r * math.Tan(math.Pi/8)
	m.nPhi = int(width / m.phiWidth)
	m.nZ = int(b.cfg.HalfLength / m.zWidth)
	return m
}

func (b *Barrel) radius(layer klm.Layer) float64 {
	return b.cfg.InnerRadius + float64(layer-1)*b.cfg.LayerPitch
}

// FindModule implements Adapter.
func (b *Barrel) FindModule(section klm.Section, sector klm.Sector, layer klm.Layer) (Module, error) {
	m, ok := b.modules[moduleKey{section, sector, layer}]
	if !ok {
		return nil, fmt.Errorf("%w: section %d sector %d layer %d", ErrNoModule, section, sector, layer)
	}
	return m, nil
}

// ActiveMiddleRadius implements Adapter.
func (b *Barrel) ActiveMiddleRadius(_ klm.Section, _ klm.Sector, layer klm.Layer) float64 {
	return b.radius(layer)
}

// EndcapStripWidth implements Adapter.
func (b *Barrel) EndcapStripWidth() float64 { return b.cfg.EndcapStripWidth }

// Crossing is the digitised intersection of a straight line with a module.
type Crossing struct {
	Section  klm.Section
	Sector   klm.Sector
	Layer    klm.Layer
	PhiStrip int
	ZStrip   int
	// Position is the global centre of the fired strip crossing.
	Position r3.Vector
}

// Digitize intersects the ray origin + t*dir (t > 0) with every module
// and returns the strip crossings it fires, ordered by sector then layer.
func (b *Barrel) Digitize(origin, dir r3.Vector) []Crossing {
	var out []Crossing
	for sector := klm.Sector(1); sector <= klm.BKLMSectors; sector++ {
		phi := SectorAngle(sector)
		normal := r3.Vector{X: math.Cos(phi), Y: math.Sin(phi)}
		dn := dir.Dot(normal)
		if dn <= 0 {
			continue
		}
		for layer := klm.Layer(1); layer <= klm.BKLMLayers; layer++ {
			t := (b.radius(layer) - origin.Dot(normal)) / dn
			if t <= 0 {
				continue
			}
			p := origin.Add(dir.Mul(t))
			section := klm.BKLMSectionForward
			if p.Z < 0 {
				section = klm.BKLMSectionBackward
			}
			m := b.modules[moduleKey{section, sector, layer}]
			phiStrip, zStrip, ok := m.stripAt(m.GlobalToLocal(p))
			if !ok {
				continue
			}
			out = append(out, Crossing{
				Section:  section,
				Sector:   sector,
				Layer:    layer,
				PhiStrip: phiStrip,
				ZStrip:   zStrip,
				Position: m.LocalToGlobal(m.LocalPosition(phiStrip, zStrip)),
			})
		}
	}
	return out
}

type barrelModule struct {
	center  r3.Vector
	u, v, w r3.Vector
	flipped bool

	phiWidth, zWidth float64
	nPhi, nZ         int
}

func (m *barrelModule) PhiStripMin() int       { return 1 }
func (m *barrelModule) PhiStripMax() int       { return m.nPhi }
func (m *barrelModule) ZStripMin() int         { return 1 }
func (m *barrelModule) ZStripMax() int         { return m.nZ }
func (m *barrelModule) IsFlipped() bool        { return m.flipped }
func (m *barrelModule) PhiStripWidth() float64 { return m.phiWidth }
func (m *barrelModule) ZStripWidth() float64   { return m.zWidth }

func (m *barrelModule) LocalPosition(phiStrip, zStrip int) r3.Vector {
	return r3.Vector{
		Y: (float64(phiStrip)-0.5)*m.phiWidth - float64(m.nPhi)*m.phiWidth/2,
		Z: (float64(zStrip)-0.5)*m.zWidth - float64(m.nZ)*m.zWidth/2,
	}
}

func (m *barrelModule) GlobalToLocal(g r3.Vector) r3.Vector {
	d := g.Sub(m.center)
	return r3.Vector{X: d.Dot(m.u), Y: d.Dot(m.v), Z: d.Dot(m.w)}
}

func (m *barrelModule) LocalToGlobal(l r3.Vector) r3.Vector {
	return m.center.Add(m.u.Mul(l.X)).Add(m.v.Mul(l.Y)).Add(m.w.Mul(l.Z))
}

// stripAt returns the strips covering a local position.
func (m *barrelModule) stripAt(l r3.Vector) (int, int, bool) {
	phi := int(math.Floor((l.Y+float64(m.nPhi)*m.phiWidth/2)/m.phiWidth)) + 1
	z := int(math.Floor((l.Z+float64(m.nZ)*m.zWidth/2)/m.zWidth)) + 1
	if phi < 1 || phi > m.nPhi || z < 1 || z > m.nZ {
		return 0, 0, false
	}
	return phi, z, true
}
