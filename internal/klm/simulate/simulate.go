// Package simulate produces synthetic KLM events: straight tracks from
// the interaction region digitised in the barrel, with detector
// inefficiency, random noise hits and a matching external trajectory per
// track.
package simulate

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/eventio"
	"github.com/banshee-data/klmtrack/internal/klm/geometry"
)

// Config controls event generation.
type Config struct {
	Run            int
	Events         int
	Seed           uint64
	TracksPerEvent int
	// Inefficiency is the probability that a crossing fires no hit.
	Inefficiency float64
	// DeadLayer, when set, never fires in the forward section.
	DeadLayer klm.Layer
	// NoiseHits is the mean number of random hits per event.
	NoiseHits float64
	// OutOfTimeFraction of noise hits are flagged out of time.
	OutOfTimeFraction float64
	// MaxCosTheta bounds the polar angle of generated directions.
	MaxCosTheta float64
	// VertexSigma smears the track origin around (0, 0, 0), in cm.
	VertexSigma float64
}

// DefaultConfig returns a small clean sample.
func DefaultConfig() Config {
	return Config{
		Run:               1,
		Events:            100,
		Seed:              1,
		TracksPerEvent:    1,
		Inefficiency:      0.05,
		NoiseHits:         2,
		OutOfTimeFraction: 0.2,
		MaxCosTheta:       0.3,
		VertexSigma:       0.5,
	}
}

// Generator draws events from a seeded source. The same seed always yields
// the same sequence.
type Generator struct {
	cfg    Config
	barrel *geometry.Barrel
	src    *rand.PCG
	rng    *rand.Rand
	trajID int
}

// New returns a generator over barrel.
func New(cfg Config, barrel *geometry.Barrel) *Generator {
	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)
	return &Generator{
		cfg:    cfg,
		barrel: barrel,
		src:    src,
		rng:    rand.New(src),
	}
}

// Each generates cfg.Events events and passes them to fn in order.
func (g *Generator) Each(fn func(eventio.EventRecord) error) error {
	for i := 0; i < g.cfg.Events; i++ {
		rec, err := g.Event(i)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Event generates event number n.
func (g *Generator) Event(n int) (eventio.EventRecord, error) {
	rec := eventio.EventRecord{Run: g.cfg.Run, Event: n}
	for i := 0; i < g.cfg.TracksPerEvent; i++ {
		origin := r3.Vector{
			X: g.rng.NormFloat64() * g.cfg.VertexSigma,
			Y: g.rng.NormFloat64() * g.cfg.VertexSigma,
			Z: g.rng.NormFloat64() * g.cfg.VertexSigma,
		}
		dir := g.direction()
		for _, c := range g.barrel.Digitize(origin, dir) {
			if g.rng.Float64() < g.cfg.Inefficiency {
				continue
			}
			if g.cfg.DeadLayer != 0 && c.Layer == g.cfg.DeadLayer && c.Section == klm.BKLMSectionForward {
				continue
			}
			rec.Hits = append(rec.Hits, g.crossingHit(c))
		}
		rec.Trajectories = append(rec.Trajectories, g.trajectory(origin, dir))
	}

	noise := g.poisson(g.cfg.NoiseHits)
	for i := 0; i < noise; i++ {
		h, err := g.noiseHit()
		if err != nil {
			return rec, fmt.Errorf("event %d: %w", n, err)
		}
		rec.Hits = append(rec.Hits, h)
	}
	return rec, nil
}

func (g *Generator) direction() r3.Vector {
	phi := 2 * math.Pi * g.rng.Float64()
	cosTheta := g.cfg.MaxCosTheta * (2*g.rng.Float64() - 1)
	sinTheta := math.Sqrt(1 - cosTheta*cosTheta)
	return r3.Vector{X: sinTheta * math.Cos(phi), Y: sinTheta * math.Sin(phi), Z: cosTheta}
}

func (g *Generator) crossingHit(c geometry.Crossing) eventio.HitRecord {
	return eventio.HitRecord{
		Subdetector: klm.BKLM.String(),
		Section:     int(c.Section),
		Sector:      int(c.Sector),
		Layer:       int(c.Layer),
		X:           c.Position.X,
		Y:           c.Position.Y,
		Z:           c.Position.Z,
		TimeNs:      g.rng.NormFloat64() * 2,
		PhiStripMin: c.PhiStrip,
		PhiStripMax: c.PhiStrip,
		ZStripMin:   c.ZStrip,
		ZStripMax:   c.ZStrip,
	}
}

func (g *Generator) noiseHit() (eventio.HitRecord, error) {
	section := klm.Section(g.rng.IntN(klm.BKLMSections))
	sector := klm.Sector(1 + g.rng.IntN(klm.BKLMSectors))
	layer := klm.Layer(1 + g.rng.IntN(klm.BKLMLayers))
	m, err := g.barrel.FindModule(section, sector, layer)
	if err != nil {
		return eventio.HitRecord{}, err
	}
	phi := m.PhiStripMin() + g.rng.IntN(m.PhiStripMax()-m.PhiStripMin()+1)
	z := m.ZStripMin() + g.rng.IntN(m.ZStripMax()-m.ZStripMin()+1)
	pos := m.LocalToGlobal(m.LocalPosition(phi, z))

	h := eventio.HitRecord{
		Subdetector: klm.BKLM.String(),
		Section:     int(section),
		Sector:      int(sector),
		Layer:       int(layer),
		X:           pos.X,
		Y:           pos.Y,
		Z:           pos.Z,
		TimeNs:      g.rng.NormFloat64() * 2,
		PhiStripMin: phi,
		PhiStripMax: phi,
		ZStripMin:   z,
		ZStripMax:   z,
	}
	if g.rng.Float64() < g.cfg.OutOfTimeFraction {
		h.OutOfTime = true
		h.TimeNs = 100 + 400*g.rng.Float64()
	}
	return h, nil
}

func (g *Generator) trajectory(origin, dir r3.Vector) eventio.TrajectoryRecord {
	g.trajID++
	first := eventio.StateRecord{
		Position: [3]float64{origin.X + 20*dir.X, origin.Y + 20*dir.Y, origin.Z + 20*dir.Z},
		Momentum: [3]float64{dir.X, dir.Y, dir.Z},
	}
	last := eventio.StateRecord{
		Position: [3]float64{origin.X + 120*dir.X, origin.Y + 120*dir.Y, origin.Z + 120*dir.Z},
		Momentum: first.Momentum,
	}
	return eventio.TrajectoryRecord{
		ID:        g.trajID,
		Fitted:    true,
		First:     first,
		Last:      last,
		InnerHits: 30 + g.rng.IntN(20),
	}
}

// poisson draws a count with the given mean from the generator stream.
func (g *Generator) poisson(mean float64) int {
	if mean <= 0 {
		return 0
	}
	return int(distuv.Poisson{Lambda: mean, Src: g.src}.Rand())
}
