package klm

import (
	"fmt"
	"sort"

	"github.com/golang/geo/r3"
)

// Hit2D is a two-dimensional KLM hit: the crossing of two orthogonal strip
// readouts in one layer. Positions are global, in centimetres.
type Hit2D struct {
	// Index is the position of the hit in its HitStore.
	Index int

	Subdetector Subdetector
	Section     Section
	Sector      Sector
	Layer       Layer

	Position  r3.Vector
	Time      float64 // ns
	OutOfTime bool

	// Strip spans. The barrel reads phi/z strips, the endcap x/y strips.
	PhiStripMin, PhiStripMax int
	ZStripMin, ZStripMax     int
	XStripMin, XStripMax     int
	YStripMin, YStripMax     int

	onTrack bool
}

// NewHit2D builds a hit after validating its geometry indices.
func NewHit2D(sub Subdetector, section Section, sector Sector, layer Layer, pos r3.Vector) (*Hit2D, error) {
	if err := ValidateIndices(sub, section, sector, layer); err != nil {
		return nil, err
	}
	return &Hit2D{
		Index:       -1,
		Subdetector: sub,
		Section:     section,
		Sector:      sector,
		Layer:       layer,
		Position:    pos,
	}, nil
}

// IsOnTrack reports whether the hit was claimed by an accepted track in
// the current finding pass.
func (h *Hit2D) IsOnTrack() bool { return h.onTrack }

// SetOnTrack marks or clears the on-track flag.
func (h *Hit2D) SetOnTrack(v bool) { h.onTrack = v }

// SameSector reports whether two hits share subdetector, section and sector.
func (h *Hit2D) SameSector(o *Hit2D) bool {
	return h.Subdetector == o.Subdetector && h.Section == o.Section && h.Sector == o.Sector
}

// InSector reports whether the hit lies in the given section and sector.
func (h *Hit2D) InSector(section Section, sector Sector) bool {
	return h.Section == section && h.Sector == sector
}

// InLayer reports whether the hit lies in the given section, sector and layer.
func (h *Hit2D) InLayer(section Section, sector Sector, layer Layer) bool {
	return h.InSector(section, sector) && h.Layer == layer
}

func (h *Hit2D) String() string {
	return fmt.Sprintf("%s s%d/sec%d/l%d (%.1f, %.1f, %.1f)",
		h.Subdetector, h.Section, h.Sector, h.Layer, h.Position.X, h.Position.Y, h.Position.Z)
}

// SortByLayer orders hits by ascending layer. Hits on the same layer keep
// their relative order.
func SortByLayer(hits []*Hit2D) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Layer < hits[j].Layer
	})
}

// HitStore is the ordered per-event collection of hits.
type HitStore struct {
	hits []*Hit2D
}

// NewHitStore wraps hits in store order and assigns their indices.
func NewHitStore(hits ...*Hit2D) *HitStore {
	s := &HitStore{hits: make([]*Hit2D, 0, len(hits))}
	for _, h := range hits {
		s.Add(h)
	}
	return s
}

// Add appends a hit and assigns its index.
func (s *HitStore) Add(h *Hit2D) {
	h.Index = len(s.hits)
	s.hits = append(s.hits, h)
}

// Len returns the number of hits.
func (s *HitStore) Len() int { return len(s.hits) }

// At returns the i-th hit in store order.
func (s *HitStore) At(i int) *Hit2D { return s.hits[i] }

// Hits returns the hits in store order. The slice must not be modified.
func (s *HitStore) Hits() []*Hit2D { return s.hits }

// ResetOnTrack clears the on-track flag of every hit in the subdetector.
// A zero Subdetector clears all hits.
func (s *HitStore) ResetOnTrack(sub Subdetector) {
	for _, h := range s.hits {
		if sub != 0 && h.Subdetector != sub {
			continue
		}
		h.onTrack = false
	}
}
