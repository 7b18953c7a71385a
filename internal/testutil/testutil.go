// Package testutil provides shared test utilities and fixtures.
//
// This package centralises hit and track builders used by the tracking,
// storage and report tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/klmtrack/internal/db"
	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/geometry"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Hit builds a hit with validated indices.
func Hit(t *testing.T, sub klm.Subdetector, section klm.Section, sector klm.Sector, layer klm.Layer, pos r3.Vector) *klm.Hit2D {
	t.Helper()
	h, err := klm.NewHit2D(sub, section, sector, layer, pos)
	AssertNoError(t, err)
	return h
}

// BarrelHits digitises a straight line through the barrel into hits with
// single-strip spans, ordered by sector then layer.
func BarrelHits(t *testing.T, b *geometry.Barrel, origin, dir r3.Vector) []*klm.Hit2D {
	t.Helper()
	var hits []*klm.Hit2D
	for _, c := range b.Digitize(origin, dir) {
		h := Hit(t, klm.BKLM, c.Section, c.Sector, c.Layer, c.Position)
		h.PhiStripMin, h.PhiStripMax = c.PhiStrip, c.PhiStrip
		h.ZStripMin, h.ZStripMax = c.ZStrip, c.ZStrip
		hits = append(hits, h)
	}
	return hits
}

// DropLayers returns hits without those in the given layers.
func DropLayers(hits []*klm.Hit2D, layers ...klm.Layer) []*klm.Hit2D {
	skip := make(map[klm.Layer]bool, len(layers))
	for _, l := range layers {
		skip[l] = true
	}
	out := make([]*klm.Hit2D, 0, len(hits))
	for _, h := range hits {
		if !skip[h.Layer] {
			out = append(out, h)
		}
	}
	return out
}

// NewTestDB creates a migrated database in a temporary directory. It is
// closed when the test ends.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	AssertNoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}
