// Package finder grows a seed pair of KLM hits into a line-consistent hit
// cluster.
package finder

import (
	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/fit"
)

// Config holds the acceptance thresholds of the finder.
type Config struct {
	SigmaCut      float64 // a pool hit is compatible below this residual/resolution ratio
	MinHits       int     // minimum hits on an accepted track, seeds included
	MaxHits       int     // maximum hits on an accepted track, seeds included
	MaxChi2PerNDF float64 // final fit quality cut
}

// DefaultConfig returns the finder defaults.
func DefaultConfig() Config {
	return Config{
		SigmaCut:      5,
		MinHits:       4,
		MaxHits:       62,
		MaxChi2PerNDF: 20,
	}
}

// Finder filters candidate pools against seed lines using a Fitter.
type Finder struct {
	cfg    Config
	fitter *fit.Fitter
}

// New returns a Finder that delegates fitting to fitter.
func New(cfg Config, fitter *fit.Fitter) *Finder {
	return &Finder{cfg: cfg, fitter: fitter}
}

// Fitter returns the fitter the finder uses.
func (f *Finder) Fitter() *fit.Fitter { return f.fitter }

// Filter starts from the line through the two seed hits and repeatedly
// adds the pool hit with the smallest residual significance, refitting
// after each addition, until no remaining hit is below SigmaCut. Hits are
// only ever added. The candidate is accepted when its hit count lies in
// [MinHits, MaxHits] and the final fit is valid with chi2/ndf at most
// MaxChi2PerNDF.
//
// On acceptance the returned hits are seeds first, then pool hits in the
// order they were added; the fitter's last result is the final fit.
func (f *Finder) Filter(seed [2]*klm.Hit2D, pool []*klm.Hit2D) ([]*klm.Hit2D, fit.Result, bool) {
	track := []*klm.Hit2D{seed[0], seed[1]}
	if r := f.fitter.Fit(track); !r.Valid {
		return nil, r, false
	}

	remaining := make([]*klm.Hit2D, len(pool))
	copy(remaining, pool)
	for len(remaining) > 0 {
		best := -1
		bestSigma := f.cfg.SigmaCut
		for i, h := range remaining {
			if _, _, sigma := f.fitter.DistanceToHit(h); sigma < bestSigma {
				best, bestSigma = i, sigma
			}
		}
		if best < 0 {
			break
		}
		h := remaining[best]
		remaining = append(remaining[:best], remaining[best+1:]...)

		candidate := append(track[:len(track):len(track)], h)
		if r := f.fitter.Fit(candidate); !r.Valid {
			f.fitter.Fit(track)
			continue
		}
		track = candidate
	}

	if len(track) < f.cfg.MinHits || len(track) > f.cfg.MaxHits {
		return nil, f.fitter.Last(), false
	}
	r := f.fitter.Fit(track)
	if !r.Valid {
		return nil, r, false
	}
	if r.NDF > 0 && r.Chi2/float64(r.NDF) > f.cfg.MaxChi2PerNDF {
		return nil, r, false
	}
	return track, r, true
}
