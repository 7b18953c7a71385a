package tracking

import (
	"github.com/banshee-data/klmtrack/internal/config"
	"github.com/banshee-data/klmtrack/internal/klm/efficiency"
	"github.com/banshee-data/klmtrack/internal/klm/finder"
	"github.com/banshee-data/klmtrack/internal/klm/fit"
)

// Config holds the driver options and the options of its collaborators.
type Config struct {
	MatchToRecoTrack bool
	MaxAngleRequired float64 // degrees
	MinHitList       int     // pool size bounds, seeds excluded
	MaxHitList       int
	StudyEffiMode    bool
	// CrossSubdetectorPool lets mode 0 pools take hits from the other subdetector.
	CrossSubdetectorPool bool

	Finder     finder.Config
	Fit        fit.Config
	Efficiency efficiency.Config
}

// DefaultConfig returns the driver defaults.
func DefaultConfig() Config {
	return ConfigFromTracking(config.EmptyTrackingConfig())
}

// ConfigFromTracking maps a loaded tracking configuration onto the driver.
// The configuration should already be normalised.
func ConfigFromTracking(c *config.TrackingConfig) Config {
	fitCfg := fit.DefaultConfig()
	fitCfg.GoodMinHits = c.GetGoodMinHits()
	fitCfg.GoodMaxChi2PerNDF = c.GetGoodMaxChi2PerNDF()

	return Config{
		MatchToRecoTrack:     c.GetMatchToRecoTrack(),
		MaxAngleRequired:     c.GetMaxAngleRequired(),
		MinHitList:           c.GetMinHitList(),
		MaxHitList:           c.GetMaxHitList(),
		StudyEffiMode:        c.GetStudyEffiMode(),
		CrossSubdetectorPool: c.GetCrossSubdetectorPool(),
		Finder: finder.Config{
			SigmaCut:      c.GetSeedSigmaCut(),
			MinHits:       c.GetMinHitsOnTrack(),
			MaxHits:       c.MaxHitsOnTrack(),
			MaxChi2PerNDF: c.GetMaxChi2PerNDF(),
		},
		Fit: fitCfg,
		Efficiency: efficiency.Config{
			MaxDistance: c.GetMaxDistance(),
			MaxSigma:    c.GetMaxSigma(),
			MinNLayer:   c.GetMinNLayer(),
		},
	}
}
