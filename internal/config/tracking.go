package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tracking defaults file.
const DefaultConfigPath = "config/tracking.defaults.json"

// TrackingConfig represents the options of the KLM standalone tracking and
// efficiency study. Omitted fields fall back to the defaults returned by
// the Get* methods.
type TrackingConfig struct {
	MatchToRecoTrack *bool    `json:"match_to_reco_track,omitempty"`
	MaxAngleRequired *float64 `json:"max_angle_required,omitempty"` // degrees
	MaxDistance      *float64 `json:"max_distance,omitempty"`       // cm
	MaxSigma         *float64 `json:"max_sigma,omitempty"`
	MinHitList       *int     `json:"min_hit_list,omitempty"`
	MaxHitList       *int     `json:"max_hit_list,omitempty"`
	MinNLayer        *int     `json:"min_n_layer,omitempty"`
	StudyEffiMode    *bool    `json:"study_effi_mode,omitempty"`
	OutputName       *string  `json:"output_name,omitempty"`

	// Finder/fitter params (optional)
	SeedSigmaCut         *float64 `json:"seed_sigma_cut,omitempty"`
	MinHitsOnTrack       *int     `json:"min_hits_on_track,omitempty"`
	MaxChi2PerNDF        *float64 `json:"max_chi2_per_ndf,omitempty"`
	GoodMinHits          *int     `json:"good_min_hits,omitempty"`
	GoodMaxChi2PerNDF    *float64 `json:"good_max_chi2_per_ndf,omitempty"`
	CrossSubdetectorPool *bool    `json:"cross_subdetector_pool,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTrackingConfig returns a TrackingConfig with all fields set to nil.
func EmptyTrackingConfig() *TrackingConfig {
	return &TrackingConfig{}
}

// DefaultTrackingConfig returns a TrackingConfig with every field set to
// its default value.
func DefaultTrackingConfig() *TrackingConfig {
	e := EmptyTrackingConfig()
	return &TrackingConfig{
		MatchToRecoTrack:     ptrBool(e.GetMatchToRecoTrack()),
		MaxAngleRequired:     ptrFloat64(e.GetMaxAngleRequired()),
		MaxDistance:          ptrFloat64(e.GetMaxDistance()),
		MaxSigma:             ptrFloat64(e.GetMaxSigma()),
		MinHitList:           ptrInt(e.GetMinHitList()),
		MaxHitList:           ptrInt(e.GetMaxHitList()),
		MinNLayer:            ptrInt(e.GetMinNLayer()),
		StudyEffiMode:        ptrBool(e.GetStudyEffiMode()),
		OutputName:           ptrString(e.GetOutputName()),
		SeedSigmaCut:         ptrFloat64(e.GetSeedSigmaCut()),
		MinHitsOnTrack:       ptrInt(e.GetMinHitsOnTrack()),
		MaxChi2PerNDF:        ptrFloat64(e.GetMaxChi2PerNDF()),
		GoodMinHits:          ptrInt(e.GetGoodMinHits()),
		GoodMaxChi2PerNDF:    ptrFloat64(e.GetGoodMaxChi2PerNDF()),
		CrossSubdetectorPool: ptrBool(e.GetCrossSubdetectorPool()),
	}
}

// LoadTrackingConfig loads a TrackingConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadTrackingConfig(path string) (*TrackingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTrackingConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TrackingConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/klm/tracking/
		"../../../../" + DefaultConfigPath, // from internal/klm/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTrackingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate rejects values no run could use.
func (c *TrackingConfig) Validate() error {
	if c.MaxDistance != nil && *c.MaxDistance < 0 {
		return fmt.Errorf("max_distance must be non-negative, got %f", *c.MaxDistance)
	}
	if c.MinHitList != nil && *c.MinHitList < 0 {
		return fmt.Errorf("min_hit_list must be non-negative, got %d", *c.MinHitList)
	}
	if c.MaxHitList != nil && *c.MaxHitList < 0 {
		return fmt.Errorf("max_hit_list must be non-negative, got %d", *c.MaxHitList)
	}
	if c.SeedSigmaCut != nil && *c.SeedSigmaCut <= 0 {
		return fmt.Errorf("seed_sigma_cut must be positive, got %f", *c.SeedSigmaCut)
	}
	if c.OutputName != nil && *c.OutputName == "" {
		return fmt.Errorf("output_name must not be empty")
	}
	return nil
}

// Normalize replaces inconsistent values with defaults and returns a
// warning for each substitution. It never fails.
func (c *TrackingConfig) Normalize() []string {
	var warnings []string
	def := EmptyTrackingConfig()

	if c.GetMaxAngleRequired() <= 0 {
		warnings = append(warnings, fmt.Sprintf("max_angle_required %g is not positive, using %g",
			c.GetMaxAngleRequired(), def.GetMaxAngleRequired()))
		c.MaxAngleRequired = ptrFloat64(def.GetMaxAngleRequired())
	}
	if c.GetMaxSigma() <= 0 {
		warnings = append(warnings, fmt.Sprintf("max_sigma %g is not positive, using %g",
			c.GetMaxSigma(), def.GetMaxSigma()))
		c.MaxSigma = ptrFloat64(def.GetMaxSigma())
	}
	if c.GetMinHitList() > c.GetMaxHitList() {
		warnings = append(warnings, fmt.Sprintf("min_hit_list %d exceeds max_hit_list %d, using %d..%d",
			c.GetMinHitList(), c.GetMaxHitList(), def.GetMinHitList(), def.GetMaxHitList()))
		c.MinHitList = ptrInt(def.GetMinHitList())
		c.MaxHitList = ptrInt(def.GetMaxHitList())
	}
	if n := c.GetMinNLayer(); n < 1 || n > 15 {
		warnings = append(warnings, fmt.Sprintf("min_n_layer %d outside 1..15, using %d", n, def.GetMinNLayer()))
		c.MinNLayer = ptrInt(def.GetMinNLayer())
	}
	if c.GetMinHitsOnTrack() < 2 {
		warnings = append(warnings, fmt.Sprintf("min_hits_on_track %d is below the seed pair, using %d",
			c.GetMinHitsOnTrack(), def.GetMinHitsOnTrack()))
		c.MinHitsOnTrack = ptrInt(def.GetMinHitsOnTrack())
	}
	return warnings
}

// MaxHitsOnTrack is the largest accepted track: the largest pool plus the seed pair.
func (c *TrackingConfig) MaxHitsOnTrack() int {
	return c.GetMaxHitList() + 2
}

// GetMatchToRecoTrack returns the match_to_reco_track value or the default.
func (c *TrackingConfig) GetMatchToRecoTrack() bool {
	if c.MatchToRecoTrack == nil {
		return false
	}
	return *c.MatchToRecoTrack
}

// GetMaxAngleRequired returns the max_angle_required value (degrees) or the default.
func (c *TrackingConfig) GetMaxAngleRequired() float64 {
	if c.MaxAngleRequired == nil {
		return 10.0
	}
	return *c.MaxAngleRequired
}

// GetMaxDistance returns the max_distance value (cm) or the default.
func (c *TrackingConfig) GetMaxDistance() float64 {
	if c.MaxDistance == nil {
		return 10.0
	}
	return *c.MaxDistance
}

// GetMaxSigma returns the max_sigma value or the default.
func (c *TrackingConfig) GetMaxSigma() float64 {
	if c.MaxSigma == nil {
		return 5.0
	}
	return *c.MaxSigma
}

// GetMinHitList returns the min_hit_list value or the default.
func (c *TrackingConfig) GetMinHitList() int {
	if c.MinHitList == nil {
		return 2
	}
	return *c.MinHitList
}

// GetMaxHitList returns the max_hit_list value or the default.
func (c *TrackingConfig) GetMaxHitList() int {
	if c.MaxHitList == nil {
		return 60
	}
	return *c.MaxHitList
}

// GetMinNLayer returns the min_n_layer value or the default.
func (c *TrackingConfig) GetMinNLayer() int {
	if c.MinNLayer == nil {
		return 4
	}
	return *c.MinNLayer
}

// GetStudyEffiMode returns the study_effi_mode value or the default.
func (c *TrackingConfig) GetStudyEffiMode() bool {
	if c.StudyEffiMode == nil {
		return false
	}
	return *c.StudyEffiMode
}

// GetOutputName returns the output_name value or the default.
func (c *TrackingConfig) GetOutputName() string {
	if c.OutputName == nil || *c.OutputName == "" {
		return "standaloneKLMEffi.db"
	}
	return *c.OutputName
}

// GetSeedSigmaCut returns the seed_sigma_cut value or the default.
func (c *TrackingConfig) GetSeedSigmaCut() float64 {
	if c.SeedSigmaCut == nil {
		return 5.0
	}
	return *c.SeedSigmaCut
}

// GetMinHitsOnTrack returns the min_hits_on_track value or the default.
func (c *TrackingConfig) GetMinHitsOnTrack() int {
	if c.MinHitsOnTrack == nil {
		return 4
	}
	return *c.MinHitsOnTrack
}

// GetMaxChi2PerNDF returns the max_chi2_per_ndf value or the default.
func (c *TrackingConfig) GetMaxChi2PerNDF() float64 {
	if c.MaxChi2PerNDF == nil {
		return 20.0
	}
	return *c.MaxChi2PerNDF
}

// GetGoodMinHits returns the good_min_hits value or the default.
func (c *TrackingConfig) GetGoodMinHits() int {
	if c.GoodMinHits == nil {
		return 5
	}
	return *c.GoodMinHits
}

// GetGoodMaxChi2PerNDF returns the good_max_chi2_per_ndf value or the default.
func (c *TrackingConfig) GetGoodMaxChi2PerNDF() float64 {
	if c.GoodMaxChi2PerNDF == nil {
		return 5.0
	}
	return *c.GoodMaxChi2PerNDF
}

// GetCrossSubdetectorPool returns the cross_subdetector_pool value or the default.
func (c *TrackingConfig) GetCrossSubdetectorPool() bool {
	if c.CrossSubdetectorPool == nil {
		return false
	}
	return *c.CrossSubdetectorPool
}
