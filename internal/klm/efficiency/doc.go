// Package efficiency measures per-layer KLM detection efficiency with
// standalone tracks.
//
// Tracks are found with one layer held out. Each track is projected onto
// the held-out module; tracks that land inside the module's active area
// enter the denominator, and those with a compatible unused hit in that
// layer also enter the numerator. Counts are accumulated into go-hep
// histograms per (section, sector) and in two global projections, and
// turned into efficiencies at the end of the run.
package efficiency
