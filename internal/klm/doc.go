// Package klm owns the data model shared by the KLM standalone tracking
// packages.
//
// Responsibilities: geometry index types with validated ranges, the
// per-event hit store (Hit2D), fitted straight-line tracks (Track) and the
// leveled log streams used by the tracking, fitting and efficiency code.
// Key types: Hit2D, HitStore, Track.
//
// Dependency rule: klm depends on no other internal/klm package. Geometry,
// fitting, finding, matching and efficiency live in sub-packages.
// No SQL/database code is allowed in this package.
package klm
