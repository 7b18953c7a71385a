// Package sqlite contains SQLite repository implementations for KLM
// tracking results.
//
// All database reads and writes for runs, tracks and efficiencies belong
// here rather than in the tracking packages, which stay free of SQL.
package sqlite
