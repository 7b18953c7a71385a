package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/klmtrack/internal/klm"
)

// TrackRecord is a persisted track.
type TrackRecord struct {
	TrackID          string
	RunID            string
	EventNumber      int
	TrackIndex       int
	Params           [4]float64
	ParamErr         [4]float64
	Chi2             float64
	NDF              int
	NumHit           int
	Valid            bool
	Good             bool
	NBKLM            int
	NEKLM            int
	MatchedRecoTrack int
}

// TrackHitRecord is one hit relation of a persisted track.
type TrackHitRecord struct {
	Order       int
	HitIndex    int
	Subdetector string
	Section     int
	Sector      int
	Layer       int
	X, Y, Z     float64
}

// TrackStore persists tracks and their hit relations.
type TrackStore struct {
	db *sql.DB
}

// NewTrackStore creates a new TrackStore.
func NewTrackStore(db *sql.DB) *TrackStore {
	return &TrackStore{db: db}
}

// InsertEvent persists the tracks of one event with their hits in a
// single transaction and returns the generated track IDs.
func (s *TrackStore) InsertEvent(runID string, event int, tracks []*klm.Track) ([]string, error) {
	if len(tracks) == 0 {
		return nil, nil
	}
	ids := make([]string, len(tracks))
	for i := range ids {
		ids[i] = uuid.New().String()
	}
	err := retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for i, t := range tracks {
			e := t.ParamErr()
			if _, err := tx.Exec(`
				INSERT INTO klm_tracks (
					track_id, run_id, event_number, track_index,
					p0, p1, p2, p3, p0_err, p1_err, p2_err, p3_err,
					chi2, ndf, num_hit, valid, good, n_bklm, n_eklm, matched_reco_track
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				ids[i], runID, event, i,
				t.Params[0], t.Params[1], t.Params[2], t.Params[3], e[0], e[1], e[2], e[3],
				t.Chi2, t.NDF, t.NumHit, t.Valid, t.Good, t.NBKLM, t.NEKLM, t.MatchedRecoTrack,
			); err != nil {
				return fmt.Errorf("insert track: %w", err)
			}
			for j, h := range t.Hits {
				if _, err := tx.Exec(`
					INSERT INTO klm_track_hits (
						track_id, hit_order, hit_index, subdetector, section, sector, layer, x, y, z
					) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					ids[i], j, h.Index, h.Subdetector.String(), int(h.Section), int(h.Sector), int(h.Layer),
					h.Position.X, h.Position.Y, h.Position.Z,
				); err != nil {
					return fmt.Errorf("insert track hit: %w", err)
				}
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListByEvent returns the tracks of one event in insertion order.
func (s *TrackStore) ListByEvent(runID string, event int) ([]*TrackRecord, error) {
	rows, err := s.db.Query(`
		SELECT track_id, run_id, event_number, track_index,
		       p0, p1, p2, p3, p0_err, p1_err, p2_err, p3_err,
		       chi2, ndf, num_hit, valid, good, n_bklm, n_eklm, matched_reco_track
		FROM klm_tracks
		WHERE run_id = ? AND event_number = ?
		ORDER BY track_index ASC`, runID, event)
	if err != nil {
		return nil, fmt.Errorf("query tracks: %w", err)
	}
	defer rows.Close()

	var out []*TrackRecord
	for rows.Next() {
		var r TrackRecord
		if err := rows.Scan(&r.TrackID, &r.RunID, &r.EventNumber, &r.TrackIndex,
			&r.Params[0], &r.Params[1], &r.Params[2], &r.Params[3],
			&r.ParamErr[0], &r.ParamErr[1], &r.ParamErr[2], &r.ParamErr[3],
			&r.Chi2, &r.NDF, &r.NumHit, &r.Valid, &r.Good, &r.NBKLM, &r.NEKLM, &r.MatchedRecoTrack,
		); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Hits returns the hit relations of a track in layer order.
func (s *TrackStore) Hits(trackID string) ([]TrackHitRecord, error) {
	rows, err := s.db.Query(`
		SELECT hit_order, hit_index, subdetector, section, sector, layer, x, y, z
		FROM klm_track_hits
		WHERE track_id = ?
		ORDER BY hit_order ASC`, trackID)
	if err != nil {
		return nil, fmt.Errorf("query track hits: %w", err)
	}
	defer rows.Close()

	var out []TrackHitRecord
	for rows.Next() {
		var h TrackHitRecord
		if err := rows.Scan(&h.Order, &h.HitIndex, &h.Subdetector, &h.Section, &h.Sector, &h.Layer,
			&h.X, &h.Y, &h.Z); err != nil {
			return nil, fmt.Errorf("scan track hit: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// CountByRun returns the number of tracks stored for a run.
func (s *TrackStore) CountByRun(runID string) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM klm_tracks WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tracks: %w", err)
	}
	return n, nil
}
