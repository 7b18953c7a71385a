package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/klmtrack/internal/klm/tracking"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("sqlite: not found")

// Run is a persisted processing run.
type Run struct {
	RunID            string          `json:"run_id"`
	RunNumber        int             `json:"run_number"`
	Mode             string          `json:"mode"`
	ConfigJSON       json.RawMessage `json:"config_json,omitempty"`
	TotalEvents      int             `json:"total_events"`
	EventsWithTracks int             `json:"events_with_tracks"`
	TotalTracks      int             `json:"total_tracks"`
	MatchedTracks    int             `json:"matched_tracks"`
	StartedAt        int64           `json:"started_at"`
	EndedAt          *int64          `json:"ended_at,omitempty"`
}

// RunStore persists runs.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Insert persists a new run. If RunID is empty, a UUID is generated.
func (s *RunStore) Insert(r *Run) error {
	if r.RunID == "" {
		r.RunID = uuid.New().String()
	}
	if r.StartedAt == 0 {
		r.StartedAt = time.Now().UnixNano()
	}
	var cfg interface{}
	if len(r.ConfigJSON) > 0 {
		cfg = string(r.ConfigJSON)
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO klm_runs (
				run_id, run_number, mode, config_json, total_events,
				events_with_tracks, total_tracks, matched_tracks, started_at, ended_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, r.RunNumber, r.Mode, cfg, r.TotalEvents,
			r.EventsWithTracks, r.TotalTracks, r.MatchedTracks, r.StartedAt, r.EndedAt,
		)
		return err
	})
}

// Finish records the end-of-run counters.
func (s *RunStore) Finish(runID string, sum tracking.RunSummary) error {
	ended := time.Now().UnixNano()
	return retryOnBusy(func() error {
		res, err := s.db.Exec(`
			UPDATE klm_runs
			SET total_events = ?, events_with_tracks = ?, total_tracks = ?,
			    matched_tracks = ?, ended_at = ?
			WHERE run_id = ?`,
			sum.TotalEvents, sum.EventsWithTracks, sum.TotalTracks, sum.MatchedTracks, ended, runID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("finish run %s: %w", runID, ErrNotFound)
		}
		return nil
	})
}

const runColumns = `run_id, run_number, mode, config_json, total_events,
	events_with_tracks, total_tracks, matched_tracks, started_at, ended_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var cfg sql.NullString
	var ended sql.NullInt64
	if err := row.Scan(&r.RunID, &r.RunNumber, &r.Mode, &cfg, &r.TotalEvents,
		&r.EventsWithTracks, &r.TotalTracks, &r.MatchedTracks, &r.StartedAt, &ended); err != nil {
		return nil, err
	}
	if cfg.Valid {
		r.ConfigJSON = json.RawMessage(cfg.String)
	}
	if ended.Valid {
		v := ended.Int64
		r.EndedAt = &v
	}
	return &r, nil
}

// Get returns a run by ID.
func (s *RunStore) Get(runID string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM klm_runs WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// List returns all runs ordered by start time.
func (s *RunStore) List() ([]*Run, error) {
	rows, err := s.db.Query(`SELECT ` + runColumns + ` FROM klm_runs ORDER BY started_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
