package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/banshee-data/klmtrack/internal/klm"
	"github.com/banshee-data/klmtrack/internal/klm/efficiency"
)

// EfficiencyStore persists finalised efficiencies of a run.
type EfficiencyStore struct {
	db *sql.DB
}

// NewEfficiencyStore creates a new EfficiencyStore.
func NewEfficiencyStore(db *sql.DB) *EfficiencyStore {
	return &EfficiencyStore{db: db}
}

// InsertSummary stores every layer efficiency and the map bins with a
// non-zero total, replacing earlier values for the run.
func (s *EfficiencyStore) InsertSummary(runID string, sum efficiency.Summary) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, l := range sum.Layers {
			if _, err := tx.Exec(`
				INSERT OR REPLACE INTO klm_layer_efficiency (
					run_id, section, sector, layer, pass, total, efficiency, error, ci_low, ci_high
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, int(l.Section), int(l.Sector), int(l.Layer), l.Pass, l.Total,
				l.Eff, l.Err, l.Low, l.High,
			); err != nil {
				return fmt.Errorf("insert layer efficiency: %w", err)
			}
		}
		for _, m := range []efficiency.EfficiencyMap{sum.YX, sum.YZ} {
			for _, b := range m.Bins {
				if b.Total <= 0 {
					continue
				}
				if _, err := tx.Exec(`
					INSERT OR REPLACE INTO klm_map_efficiency (
						run_id, map_name, ix, iy, x_center, y_center, pass, total, efficiency, error
					) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					runID, m.Name, b.IX, b.IY, b.X, b.Y, b.Pass, b.Total, b.Eff, b.Err,
				); err != nil {
					return fmt.Errorf("insert map bin: %w", err)
				}
			}
		}
		return tx.Commit()
	})
}

// LayerEfficiencies returns the layer efficiencies of a run ordered by
// section, sector and layer.
func (s *EfficiencyStore) LayerEfficiencies(runID string) ([]efficiency.LayerEfficiency, error) {
	rows, err := s.db.Query(`
		SELECT section, sector, layer, pass, total, efficiency, error, ci_low, ci_high
		FROM klm_layer_efficiency
		WHERE run_id = ?
		ORDER BY section, sector, layer`, runID)
	if err != nil {
		return nil, fmt.Errorf("query layer efficiency: %w", err)
	}
	defer rows.Close()

	var out []efficiency.LayerEfficiency
	for rows.Next() {
		var l efficiency.LayerEfficiency
		var section, sector, layer int
		if err := rows.Scan(&section, &sector, &layer, &l.Pass, &l.Total, &l.Eff, &l.Err, &l.Low, &l.High); err != nil {
			return nil, fmt.Errorf("scan layer efficiency: %w", err)
		}
		l.Section, l.Sector, l.Layer = klm.Section(section), klm.Sector(sector), klm.Layer(layer)
		out = append(out, l)
	}
	return out, rows.Err()
}

// MapBins returns the stored bins of a named map.
func (s *EfficiencyStore) MapBins(runID, name string) ([]efficiency.MapBin, error) {
	rows, err := s.db.Query(`
		SELECT ix, iy, x_center, y_center, pass, total, efficiency, error
		FROM klm_map_efficiency
		WHERE run_id = ? AND map_name = ?
		ORDER BY iy, ix`, runID, name)
	if err != nil {
		return nil, fmt.Errorf("query map bins: %w", err)
	}
	defer rows.Close()

	var out []efficiency.MapBin
	for rows.Next() {
		var b efficiency.MapBin
		if err := rows.Scan(&b.IX, &b.IY, &b.X, &b.Y, &b.Pass, &b.Total, &b.Eff, &b.Err); err != nil {
			return nil, fmt.Errorf("scan map bin: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
