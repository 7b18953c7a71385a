package db

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/banshee-data/klmtrack/internal/klm"
)

// MigrateUp brings the schema to the newest embedded migration. A database
// left dirty by an interrupted migration, or stamped by a newer build with
// a version this one does not know, is refused rather than touched.
func (db *DB) MigrateUp() error {
	latest, err := LatestMigrationVersion()
	if err != nil {
		return err
	}
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close db.DB.

	current, dirty, err := migrateVersion(m)
	if err != nil {
		return err
	}
	switch {
	case dirty:
		return fmt.Errorf("database schema is dirty at version %d", current)
	case current > latest:
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, latest)
	case current == latest:
		return nil
	}

	klm.Opsf("db: migrating schema from version %d to %d", current, latest)
	if err := m.Migrate(latest); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration to version %d failed: %w", latest, err)
	}
	return nil
}

// MigrateVersion returns the applied schema version and dirty state. An
// unmigrated database is at version 0.
func (db *DB) MigrateVersion() (uint, bool, error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	return migrateVersion(m)
}

func migrateVersion(m *migrate.Migrate) (uint, bool, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	source, err := iofs.New(MigrationsFS(), ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations source: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateLogger sends golang-migrate output to the KLM streams: progress
// lines go to diag, and verbose output is on when diag is enabled.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	klm.Diagf("db: "+strings.TrimSpace(format), v...)
}

func (migrateLogger) Verbose() bool { return klm.LogEnabled(klm.LogDiag) }

// LatestMigrationVersion returns the highest version among the embedded
// up migrations, named NNNNNN_description.up.sql.
func LatestMigrationVersion() (uint, error) {
	names, err := fs.Glob(MigrationsFS(), "*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}
	var latest uint
	for _, name := range names {
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("migration %s: bad version prefix: %w", name, err)
		}
		latest = max(latest, uint(v))
	}
	if latest == 0 {
		return 0, errors.New("no migration files found")
	}
	return latest, nil
}
