// Package sqlite persists benchmark runs and per-case registration results.
// One Run row per benchmark invocation, one CaseResult row per test case;
// the tuning JSON stored with a run is sufficient to re-execute it.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/scanmatch.report/internal/monitoring"
)

// DB wraps the sql handle together with the stores built on it.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the results database at path and brings
// the schema up to date from migrationsDir.
func Open(path, migrationsDir string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single writer keeps busy-retries rare; the benchmark writes from one
	// goroutine anyway.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.migrateUp(migrationsDir); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrateUp(migrationsDir string) error {
	absPath, err := filepath.Abs(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", absPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Do not close m: that would close the underlying connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// retryOnBusy retries fn a few times when sqlite reports the database as
// busy or locked. Writes from the benchmark are serialised, so contention
// only appears when an external reader holds the file.
func retryOnBusy(fn func() error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		msg := err.Error()
		if !strings.Contains(msg, "database is locked") && !strings.Contains(msg, "database is busy") {
			return err
		}
		monitoring.Logf("sqlite busy (attempt %d/%d): %v", i+1, attempts, err)
		time.Sleep(time.Duration(i+1) * 50 * time.Millisecond)
	}
	return err
}
