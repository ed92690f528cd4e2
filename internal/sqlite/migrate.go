// This file implements opening, probing and migrating the store on attach.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// columnMigration adds one column introduced by a later release. backfill,
// when set, populates the column from existing data and must only touch rows
// that still need it so that re-running it is a no-op.
type columnMigration struct {
	table    string
	column   string
	decl     string
	backfill func(db *sql.DB, now time.Time) (int64, error)
}

func (m columnMigration) name() string {
	return m.table + "." + m.column
}

// columnMigrations is the ordered, additive migration list. Columns are
// never dropped or renamed in place.
var columnMigrations = []columnMigration{
	{table: "saved_samples", column: "quality_check", decl: "TEXT"},
	{table: "saved_samples", column: "received_by", decl: "TEXT"},
	{table: "saved_samples", column: "external_procedure_number", decl: "TEXT"},
	{table: "samples", column: "external_procedure_number", decl: "TEXT", backfill: backfillSampleExternalNumbers},
	{table: "test_results", column: "confirmatory_test", decl: "TEXT"},
	{table: "test_results", column: "specialists", decl: "TEXT"},
	{table: "test_results", column: "is_retest", decl: "INTEGER NOT NULL DEFAULT 0"},
	{table: "test_results", column: "approval_status", decl: "TEXT NOT NULL DEFAULT 'pending'"},
	{table: "test_results", column: "reviewed_by", decl: "TEXT"},
	{table: "test_results", column: "review_notes", decl: "TEXT"},
	{table: "test_results", column: "reviewed_at", decl: "TEXT"},
	{table: "test_results", column: "external_procedure_number", decl: "TEXT", backfill: backfillResultExternalNumbers},
	{table: "vet_procedures", column: "is_urgent", decl: "INTEGER NOT NULL DEFAULT 0"},
	{table: "vet_procedures", column: "stage_status", decl: "TEXT", backfill: upgradeLegacyStagePayloads},
	{table: "alerts", column: "is_dismissed", decl: "INTEGER NOT NULL DEFAULT 0"},
}

// busyTimeoutMillis bounds how long attach waits on a store locked by
// another process.
var busyTimeoutMillis = 5000

// openStore opens the database at path. An existing file that fails the
// canary probe with a corruption-class error is closed, deleted and
// recreated; the data loss is logged. Any other failure, such as a store
// locked by another process, is returned and the file is left alone.
func openStore(path string, log zerolog.Logger) (*sql.DB, bool, error) {
	_, statErr := os.Stat(path)
	existed := statErr == nil

	db, err := openDB(path)
	if err == nil {
		if !existed {
			return db, false, nil
		}
		if err = probeCanary(db); err == nil {
			return db, false, nil
		}
		db.Close()
	}
	if !existed || !isCorrupt(err) {
		return nil, false, err
	}

	log.Warn().Err(err).Str("path", path).
		Msg("store failed integrity probe, discarding it and creating a new one")
	if err := removeStoreFiles(path); err != nil {
		return nil, false, fmt.Errorf("removing corrupt store: %w", err)
	}
	db, err = openDB(path)
	if err != nil {
		return nil, false, err
	}
	return db, true, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, busyTimeoutMillis))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// One writer, one connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}
	return db, nil
}

func probeCanary(db *sql.DB) error {
	for _, q := range canaryProbes {
		rows, err := db.Query(q)
		if err != nil {
			return fmt.Errorf("canary probe: %w", err)
		}
		rows.Close()
	}
	return nil
}

// isCorrupt reports whether err means the file is not a usable vetlab
// store: not a database, damaged, or missing a canary table or column.
func isCorrupt(err error) bool {
	var serr *sqlitedrv.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() & 0xff {
	case sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT:
		return true
	case sqlite3.SQLITE_ERROR:
		msg := serr.Error()
		return strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column")
	}
	return false
}

// removeStoreFiles deletes the database and its journal siblings.
func removeStoreFiles(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// createSchema creates every table that does not exist yet.
func createSchema(db *sql.DB) error {
	for _, ddl := range schemaDDL {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// createIndexes creates the secondary indexes. A failure is returned as a
// step so that attach can continue on a store with unexpected leftovers.
func createIndexes(db *sql.DB) types.MigrationStep {
	step := types.MigrationStep{Name: "indexes"}
	for _, ddl := range indexDDL {
		if _, err := db.Exec(ddl); err != nil {
			step.Error = err.Error()
			return step
		}
	}
	return step
}

// runMigrations applies every column migration. Each step is isolated: a
// failure is logged and recorded, and later steps still run.
func runMigrations(db *sql.DB, log zerolog.Logger, now time.Time) []types.MigrationStep {
	steps := make([]types.MigrationStep, 0, len(columnMigrations)+1)
	for _, m := range columnMigrations {
		step := applyColumnMigration(db, m, now)
		if step.Error != "" {
			log.Error().Str("step", step.Name).Str("error", step.Error).Msg("migration step failed")
		} else if step.Applied || step.Rows > 0 {
			log.Info().Str("step", step.Name).Bool("added", step.Applied).Int64("rows", step.Rows).Msg("migration step applied")
		}
		steps = append(steps, step)
	}
	steps = append(steps, createIndexes(db))
	return steps
}

func applyColumnMigration(db *sql.DB, m columnMigration, now time.Time) types.MigrationStep {
	step := types.MigrationStep{Name: m.name()}

	has, err := hasColumn(db, m.table, m.column)
	if err != nil {
		step.Error = err.Error()
		return step
	}
	if !has {
		if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, m.decl)); err != nil {
			step.Error = fmt.Sprintf("adding column: %v", err)
			return step
		}
		step.Applied = true
	}
	if m.backfill != nil {
		n, err := m.backfill(db, now)
		if err != nil {
			step.Error = fmt.Sprintf("backfill: %v", err)
			return step
		}
		step.Rows = n
	}
	return step
}

// hasColumn reports whether table has column, using PRAGMA table_info.
func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("scanning columns of %s: %w", table, err)
		}
		if strings.EqualFold(name, column) {
			found = true
		}
	}
	return found, rows.Err()
}

// backfillSampleExternalNumbers copies the parent's external number onto
// samples created before the column existed.
func backfillSampleExternalNumbers(db *sql.DB, _ time.Time) (int64, error) {
	res, err := db.Exec(`UPDATE samples
SET external_procedure_number = (
    SELECT ss.external_procedure_number FROM saved_samples ss WHERE ss.id = samples.saved_sample_id
)
WHERE external_procedure_number IS NULL
  AND EXISTS (
    SELECT 1 FROM saved_samples ss
    WHERE ss.id = samples.saved_sample_id AND ss.external_procedure_number IS NOT NULL
  )`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// backfillResultExternalNumbers copies the sample's external number onto
// results created before the column existed.
func backfillResultExternalNumbers(db *sql.DB, _ time.Time) (int64, error) {
	res, err := db.Exec(`UPDATE test_results
SET external_procedure_number = (
    SELECT s.external_procedure_number FROM samples s WHERE s.id = test_results.sample_id
)
WHERE external_procedure_number IS NULL
  AND EXISTS (
    SELECT 1 FROM samples s
    WHERE s.id = test_results.sample_id AND s.external_procedure_number IS NOT NULL
  )`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// upgradeLegacyStagePayloads rewrites bare stage maps into the wrapped
// shape. Rows already wrapped, and rows that do not parse, are left alone.
func upgradeLegacyStagePayloads(db *sql.DB, _ time.Time) (int64, error) {
	rows, err := db.Query(`SELECT id, stage_status FROM vet_procedures
WHERE stage_status IS NOT NULL AND stage_status <> ''`)
	if err != nil {
		return 0, err
	}
	type pending struct{ id, payload string }
	var upgrades []pending
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return 0, err
		}
		p, err := types.ParseStagePayload(raw)
		if err != nil || p.Shape != types.ShapeLegacy {
			continue
		}
		encoded, err := p.Encode()
		if err != nil {
			continue
		}
		upgrades = append(upgrades, pending{id: id, payload: encoded})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var n int64
	for _, u := range upgrades {
		if _, err := db.Exec("UPDATE vet_procedures SET stage_status = ? WHERE id = ?", u.payload, u.id); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
