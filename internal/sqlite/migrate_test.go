// Tests for store recovery, additive migrations and backfills on attach.
package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// legacySchema is a store written by a release that predates external
// numbers, result review and wrapped stage payloads.
var legacySchema = []string{
	`CREATE TABLE saved_samples (
    id TEXT PRIMARY KEY, internal_number TEXT NOT NULL, client_name TEXT,
    client_phone TEXT, sampling_location TEXT, reception_date TEXT, notes TEXT,
    created_at TEXT NOT NULL, updated_at TEXT NOT NULL)`,
	`CREATE TABLE samples (
    id TEXT PRIMARY KEY, saved_sample_id TEXT NOT NULL, department TEXT, section TEXT,
    requested_test TEXT, sample_type TEXT, animal_type TEXT, sample_count INTEGER,
    notes TEXT, created_at TEXT NOT NULL, updated_at TEXT NOT NULL)`,
	`CREATE TABLE test_results (
    id TEXT PRIMARY KEY, sample_id TEXT NOT NULL, method TEXT, result TEXT,
    positive_count INTEGER, created_at TEXT NOT NULL, updated_at TEXT NOT NULL)`,
	`CREATE TABLE vet_procedures (
    id TEXT PRIMARY KEY, procedure_number TEXT NOT NULL, importer_name TEXT,
    origin_country TEXT, animal_type TEXT, animal_count INTEGER, arrival_date TEXT,
    port_of_entry TEXT, stage_status TEXT, notes TEXT,
    created_at TEXT NOT NULL, updated_at TEXT NOT NULL)`,
	`CREATE TABLE alerts (
    id TEXT PRIMARY KEY, procedure_number TEXT NOT NULL, action_type TEXT NOT NULL,
    created_at TEXT NOT NULL)`,
}

const legacyStamp = "2023-06-01T08:00:00.000000Z"

func writeLegacyStore(t *testing.T, dir string) {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(dir, DBFileName))
	require.NoError(t, err)
	defer db.Close()

	for _, ddl := range legacySchema {
		_, err := db.Exec(ddl)
		require.NoError(t, err)
	}
	exec := func(q string, args ...any) {
		_, err := db.Exec(q, args...)
		require.NoError(t, err)
	}
	exec(`INSERT INTO saved_samples (id, internal_number, client_name, created_at, updated_at)
VALUES ('lab-1', '0007-2023-L', 'Harbor Farms', ?, ?)`, legacyStamp, legacyStamp)
	exec(`INSERT INTO samples (id, saved_sample_id, department, sample_count, created_at, updated_at)
VALUES ('s-1', 'lab-1', 'virology', NULL, ?, ?)`, legacyStamp, legacyStamp)
	exec(`INSERT INTO test_results (id, sample_id, method, result, positive_count, created_at, updated_at)
VALUES ('r-1', 's-1', 'PCR', 'negative', NULL, ?, ?)`, legacyStamp, legacyStamp)
	exec(`INSERT INTO vet_procedures (id, procedure_number, importer_name, stage_status, created_at, updated_at)
VALUES ('qp-1', '0003-2023-Q', 'Harbor Farms', ?, ?, ?)`,
		`{"transaction_received":"completed","inspection_sampling":"completed","samples_delivered":"completed","testing":"in_progress","clearance_procedures":"pending"}`,
		legacyStamp, legacyStamp)
	exec(`INSERT INTO alerts (id, procedure_number, action_type, created_at)
VALUES ('a-1', '0003-2023-Q', 'new', ?)`, legacyStamp)
}

func TestAttach_FreshStoreReport(t *testing.T) {
	b, _ := setupBackend(t)

	report, err := b.MigrationReport()
	require.NoError(t, err)
	assert.False(t, report.Recreated)
	assert.ElementsMatch(t, types.UserTables, report.Seeded)
	for _, step := range report.Steps {
		assert.Empty(t, step.Error, step.Name)
		assert.False(t, step.Applied, "fresh schema already has %s", step.Name)
	}
}

func TestAttach_Idempotent(t *testing.T) {
	dir := t.TempDir()

	b := NewBackend()
	require.NoError(t, b.Attach(testConfig(dir)))
	lp, _ := mustLab(t, b, "", 1)
	require.NoError(t, b.Detach())

	b = NewBackend()
	require.NoError(t, b.Attach(testConfig(dir)))
	defer b.Detach()

	report, err := b.MigrationReport()
	require.NoError(t, err)
	assert.False(t, report.Recreated)
	assert.Empty(t, report.Seeded, "admins are seeded once")
	for _, step := range report.Steps {
		assert.Empty(t, step.Error, step.Name)
		assert.False(t, step.Applied, step.Name)
		assert.Zero(t, step.Rows, step.Name)
	}

	tbl, err := b.GetTable(types.TableLabProcedures)
	require.NoError(t, err)
	_, err = tbl.Get(lp.ID)
	assert.NoError(t, err, "data survives reattach")
}

func TestAttach_RecreatesCorruptStore(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, path string)
	}{
		{
			name: "not a database",
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte("this is definitely not an sqlite file, just garbage bytes"), 0o644))
			},
		},
		{
			name: "missing canary column",
			setup: func(t *testing.T, path string) {
				db, err := sql.Open("sqlite", "file:"+path)
				require.NoError(t, err)
				defer db.Close()
				_, err = db.Exec("CREATE TABLE saved_samples (id TEXT PRIMARY KEY, label TEXT)")
				require.NoError(t, err)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, filepath.Join(dir, DBFileName))

			reg := prometheus.NewRegistry()
			b := NewBackend(WithRegisterer(reg))
			require.NoError(t, b.Attach(testConfig(dir)))
			defer b.Detach()

			report, err := b.MigrationReport()
			require.NoError(t, err)
			assert.True(t, report.Recreated)
			assert.Equal(t, 1.0, testutil.ToFloat64(b.metrics.recreations))

			// The new store is fully usable.
			lp, _ := mustLab(t, b, "", 1)
			assert.Equal(t, "0001", lp.InternalNumber[:4])
		})
	}
}

func TestAttach_LockedStoreIsKept(t *testing.T) {
	prev := busyTimeoutMillis
	busyTimeoutMillis = 100
	t.Cleanup(func() { busyTimeoutMillis = prev })

	dir := t.TempDir()
	b := NewBackend()
	require.NoError(t, b.Attach(testConfig(dir)))
	lp, _ := mustLab(t, b, "", 1)
	require.NoError(t, b.Detach())

	// Another process holds the store.
	holder, err := sql.Open("sqlite", "file:"+filepath.Join(dir, DBFileName))
	require.NoError(t, err)
	holder.SetMaxOpenConns(1)
	_, err = holder.Exec("BEGIN EXCLUSIVE")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	locked := NewBackend(WithRegisterer(reg))
	err = locked.Attach(testConfig(dir))
	require.Error(t, err)
	assert.False(t, isCorrupt(err))
	assert.Zero(t, testutil.ToFloat64(locked.metrics.recreations))
	_, err = locked.MigrationReport()
	assert.ErrorIs(t, err, types.ErrStoreNotInitialized)

	_, err = holder.Exec("ROLLBACK")
	require.NoError(t, err)
	require.NoError(t, holder.Close())

	b = NewBackend()
	require.NoError(t, b.Attach(testConfig(dir)))
	defer b.Detach()
	report, err := b.MigrationReport()
	require.NoError(t, err)
	assert.False(t, report.Recreated)
	tbl, err := b.GetTable(types.TableLabProcedures)
	require.NoError(t, err)
	_, err = tbl.Get(lp.ID)
	assert.NoError(t, err, "data survives a locked attach")
}

func TestIsCorrupt(t *testing.T) {
	assert.False(t, isCorrupt(nil))
	assert.False(t, isCorrupt(os.ErrPermission))
	assert.False(t, isCorrupt(types.ErrStoreNotInitialized))
}

func TestAttach_UpgradesLegacyStore(t *testing.T) {
	dir := t.TempDir()
	writeLegacyStore(t, dir)

	reg := prometheus.NewRegistry()
	b := NewBackend(WithRegisterer(reg))
	require.NoError(t, b.Attach(testConfig(dir)))
	defer b.Detach()

	report, err := b.MigrationReport()
	require.NoError(t, err)
	assert.False(t, report.Recreated, "legacy data is kept")

	steps := make(map[string]types.MigrationStep, len(report.Steps))
	for _, s := range report.Steps {
		assert.Empty(t, s.Error, s.Name)
		steps[s.Name] = s
	}
	assert.True(t, steps["saved_samples.external_procedure_number"].Applied)
	assert.True(t, steps["test_results.approval_status"].Applied)
	assert.True(t, steps["alerts.is_dismissed"].Applied)
	assert.False(t, steps["vet_procedures.stage_status"].Applied, "column already existed")
	assert.Equal(t, int64(1), steps["vet_procedures.stage_status"].Rows, "legacy payload upgraded")
	assert.Positive(t, testutil.ToFloat64(b.metrics.migrationSteps.WithLabelValues("applied")))

	// Legacy rows read through the current types with defaults.
	tbl, err := b.GetTable(types.TableTestResults)
	require.NoError(t, err)
	got, err := tbl.Get("r-1")
	require.NoError(t, err)
	r := got.(*types.TestResult)
	assert.Equal(t, types.ApprovalPending, r.ApprovalStatus)
	assert.Zero(t, r.PositiveCount)
	assert.Nil(t, r.ConfirmatoryTest)
	assert.Nil(t, r.ExternalProcedureNumber)

	// The stage payload was rewritten in the wrapped shape.
	var raw string
	require.NoError(t, b.db.QueryRow("SELECT stage_status FROM vet_procedures WHERE id = 'qp-1'").Scan(&raw))
	payload, err := types.ParseStagePayload(raw)
	require.NoError(t, err)
	assert.Equal(t, types.ShapeWrapped, payload.Shape)
	assert.Equal(t, []types.StageState{C, C, C, IP, P}, payload.Status.Ordered())

	// The numbering sequence continues past legacy numbers in their year.
	var next int
	require.NoError(t, b.read(func() error {
		var err error
		next, err = nextSequence(b.db, types.SuffixLab, 2023)
		return err
	}))
	assert.Equal(t, 8, next)

	active, err := b.ActiveAlertFor("0003-2023-Q")
	require.NoError(t, err)
	assert.Equal(t, "a-1", active.ID)
}

func TestAttach_BackfillsExternalNumbers(t *testing.T) {
	dir := t.TempDir()
	writeLegacyStore(t, dir)

	// An intermediate release added the external number to lab procedures
	// only.
	db, err := sql.Open("sqlite", "file:"+filepath.Join(dir, DBFileName))
	require.NoError(t, err)
	_, err = db.Exec("ALTER TABLE saved_samples ADD COLUMN external_procedure_number TEXT")
	require.NoError(t, err)
	_, err = db.Exec("UPDATE saved_samples SET external_procedure_number = '0003-2023-Q' WHERE id = 'lab-1'")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	b := NewBackend()
	require.NoError(t, b.Attach(testConfig(dir)))
	defer b.Detach()

	samples, err := b.GetTable(types.TableSamples)
	require.NoError(t, err)
	got, err := samples.Get("s-1")
	require.NoError(t, err)
	s := got.(*types.Sample)
	require.NotNil(t, s.ExternalProcedureNumber)
	assert.Equal(t, "0003-2023-Q", *s.ExternalProcedureNumber)
	assert.Zero(t, s.SampleCount, "NULL integer reads as zero")

	results, err := b.GetTable(types.TableTestResults)
	require.NoError(t, err)
	got, err = results.Get("r-1")
	require.NoError(t, err)
	r := got.(*types.TestResult)
	require.NotNil(t, r.ExternalProcedureNumber)
	assert.Equal(t, "0003-2023-Q", *r.ExternalProcedureNumber)

	report, err := b.MigrationReport()
	require.NoError(t, err)
	for _, step := range report.Steps {
		switch step.Name {
		case "samples.external_procedure_number", "test_results.external_procedure_number":
			assert.Equal(t, int64(1), step.Rows, step.Name)
		}
	}
}

func TestRunMigrations_ContinuesAfterFailure(t *testing.T) {
	b, _ := setupBackend(t)

	// Replace one table with a view so that ALTER TABLE fails on it.
	_, err := b.db.Exec("DROP TABLE alerts")
	require.NoError(t, err)
	_, err = b.db.Exec("CREATE VIEW alerts AS SELECT id, procedure_number, 'new' AS action_type, created_at FROM vet_procedures")
	require.NoError(t, err)

	steps := runMigrations(b.db, b.log, b.now())
	var failed []string
	for _, s := range steps {
		if s.Error != "" {
			failed = append(failed, s.Name)
		}
	}
	assert.Contains(t, failed, "alerts.is_dismissed")
	assert.Equal(t, "indexes", steps[len(steps)-1].Name, "later steps still run")
}

func TestHasColumn(t *testing.T) {
	b, _ := setupBackend(t)

	has, err := hasColumn(b.db, "saved_samples", "quality_check")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = hasColumn(b.db, "saved_samples", "QUALITY_CHECK")
	require.NoError(t, err)
	assert.True(t, has, "column names compare case-insensitively")

	has, err = hasColumn(b.db, "saved_samples", "colour")
	require.NoError(t, err)
	assert.False(t, has)
}
