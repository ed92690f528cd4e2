// Tests for backend lifecycle, the generic table accessor and the change
// channel.
package sqlite

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

func TestBackend_Attach(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend()

	require.NoError(t, b.Attach(testConfig(dir)))
	defer b.Detach()

	_, err := os.Stat(filepath.Join(dir, DBFileName))
	require.NoError(t, err, "store file created")
	assert.Equal(t, filepath.Join(dir, DBFileName), b.Path())

	assert.ErrorIs(t, b.Attach(testConfig(dir)), types.ErrAlreadyAttached)
}

func TestBackend_AttachValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  types.Config
		wantErr error
	}{
		{"empty backend", types.Config{DataDir: t.TempDir()}, types.ErrBackendEmpty},
		{"unknown backend", types.Config{Backend: "postgres", DataDir: t.TempDir()}, types.ErrBackendUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBackend()
			assert.ErrorIs(t, b.Attach(tt.config), tt.wantErr)
			_, err := b.GetTable(types.TableAlerts)
			assert.ErrorIs(t, err, types.ErrStoreNotInitialized)
		})
	}
}

func TestBackend_Detach(t *testing.T) {
	b := NewBackend()
	require.NoError(t, b.Attach(testConfig(t.TempDir())))

	require.NoError(t, b.Detach())
	require.NoError(t, b.Detach(), "detach is idempotent")

	_, err := b.GetTable(types.TableLabProcedures)
	assert.ErrorIs(t, err, types.ErrStoreNotInitialized)
}

func TestBackend_ReattachAfterDetach(t *testing.T) {
	dir := t.TempDir()
	b := NewBackend()
	require.NoError(t, b.Attach(testConfig(dir)))
	_, err := b.ReserveNumber(types.SuffixLab)
	require.NoError(t, err)
	require.NoError(t, b.Detach())

	require.NoError(t, b.Attach(testConfig(dir)))
	defer b.Detach()
	next, err := b.PeekNextNumber(types.SuffixLab)
	require.NoError(t, err)
	assert.Contains(t, next, "0002-", "sequence survives reattach")
}

// Every operation on a detached store must fail with the precondition
// error rather than touching the database.
func TestBackend_OperationsBeforeAttach(t *testing.T) {
	b := NewBackend()

	ops := map[string]func() error{
		"GetTable": func() error { _, err := b.GetTable(types.TableSamples); return err },
		"CreateLabProcedure": func() error {
			_, err := b.CreateLabProcedure(&types.LabProcedure{}, nil)
			return err
		},
		"UpdateLabProcedure": func() error {
			_, err := b.UpdateLabProcedure("x", map[string]any{"notes": "n"})
			return err
		},
		"PreviewLabProcedureDeletion": func() error { _, err := b.PreviewLabProcedureDeletion("x"); return err },
		"DeleteLabProcedure": func() error {
			_, err := b.DeleteLabProcedure("x", types.DeleteOptions{})
			return err
		},
		"CreateSample": func() error {
			_, err := b.CreateSample(&types.Sample{LabProcedureID: "x"})
			return err
		},
		"DeleteSample": func() error { _, err := b.DeleteSample("x"); return err },
		"CreateTestResult": func() error {
			_, err := b.CreateTestResult(&types.TestResult{SampleID: "x", Result: types.OutcomePositive})
			return err
		},
		"UpdateTestResult": func() error {
			_, err := b.UpdateTestResult("x", map[string]any{"method": "ELISA"})
			return err
		},
		"ReviewTestResult": func() error {
			_, err := b.ReviewTestResult("x", types.ApprovalApproved, "dr", "")
			return err
		},
		"DeleteTestResult": func() error { _, err := b.DeleteTestResult("x"); return err },
		"CreateQuarantineProcedure": func() error {
			_, err := b.CreateQuarantineProcedure(&types.QuarantineProcedure{})
			return err
		},
		"PreviewQuarantineDeletion": func() error { _, err := b.PreviewQuarantineDeletion("x"); return err },
		"DeleteQuarantineProcedure": func() error {
			_, err := b.DeleteQuarantineProcedure("x", types.DeleteOptions{})
			return err
		},
		"PeekNextNumber":         func() error { _, err := b.PeekNextNumber(types.SuffixLab); return err },
		"ReserveNumber":          func() error { _, err := b.ReserveNumber(types.SuffixQuarantine); return err },
		"CreateAlert":            func() error { _, err := b.CreateAlert("0001-2025-Q", types.ActionNew); return err },
		"ActiveAlertFor":         func() error { _, err := b.ActiveAlertFor("0001-2025-Q"); return err },
		"DismissAlerts":          func() error { _, err := b.DismissAlerts("0001-2025-Q", ""); return err },
		"PurgeOrphanAlerts":      func() error { _, err := b.PurgeOrphanAlerts(); return err },
		"CleanupOrphanedResults": func() error { _, err := b.CleanupOrphanedResults(); return err },
		"CleanupOrphans":         func() error { _, err := b.CleanupOrphans(); return err },
		"MigrationReport":        func() error { _, err := b.MigrationReport(); return err },
		"Export":                 func() error { _, err := b.Export(t.TempDir()); return err },
		"Import":                 func() error { _, err := b.Import(t.TempDir()); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), types.ErrStoreNotInitialized)
		})
	}
}

func TestBackend_GetTable(t *testing.T) {
	b, _ := setupBackend(t)

	for _, name := range types.StandardTableNames {
		tbl, err := b.GetTable(name)
		require.NoError(t, err, name)
		assert.NotNil(t, tbl)
	}

	_, err := b.GetTable("invoices")
	assert.ErrorIs(t, err, types.ErrTableNotFound)
}

func TestTable_CRUD(t *testing.T) {
	b, _ := setupBackend(t)
	qp := mustQuarantine(t, b)

	tbl, err := b.GetTable(types.TableShipments)
	require.NoError(t, err)

	s := &types.Shipment{ProcedureNumber: qp.ProcedureNumber, Carrier: "Maersk", ContainerNumber: "MSKU123"}
	id, err := tbl.Create(s)
	require.NoError(t, err)
	assert.Equal(t, id, s.ID)
	assert.False(t, s.CreatedAt.IsZero())

	got, err := tbl.Get(id)
	require.NoError(t, err)
	shipment, ok := got.(*types.Shipment)
	require.True(t, ok)
	assert.Equal(t, "Maersk", shipment.Carrier)
	assert.Equal(t, qp.ProcedureNumber, shipment.ProcedureNumber)

	require.NoError(t, tbl.Update(id, map[string]any{
		"id":         "ignored",
		"created_at": "2001-01-01T00:00:00Z",
		"carrier":    "CMA CGM",
	}))
	got, err = tbl.Get(id)
	require.NoError(t, err)
	updated := got.(*types.Shipment)
	assert.Equal(t, id, updated.ID)
	assert.Equal(t, "CMA CGM", updated.Carrier)
	assert.Equal(t, shipment.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(shipment.UpdatedAt))

	list, err := tbl.Fetch(types.Filter{"procedure_number": qp.ProcedureNumber})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, tbl.Delete(id))
	_, err = tbl.Get(id)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, tbl.Delete(id), types.ErrNotFound)
}

func TestTable_Errors(t *testing.T) {
	b, _ := setupBackend(t)
	qp := mustQuarantine(t, b)
	ratings, err := b.GetTable(types.TableRatings)
	require.NoError(t, err)

	tests := []struct {
		name    string
		run     func() error
		wantErr error
	}{
		{"get empty id", func() error { _, err := ratings.Get(""); return err }, types.ErrInvalidID},
		{"get missing", func() error { _, err := ratings.Get("nope"); return err }, types.ErrNotFound},
		{"create wrong type", func() error { _, err := ratings.Create(&types.Trader{}); return err }, types.ErrInvalidData},
		{"create without number", func() error { _, err := ratings.Create(&types.Rating{Score: 4}); return err }, types.ErrInvalidData},
		{"create unknown procedure", func() error {
			_, err := ratings.Create(&types.Rating{ProcedureNumber: "0042-2025-Q", Score: 4})
			return err
		}, types.ErrNotFound},
		{"fetch unknown column", func() error {
			_, err := ratings.Fetch(types.Filter{"stars": 5})
			return err
		}, types.ErrInvalidFilter},
		{"update unknown column", func() error {
			return ratings.Update("x", map[string]any{"stars": 5})
		}, types.ErrUnknownField},
		{"update protected column", func() error {
			return ratings.Update("x", map[string]any{"procedure_number": qp.ProcedureNumber})
		}, types.ErrProtectedField},
		{"update wrong type", func() error {
			return ratings.Update("x", map[string]any{"score": "five"})
		}, types.ErrInvalidData},
		{"update missing", func() error {
			return ratings.Update("x", map[string]any{"score": 3})
		}, types.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), tt.wantErr)
		})
	}
}

func TestTable_FetchOrderAndBools(t *testing.T) {
	b, _ := setupBackend(t)

	first := mustQuarantine(t, b)
	second := &types.QuarantineProcedure{ImporterName: "Atlas", IsUrgent: true}
	_, err := b.CreateQuarantineProcedure(second)
	require.NoError(t, err)

	tbl, err := b.GetTable(types.TableQuarantineProcedures)
	require.NoError(t, err)
	list, err := tbl.Fetch(nil)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].(*types.QuarantineProcedure).ID, "newest first")
	assert.Equal(t, first.ID, list[1].(*types.QuarantineProcedure).ID)

	urgent, err := tbl.Fetch(types.Filter{"is_urgent": true})
	require.NoError(t, err)
	require.Len(t, urgent, 1)
	assert.True(t, urgent[0].(*types.QuarantineProcedure).IsUrgent)

	// Flags stored as 0/1 integers surface as booleans.
	_, err = b.db.Exec("UPDATE vet_procedures SET is_urgent = 1 WHERE id = ?", first.ID)
	require.NoError(t, err)
	got, err := tbl.Get(first.ID)
	require.NoError(t, err)
	assert.True(t, got.(*types.QuarantineProcedure).IsUrgent)
}

func TestBackend_Subscribe(t *testing.T) {
	b, _ := setupBackend(t)

	var (
		mu  sync.Mutex
		got []types.Change
	)
	cancel := b.Subscribe(func(c types.Change) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, c)
	})

	lp, samples := mustLab(t, b, "", 2)

	mu.Lock()
	require.Len(t, got, 3)
	assert.Equal(t, types.Change{Table: types.TableLabProcedures, ID: lp.ID, Op: types.OpCreated}, got[0])
	assert.Equal(t, types.Change{Table: types.TableSamples, ID: samples[0].ID, Op: types.OpCreated}, got[1])
	mu.Unlock()

	// A failed write publishes nothing.
	_, err := b.DeleteSample("missing")
	require.ErrorIs(t, err, types.ErrNotFound)
	mu.Lock()
	assert.Len(t, got, 3)
	mu.Unlock()

	cancel()
	mustLab(t, b, "", 0)
	mu.Lock()
	assert.Len(t, got, 3, "no events after unsubscribe")
	mu.Unlock()
}
