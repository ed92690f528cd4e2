// Tests for JSONL export and import.
package sqlite

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

func TestExportImport_RoundTrip(t *testing.T) {
	src, _ := setupBackend(t)
	qp := mustQuarantine(t, src)
	lp, samples := mustLab(t, src, qp.ProcedureNumber, 2)
	r := &types.TestResult{
		SampleID:         samples[0].ID,
		Result:           types.OutcomePositive,
		ConfirmatoryTest: &types.ConfirmatoryTest{Method: "PCR", Result: types.OutcomePositive},
		Specialists:      []string{"dr.lee"},
		IsRetest:         true,
	}
	_, err := src.CreateTestResult(r)
	require.NoError(t, err)
	trackers, err := src.GetTable(types.TableTrackingEvents)
	require.NoError(t, err)
	_, err = trackers.Create(&types.TrackingEvent{ProcedureNumber: qp.ProcedureNumber, Location: "Gdansk"})
	require.NoError(t, err)

	dir := t.TempDir()
	counts, err := src.Export(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[types.TableLabProcedures])
	assert.Equal(t, 2, counts[types.TableSamples])
	assert.Equal(t, 1, counts[types.TableTestResults])
	assert.Equal(t, 1, counts[types.TableQuarantineProcedures])
	assert.Equal(t, 1, counts[types.TableTrackingEvents])
	assert.Equal(t, 1, counts[types.TableAlerts])
	assert.Zero(t, counts[types.TableRatings])
	for _, name := range exportTables {
		_, err := os.Stat(filepath.Join(dir, name+".jsonl"))
		assert.NoError(t, err, name)
	}

	dst, _ := setupBackend(t)
	loaded, err := dst.Import(dir)
	require.NoError(t, err)
	assert.Equal(t, counts, loaded)

	got, err := dst.GetTable(types.TableLabProcedures)
	require.NoError(t, err)
	v, err := got.Get(lp.ID)
	require.NoError(t, err)
	restored := v.(*types.LabProcedure)
	assert.Equal(t, lp.InternalNumber, restored.InternalNumber)
	assert.Equal(t, lp.CreatedAt, restored.CreatedAt)

	res := loadResult(t, dst, r.ID)
	assert.True(t, res.IsRetest)
	require.NotNil(t, res.ConfirmatoryTest)
	assert.Equal(t, "PCR", res.ConfirmatoryTest.Method)
	assert.Equal(t, []string{"dr.lee"}, res.Specialists)

	assert.Equal(t, []types.StageState{C, C, C, IP, P}, stageVector(loadQuarantine(t, dst, qp.ID).StageStatus))

	// Restored numbers keep the sequence moving forward.
	next, err := dst.PeekNextNumber(types.SuffixLab)
	require.NoError(t, err)
	assert.Equal(t, "0002-2025-L", next)
}

func TestImport_RefusesNonEmptyStore(t *testing.T) {
	src, _ := setupBackend(t)
	mustLab(t, src, "", 1)
	dir := t.TempDir()
	_, err := src.Export(dir)
	require.NoError(t, err)

	dst, _ := setupBackend(t)
	mustQuarantine(t, dst)
	_, err = dst.Import(dir)
	assert.ErrorIs(t, err, types.ErrStoreNotEmpty)
	assert.Zero(t, countRows(t, dst, types.TableLabProcedures))
}

func TestImport_SkipsBadLines(t *testing.T) {
	dir := t.TempDir()
	lines := []string{
		`{"id":"a1","procedure_number":"0001-2025-Q","action_type":"new","created_at":"2025-03-10T09:00:00.000000Z","is_dismissed":0}`,
		`not json at all`,
		``,
		`{"procedure_number":"0001-2025-Q","action_type":"new"}`,
		`{"id":"a1","procedure_number":"0001-2025-Q","action_type":"updated","created_at":"2025-03-10T09:00:00.000000Z"}`,
		`{"id":"a2","procedure_number":"0001-2025-Q","action_type":"deleted","created_at":"2025-03-10T09:00:01.000000Z","is_dismissed":1,"extra":"ignored"}`,
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alerts.jsonl"), []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	b, _ := setupBackend(t)
	loaded, err := b.Import(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded[types.TableAlerts], "missing ids and duplicate keys are skipped")

	active, err := b.ActiveAlertFor("0001-2025-Q")
	require.NoError(t, err)
	assert.Equal(t, "a1", active.ID, "the dismissed row stays dismissed")
}

func TestExport_ReplacesFiles(t *testing.T) {
	b, _ := setupBackend(t)
	mustLab(t, b, "", 1)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "samples.jsonl"), []byte("stale\n"), 0o644))

	_, err := b.Export(dir)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, len(exportTables), "no temp files left behind")

	data, err := os.ReadFile(filepath.Join(dir, "samples.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	var row map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &row))
	assert.Equal(t, "virology", row["department"])
}

func TestEachRow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "traders.jsonl")
	content := strings.Join([]string{`{"id":"1"}`, ``, `[1,2]`, `null`, `{"id":"2","name":"<Acme & Sons>"}`}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	var ids []string
	require.NoError(t, eachRow(path, func(row map[string]any) error {
		ids = append(ids, row["id"].(string))
		return nil
	}))
	assert.Equal(t, []string{"1", "2"}, ids)

	err := eachRow(filepath.Join(dir, "missing.jsonl"), func(map[string]any) error { return nil })
	assert.Error(t, err)
}
