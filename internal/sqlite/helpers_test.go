package sqlite

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// testClock advances by one millisecond on every reading so that rows
// written in sequence never share a timestamp.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{t: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func testConfig(dir string) types.Config {
	return types.Config{Backend: types.BackendSQLite, DataDir: dir}
}

// setupBackend attaches a backend to a fresh data directory. The clock
// starts at 2025-03-10 unless overridden by opts.
func setupBackend(t *testing.T, opts ...Option) (*Backend, string) {
	t.Helper()
	dir := t.TempDir()
	clock := newTestClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	b := NewBackend(append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, b.Attach(testConfig(dir)))
	t.Cleanup(func() { b.Detach() })
	return b, dir
}

func strPtr(s string) *string {
	return &s
}

// mustQuarantine creates a quarantine procedure and returns it.
func mustQuarantine(t *testing.T, b *Backend) *types.QuarantineProcedure {
	t.Helper()
	qp := &types.QuarantineProcedure{ImporterName: "Nordic Livestock", AnimalType: "cattle", AnimalCount: 40}
	_, err := b.CreateQuarantineProcedure(qp)
	require.NoError(t, err)
	return qp
}

// mustLab creates a lab procedure with the given external number and
// sample count and returns it with its samples.
func mustLab(t *testing.T, b *Backend, external string, samples int) (*types.LabProcedure, []*types.Sample) {
	t.Helper()
	lp := &types.LabProcedure{ClientName: "Port Authority", SamplingLocation: "Pier 4"}
	if external != "" {
		lp.ExternalProcedureNumber = strPtr(external)
	}
	list := make([]*types.Sample, samples)
	for i := range list {
		list[i] = &types.Sample{Department: "virology", RequestedTest: "PCR", SampleType: "blood", SampleCount: 2}
	}
	_, err := b.CreateLabProcedure(lp, list)
	require.NoError(t, err)
	return lp, list
}

// mustResult records a result for sample.
func mustResult(t *testing.T, b *Backend, sampleID string) *types.TestResult {
	t.Helper()
	r := &types.TestResult{SampleID: sampleID, Method: "PCR", Result: types.OutcomeNegative}
	_, err := b.CreateTestResult(r)
	require.NoError(t, err)
	return r
}

func stageVector(s *types.StageStatus) []types.StageState {
	if s == nil {
		return nil
	}
	return s.Ordered()
}

var (
	C  = types.StateCompleted
	IP = types.StateInProgress
	P  = types.StatePending
)

func countRows(t *testing.T, b *Backend, table string) int {
	t.Helper()
	var n int
	require.NoError(t, b.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
