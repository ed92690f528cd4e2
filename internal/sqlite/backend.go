package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// DBFileName is the store file created under Config.DataDir.
const DBFileName = "vetlab.db"

// Compile-time interface check: Backend must implement Store.
var _ types.Store = (*Backend)(nil)

// Backend implements types.Store on a single SQLite file. All writes are
// serialized by mu; every cascade runs inside one transaction.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	dbPath   string
	tables   map[string]*table
	report   types.MigrationReport

	log     zerolog.Logger
	clock   func() time.Time
	metrics *metrics

	subMu   sync.Mutex
	subs    map[int]func(types.Change)
	nextSub int
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger used for recovery, migration and degradation
// events. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Backend) { b.log = l }
}

// WithClock replaces time.Now. Timestamps and numbering years come from it.
func WithClock(fn func() time.Time) Option {
	return func(b *Backend) { b.clock = fn }
}

// WithRegisterer registers the backend's counters with reg instead of a
// private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(b *Backend) { b.metrics = newMetrics(reg) }
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		tables: make(map[string]*table),
		log:    zerolog.Nop(),
		clock:  time.Now,
		subs:   make(map[int]func(types.Change)),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics == nil {
		b.metrics = newMetrics(prometheus.NewRegistry())
	}
	return b
}

// GetTable returns a Table interface for the specified table name.
// Returns ErrTableNotFound if the table name is not recognized.
// Returns ErrStoreNotInitialized if the backend is not attached.
func (b *Backend) GetTable(name string) (types.Table, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrStoreNotInitialized
	}
	t, ok := b.tables[name]
	if !ok {
		return nil, types.ErrTableNotFound
	}
	return t, nil
}

// Attach opens the store under config.DataDir. An existing file that fails
// the canary probe is recreated. The schema is then created and migrated;
// individual migration failures are logged and recorded in the migration
// report without failing the attach.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, DBFileName)

	db, recreated, err := openStore(dbPath, b.log)
	if err != nil {
		return err
	}
	if recreated {
		b.metrics.recreations.Inc()
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return err
	}

	now := b.now()
	report := types.MigrationReport{Recreated: recreated}
	report.Steps = runMigrations(db, b.log, now)
	for _, step := range report.Steps {
		b.metrics.observeStep(step)
	}

	seeded, err := seedAdmins(db, config.GetAdminPassword(), now)
	if err != nil {
		b.log.Error().Err(err).Msg("seeding admin accounts failed")
		report.Steps = append(report.Steps, types.MigrationStep{Name: "seed_admins", Error: err.Error()})
	}
	report.Seeded = seeded
	for _, name := range seeded {
		b.log.Info().Str("table", name).Msg("seeded admin account")
	}

	b.db = db
	b.dbPath = dbPath
	b.config = config
	b.report = report
	b.attached = true

	for _, name := range types.StandardTableNames {
		b.tables[name] = newTable(b, name)
	}
	return nil
}

// Detach releases all resources held by the backend.
// After Detach, all operations return ErrStoreNotInitialized.
// Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}
	b.attached = false
	b.tables = make(map[string]*table)
	return nil
}

// Path returns the store file path, or "" while detached.
func (b *Backend) Path() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dbPath
}

// MigrationReport returns what the last Attach did to the store.
func (b *Backend) MigrationReport() (*types.MigrationReport, error) {
	var out types.MigrationReport
	err := b.read(func() error {
		out = b.report
		out.Steps = append([]types.MigrationStep(nil), b.report.Steps...)
		out.Seeded = append([]string(nil), b.report.Seeded...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *Backend) now() time.Time {
	return b.clock().UTC().Truncate(time.Microsecond)
}

// read runs fn under the read lock, failing when detached.
func (b *Backend) read(fn func() error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return types.ErrStoreNotInitialized
	}
	return fn()
}

// write runs fn inside one transaction under the write lock and publishes
// the recorded changes after the lock is released.
func (b *Backend) write(fn func(w *txn) error) (*types.Result, error) {
	b.mu.Lock()
	if !b.attached {
		b.mu.Unlock()
		return nil, types.ErrStoreNotInitialized
	}
	res, err := b.writeLocked(fn)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	b.publish(res.Changes)
	return res, nil
}

func (b *Backend) writeLocked(fn func(w *txn) error) (*types.Result, error) {
	tx, err := b.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	w := newTxn(b, tx, b.now())
	if err := fn(w); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	b.metrics.observeTxn(w)

	if w.probeDrift {
		drift, err := countOrphans(b.db)
		switch {
		case err != nil:
			b.log.Warn().Err(err).Msg("orphan probe failed after cascade")
			w.result.Status = types.StatusRepairRequired
		case drift.Samples+drift.Results > 0:
			b.log.Warn().Int("samples", drift.Samples).Int("results", drift.Results).
				Msg("orphaned rows remain after cascade")
			w.result.Status = types.StatusRepairRequired
		}
	}
	return w.result, nil
}

// newID generates a UUID v7 for entity IDs.
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating UUID v7: %w", err)
	}
	return id.String(), nil
}
