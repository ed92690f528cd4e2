package types

import "errors"

// Store is the record store used by the request boundary. Callers attach to
// a backend, run operations, and detach when done. Every operation returns
// ErrStoreNotInitialized while the store is detached.
type Store interface {
	// GetTable returns the generic CRUD accessor for the given table name.
	GetTable(name string) (Table, error)

	// Attach opens, validates and migrates the store described by config.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent.
	Detach() error

	CreateLabProcedure(p *LabProcedure, samples []*Sample) (*Result, error)
	UpdateLabProcedure(id string, fields map[string]any) (*Result, error)
	PreviewLabProcedureDeletion(id string) (*DeletionImpact, error)
	DeleteLabProcedure(id string, opts DeleteOptions) (*Result, error)

	CreateSample(s *Sample) (*Result, error)
	DeleteSample(id string) (*Result, error)

	CreateTestResult(r *TestResult) (*Result, error)
	UpdateTestResult(id string, fields map[string]any) (*Result, error)
	ReviewTestResult(id, decision, reviewer, notes string) (*Result, error)
	DeleteTestResult(id string) (*Result, error)

	CreateQuarantineProcedure(p *QuarantineProcedure) (*Result, error)
	PreviewQuarantineDeletion(id string) (*DeletionImpact, error)
	DeleteQuarantineProcedure(id string, opts DeleteOptions) (*Result, error)

	PeekNextNumber(suffix string) (string, error)
	ReserveNumber(suffix string) (string, error)

	CreateAlert(procedureNumber, actionType string) (*Alert, error)
	ActiveAlertFor(procedureNumber string) (*Alert, error)
	DismissAlerts(procedureNumber, actionType string) (int, error)
	PurgeOrphanAlerts() (int, error)

	CleanupOrphanedResults() (int, error)
	CleanupOrphans() (*CleanupReport, error)

	MigrationReport() (*MigrationReport, error)

	// Subscribe registers fn to receive one Change per entity touched by a
	// committed mutation. The returned function removes the subscription.
	Subscribe(fn func(Change)) func()
}

// Store lifecycle errors.
var (
	ErrStoreNotInitialized = errors.New("store is not initialized")
	ErrAlreadyAttached     = errors.New("store is already attached")
	ErrTableNotFound       = errors.New("table not found")
	ErrStoreNotEmpty       = errors.New("store already holds records")
)
