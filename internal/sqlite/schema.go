// Package sqlite implements the SQLite backend for the vetlab record store.
package sqlite

// Schema DDL for all tables. This is the current schema for fresh stores;
// stores created by older releases reach it through the additive column
// migrations in migrate.go. Parent/child integrity is kept by the cascade
// code rather than by foreign key constraints, which legacy stores lack.
const (
	createLabProcedures = `CREATE TABLE IF NOT EXISTS saved_samples (
    id TEXT PRIMARY KEY,
    internal_number TEXT NOT NULL,
    external_procedure_number TEXT,
    client_name TEXT,
    client_phone TEXT,
    sampling_location TEXT,
    reception_date TEXT,
    received_by TEXT,
    quality_check TEXT,
    notes TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createSamples = `CREATE TABLE IF NOT EXISTS samples (
    id TEXT PRIMARY KEY,
    saved_sample_id TEXT NOT NULL,
    department TEXT,
    section TEXT,
    requested_test TEXT,
    sample_type TEXT,
    animal_type TEXT,
    sample_count INTEGER NOT NULL DEFAULT 0,
    external_procedure_number TEXT,
    notes TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createTestResults = `CREATE TABLE IF NOT EXISTS test_results (
    id TEXT PRIMARY KEY,
    sample_id TEXT NOT NULL,
    method TEXT,
    result TEXT,
    positive_count INTEGER NOT NULL DEFAULT 0,
    confirmatory_test TEXT,
    specialists TEXT,
    is_retest INTEGER NOT NULL DEFAULT 0,
    approval_status TEXT NOT NULL DEFAULT 'pending',
    reviewed_by TEXT,
    review_notes TEXT,
    reviewed_at TEXT,
    external_procedure_number TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createQuarantineProcedures = `CREATE TABLE IF NOT EXISTS vet_procedures (
    id TEXT PRIMARY KEY,
    procedure_number TEXT NOT NULL,
    importer_name TEXT,
    origin_country TEXT,
    animal_type TEXT,
    animal_count INTEGER NOT NULL DEFAULT 0,
    arrival_date TEXT,
    port_of_entry TEXT,
    is_urgent INTEGER NOT NULL DEFAULT 0,
    stage_status TEXT,
    notes TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createShipments = `CREATE TABLE IF NOT EXISTS shipments (
    id TEXT PRIMARY KEY,
    procedure_number TEXT NOT NULL,
    carrier TEXT,
    container_number TEXT,
    shipped_at TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createTrackingEvents = `CREATE TABLE IF NOT EXISTS tracking_events (
    id TEXT PRIMARY KEY,
    procedure_number TEXT NOT NULL,
    location TEXT,
    status TEXT,
    recorded_at TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createRatings = `CREATE TABLE IF NOT EXISTS ratings (
    id TEXT PRIMARY KEY,
    procedure_number TEXT NOT NULL,
    score INTEGER NOT NULL DEFAULT 0,
    comment TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createTraders = `CREATE TABLE IF NOT EXISTS traders (
    id TEXT PRIMARY KEY,
    procedure_number TEXT NOT NULL,
    name TEXT,
    license_number TEXT,
    phone TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createAlerts = `CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    procedure_number TEXT NOT NULL,
    action_type TEXT NOT NULL,
    created_at TEXT NOT NULL,
    is_dismissed INTEGER NOT NULL DEFAULT 0
);`

	createProcedureSequences = `CREATE TABLE IF NOT EXISTS procedure_sequences (
    domain TEXT NOT NULL,
    year INTEGER NOT NULL,
    last_value INTEGER NOT NULL,
    PRIMARY KEY (domain, year)
);`

	createUsers = `CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL,
    created_at TEXT NOT NULL
);`

	createVetUsers = `CREATE TABLE IF NOT EXISTS vet_users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL,
    created_at TEXT NOT NULL
);`
)

// Index DDL for common queries.
const (
	idxLabExternal        = `CREATE INDEX IF NOT EXISTS idx_saved_samples_external ON saved_samples(external_procedure_number);`
	idxLabInternal        = `CREATE INDEX IF NOT EXISTS idx_saved_samples_internal ON saved_samples(internal_number);`
	idxSamplesParent      = `CREATE INDEX IF NOT EXISTS idx_samples_parent ON samples(saved_sample_id);`
	idxResultsSample      = `CREATE INDEX IF NOT EXISTS idx_test_results_sample ON test_results(sample_id);`
	idxVetNumber          = `CREATE INDEX IF NOT EXISTS idx_vet_procedures_number ON vet_procedures(procedure_number);`
	idxShipmentsNumber    = `CREATE INDEX IF NOT EXISTS idx_shipments_number ON shipments(procedure_number);`
	idxTrackingNumber     = `CREATE INDEX IF NOT EXISTS idx_tracking_events_number ON tracking_events(procedure_number);`
	idxRatingsNumber      = `CREATE INDEX IF NOT EXISTS idx_ratings_number ON ratings(procedure_number);`
	idxTradersNumber      = `CREATE INDEX IF NOT EXISTS idx_traders_number ON traders(procedure_number);`
	idxAlertsNumberAction = `CREATE INDEX IF NOT EXISTS idx_alerts_number_action ON alerts(procedure_number, action_type);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createLabProcedures,
	createSamples,
	createTestResults,
	createQuarantineProcedures,
	createShipments,
	createTrackingEvents,
	createRatings,
	createTraders,
	createAlerts,
	createProcedureSequences,
	createUsers,
	createVetUsers,
}

// indexDDL lists all CREATE INDEX statements. Indexes run after the column
// migrations because some of them cover migrated columns.
var indexDDL = []string{
	idxLabExternal,
	idxLabInternal,
	idxSamplesParent,
	idxResultsSample,
	idxVetNumber,
	idxShipmentsNumber,
	idxTrackingNumber,
	idxRatingsNumber,
	idxTradersNumber,
	idxAlertsNumberAction,
}

// canaryProbes must succeed against an existing store file; otherwise the
// file is treated as corrupt and recreated.
var canaryProbes = []string{
	`SELECT id, internal_number FROM saved_samples LIMIT 1`,
	`SELECT id, procedure_number FROM vet_procedures LIMIT 1`,
}
