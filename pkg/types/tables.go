package types

// Standard table names for Store.GetTable. The names match the SQLite tables
// they are persisted in.
const (
	TableLabProcedures        = "saved_samples"
	TableSamples              = "samples"
	TableTestResults          = "test_results"
	TableQuarantineProcedures = "vet_procedures"
	TableShipments            = "shipments"
	TableTrackingEvents       = "tracking_events"
	TableRatings              = "ratings"
	TableTraders              = "traders"
	TableAlerts               = "alerts"
)

// StandardTableNames lists all standard table names for enumeration.
var StandardTableNames = []string{
	TableLabProcedures,
	TableSamples,
	TableTestResults,
	TableQuarantineProcedures,
	TableShipments,
	TableTrackingEvents,
	TableRatings,
	TableTraders,
	TableAlerts,
}

// AssociatedTableNames lists the quarantine tables whose rows share a
// procedure number with a QuarantineProcedure and are deleted with it.
var AssociatedTableNames = []string{
	TableShipments,
	TableTrackingEvents,
	TableRatings,
	TableTraders,
}
