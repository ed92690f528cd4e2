package types

// ApplyStatus tells the caller whether a mutation left the store consistent.
type ApplyStatus string

const (
	// StatusApplied means every step committed and no drift was found.
	StatusApplied ApplyStatus = "applied"
	// StatusRepairRequired means the mutation committed but orphaned rows
	// remain; run the orphan cleanup.
	StatusRepairRequired ApplyStatus = "repair_required"
)

// Change operations.
const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpDeleted = "deleted"
)

// Change names one entity touched by a mutation.
type Change struct {
	Table string `json:"table"`
	ID    string `json:"id"`
	Op    string `json:"op"`
}

// Result describes everything a mutation did, including its side effects on
// linked quarantine procedures and the alert ledger.
type Result struct {
	ID      string         `json:"id,omitempty"`
	Status  ApplyStatus    `json:"status"`
	Removed map[string]int `json:"removed,omitempty"`
	Stages  *StageStatus   `json:"stages,omitempty"`
	Alerts  []string       `json:"alerts,omitempty"`
	Changes []Change       `json:"changes"`
}

// DeletionImpact is the blast radius of deleting a procedure. It is shown to
// the user before the delete and may be passed back to confirm it.
type DeletionImpact struct {
	Table            string `json:"table"`
	ID               string `json:"id"`
	ProcedureNumber  string `json:"procedure_number,omitempty"`
	Samples          int    `json:"samples"`
	Results          int    `json:"results"`
	Shipments        int    `json:"shipments"`
	TrackingEvents   int    `json:"tracking_events"`
	Ratings          int    `json:"ratings"`
	Traders          int    `json:"traders"`
	LinkedLab        bool   `json:"linked_lab_procedure"`
	LinkedQuarantine bool   `json:"linked_quarantine_procedure"`
}

// DeleteOptions carries the impact the caller confirmed. When Expected is
// set and differs from the current impact, the delete is refused.
type DeleteOptions struct {
	Expected *DeletionImpact `json:"expected,omitempty"`
}

// CleanupReport counts rows removed by an orphan cleanup pass.
type CleanupReport struct {
	Samples int `json:"samples"`
	Results int `json:"results"`
}

// MigrationStep records the outcome of one schema or backfill step.
type MigrationStep struct {
	Name    string `json:"name"`
	Applied bool   `json:"applied"`
	Rows    int64  `json:"rows,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MigrationReport summarizes what Attach did to the store.
type MigrationReport struct {
	Recreated bool            `json:"recreated"`
	Steps     []MigrationStep `json:"steps"`
	Seeded    []string        `json:"seeded,omitempty"`
}
