package types

import "time"

// QuarantineProcedure is a veterinary quarantine procedure (persisted in
// vet_procedures). Its ProcedureNumber lives in the quarantine numbering
// domain (suffix Q) and is the key other records link to.
type QuarantineProcedure struct {
	ID              string       `json:"id"`
	ProcedureNumber string       `json:"procedure_number"`
	ImporterName    string       `json:"importer_name"`
	OriginCountry   string       `json:"origin_country"`
	AnimalType      string       `json:"animal_type"`
	AnimalCount     int          `json:"animal_count"`
	ArrivalDate     string       `json:"arrival_date"`
	PortOfEntry     string       `json:"port_of_entry"`
	IsUrgent        bool         `json:"is_urgent"`
	StageStatus     *StageStatus `json:"stage_status"`
	StageTimings    StageTimings `json:"stage_timings,omitempty"`
	Notes           string       `json:"notes"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Shipment describes the consignment of a quarantine procedure.
type Shipment struct {
	ID              string    `json:"id"`
	ProcedureNumber string    `json:"procedure_number"`
	Carrier         string    `json:"carrier"`
	ContainerNumber string    `json:"container_number"`
	ShippedAt       string    `json:"shipped_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TrackingEvent is one position report for a consignment.
type TrackingEvent struct {
	ID              string    `json:"id"`
	ProcedureNumber string    `json:"procedure_number"`
	Location        string    `json:"location"`
	Status          string    `json:"status"`
	RecordedAt      string    `json:"recorded_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Rating is a service rating left for a quarantine procedure.
type Rating struct {
	ID              string    `json:"id"`
	ProcedureNumber string    `json:"procedure_number"`
	Score           int       `json:"score"`
	Comment         string    `json:"comment"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Trader is the importing party of a quarantine procedure.
type Trader struct {
	ID              string    `json:"id"`
	ProcedureNumber string    `json:"procedure_number"`
	Name            string    `json:"name"`
	LicenseNumber   string    `json:"license_number"`
	Phone           string    `json:"phone"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
