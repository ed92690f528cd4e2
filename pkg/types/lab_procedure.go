package types

import "time"

// LabProcedure is a laboratory intake record (persisted in saved_samples).
// InternalNumber lives in the lab numbering domain (suffix L). The optional
// ExternalProcedureNumber links it to the QuarantineProcedure carrying the
// same number; at most one LabProcedure may register a given external number.
type LabProcedure struct {
	ID                      string        `json:"id"`
	InternalNumber          string        `json:"internal_number"`
	ExternalProcedureNumber *string       `json:"external_procedure_number"`
	ClientName              string        `json:"client_name"`
	ClientPhone             string        `json:"client_phone"`
	SamplingLocation        string        `json:"sampling_location"`
	ReceptionDate           string        `json:"reception_date"`
	ReceivedBy              string        `json:"received_by"`
	QualityCheck            *QualityCheck `json:"quality_check"`
	Notes                   string        `json:"notes"`
	CreatedAt               time.Time     `json:"created_at"`
	UpdatedAt               time.Time     `json:"updated_at"`
}

// QualityCheck is the intake inspection embedded in a LabProcedure.
type QualityCheck struct {
	SampleCondition string `json:"sample_condition"`
	TemperatureOK   bool   `json:"temperature_ok"`
	ContainerIntact bool   `json:"container_intact"`
	LabelingOK      bool   `json:"labeling_ok"`
	Notes           string `json:"notes,omitempty"`
}

// External returns the external procedure number or the empty string.
func (p *LabProcedure) External() string {
	if p.ExternalProcedureNumber == nil {
		return ""
	}
	return *p.ExternalProcedureNumber
}
