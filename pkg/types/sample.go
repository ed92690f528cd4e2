package types

import "time"

// Sample is a specimen group received under a LabProcedure.
// ExternalProcedureNumber is a snapshot of the parent's external number taken
// when the sample is created; later changes to the parent are not copied.
type Sample struct {
	ID                      string    `json:"id"`
	LabProcedureID          string    `json:"saved_sample_id"`
	Department              string    `json:"department"`
	Section                 string    `json:"section"`
	RequestedTest           string    `json:"requested_test"`
	SampleType              string    `json:"sample_type"`
	AnimalType              string    `json:"animal_type"`
	SampleCount             int       `json:"sample_count"`
	ExternalProcedureNumber *string   `json:"external_procedure_number"`
	Notes                   string    `json:"notes"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}
