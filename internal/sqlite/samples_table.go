package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

var sampleSpec = tableSpecs[types.TableSamples]

func scanSample(row rowScanner) (*types.Sample, error) {
	var (
		s                types.Sample
		ext              sql.NullString
		created, updated string
	)
	if err := row.Scan(
		&s.ID, &s.LabProcedureID, &s.Department, &s.Section, &s.RequestedTest,
		&s.SampleType, &s.AnimalType, &s.SampleCount, &ext, &s.Notes,
		&created, &updated,
	); err != nil {
		return nil, err
	}
	s.ExternalProcedureNumber = stringPtr(ext)
	s.CreatedAt = parseTime(created)
	s.UpdatedAt = parseTime(updated)
	return &s, nil
}

func getSample(q queryer, id string) (*types.Sample, error) {
	return queryOne(q, sampleSpec, id, scanSample)
}

// insertSample writes s under parent, copying the parent's current external
// number onto the sample.
func (w *txn) insertSample(s *types.Sample, parent *types.LabProcedure) error {
	id, err := newID()
	if err != nil {
		return err
	}
	var ext *string
	if e := parent.External(); e != "" {
		ext = &e
	}
	_, err = w.tx.Exec(`INSERT INTO samples (id, saved_sample_id, department, section, requested_test,
    sample_type, animal_type, sample_count, external_procedure_number, notes, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, parent.ID, s.Department, s.Section, s.RequestedTest,
		s.SampleType, s.AnimalType, s.SampleCount, nullString(ext), s.Notes,
		formatTime(w.now), formatTime(w.now),
	)
	if err != nil {
		return fmt.Errorf("inserting sample: %w", err)
	}
	s.ID = id
	s.LabProcedureID = parent.ID
	s.ExternalProcedureNumber = ext
	s.CreatedAt, s.UpdatedAt = w.now, w.now
	w.record(types.TableSamples, id, types.OpCreated)
	return nil
}

// CreateSample adds a sample to an existing lab procedure. A linked
// quarantine procedure gets an "updated" alert.
func (b *Backend) CreateSample(s *types.Sample) (*types.Result, error) {
	if s == nil {
		return nil, types.ErrInvalidData
	}
	if s.LabProcedureID == "" {
		return nil, types.ErrInvalidID
	}
	return b.write(func(w *txn) error {
		parent, err := b.getLabProcedure(w.tx, s.LabProcedureID)
		if err != nil {
			return err
		}
		if err := w.insertSample(s, parent); err != nil {
			return err
		}
		w.result.ID = s.ID
		return w.notifyQuarantine(parent.External(), "", types.ActionUpdated)
	})
}

// DeleteSample removes a sample and its results. A linked quarantine
// procedure gets an "updated" alert.
func (b *Backend) DeleteSample(id string) (*types.Result, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	return b.write(func(w *txn) error {
		s, err := getSample(w.tx, id)
		if err != nil {
			return err
		}
		w.probeDrift = true
		if err := w.deleteResultsOf([]string{id}); err != nil {
			return err
		}
		if err := w.deleteByIDs(types.TableSamples, []string{id}); err != nil {
			return err
		}
		w.result.ID = id
		var ext string
		if s.ExternalProcedureNumber != nil {
			ext = *s.ExternalProcedureNumber
		}
		return w.notifyQuarantine(ext, "", types.ActionUpdated)
	})
}
