// This file implements lab procedure (saved_samples) reads and writes.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

var labSpec = tableSpecs[types.TableLabProcedures]

// scanLabProcedure hydrates a saved_samples row. A quality_check value that
// does not parse is returned as nil.
func (b *Backend) scanLabProcedure(row rowScanner) (*types.LabProcedure, error) {
	var (
		p                types.LabProcedure
		ext, qc          sql.NullString
		created, updated string
	)
	if err := row.Scan(
		&p.ID, &p.InternalNumber, &ext, &p.ClientName, &p.ClientPhone,
		&p.SamplingLocation, &p.ReceptionDate, &p.ReceivedBy, &qc, &p.Notes,
		&created, &updated,
	); err != nil {
		return nil, err
	}
	p.ExternalProcedureNumber = stringPtr(ext)
	p.QualityCheck = decodeJSON[types.QualityCheck](b.log, labSpec.name, "quality_check", p.ID, qc)
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

func (b *Backend) getLabProcedure(q queryer, id string) (*types.LabProcedure, error) {
	return queryOne(q, labSpec, id, b.scanLabProcedure)
}

// labProcedureByExternal returns the lab procedure registered under an
// external number, or nil when there is none.
func (b *Backend) labProcedureByExternal(q queryer, number string) (*types.LabProcedure, error) {
	if number == "" {
		return nil, nil
	}
	list, err := queryWhere(q, labSpec, " WHERE external_procedure_number = ?", []any{number}, b.scanLabProcedure)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// checkExternalFree returns ErrExternalNumberInUse when another lab
// procedure already registered number.
func (b *Backend) checkExternalFree(q queryer, number, selfID string) error {
	if number == "" {
		return nil
	}
	var id string
	err := q.QueryRow(
		"SELECT id FROM saved_samples WHERE external_procedure_number = ? AND id <> ? LIMIT 1",
		number, selfID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking external number: %w", err)
	}
	return fmt.Errorf("%s: %w", number, types.ErrExternalNumberInUse)
}

// CreateLabProcedure inserts a lab procedure and its inline samples in one
// transaction. An empty InternalNumber reserves the next lab number. When
// the external number resolves to a quarantine procedure, its stages move to
// samples delivered and a "new" alert is written.
func (b *Backend) CreateLabProcedure(p *types.LabProcedure, samples []*types.Sample) (*types.Result, error) {
	if p == nil {
		return nil, types.ErrInvalidData
	}
	for _, s := range samples {
		if s == nil {
			return nil, types.ErrInvalidData
		}
	}
	ext := p.External()

	return b.write(func(w *txn) error {
		if err := b.checkExternalFree(w.tx, ext, ""); err != nil {
			return err
		}
		number, err := w.assignNumber(types.SuffixLab, p.InternalNumber)
		if err != nil {
			return err
		}
		id, err := newID()
		if err != nil {
			return err
		}
		qc, err := encodeJSON(p.QualityCheck)
		if err != nil {
			return err
		}

		_, err = w.tx.Exec(`INSERT INTO saved_samples (id, internal_number, external_procedure_number,
    client_name, client_phone, sampling_location, reception_date, received_by, quality_check, notes,
    created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, number, nullString(p.ExternalProcedureNumber),
			p.ClientName, p.ClientPhone, p.SamplingLocation, p.ReceptionDate, p.ReceivedBy, qc, p.Notes,
			formatTime(w.now), formatTime(w.now),
		)
		if err != nil {
			return fmt.Errorf("inserting lab procedure: %w", err)
		}
		p.ID = id
		p.InternalNumber = number
		if ext == "" {
			p.ExternalProcedureNumber = nil
		}
		p.CreatedAt, p.UpdatedAt = w.now, w.now
		w.result.ID = id
		w.record(types.TableLabProcedures, id, types.OpCreated)

		for _, s := range samples {
			s.LabProcedureID = id
			if err := w.insertSample(s, p); err != nil {
				return err
			}
		}
		return w.notifyQuarantine(ext, types.EventSamplesDelivered, types.ActionNew)
	})
}

// UpdateLabProcedure applies a partial update. Changing the external number
// relinks the procedure: the previously linked quarantine procedure regresses
// as if its lab procedure were deleted, and the newly linked one moves to
// samples delivered. Samples and results keep the number they were created
// with.
func (b *Backend) UpdateLabProcedure(id string, fields map[string]any) (*types.Result, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	sets, args, err := labSpec.updateFields(fields)
	if err != nil {
		return nil, err
	}

	return b.write(func(w *txn) error {
		before, err := b.getLabProcedure(w.tx, id)
		if err != nil {
			return err
		}
		oldExt := before.External()
		newExt := oldExt
		if v, ok := fields["external_procedure_number"]; ok {
			conv, err := toColumnValue(column{kind: kindNullText}, v)
			if err != nil {
				return err
			}
			newExt, _ = conv.(string)
		}
		if newExt != oldExt {
			if err := b.checkExternalFree(w.tx, newExt, id); err != nil {
				return err
			}
		}

		if err := w.execUpdate(labSpec, id, sets, args); err != nil {
			return err
		}
		w.result.ID = id

		if newExt == oldExt {
			return w.notifyQuarantine(oldExt, "", types.ActionUpdated)
		}
		if err := w.notifyQuarantine(oldExt, types.EventLabProcedureDeleted, types.ActionUpdated); err != nil {
			return err
		}
		return w.notifyQuarantine(newExt, types.EventSamplesDelivered, types.ActionNew)
	})
}

// PreviewLabProcedureDeletion returns what deleting the lab procedure would
// remove, without writing anything.
func (b *Backend) PreviewLabProcedureDeletion(id string) (*types.DeletionImpact, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	var impact *types.DeletionImpact
	err := b.read(func() error {
		var err error
		impact, err = b.labDeletionImpact(b.db, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return impact, nil
}
