// This file implements quarantine procedure (vet_procedures) reads and writes.
package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

var quarantineSpec = tableSpecs[types.TableQuarantineProcedures]

// scanQuarantineProcedure hydrates a vet_procedures row. Either stored stage
// payload shape is accepted; a payload that does not parse is returned as a
// nil StageStatus.
func (b *Backend) scanQuarantineProcedure(row rowScanner) (*types.QuarantineProcedure, error) {
	var (
		p                types.QuarantineProcedure
		urgent           int
		stages           sql.NullString
		created, updated string
	)
	if err := row.Scan(
		&p.ID, &p.ProcedureNumber, &p.ImporterName, &p.OriginCountry, &p.AnimalType,
		&p.AnimalCount, &p.ArrivalDate, &p.PortOfEntry, &urgent, &stages, &p.Notes,
		&created, &updated,
	); err != nil {
		return nil, err
	}
	p.IsUrgent = urgent != 0
	if stages.Valid {
		payload, err := types.ParseStagePayload(stages.String)
		switch {
		case err != nil:
			b.log.Debug().Err(err).Str("table", quarantineSpec.name).Str("column", "stage_status").
				Str("id", p.ID).Msg("unparseable JSON column read as null")
		case payload.Shape != types.ShapeEmpty:
			status := payload.Status
			p.StageStatus = &status
			p.StageTimings = payload.Timings
		}
	}
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

func (b *Backend) getQuarantineProcedure(q queryer, id string) (*types.QuarantineProcedure, error) {
	return queryOne(q, quarantineSpec, id, b.scanQuarantineProcedure)
}

// quarantineByNumber returns the quarantine procedure carrying number, or
// nil when there is none.
func (b *Backend) quarantineByNumber(q queryer, number string) (*types.QuarantineProcedure, error) {
	if number == "" {
		return nil, nil
	}
	list, err := queryWhere(q, quarantineSpec, " WHERE procedure_number = ?", []any{number}, b.scanQuarantineProcedure)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[len(list)-1], nil
}

// CreateQuarantineProcedure inserts a quarantine procedure with the initial
// stage status. An empty ProcedureNumber reserves the next quarantine number.
// If a lab procedure already registered the number, the samples are treated
// as delivered.
func (b *Backend) CreateQuarantineProcedure(p *types.QuarantineProcedure) (*types.Result, error) {
	if p == nil {
		return nil, types.ErrInvalidData
	}
	return b.write(func(w *txn) error {
		number, err := w.assignNumber(types.SuffixQuarantine, p.ProcedureNumber)
		if err != nil {
			return err
		}
		id, err := newID()
		if err != nil {
			return err
		}
		payload := types.NewStagePayload(w.now)
		lab, err := b.labProcedureByExternal(w.tx, number)
		if err != nil {
			return err
		}
		if lab != nil {
			if payload, err = payload.Apply(types.EventSamplesDelivered, w.now); err != nil {
				return err
			}
		}
		encoded, err := payload.Encode()
		if err != nil {
			return err
		}

		_, err = w.tx.Exec(`INSERT INTO vet_procedures (id, procedure_number, importer_name, origin_country,
    animal_type, animal_count, arrival_date, port_of_entry, is_urgent, stage_status, notes,
    created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, number, p.ImporterName, p.OriginCountry, p.AnimalType, p.AnimalCount,
			p.ArrivalDate, p.PortOfEntry, boolToInt(p.IsUrgent), encoded, p.Notes,
			formatTime(w.now), formatTime(w.now),
		)
		if err != nil {
			return fmt.Errorf("inserting quarantine procedure: %w", err)
		}
		status := payload.Status
		p.ID = id
		p.ProcedureNumber = number
		p.StageStatus = &status
		p.StageTimings = payload.Timings
		p.CreatedAt, p.UpdatedAt = w.now, w.now
		w.result.ID = id
		w.result.Stages = &status
		w.record(types.TableQuarantineProcedures, id, types.OpCreated)
		return nil
	})
}

// PreviewQuarantineDeletion returns what deleting the quarantine procedure
// would remove, without writing anything.
func (b *Backend) PreviewQuarantineDeletion(id string) (*types.DeletionImpact, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	var impact *types.DeletionImpact
	err := b.read(func() error {
		var err error
		impact, err = b.quarantineDeletionImpact(b.db, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return impact, nil
}
