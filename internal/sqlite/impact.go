package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// labDeletionImpact counts what deleting a lab procedure removes.
func (b *Backend) labDeletionImpact(q queryer, id string) (*types.DeletionImpact, error) {
	var ext sql.NullString
	err := q.QueryRow("SELECT external_procedure_number FROM saved_samples WHERE id = ?", id).Scan(&ext)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", types.TableLabProcedures, id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading lab procedure %s: %w", id, err)
	}

	impact := &types.DeletionImpact{Table: types.TableLabProcedures, ID: id}
	if ext.Valid {
		impact.ProcedureNumber = ext.String
	}
	err = q.QueryRow(`SELECT
    (SELECT COUNT(*) FROM samples WHERE saved_sample_id = ?),
    (SELECT COUNT(*) FROM test_results WHERE sample_id IN (SELECT id FROM samples WHERE saved_sample_id = ?))`,
		id, id,
	).Scan(&impact.Samples, &impact.Results)
	if err != nil {
		return nil, fmt.Errorf("counting lab procedure children: %w", err)
	}
	if impact.ProcedureNumber != "" {
		if err := q.QueryRow(
			"SELECT EXISTS (SELECT 1 FROM vet_procedures WHERE procedure_number = ?)", impact.ProcedureNumber,
		).Scan(&impact.LinkedQuarantine); err != nil {
			return nil, fmt.Errorf("resolving linked quarantine procedure: %w", err)
		}
	}
	return impact, nil
}

// quarantineDeletionImpact counts what deleting a quarantine procedure
// removes.
func (b *Backend) quarantineDeletionImpact(q queryer, id string) (*types.DeletionImpact, error) {
	var number sql.NullString
	err := q.QueryRow("SELECT procedure_number FROM vet_procedures WHERE id = ?", id).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", types.TableQuarantineProcedures, id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading quarantine procedure %s: %w", id, err)
	}

	impact := &types.DeletionImpact{Table: types.TableQuarantineProcedures, ID: id, ProcedureNumber: number.String}
	err = q.QueryRow(`SELECT
    (SELECT COUNT(*) FROM shipments WHERE procedure_number = ?),
    (SELECT COUNT(*) FROM tracking_events WHERE procedure_number = ?),
    (SELECT COUNT(*) FROM ratings WHERE procedure_number = ?),
    (SELECT COUNT(*) FROM traders WHERE procedure_number = ?),
    EXISTS (SELECT 1 FROM saved_samples WHERE external_procedure_number = ?)`,
		impact.ProcedureNumber, impact.ProcedureNumber, impact.ProcedureNumber,
		impact.ProcedureNumber, impact.ProcedureNumber,
	).Scan(&impact.Shipments, &impact.TrackingEvents, &impact.Ratings, &impact.Traders, &impact.LinkedLab)
	if err != nil {
		return nil, fmt.Errorf("counting quarantine procedure records: %w", err)
	}
	return impact, nil
}
