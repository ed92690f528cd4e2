package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// notifyQuarantine runs the quarantine side of a lab event. When number
// resolves to a quarantine procedure, event (if any) is applied to its
// stages and an alert of type action (if any) is written. Numbers that
// resolve to nothing are ignored.
func (w *txn) notifyQuarantine(number string, event types.StageEvent, action string) error {
	if number == "" {
		return nil
	}
	var (
		id  string
		raw sql.NullString
	)
	err := w.tx.QueryRow(
		"SELECT id, stage_status FROM vet_procedures WHERE procedure_number = ? ORDER BY created_at, id LIMIT 1",
		number,
	).Scan(&id, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolving quarantine procedure %s: %w", number, err)
	}

	if event != "" {
		if err := w.applyStageEvent(id, raw, event); err != nil {
			return err
		}
	}
	if action != "" {
		if _, err := w.insertAlert(number, action); err != nil {
			return err
		}
	}
	return nil
}

// applyStageEvent moves the stored stage payload of one procedure and
// writes it back in the wrapped shape.
func (w *txn) applyStageEvent(id string, raw sql.NullString, event types.StageEvent) error {
	current := w.loadStages(id, raw)
	next, err := current.Apply(event, w.now)
	if err != nil {
		return err
	}
	encoded, err := next.Encode()
	if err != nil {
		return err
	}
	if _, err := w.tx.Exec(
		"UPDATE vet_procedures SET stage_status = ?, updated_at = ? WHERE id = ?",
		encoded, formatTime(w.now), id,
	); err != nil {
		return fmt.Errorf("updating stages of %s: %w", id, err)
	}
	status := next.Status
	w.result.Stages = &status
	w.record(types.TableQuarantineProcedures, id, types.OpUpdated)
	return nil
}

// loadStages parses a stored payload. Missing or unparseable payloads start
// from the initial state.
func (w *txn) loadStages(id string, raw sql.NullString) types.StagePayload {
	if !raw.Valid {
		return types.NewStagePayload(w.now)
	}
	p, err := types.ParseStagePayload(raw.String)
	if err != nil {
		w.b.log.Debug().Err(err).Str("id", id).Msg("unparseable stage payload, starting from initial state")
		return types.NewStagePayload(w.now)
	}
	if p.Shape == types.ShapeEmpty {
		return types.NewStagePayload(w.now)
	}
	return p
}
