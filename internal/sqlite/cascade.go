// This file implements cascading deletes for lab and quarantine procedures.
package sqlite

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// maxInParams bounds the placeholders of a single IN (...) list.
const maxInParams = 500

// selectIDs runs a query returning a single id column.
func selectIDs(q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// inClause returns "?, ?, ..." and the matching arguments.
func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}

// chunks splits ids into slices of at most maxInParams.
func chunks(ids []string) [][]string {
	var out [][]string
	for len(ids) > maxInParams {
		out = append(out, ids[:maxInParams])
		ids = ids[maxInParams:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// deleteByIDs removes rows of table by id and records each deletion.
func (w *txn) deleteByIDs(table string, ids []string) error {
	for _, chunk := range chunks(ids) {
		list, args := inClause(chunk)
		if _, err := w.tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", table, list), args...); err != nil {
			return fmt.Errorf("deleting from %s: %w", table, err)
		}
		for _, id := range chunk {
			w.record(table, id, types.OpDeleted)
		}
	}
	w.removed(table, len(ids))
	return nil
}

// deleteResultsOf removes every result belonging to the given samples.
func (w *txn) deleteResultsOf(sampleIDs []string) error {
	var resultIDs []string
	for _, chunk := range chunks(sampleIDs) {
		list, args := inClause(chunk)
		ids, err := selectIDs(w.tx, fmt.Sprintf("SELECT id FROM test_results WHERE sample_id IN (%s)", list), args...)
		if err != nil {
			return err
		}
		resultIDs = append(resultIDs, ids...)
	}
	return w.deleteByIDs(types.TableTestResults, resultIDs)
}

// checkImpact refuses the delete when the caller confirmed a different
// impact than the one about to be applied.
func checkImpact(expected, actual *types.DeletionImpact) error {
	if expected == nil || *expected == *actual {
		return nil
	}
	return fmt.Errorf("%s %s: %w", actual.Table, actual.ID, types.ErrImpactChanged)
}

// DeleteLabProcedure removes a lab procedure with its samples and their
// results in one transaction. A linked quarantine procedure regresses to
// samples pending and gets a "deleted" alert.
func (b *Backend) DeleteLabProcedure(id string, opts types.DeleteOptions) (*types.Result, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	return b.write(func(w *txn) error {
		impact, err := b.labDeletionImpact(w.tx, id)
		if err != nil {
			return err
		}
		if err := checkImpact(opts.Expected, impact); err != nil {
			return err
		}
		w.probeDrift = true

		sampleIDs, err := selectIDs(w.tx, "SELECT id FROM samples WHERE saved_sample_id = ?", id)
		if err != nil {
			return err
		}
		if err := w.deleteResultsOf(sampleIDs); err != nil {
			return err
		}
		if err := w.deleteByIDs(types.TableSamples, sampleIDs); err != nil {
			return err
		}
		if err := w.deleteByIDs(types.TableLabProcedures, []string{id}); err != nil {
			return err
		}
		w.result.ID = id
		return w.notifyQuarantine(impact.ProcedureNumber, types.EventLabProcedureDeleted, types.ActionDeleted)
	})
}

// DeleteQuarantineProcedure removes a quarantine procedure together with the
// shipments, tracking events, ratings and traders sharing its number. A
// "deleted" alert is written only when a lab procedure is linked to it.
func (b *Backend) DeleteQuarantineProcedure(id string, opts types.DeleteOptions) (*types.Result, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	return b.write(func(w *txn) error {
		impact, err := b.quarantineDeletionImpact(w.tx, id)
		if err != nil {
			return err
		}
		if err := checkImpact(opts.Expected, impact); err != nil {
			return err
		}
		w.probeDrift = true

		for _, table := range types.AssociatedTableNames {
			ids, err := selectIDs(w.tx, fmt.Sprintf("SELECT id FROM %s WHERE procedure_number = ?", table), impact.ProcedureNumber)
			if err != nil {
				return err
			}
			if err := w.deleteByIDs(table, ids); err != nil {
				return err
			}
		}
		if err := w.deleteByIDs(types.TableQuarantineProcedures, []string{id}); err != nil {
			return err
		}
		w.result.ID = id
		if impact.LinkedLab {
			if _, err := w.insertAlert(impact.ProcedureNumber, types.ActionDeleted); err != nil {
				return err
			}
		}
		return nil
	})
}
