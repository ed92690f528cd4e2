// This file implements the alert ledger.
package sqlite

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

var alertSpec = tableSpecs[types.TableAlerts]

func scanAlert(row rowScanner) (*types.Alert, error) {
	var (
		a         types.Alert
		dismissed int
		created   string
	)
	if err := row.Scan(&a.ID, &a.ProcedureNumber, &a.ActionType, &dismissed, &created); err != nil {
		return nil, err
	}
	a.Dismissed = dismissed != 0
	a.CreatedAt = parseTime(created)
	return &a, nil
}

func getAlert(q queryer, id string) (*types.Alert, error) {
	return queryOne(q, alertSpec, id, scanAlert)
}

// insertAlert appends a row to the ledger. Rows are never upserted.
func (w *txn) insertAlert(number, action string) (*types.Alert, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	_, err = w.tx.Exec(
		"INSERT INTO alerts (id, procedure_number, action_type, created_at, is_dismissed) VALUES (?, ?, ?, ?, 0)",
		id, number, action, formatTime(w.now),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting alert: %w", err)
	}
	w.alertActions = append(w.alertActions, action)
	w.result.Alerts = append(w.result.Alerts, action)
	w.record(types.TableAlerts, id, types.OpCreated)
	return &types.Alert{ID: id, ProcedureNumber: number, ActionType: action, CreatedAt: w.now}, nil
}

// CreateAlert appends an alert for a procedure number.
func (b *Backend) CreateAlert(procedureNumber, actionType string) (*types.Alert, error) {
	if strings.TrimSpace(procedureNumber) == "" {
		return nil, fmt.Errorf("procedure number: %w", types.ErrInvalidData)
	}
	if !types.ValidAction(actionType) {
		return nil, fmt.Errorf("%q: %w", actionType, types.ErrInvalidAction)
	}
	var alert *types.Alert
	_, err := b.write(func(w *txn) error {
		var err error
		alert, err = w.insertAlert(procedureNumber, actionType)
		return err
	})
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// ActiveAlertFor returns the alert to surface for a procedure number.
// Returns ErrNotFound when every alert is dismissed or none exist.
func (b *Backend) ActiveAlertFor(procedureNumber string) (*types.Alert, error) {
	var active *types.Alert
	err := b.read(func() error {
		list, err := queryWhere(b.db, alertSpec,
			" WHERE procedure_number = ? AND COALESCE(is_dismissed, 0) = 0",
			[]any{procedureNumber}, scanAlert)
		if err != nil {
			return err
		}
		active = types.SelectActive(list)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, fmt.Errorf("active alert for %s: %w", procedureNumber, types.ErrNotFound)
	}
	return active, nil
}

// DismissAlerts marks every non-dismissed alert of the procedure number as
// dismissed. An empty actionType dismisses every type. Returns the number of
// rows dismissed.
func (b *Backend) DismissAlerts(procedureNumber, actionType string) (int, error) {
	if actionType != "" && !types.ValidAction(actionType) {
		return 0, fmt.Errorf("%q: %w", actionType, types.ErrInvalidAction)
	}
	where := " WHERE procedure_number = ? AND COALESCE(is_dismissed, 0) = 0"
	args := []any{procedureNumber}
	if actionType != "" {
		where += " AND action_type = ?"
		args = append(args, actionType)
	}
	var count int
	_, err := b.write(func(w *txn) error {
		ids, err := selectIDs(w.tx, "SELECT id FROM alerts"+where, args...)
		if err != nil {
			return err
		}
		if _, err := w.tx.Exec("UPDATE alerts SET is_dismissed = 1"+where, args...); err != nil {
			return fmt.Errorf("dismissing alerts: %w", err)
		}
		for _, id := range ids {
			w.record(types.TableAlerts, id, types.OpUpdated)
		}
		count = len(ids)
		return nil
	})
	return count, err
}

// PurgeOrphanAlerts deletes alerts whose procedure number matches no
// quarantine procedure. Returns the number of rows deleted.
func (b *Backend) PurgeOrphanAlerts() (int, error) {
	const where = " WHERE procedure_number NOT IN (" +
		"SELECT procedure_number FROM vet_procedures WHERE procedure_number IS NOT NULL)"
	var count int
	_, err := b.write(func(w *txn) error {
		w.orphanPass = true
		ids, err := selectIDs(w.tx, "SELECT id FROM alerts"+where)
		if err != nil {
			return err
		}
		if err := w.deleteByIDs(types.TableAlerts, ids); err != nil {
			return err
		}
		count = len(ids)
		return nil
	})
	return count, err
}
