package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// Compile-time interface check: table must implement Table.
var _ types.Table = (*table)(nil)

// table implements types.Table for a single entity type. Writes route to
// the backend's typed operations so that cascades and linked side effects
// run the same way whichever entry point the caller used.
type table struct {
	name    string
	spec    *tableSpec
	backend *Backend
}

func newTable(b *Backend, name string) *table {
	return &table{name: name, spec: tableSpecs[name], backend: b}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Create inserts a new entity. data must be a pointer to the entity struct
// of this table; the generated ID is written back into it.
func (t *table) Create(data any) (string, error) {
	var (
		res *types.Result
		err error
	)
	switch t.name {
	case types.TableLabProcedures:
		p, ok := data.(*types.LabProcedure)
		if !ok || p == nil {
			return "", types.ErrInvalidData
		}
		res, err = t.backend.CreateLabProcedure(p, nil)
	case types.TableSamples:
		s, ok := data.(*types.Sample)
		if !ok || s == nil {
			return "", types.ErrInvalidData
		}
		res, err = t.backend.CreateSample(s)
	case types.TableTestResults:
		r, ok := data.(*types.TestResult)
		if !ok || r == nil {
			return "", types.ErrInvalidData
		}
		res, err = t.backend.CreateTestResult(r)
	case types.TableQuarantineProcedures:
		p, ok := data.(*types.QuarantineProcedure)
		if !ok || p == nil {
			return "", types.ErrInvalidData
		}
		res, err = t.backend.CreateQuarantineProcedure(p)
	case types.TableAlerts:
		a, ok := data.(*types.Alert)
		if !ok || a == nil {
			return "", types.ErrInvalidData
		}
		created, err := t.backend.CreateAlert(a.ProcedureNumber, a.ActionType)
		if err != nil {
			return "", err
		}
		*a = *created
		return a.ID, nil
	default:
		res, err = t.backend.createAssociated(t.name, data)
	}
	if err != nil {
		return "", err
	}
	return res.ID, nil
}

// Get retrieves an entity by ID.
// Returns ErrInvalidID if id is empty, ErrNotFound if not found.
func (t *table) Get(id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	var out any
	err := t.backend.read(func() error {
		v, err := t.backend.getEntity(t.backend.db, t.name, id)
		out = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Fetch returns all entities matching filter, newest first.
func (t *table) Fetch(filter types.Filter) ([]any, error) {
	var out []any
	err := t.backend.read(func() error {
		v, err := t.backend.fetchEntities(t.backend.db, t.name, filter)
		out = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update applies a partial set of column values.
func (t *table) Update(id string, fields map[string]any) error {
	if id == "" {
		return types.ErrInvalidID
	}
	var err error
	switch t.name {
	case types.TableLabProcedures:
		_, err = t.backend.UpdateLabProcedure(id, fields)
	case types.TableTestResults:
		_, err = t.backend.UpdateTestResult(id, fields)
	default:
		_, err = t.backend.updateRow(t.name, id, fields)
	}
	return err
}

// Delete removes the entity and cascades to its children.
func (t *table) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	var err error
	switch t.name {
	case types.TableLabProcedures:
		_, err = t.backend.DeleteLabProcedure(id, types.DeleteOptions{})
	case types.TableSamples:
		_, err = t.backend.DeleteSample(id)
	case types.TableTestResults:
		_, err = t.backend.DeleteTestResult(id)
	case types.TableQuarantineProcedures:
		_, err = t.backend.DeleteQuarantineProcedure(id, types.DeleteOptions{})
	default:
		_, err = t.backend.deleteRow(t.name, id)
	}
	return err
}

// getEntity loads one hydrated entity of the named table.
func (b *Backend) getEntity(q queryer, name, id string) (any, error) {
	switch name {
	case types.TableLabProcedures:
		return b.getLabProcedure(q, id)
	case types.TableSamples:
		return getSample(q, id)
	case types.TableTestResults:
		return b.getTestResult(q, id)
	case types.TableQuarantineProcedures:
		return b.getQuarantineProcedure(q, id)
	case types.TableAlerts:
		return getAlert(q, id)
	}
	if _, err := specFor(name); err != nil {
		return nil, err
	}
	return getAssociated(q, name, id)
}

// fetchEntities loads every hydrated entity of the named table that
// matches filter.
func (b *Backend) fetchEntities(q queryer, name string, filter types.Filter) ([]any, error) {
	switch name {
	case types.TableLabProcedures:
		return collect(queryAll(q, tableSpecs[name], filter, b.scanLabProcedure))
	case types.TableSamples:
		return collect(queryAll(q, tableSpecs[name], filter, scanSample))
	case types.TableTestResults:
		return collect(queryAll(q, tableSpecs[name], filter, b.scanTestResult))
	case types.TableQuarantineProcedures:
		return collect(queryAll(q, tableSpecs[name], filter, b.scanQuarantineProcedure))
	case types.TableAlerts:
		return collect(queryAll(q, tableSpecs[name], filter, scanAlert))
	}
	spec, err := specFor(name)
	if err != nil {
		return nil, err
	}
	return fetchAssociated(q, spec, filter)
}

func collect[T any](items []*T, err error) ([]any, error) {
	if err != nil {
		return nil, err
	}
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out, nil
}

// queryOne loads the row with the given id.
func queryOne[T any](q queryer, spec *tableSpec, id string, scan func(rowScanner) (*T, error)) (*T, error) {
	row := q.QueryRow(fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", spec.selectList(), spec.name), id)
	v, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", spec.name, id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s %s: %w", spec.name, id, err)
	}
	return v, nil
}

// queryAll loads every row matching filter, newest first.
func queryAll[T any](q queryer, spec *tableSpec, filter types.Filter, scan func(rowScanner) (*T, error)) ([]*T, error) {
	where, args, err := spec.whereClause(filter)
	if err != nil {
		return nil, err
	}
	return queryWhere(q, spec, where, args, scan)
}

// queryWhere runs a select with a raw WHERE clause, newest first.
func queryWhere[T any](q queryer, spec *tableSpec, where string, args []any, scan func(rowScanner) (*T, error)) ([]*T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY created_at DESC, id DESC", spec.selectList(), spec.name, where)
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", spec.name, err)
	}
	defer rows.Close()

	out := []*T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", spec.name, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", spec.name, err)
	}
	return out, nil
}

// updateRow applies a validated partial update to a table that has no
// linked side effects.
func (b *Backend) updateRow(name, id string, fields map[string]any) (*types.Result, error) {
	spec, err := specFor(name)
	if err != nil {
		return nil, err
	}
	sets, args, err := spec.updateFields(fields)
	if err != nil {
		return nil, err
	}
	return b.write(func(w *txn) error {
		if err := w.execUpdate(spec, id, sets, args); err != nil {
			return err
		}
		w.result.ID = id
		return nil
	})
}

// execUpdate runs UPDATE ... WHERE id = ?, refreshing updated_at, and
// records the change. Returns ErrNotFound when no row matched.
func (w *txn) execUpdate(spec *tableSpec, id string, sets []string, args []any) error {
	if spec.hasUpdatedAt {
		sets = append(sets, "updated_at = ?")
		args = append(args, formatTime(w.now))
	}
	if len(sets) == 0 {
		var one int
		err := w.tx.QueryRow(fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", spec.name), id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %s: %w", spec.name, id, types.ErrNotFound)
		}
		return err
	}
	args = append(args, id)
	res, err := w.tx.Exec(
		fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", spec.name, strings.Join(sets, ", ")),
		args...,
	)
	if err != nil {
		return fmt.Errorf("updating %s %s: %w", spec.name, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", spec.name, id, types.ErrNotFound)
	}
	w.record(spec.name, id, types.OpUpdated)
	return nil
}

// deleteRow removes a single row from a leaf table.
func (b *Backend) deleteRow(name, id string) (*types.Result, error) {
	spec, err := specFor(name)
	if err != nil {
		return nil, err
	}
	return b.write(func(w *txn) error {
		res, err := w.tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", spec.name), id)
		if err != nil {
			return fmt.Errorf("deleting %s %s: %w", spec.name, id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%s %s: %w", spec.name, id, types.ErrNotFound)
		}
		w.result.ID = id
		w.record(spec.name, id, types.OpDeleted)
		return nil
	})
}
