package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

type idParams struct {
	ID string `json:"id"`
}

type updateParams struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

type deleteParams struct {
	ID       string                `json:"id"`
	Expected *types.DeletionImpact `json:"expected,omitempty"`
}

type labCreateParams struct {
	Procedure *types.LabProcedure `json:"procedure"`
	Samples   []*types.Sample     `json:"samples,omitempty"`
}

type reviewParams struct {
	ID       string `json:"id"`
	Decision string `json:"decision"`
	Reviewer string `json:"reviewer"`
	Notes    string `json:"notes,omitempty"`
}

type suffixParams struct {
	Suffix string `json:"suffix"`
}

type alertParams struct {
	ProcedureNumber string `json:"procedure_number"`
	ActionType      string `json:"action_type,omitempty"`
}

type tableParams struct {
	Table  string          `json:"table"`
	ID     string          `json:"id,omitempty"`
	Filter types.Filter    `json:"filter,omitempty"`
	Record json.RawMessage `json:"record,omitempty"`
	Fields map[string]any  `json:"fields,omitempty"`
}

// entityFactories returns an empty entity for each table name.
var entityFactories = map[string]func() any{
	types.TableLabProcedures:        func() any { return &types.LabProcedure{} },
	types.TableSamples:              func() any { return &types.Sample{} },
	types.TableTestResults:          func() any { return &types.TestResult{} },
	types.TableQuarantineProcedures: func() any { return &types.QuarantineProcedure{} },
	types.TableShipments:            func() any { return &types.Shipment{} },
	types.TableTrackingEvents:       func() any { return &types.TrackingEvent{} },
	types.TableRatings:              func() any { return &types.Rating{} },
	types.TableTraders:              func() any { return &types.Trader{} },
	types.TableAlerts:               func() any { return &types.Alert{} },
}

// createdRecord is returned by generic creates.
type createdRecord struct {
	ID     string `json:"id"`
	Record any    `json:"record"`
}

type countResult struct {
	Count int `json:"count"`
}

type numberResult struct {
	Number string `json:"number"`
}

func (d *Dispatcher) createLabProcedure(params json.RawMessage) (any, error) {
	p, err := decode[labCreateParams](params)
	if err != nil {
		return nil, err
	}
	if p.Procedure == nil {
		return nil, fmt.Errorf("%w: procedure is required", types.ErrInvalidData)
	}
	return d.store.CreateLabProcedure(p.Procedure, p.Samples)
}

func (d *Dispatcher) updateLabProcedure(params json.RawMessage) (any, error) {
	p, err := decode[updateParams](params)
	if err != nil {
		return nil, err
	}
	return d.store.UpdateLabProcedure(p.ID, p.Fields)
}

func (d *Dispatcher) previewLabProcedureDeletion(params json.RawMessage) (any, error) {
	p, err := decode[idParams](params)
	if err != nil {
		return nil, err
	}
	return d.store.PreviewLabProcedureDeletion(p.ID)
}

func (d *Dispatcher) deleteLabProcedure(params json.RawMessage) (any, error) {
	p, err := decode[deleteParams](params)
	if err != nil {
		return nil, err
	}
	return d.store.DeleteLabProcedure(p.ID, types.DeleteOptions{Expected: p.Expected})
}

func (d *Dispatcher) createSample(params json.RawMessage) (any, error) {
	s, err := decode[*types.Sample](params)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, types.ErrInvalidData
	}
	return d.store.CreateSample(s)
}

func (d *Dispatcher) deleteSample(params json.RawMessage) (any, error) {
	p, err := decode[idParams](params)
	if err != nil {
		return nil, err
	}
	return d.store.DeleteSample(p.ID)
}

func (d *Dispatcher) createTestResult(params json.RawMessage) (any, error) {
	r, err := decode[*types.TestResult](params)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, types.ErrInvalidData
	}
	return d.store.CreateTestResult(r)
}

func (d *Dispatcher) updateTestResult(params json.RawMessage) (any, error) {
	p, err := decode[updateParams](params)
	if err != nil {
		return nil, err
	}
	return d.store.UpdateTestResult(p.ID, p.Fields)
}

func (d *Dispatcher) reviewTestResult(params json.RawMessage) (any, error) {
	p, err := decode[reviewParams](params)
	if err != nil {
		return nil, err
	}
	return d.store.ReviewTestResult(p.ID, p.Decision, p.Reviewer, p.Notes)
}

func (d *Dispatcher) deleteTestResult(params json.RawMessage) (any, error) {
	p, err := decode[idParams](params)
	if err != nil {
		return nil, err
	}
	return d.store.DeleteTestResult(p.ID)
}

func (d *Dispatcher) createQuarantine(params json.RawMessage) (any, error) {
	qp, err := decode[*types.QuarantineProcedure](params)
	if err != nil {
		return nil, err
	}
	if qp == nil {
		return nil, types.ErrInvalidData
	}
	return d.store.CreateQuarantineProcedure(qp)
}

func (d *Dispatcher) previewQuarantineDeletion(params json.RawMessage) (any, error) {
	p, err := decode[idParams](params)
	if err != nil {
		return nil, err
	}
	return d.store.PreviewQuarantineDeletion(p.ID)
}

func (d *Dispatcher) deleteQuarantine(params json.RawMessage) (any, error) {
	p, err := decode[deleteParams](params)
	if err != nil {
		return nil, err
	}
	return d.store.DeleteQuarantineProcedure(p.ID, types.DeleteOptions{Expected: p.Expected})
}

func (d *Dispatcher) peekNumber(params json.RawMessage) (any, error) {
	p, err := decode[suffixParams](params)
	if err != nil {
		return nil, err
	}
	n, err := d.store.PeekNextNumber(p.Suffix)
	if err != nil {
		return nil, err
	}
	return numberResult{Number: n}, nil
}

func (d *Dispatcher) reserveNumber(params json.RawMessage) (any, error) {
	p, err := decode[suffixParams](params)
	if err != nil {
		return nil, err
	}
	n, err := d.store.ReserveNumber(p.Suffix)
	if err != nil {
		return nil, err
	}
	return numberResult{Number: n}, nil
}

func (d *Dispatcher) createAlert(params json.RawMessage) (any, error) {
	p, err := decode[alertParams](params)
	if err != nil {
		return nil, err
	}
	return d.store.CreateAlert(p.ProcedureNumber, p.ActionType)
}

func (d *Dispatcher) activeAlert(params json.RawMessage) (any, error) {
	p, err := decode[alertParams](params)
	if err != nil {
		return nil, err
	}
	return d.store.ActiveAlertFor(p.ProcedureNumber)
}

func (d *Dispatcher) dismissAlerts(params json.RawMessage) (any, error) {
	p, err := decode[alertParams](params)
	if err != nil {
		return nil, err
	}
	n, err := d.store.DismissAlerts(p.ProcedureNumber, p.ActionType)
	if err != nil {
		return nil, err
	}
	return countResult{Count: n}, nil
}

func (d *Dispatcher) purgeAlerts(json.RawMessage) (any, error) {
	n, err := d.store.PurgeOrphanAlerts()
	if err != nil {
		return nil, err
	}
	return countResult{Count: n}, nil
}

func (d *Dispatcher) cleanupOrphans(json.RawMessage) (any, error) {
	return d.store.CleanupOrphans()
}

func (d *Dispatcher) cleanupResults(json.RawMessage) (any, error) {
	n, err := d.store.CleanupOrphanedResults()
	if err != nil {
		return nil, err
	}
	return countResult{Count: n}, nil
}

func (d *Dispatcher) migrationReport(json.RawMessage) (any, error) {
	return d.store.MigrationReport()
}

// getFrom, listFrom and updateFrom bind the generic table operations to a
// fixed table.

func (d *Dispatcher) getFrom(name string) handler {
	return func(params json.RawMessage) (any, error) {
		p, err := decode[idParams](params)
		if err != nil {
			return nil, err
		}
		return d.get(name, p.ID)
	}
}

func (d *Dispatcher) listFrom(name string) handler {
	return func(params json.RawMessage) (any, error) {
		p, err := decode[tableParams](params)
		if err != nil {
			return nil, err
		}
		return d.list(name, p.Filter)
	}
}

func (d *Dispatcher) updateFrom(name string) handler {
	return func(params json.RawMessage) (any, error) {
		p, err := decode[updateParams](params)
		if err != nil {
			return nil, err
		}
		return d.update(name, p.ID, p.Fields)
	}
}

func (d *Dispatcher) tableCreate(params json.RawMessage) (any, error) {
	p, err := decode[tableParams](params)
	if err != nil {
		return nil, err
	}
	newEntity, ok := entityFactories[p.Table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrTableNotFound, p.Table)
	}
	record := newEntity()
	if len(p.Record) > 0 {
		if err := json.Unmarshal(p.Record, record); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
		}
	}
	tbl, err := d.store.GetTable(p.Table)
	if err != nil {
		return nil, err
	}
	id, err := tbl.Create(record)
	if err != nil {
		return nil, err
	}
	return createdRecord{ID: id, Record: record}, nil
}

func (d *Dispatcher) tableGet(params json.RawMessage) (any, error) {
	p, err := decode[tableParams](params)
	if err != nil {
		return nil, err
	}
	return d.get(p.Table, p.ID)
}

func (d *Dispatcher) tableList(params json.RawMessage) (any, error) {
	p, err := decode[tableParams](params)
	if err != nil {
		return nil, err
	}
	return d.list(p.Table, p.Filter)
}

func (d *Dispatcher) tableUpdate(params json.RawMessage) (any, error) {
	p, err := decode[tableParams](params)
	if err != nil {
		return nil, err
	}
	return d.update(p.Table, p.ID, p.Fields)
}

func (d *Dispatcher) tableDelete(params json.RawMessage) (any, error) {
	p, err := decode[tableParams](params)
	if err != nil {
		return nil, err
	}
	tbl, err := d.store.GetTable(p.Table)
	if err != nil {
		return nil, err
	}
	if err := tbl.Delete(p.ID); err != nil {
		return nil, err
	}
	return idParams{ID: p.ID}, nil
}

func (d *Dispatcher) get(name, id string) (any, error) {
	tbl, err := d.store.GetTable(name)
	if err != nil {
		return nil, err
	}
	return tbl.Get(id)
}

func (d *Dispatcher) list(name string, filter types.Filter) (any, error) {
	tbl, err := d.store.GetTable(name)
	if err != nil {
		return nil, err
	}
	rows, err := tbl.Fetch(filter)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []any{}
	}
	return rows, nil
}

// update applies fields and returns the stored record.
func (d *Dispatcher) update(name, id string, fields map[string]any) (any, error) {
	tbl, err := d.store.GetTable(name)
	if err != nil {
		return nil, err
	}
	if err := tbl.Update(id, fields); err != nil {
		return nil, err
	}
	return tbl.Get(id)
}
