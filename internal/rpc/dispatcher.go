// Package rpc maps named JSON operations onto a types.Store. Every call
// returns an envelope carrying either the operation's data or a stable
// error code, so transports only move bytes.
package rpc

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// Error is the failure half of a Response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the envelope returned for every operation.
type Response struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

type handler func(params json.RawMessage) (any, error)

// Dispatcher routes operation names to store calls.
type Dispatcher struct {
	store    types.Store
	log      zerolog.Logger
	handlers map[string]handler
}

// NewDispatcher builds a dispatcher over store.
func NewDispatcher(store types.Store, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{store: store, log: log}
	d.handlers = map[string]handler{
		"lab_procedure.create":         d.createLabProcedure,
		"lab_procedure.get":            d.getFrom(types.TableLabProcedures),
		"lab_procedure.list":           d.listFrom(types.TableLabProcedures),
		"lab_procedure.update":         d.updateLabProcedure,
		"lab_procedure.preview_delete": d.previewLabProcedureDeletion,
		"lab_procedure.delete":         d.deleteLabProcedure,

		"sample.create": d.createSample,
		"sample.get":    d.getFrom(types.TableSamples),
		"sample.list":   d.listFrom(types.TableSamples),
		"sample.delete": d.deleteSample,

		"test_result.create": d.createTestResult,
		"test_result.get":    d.getFrom(types.TableTestResults),
		"test_result.list":   d.listFrom(types.TableTestResults),
		"test_result.update": d.updateTestResult,
		"test_result.review": d.reviewTestResult,
		"test_result.delete": d.deleteTestResult,

		"quarantine.create":         d.createQuarantine,
		"quarantine.get":            d.getFrom(types.TableQuarantineProcedures),
		"quarantine.list":           d.listFrom(types.TableQuarantineProcedures),
		"quarantine.update":         d.updateFrom(types.TableQuarantineProcedures),
		"quarantine.preview_delete": d.previewQuarantineDeletion,
		"quarantine.delete":         d.deleteQuarantine,

		"numbering.next":    d.peekNumber,
		"numbering.reserve": d.reserveNumber,

		"alert.create":  d.createAlert,
		"alert.active":  d.activeAlert,
		"alert.list":    d.listFrom(types.TableAlerts),
		"alert.dismiss": d.dismissAlerts,
		"alert.purge":   d.purgeAlerts,

		"cleanup.orphans": d.cleanupOrphans,
		"cleanup.results": d.cleanupResults,

		"store.migration_report": d.migrationReport,

		"table.create": d.tableCreate,
		"table.get":    d.tableGet,
		"table.list":   d.tableList,
		"table.update": d.tableUpdate,
		"table.delete": d.tableDelete,
	}
	return d
}

// Operations returns the registered operation names in sorted order.
func (d *Dispatcher) Operations() []string {
	ops := make([]string, 0, len(d.handlers))
	for op := range d.handlers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Call runs op with params and wraps the outcome in a Response.
func (d *Dispatcher) Call(op string, params json.RawMessage) Response {
	h, ok := d.handlers[op]
	if !ok {
		return d.fail(op, fmt.Errorf("%w: %q", ErrUnknownOperation, op))
	}
	data, err := h(params)
	if err != nil {
		return d.fail(op, err)
	}
	d.log.Debug().Str("op", op).Msg("rpc call")
	return Response{OK: true, Data: data}
}

func (d *Dispatcher) fail(op string, err error) Response {
	code := ErrorCode(err)
	ev := d.log.Debug()
	if code == CodeInternal {
		ev = d.log.Error()
	}
	ev.Err(err).Str("op", op).Str("code", code).Msg("rpc call failed")
	return Response{Error: &Error{Code: code, Message: err.Error()}}
}

// decode unmarshals params into a T. Empty params decode to the zero value.
func decode[T any](params json.RawMessage) (T, error) {
	var v T
	if len(params) == 0 || string(params) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(params, &v); err != nil {
		return v, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	return v, nil
}
