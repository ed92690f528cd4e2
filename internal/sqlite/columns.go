package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// timeLayout has fixed width so that lexical order equals time order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the store layout and any RFC 3339 value written by older
// releases. Unparseable values yield the zero time.
func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

// colKind selects how a column is read and written.
type colKind int

const (
	kindText     colKind = iota // TEXT, NULL read as ""
	kindNullText                // TEXT, NULL preserved
	kindInt                     // INTEGER, NULL read as 0
	kindBool                    // INTEGER 0/1
	kindJSON                    // TEXT holding a JSON document
)

type column struct {
	name string
	kind colKind
}

// tableSpec describes the updatable columns of a table. The id, created_at
// and updated_at columns are implicit.
type tableSpec struct {
	name         string
	columns      []column
	protected    map[string]bool
	hasUpdatedAt bool
}

func protect(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// tableSpecs is keyed by table name.
var tableSpecs = map[string]*tableSpec{
	types.TableLabProcedures: {
		name: types.TableLabProcedures,
		columns: []column{
			{"internal_number", kindText},
			{"external_procedure_number", kindNullText},
			{"client_name", kindText},
			{"client_phone", kindText},
			{"sampling_location", kindText},
			{"reception_date", kindText},
			{"received_by", kindText},
			{"quality_check", kindJSON},
			{"notes", kindText},
		},
		protected:    protect("internal_number"),
		hasUpdatedAt: true,
	},
	types.TableSamples: {
		name: types.TableSamples,
		columns: []column{
			{"saved_sample_id", kindText},
			{"department", kindText},
			{"section", kindText},
			{"requested_test", kindText},
			{"sample_type", kindText},
			{"animal_type", kindText},
			{"sample_count", kindInt},
			{"external_procedure_number", kindNullText},
			{"notes", kindText},
		},
		protected:    protect("saved_sample_id", "external_procedure_number"),
		hasUpdatedAt: true,
	},
	types.TableTestResults: {
		name: types.TableTestResults,
		columns: []column{
			{"sample_id", kindText},
			{"method", kindText},
			{"result", kindText},
			{"positive_count", kindInt},
			{"confirmatory_test", kindJSON},
			{"specialists", kindJSON},
			{"is_retest", kindBool},
			{"approval_status", kindText},
			{"reviewed_by", kindText},
			{"review_notes", kindText},
			{"reviewed_at", kindNullText},
			{"external_procedure_number", kindNullText},
		},
		protected: protect("sample_id", "approval_status", "reviewed_by", "review_notes",
			"reviewed_at", "external_procedure_number"),
		hasUpdatedAt: true,
	},
	types.TableQuarantineProcedures: {
		name: types.TableQuarantineProcedures,
		columns: []column{
			{"procedure_number", kindText},
			{"importer_name", kindText},
			{"origin_country", kindText},
			{"animal_type", kindText},
			{"animal_count", kindInt},
			{"arrival_date", kindText},
			{"port_of_entry", kindText},
			{"is_urgent", kindBool},
			{"stage_status", kindJSON},
			{"notes", kindText},
		},
		protected:    protect("procedure_number", "stage_status"),
		hasUpdatedAt: true,
	},
	types.TableShipments: {
		name: types.TableShipments,
		columns: []column{
			{"procedure_number", kindText},
			{"carrier", kindText},
			{"container_number", kindText},
			{"shipped_at", kindText},
		},
		protected:    protect("procedure_number"),
		hasUpdatedAt: true,
	},
	types.TableTrackingEvents: {
		name: types.TableTrackingEvents,
		columns: []column{
			{"procedure_number", kindText},
			{"location", kindText},
			{"status", kindText},
			{"recorded_at", kindText},
		},
		protected:    protect("procedure_number"),
		hasUpdatedAt: true,
	},
	types.TableRatings: {
		name: types.TableRatings,
		columns: []column{
			{"procedure_number", kindText},
			{"score", kindInt},
			{"comment", kindText},
		},
		protected:    protect("procedure_number"),
		hasUpdatedAt: true,
	},
	types.TableTraders: {
		name: types.TableTraders,
		columns: []column{
			{"procedure_number", kindText},
			{"name", kindText},
			{"license_number", kindText},
			{"phone", kindText},
		},
		protected:    protect("procedure_number"),
		hasUpdatedAt: true,
	},
	types.TableAlerts: {
		name: types.TableAlerts,
		columns: []column{
			{"procedure_number", kindText},
			{"action_type", kindText},
			{"is_dismissed", kindBool},
		},
		protected: protect("procedure_number", "action_type"),
	},
}

func specFor(name string) (*tableSpec, error) {
	s, ok := tableSpecs[name]
	if !ok {
		return nil, types.ErrTableNotFound
	}
	return s, nil
}

func (s *tableSpec) column(name string) (column, bool) {
	for _, c := range s.columns {
		if c.name == name {
			return c, true
		}
	}
	return column{}, false
}

// selectList returns the column list used by every read of the table:
// id, the data columns, created_at and (when present) updated_at. Text and
// integer columns are coalesced so that legacy NULLs scan into plain values.
func (s *tableSpec) selectList() string {
	parts := []string{"id"}
	for _, c := range s.columns {
		switch c.kind {
		case kindText:
			parts = append(parts, fmt.Sprintf("COALESCE(%s, '')", c.name))
		case kindInt, kindBool:
			parts = append(parts, fmt.Sprintf("COALESCE(%s, 0)", c.name))
		default:
			parts = append(parts, c.name)
		}
	}
	parts = append(parts, "COALESCE(created_at, '')")
	if s.hasUpdatedAt {
		parts = append(parts, "COALESCE(updated_at, '')")
	}
	return strings.Join(parts, ", ")
}

// updateFields validates a partial update. The id and timestamp keys are
// dropped; unknown keys and protected columns are rejected. Returns the
// SET assignments and their arguments in a stable order.
func (s *tableSpec) updateFields(fields map[string]any) ([]string, []any, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		switch k {
		case "id", "created_at", "updated_at":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		c, ok := s.column(k)
		if !ok {
			return nil, nil, fmt.Errorf("%s.%s: %w", s.name, k, types.ErrUnknownField)
		}
		if s.protected[k] {
			return nil, nil, fmt.Errorf("%s.%s: %w", s.name, k, types.ErrProtectedField)
		}
		v, err := toColumnValue(c, fields[k])
		if err != nil {
			return nil, nil, fmt.Errorf("%s.%s: %w", s.name, k, err)
		}
		sets = append(sets, k+" = ?")
		args = append(args, v)
	}
	return sets, args, nil
}

// whereClause builds an equality filter. Keys must be columns of the table
// or id; a nil value matches NULL.
func (s *tableSpec) whereClause(filter types.Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	var args []any
	for _, k := range keys {
		if k == "id" {
			id, ok := filter[k].(string)
			if !ok {
				return "", nil, fmt.Errorf("id: %w", types.ErrInvalidFilter)
			}
			conds = append(conds, "id = ?")
			args = append(args, id)
			continue
		}
		c, ok := s.column(k)
		if !ok {
			return "", nil, fmt.Errorf("%s: %w", k, types.ErrInvalidFilter)
		}
		v, err := toColumnValue(c, filter[k])
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", k, types.ErrInvalidFilter)
		}
		if v == nil {
			conds = append(conds, k+" IS NULL")
			continue
		}
		conds = append(conds, k+" = ?")
		args = append(args, v)
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// toColumnValue converts a decoded JSON value to its stored form.
func toColumnValue(c column, v any) (any, error) {
	switch c.kind {
	case kindText:
		if v == nil {
			return "", nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, types.ErrInvalidData
		}
		return s, nil
	case kindNullText:
		switch x := v.(type) {
		case nil:
			return nil, nil
		case string:
			if x == "" {
				return nil, nil
			}
			return x, nil
		case *string:
			if x == nil || *x == "" {
				return nil, nil
			}
			return *x, nil
		}
		return nil, types.ErrInvalidData
	case kindInt:
		return toInt(v)
	case kindBool:
		switch x := v.(type) {
		case bool:
			return boolToInt(x), nil
		case nil:
			return 0, nil
		}
		n, err := toInt(v)
		if err != nil || (n != 0 && n != 1) {
			return nil, types.ErrInvalidData
		}
		return n, nil
	case kindJSON:
		if v == nil {
			return nil, nil
		}
		if raw, ok := v.(json.RawMessage); ok {
			if !json.Valid(raw) {
				return nil, types.ErrInvalidData
			}
			return string(raw), nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, types.ErrInvalidData
		}
		return string(data), nil
	}
	return nil, types.ErrInvalidData
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) {
			return 0, types.ErrInvalidData
		}
		return int64(x), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, types.ErrInvalidData
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, types.ErrInvalidData
		}
		return n, nil
	}
	return 0, types.ErrInvalidData
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}

// encodeJSON encodes v for a JSON column; nil stays NULL.
func encodeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding JSON column: %w", err)
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}

// decodeJSON parses a JSON column. A value that does not parse degrades to
// nil and is logged at debug level; it never fails the read.
func decodeJSON[T any](log zerolog.Logger, table, col, id string, raw sql.NullString) *T {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" || raw.String == "null" {
		return nil
	}
	var v T
	if err := json.Unmarshal([]byte(raw.String), &v); err != nil {
		log.Debug().Err(err).Str("table", table).Str("column", col).Str("id", id).
			Msg("unparseable JSON column read as null")
		return nil
	}
	return &v
}
