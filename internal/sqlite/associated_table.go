// This file implements the quarantine records that share a procedure
// number: shipments, tracking events, ratings and traders.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// newAssociated returns an empty entity for an associated table.
func newAssociated(name string) (any, error) {
	switch name {
	case types.TableShipments:
		return &types.Shipment{}, nil
	case types.TableTrackingEvents:
		return &types.TrackingEvent{}, nil
	case types.TableRatings:
		return &types.Rating{}, nil
	case types.TableTraders:
		return &types.Trader{}, nil
	}
	return nil, types.ErrTableNotFound
}

// associatedType reports whether data is the entity pointer of table name.
func associatedType(name string, data any) bool {
	switch data.(type) {
	case *types.Shipment:
		return name == types.TableShipments
	case *types.TrackingEvent:
		return name == types.TableTrackingEvents
	case *types.Rating:
		return name == types.TableRatings
	case *types.Trader:
		return name == types.TableTraders
	}
	return false
}

// scanMap reads one row into a column map keyed like the entity's JSON.
func scanMap(spec *tableSpec, row rowScanner) (map[string]any, error) {
	dest := make([]any, 0, len(spec.columns)+3)
	var id, created, updated string
	dest = append(dest, &id)
	vals := make([]any, len(spec.columns))
	for i, c := range spec.columns {
		switch c.kind {
		case kindInt, kindBool:
			vals[i] = new(int64)
		case kindText:
			vals[i] = new(string)
		default:
			vals[i] = new(sql.NullString)
		}
		dest = append(dest, vals[i])
	}
	dest = append(dest, &created)
	if spec.hasUpdatedAt {
		dest = append(dest, &updated)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	m := map[string]any{"id": id, "created_at": parseTime(created)}
	if spec.hasUpdatedAt {
		m["updated_at"] = parseTime(updated)
	}
	for i, c := range spec.columns {
		switch v := vals[i].(type) {
		case *int64:
			if c.kind == kindBool {
				m[c.name] = *v != 0
			} else {
				m[c.name] = *v
			}
		case *string:
			m[c.name] = *v
		case *sql.NullString:
			if v.Valid {
				m[c.name] = v.String
			} else {
				m[c.name] = nil
			}
		}
	}
	return m, nil
}

// hydrateAssociated converts a column map into the entity struct.
func hydrateAssociated(name string, m map[string]any) (any, error) {
	out, err := newAssociated(name)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("hydrating %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("hydrating %s: %w", name, err)
	}
	return out, nil
}

func getAssociated(q queryer, name, id string) (any, error) {
	spec, err := specFor(name)
	if err != nil {
		return nil, err
	}
	m, err := queryOne(q, spec, id, func(r rowScanner) (*map[string]any, error) {
		m, err := scanMap(spec, r)
		return &m, err
	})
	if err != nil {
		return nil, err
	}
	return hydrateAssociated(name, *m)
}

func fetchAssociated(q queryer, spec *tableSpec, filter types.Filter) ([]any, error) {
	rows, err := queryAll(q, spec, filter, func(r rowScanner) (*map[string]any, error) {
		m, err := scanMap(spec, r)
		return &m, err
	})
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(rows))
	for _, m := range rows {
		v, err := hydrateAssociated(spec.name, *m)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// createAssociated inserts a shipment, tracking event, rating or trader.
// The referenced quarantine procedure must exist.
func (b *Backend) createAssociated(name string, data any) (*types.Result, error) {
	spec, err := specFor(name)
	if err != nil {
		return nil, err
	}
	if !associatedType(name, data) {
		return nil, types.ErrInvalidData
	}

	// Entity structs carry the column names as JSON keys.
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", name, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	number, _ := fields["procedure_number"].(string)
	if number == "" {
		return nil, fmt.Errorf("procedure number: %w", types.ErrInvalidData)
	}

	cols := []string{"id"}
	args := []any{nil}
	for _, c := range spec.columns {
		v, err := toColumnValue(c, fields[c.name])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, c.name, err)
		}
		cols = append(cols, c.name)
		args = append(args, v)
	}
	cols = append(cols, "created_at", "updated_at")

	var created map[string]any
	res, err := b.write(func(w *txn) error {
		var exists bool
		if err := w.tx.QueryRow(
			"SELECT EXISTS (SELECT 1 FROM vet_procedures WHERE procedure_number = ?)", number,
		).Scan(&exists); err != nil {
			return fmt.Errorf("resolving quarantine procedure: %w", err)
		}
		if !exists {
			return fmt.Errorf("quarantine procedure %s: %w", number, types.ErrNotFound)
		}
		id, err := newID()
		if err != nil {
			return err
		}
		args[0] = id
		stamp := formatTime(w.now)
		_, err = w.tx.Exec(
			fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", name, strings.Join(cols, ", "),
				strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")),
			append(args, stamp, stamp)...,
		)
		if err != nil {
			return fmt.Errorf("inserting %s: %w", name, err)
		}
		w.result.ID = id
		w.record(name, id, types.OpCreated)
		fields["id"], fields["created_at"], fields["updated_at"] = id, w.now, w.now
		created = fields
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Write the generated fields back into the caller's struct.
	if raw, err := json.Marshal(created); err == nil {
		_ = json.Unmarshal(raw, data)
	}
	return res, nil
}
