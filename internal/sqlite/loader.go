// This file implements store export to, and import from, one JSONL file
// per table.
package sqlite

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// exportTables lists the tables written by Export, parents before children
// so that Import can load them in the same order.
var exportTables = []string{
	types.TableLabProcedures,
	types.TableSamples,
	types.TableTestResults,
	types.TableQuarantineProcedures,
	types.TableShipments,
	types.TableTrackingEvents,
	types.TableRatings,
	types.TableTraders,
	types.TableAlerts,
}

// storedColumns returns every column of a table in stored form.
func storedColumns(spec *tableSpec) []string {
	cols := []string{"id"}
	for _, c := range spec.columns {
		cols = append(cols, c.name)
	}
	cols = append(cols, "created_at")
	if spec.hasUpdatedAt {
		cols = append(cols, "updated_at")
	}
	return cols
}

// maxLine bounds a single exported row; test results with long notes fit
// comfortably.
const maxLine = 4 * 1024 * 1024

// Export writes every record table to <dir>/<table>.jsonl, oldest first.
// Rows are written in stored form, so JSON columns keep whatever payload
// shape they hold. Returns the number of rows written per table.
func (b *Backend) Export(dir string) (map[string]int, error) {
	counts := make(map[string]int, len(exportTables))
	err := b.read(func() error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating export directory: %w", err)
		}
		for _, name := range exportTables {
			n, err := exportTable(b.db, tableSpecs[name], filepath.Join(dir, name+".jsonl"))
			if err != nil {
				return err
			}
			counts[name] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// exportTable streams a table into path. The file is replaced only once
// every row is on disk, so a failed export leaves the previous file intact.
func exportTable(q queryer, spec *tableSpec, path string) (int, error) {
	cols := storedColumns(spec)
	rows, err := q.Query(fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at, id", strings.Join(cols, ", "), spec.name))
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", spec.name, err)
	}
	defer rows.Close()

	out, err := os.CreateTemp(filepath.Dir(path), "."+spec.name+"-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating %s export: %w", spec.name, err)
	}
	discard := func(err error) (int, error) {
		out.Close()
		os.Remove(out.Name())
		return 0, err
	}

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	n := 0
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return discard(fmt.Errorf("scanning %s: %w", spec.name, err))
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if raw, ok := vals[i].([]byte); ok {
				row[c] = string(raw)
				continue
			}
			row[c] = vals[i]
		}
		if err := enc.Encode(row); err != nil {
			return discard(fmt.Errorf("writing %s row: %w", spec.name, err))
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return discard(fmt.Errorf("reading %s: %w", spec.name, err))
	}
	if err := w.Flush(); err != nil {
		return discard(fmt.Errorf("flushing %s export: %w", spec.name, err))
	}
	if err := out.Sync(); err != nil {
		return discard(fmt.Errorf("syncing %s export: %w", spec.name, err))
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return 0, fmt.Errorf("closing %s export: %w", spec.name, err)
	}
	if err := os.Rename(out.Name(), path); err != nil {
		os.Remove(out.Name())
		return 0, fmt.Errorf("replacing %s: %w", path, err)
	}
	return n, nil
}

// Import loads <dir>/<table>.jsonl files written by Export into an empty
// store in one transaction. Missing files are skipped, as are malformed
// lines and rows that violate constraints. Unknown fields are ignored.
// Returns the number of rows loaded per table.
func (b *Backend) Import(dir string) (map[string]int, error) {
	counts := make(map[string]int, len(exportTables))
	_, err := b.write(func(w *txn) error {
		for _, name := range exportTables {
			var n int
			if err := w.tx.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", name)).Scan(&n); err != nil {
				return fmt.Errorf("counting %s: %w", name, err)
			}
			if n > 0 {
				return fmt.Errorf("%s has %d rows: %w", name, n, types.ErrStoreNotEmpty)
			}
		}
		for _, name := range exportTables {
			path := filepath.Join(dir, name+".jsonl")
			if _, err := os.Stat(path); os.IsNotExist(err) {
				continue
			}
			n, err := w.importTable(tableSpecs[name], path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", name, err)
			}
			counts[name] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// eachRow calls fn with every line of path that decodes to a JSON object.
// Blank and malformed lines are skipped.
func eachRow(path string, fn func(row map[string]any) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		var row map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil || row == nil {
			continue
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning %s: %w", path, err)
	}
	return nil
}

// importTable inserts the rows of one export file, keeping only the table's
// stored columns. Structured values are re-serialized as JSON text.
func (w *txn) importTable(spec *tableSpec, path string) (int, error) {
	cols := storedColumns(spec)
	stmt, err := w.tx.Prepare(fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		spec.name, strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "),
	))
	if err != nil {
		return 0, fmt.Errorf("preparing insert for %s: %w", spec.name, err)
	}
	defer stmt.Close()

	loaded := 0
	err = eachRow(path, func(row map[string]any) error {
		id, _ := row["id"].(string)
		if id == "" {
			return nil
		}
		args := make([]any, len(cols))
		for i, col := range cols {
			switch v := row[col].(type) {
			case map[string]any, []any:
				data, err := json.Marshal(v)
				if err != nil {
					return nil
				}
				args[i] = string(data)
			default:
				args[i] = v
			}
		}
		if _, err := stmt.Exec(args...); err != nil {
			return nil
		}
		w.record(spec.name, id, types.OpCreated)
		loaded++
		return nil
	})
	return loaded, err
}
