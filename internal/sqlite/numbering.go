// This file implements procedure number generation and reservation.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// numberColumns maps a numbering domain to the table column holding its
// issued numbers.
var numberColumns = map[string]struct{ table, column string }{
	types.SuffixLab:        {types.TableLabProcedures, "internal_number"},
	types.SuffixQuarantine: {types.TableQuarantineProcedures, "procedure_number"},
}

// nextSequence returns the next free counter of a domain for year: one past
// the larger of the stored sequence and the highest issued number.
// Malformed stored numbers are ignored.
func nextSequence(q queryer, suffix string, year int) (int, error) {
	target, ok := numberColumns[suffix]
	if !ok {
		return 0, fmt.Errorf("suffix %q: %w", suffix, types.ErrInvalidNumber)
	}

	var last int
	err := q.QueryRow(
		"SELECT last_value FROM procedure_sequences WHERE domain = ? AND year = ?", suffix, year,
	).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("reading sequence: %w", err)
	}

	values, err := selectIDs(q,
		fmt.Sprintf("SELECT %[1]s FROM %[2]s WHERE %[1]s LIKE ?", target.column, target.table),
		fmt.Sprintf("%%-%04d-%s", year, suffix),
	)
	if err != nil {
		return 0, err
	}
	for _, v := range values {
		n, err := types.ParseProcedureNumber(v)
		if err != nil || n.Year != year || n.Suffix != suffix {
			continue
		}
		last = max(last, n.Seq)
	}

	if last >= types.MaxSequence {
		return 0, fmt.Errorf("%s %d: %w", suffix, year, types.ErrNumberExhausted)
	}
	return last + 1, nil
}

// storeSequence advances the stored sequence of a domain to at least value.
func storeSequence(q queryer, suffix string, year, value int) error {
	_, err := q.Exec(`INSERT INTO procedure_sequences (domain, year, last_value) VALUES (?, ?, ?)
ON CONFLICT (domain, year) DO UPDATE SET last_value = MAX(last_value, excluded.last_value)`,
		suffix, year, value,
	)
	if err != nil {
		return fmt.Errorf("storing sequence: %w", err)
	}
	return nil
}

// PeekNextNumber returns the number the next reservation in the domain
// would receive, without reserving it.
func (b *Backend) PeekNextNumber(suffix string) (string, error) {
	if !types.ValidSuffix(suffix) {
		return "", fmt.Errorf("suffix %q: %w", suffix, types.ErrInvalidNumber)
	}
	var out string
	err := b.read(func() error {
		year := b.now().Year()
		seq, err := nextSequence(b.db, suffix, year)
		if err != nil {
			return err
		}
		out = types.ProcedureNumber{Seq: seq, Year: year, Suffix: suffix}.String()
		return nil
	})
	return out, err
}

// ReserveNumber issues the next number of the domain. Two calls never
// return the same number.
func (b *Backend) ReserveNumber(suffix string) (string, error) {
	if !types.ValidSuffix(suffix) {
		return "", fmt.Errorf("suffix %q: %w", suffix, types.ErrInvalidNumber)
	}
	var out string
	_, err := b.write(func(w *txn) error {
		var err error
		out, err = w.reserve(suffix)
		return err
	})
	return out, err
}

func (w *txn) reserve(suffix string) (string, error) {
	year := w.now.Year()
	seq, err := nextSequence(w.tx, suffix, year)
	if err != nil {
		return "", err
	}
	if err := storeSequence(w.tx, suffix, year, seq); err != nil {
		return "", err
	}
	w.reserved = append(w.reserved, suffix)
	return types.ProcedureNumber{Seq: seq, Year: year, Suffix: suffix}.String(), nil
}

// assignNumber returns the number for a new procedure: a fresh reservation
// when supplied is empty, otherwise supplied itself after checking that it
// is well formed, in the right domain and unused.
func (w *txn) assignNumber(suffix, supplied string) (string, error) {
	if supplied == "" {
		return w.reserve(suffix)
	}
	n, err := types.ParseProcedureNumber(supplied)
	if err != nil {
		return "", err
	}
	if n.Suffix != suffix {
		return "", fmt.Errorf("%q is not a %s number: %w", supplied, suffix, types.ErrInvalidNumber)
	}
	target := numberColumns[suffix]
	var inUse bool
	if err := w.tx.QueryRow(
		fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = ?)", target.table, target.column), supplied,
	).Scan(&inUse); err != nil {
		return "", fmt.Errorf("checking number %s: %w", supplied, err)
	}
	if inUse {
		return "", fmt.Errorf("%s: %w", supplied, types.ErrNumberInUse)
	}
	if err := storeSequence(w.tx, suffix, n.Year, n.Seq); err != nil {
		return "", err
	}
	return supplied, nil
}
