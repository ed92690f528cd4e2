package sqlite

import (
	"database/sql"
	"time"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// txn is the state of one write. Side effects append to result as they
// happen so the caller sees exactly what committed.
type txn struct {
	b          *Backend
	tx         *sql.Tx
	now        time.Time
	result     *types.Result
	probeDrift bool
	orphanPass bool

	alertActions []string
	reserved     []string
}

func newTxn(b *Backend, tx *sql.Tx, now time.Time) *txn {
	return &txn{
		b:      b,
		tx:     tx,
		now:    now,
		result: &types.Result{Status: types.StatusApplied, Changes: []types.Change{}},
	}
}

func (w *txn) record(table, id, op string) {
	w.result.Changes = append(w.result.Changes, types.Change{Table: table, ID: id, Op: op})
}

func (w *txn) removed(table string, n int) {
	if n == 0 {
		return
	}
	if w.result.Removed == nil {
		w.result.Removed = make(map[string]int)
	}
	w.result.Removed[table] += n
}

// Subscribe registers fn to receive one Change per entity touched by a
// committed write. Callbacks run on the writer's goroutine after the write
// lock is released and must not block.
func (b *Backend) Subscribe(fn func(types.Change)) func() {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	return func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		delete(b.subs, id)
	}
}

func (b *Backend) publish(changes []types.Change) {
	if len(changes) == 0 {
		return
	}
	b.subMu.Lock()
	fns := make([]func(types.Change), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.subMu.Unlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}
