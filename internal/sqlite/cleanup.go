package sqlite

import (
	"github.com/mesh-intelligence/vetlab/pkg/types"
)

const (
	orphanSamplesQuery = `SELECT id FROM samples
WHERE saved_sample_id IS NULL OR saved_sample_id NOT IN (SELECT id FROM saved_samples)`
	orphanResultsQuery = `SELECT id FROM test_results
WHERE sample_id IS NULL OR sample_id NOT IN (SELECT id FROM samples)`
)

// countOrphans reports rows whose parent no longer exists.
func countOrphans(q queryer) (types.CleanupReport, error) {
	var r types.CleanupReport
	err := q.QueryRow(`SELECT
    (SELECT COUNT(*) FROM samples
        WHERE saved_sample_id IS NULL OR saved_sample_id NOT IN (SELECT id FROM saved_samples)),
    (SELECT COUNT(*) FROM test_results
        WHERE sample_id IS NULL OR sample_id NOT IN (SELECT id FROM samples))`,
	).Scan(&r.Samples, &r.Results)
	return r, err
}

// CleanupOrphanedResults deletes results whose sample no longer exists and
// returns how many were removed. A second run returns zero.
func (b *Backend) CleanupOrphanedResults() (int, error) {
	var n int
	_, err := b.write(func(w *txn) error {
		w.orphanPass = true
		ids, err := selectIDs(w.tx, orphanResultsQuery)
		if err != nil {
			return err
		}
		n = len(ids)
		return w.deleteByIDs(types.TableTestResults, ids)
	})
	return n, err
}

// CleanupOrphans deletes samples whose lab procedure no longer exists, then
// results whose sample no longer exists, including those just orphaned.
func (b *Backend) CleanupOrphans() (*types.CleanupReport, error) {
	report := &types.CleanupReport{}
	_, err := b.write(func(w *txn) error {
		w.orphanPass = true
		samples, err := selectIDs(w.tx, orphanSamplesQuery)
		if err != nil {
			return err
		}
		if err := w.deleteByIDs(types.TableSamples, samples); err != nil {
			return err
		}
		results, err := selectIDs(w.tx, orphanResultsQuery)
		if err != nil {
			return err
		}
		if err := w.deleteByIDs(types.TableTestResults, results); err != nil {
			return err
		}
		report.Samples, report.Results = len(samples), len(results)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
