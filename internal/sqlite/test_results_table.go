// This file implements test result reads, writes and the review workflow.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

var resultSpec = tableSpecs[types.TableTestResults]

// scanTestResult hydrates a test_results row. JSON columns that do not
// parse are returned as nil.
func (b *Backend) scanTestResult(row rowScanner) (*types.TestResult, error) {
	var (
		r                          types.TestResult
		confirm, specs, ext, revAt sql.NullString
		retest                     int
		created, updated           string
	)
	if err := row.Scan(
		&r.ID, &r.SampleID, &r.Method, &r.Result, &r.PositiveCount,
		&confirm, &specs, &retest, &r.ApprovalStatus, &r.ReviewedBy, &r.ReviewNotes,
		&revAt, &ext, &created, &updated,
	); err != nil {
		return nil, err
	}
	r.ConfirmatoryTest = decodeJSON[types.ConfirmatoryTest](b.log, resultSpec.name, "confirmatory_test", r.ID, confirm)
	if list := decodeJSON[[]string](b.log, resultSpec.name, "specialists", r.ID, specs); list != nil {
		r.Specialists = *list
	}
	r.IsRetest = retest != 0
	if r.ApprovalStatus == "" {
		r.ApprovalStatus = types.ApprovalPending
	}
	r.ReviewedAt = parseTimePtr(revAt)
	r.ExternalProcedureNumber = stringPtr(ext)
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}

func (b *Backend) getTestResult(q queryer, id string) (*types.TestResult, error) {
	return queryOne(q, resultSpec, id, b.scanTestResult)
}

// CreateTestResult records a result for an existing sample. The result
// starts pending review and copies the sample's external number.
func (b *Backend) CreateTestResult(r *types.TestResult) (*types.Result, error) {
	if r == nil {
		return nil, types.ErrInvalidData
	}
	if r.SampleID == "" {
		return nil, types.ErrInvalidID
	}
	if !types.ValidOutcome(r.Result) {
		return nil, fmt.Errorf("result %q: %w", r.Result, types.ErrInvalidData)
	}
	return b.write(func(w *txn) error {
		s, err := getSample(w.tx, r.SampleID)
		if err != nil {
			return err
		}
		id, err := newID()
		if err != nil {
			return err
		}
		confirm, err := encodeJSON(r.ConfirmatoryTest)
		if err != nil {
			return err
		}
		specs, err := encodeJSON(r.Specialists)
		if err != nil {
			return err
		}
		_, err = w.tx.Exec(`INSERT INTO test_results (id, sample_id, method, result, positive_count,
    confirmatory_test, specialists, is_retest, approval_status, reviewed_by, review_notes, reviewed_at,
    external_procedure_number, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', NULL, ?, ?, ?)`,
			id, s.ID, r.Method, r.Result, r.PositiveCount,
			confirm, specs, boolToInt(r.IsRetest), types.ApprovalPending,
			nullString(s.ExternalProcedureNumber), formatTime(w.now), formatTime(w.now),
		)
		if err != nil {
			return fmt.Errorf("inserting test result: %w", err)
		}
		r.ID = id
		r.ApprovalStatus = types.ApprovalPending
		r.ReviewedBy, r.ReviewNotes, r.ReviewedAt = "", "", nil
		r.ExternalProcedureNumber = s.ExternalProcedureNumber
		r.CreatedAt, r.UpdatedAt = w.now, w.now
		w.result.ID = id
		w.record(types.TableTestResults, id, types.OpCreated)
		return nil
	})
}

// UpdateTestResult applies a partial update to the result's content.
// Editing a reviewed result sends it back to pending review.
func (b *Backend) UpdateTestResult(id string, fields map[string]any) (*types.Result, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	if v, ok := fields["result"]; ok {
		s, _ := v.(string)
		if !types.ValidOutcome(s) {
			return nil, fmt.Errorf("result %v: %w", v, types.ErrInvalidData)
		}
	}
	sets, args, err := resultSpec.updateFields(fields)
	if err != nil {
		return nil, err
	}
	return b.write(func(w *txn) error {
		current, err := b.getTestResult(w.tx, id)
		if err != nil {
			return err
		}
		if len(sets) > 0 && current.ApprovalStatus != types.ApprovalPending {
			sets = append(sets, "approval_status = ?", "reviewed_by = ''", "review_notes = ''", "reviewed_at = NULL")
			args = append(args, types.ApprovalPending)
		}
		if err := w.execUpdate(resultSpec, id, sets, args); err != nil {
			return err
		}
		w.result.ID = id
		return nil
	})
}

// ReviewTestResult moves a result through the approval workflow. When the
// approval completes the set of results for a quarantine-linked lab
// procedure, the quarantine procedure's testing stage completes and a
// "results_completed" alert is written.
func (b *Backend) ReviewTestResult(id, decision, reviewer, notes string) (*types.Result, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	return b.write(func(w *txn) error {
		r, err := b.getTestResult(w.tx, id)
		if err != nil {
			return err
		}
		if err := r.Review(decision, reviewer, notes, w.now); err != nil {
			return fmt.Errorf("%s -> %s: %w", r.ApprovalStatus, decision, err)
		}
		var reviewedAt any
		if r.ReviewedAt != nil {
			reviewedAt = formatTime(*r.ReviewedAt)
		}
		_, err = w.tx.Exec(`UPDATE test_results SET approval_status = ?, reviewed_by = ?, review_notes = ?,
    reviewed_at = ?, updated_at = ? WHERE id = ?`,
			r.ApprovalStatus, r.ReviewedBy, r.ReviewNotes, reviewedAt, formatTime(w.now), id,
		)
		if err != nil {
			return fmt.Errorf("reviewing test result %s: %w", id, err)
		}
		w.result.ID = id
		w.record(types.TableTestResults, id, types.OpUpdated)

		if decision != types.ApprovalApproved || r.ExternalProcedureNumber == nil {
			return nil
		}
		return w.completeTestingIfDone(*r.ExternalProcedureNumber)
	})
}

// completeTestingIfDone moves the quarantine procedure to results completed
// when every sample of its linked lab procedure has results and every one of
// those results is approved. It does nothing once testing is completed.
func (w *txn) completeTestingIfDone(number string) error {
	if !types.IsQuarantineNumber(number) {
		return nil
	}
	qp, err := w.b.quarantineByNumber(w.tx, number)
	if err != nil || qp == nil {
		return err
	}
	if qp.StageStatus != nil && qp.StageStatus.Testing == types.StateCompleted {
		return nil
	}
	lab, err := w.b.labProcedureByExternal(w.tx, number)
	if err != nil || lab == nil {
		return err
	}
	var samples, pending int
	err = w.tx.QueryRow(`SELECT
    (SELECT COUNT(*) FROM samples s WHERE s.saved_sample_id = ?
        AND NOT EXISTS (SELECT 1 FROM test_results r WHERE r.sample_id = s.id)),
    (SELECT COUNT(*) FROM test_results r JOIN samples s ON s.id = r.sample_id
        WHERE s.saved_sample_id = ? AND COALESCE(r.approval_status, 'pending') <> 'approved')`,
		lab.ID, lab.ID,
	).Scan(&samples, &pending)
	if err != nil {
		return fmt.Errorf("checking result completion: %w", err)
	}
	if samples > 0 || pending > 0 {
		return nil
	}
	var total int
	if err := w.tx.QueryRow("SELECT COUNT(*) FROM samples WHERE saved_sample_id = ?", lab.ID).Scan(&total); err != nil {
		return fmt.Errorf("counting samples: %w", err)
	}
	if total == 0 {
		return nil
	}
	return w.notifyQuarantine(number, types.EventResultsCompleted, types.ActionResultsCompleted)
}

// DeleteTestResult removes a result. When its sample's external number is a
// quarantine number, the testing and clearance stages regress to in progress
// and an "updated" alert is written.
func (b *Backend) DeleteTestResult(id string) (*types.Result, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	return b.write(func(w *txn) error {
		var ext sql.NullString
		err := w.tx.QueryRow(`SELECT COALESCE(s.external_procedure_number, r.external_procedure_number)
    FROM test_results r LEFT JOIN samples s ON s.id = r.sample_id WHERE r.id = ?`, id).Scan(&ext)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %s: %w", types.TableTestResults, id, types.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("loading test result %s: %w", id, err)
		}
		w.probeDrift = true
		if err := w.deleteByIDs(types.TableTestResults, []string{id}); err != nil {
			return err
		}
		w.result.ID = id
		if !ext.Valid || !types.IsQuarantineNumber(ext.String) {
			return nil
		}
		return w.notifyQuarantine(ext.String, types.EventResultDeleted, types.ActionUpdated)
	})
}
