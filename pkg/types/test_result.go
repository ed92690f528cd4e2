package types

import (
	"slices"
	"time"
)

// Outcome classifications of a test result.
const (
	OutcomePositive     = "positive"
	OutcomeNegative     = "negative"
	OutcomeInconclusive = "inconclusive"
)

// Approval states of a test result.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// validApprovalTransitions lists the reviewer moves allowed from each state.
// An approved result only returns to pending when its content is edited.
var validApprovalTransitions = map[string][]string{
	ApprovalPending:  {ApprovalApproved, ApprovalRejected},
	ApprovalRejected: {ApprovalPending},
}

// CanTransitionApproval reports whether a reviewer may move a result from
// one approval state to another.
func CanTransitionApproval(from, to string) bool {
	return slices.Contains(validApprovalTransitions[from], to)
}

// TestResult is the outcome of a requested test on a Sample.
// ExternalProcedureNumber is copied from the sample at creation.
type TestResult struct {
	ID                      string            `json:"id"`
	SampleID                string            `json:"sample_id"`
	Method                  string            `json:"method"`
	Result                  string            `json:"result"`
	PositiveCount           int               `json:"positive_count"`
	ConfirmatoryTest        *ConfirmatoryTest `json:"confirmatory_test"`
	Specialists             []string          `json:"specialists"`
	IsRetest                bool              `json:"is_retest"`
	ApprovalStatus          string            `json:"approval_status"`
	ReviewedBy              string            `json:"reviewed_by"`
	ReviewNotes             string            `json:"review_notes"`
	ReviewedAt              *time.Time        `json:"reviewed_at"`
	ExternalProcedureNumber *string           `json:"external_procedure_number"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

// ConfirmatoryTest is an optional second-line test nested in a TestResult.
type ConfirmatoryTest struct {
	Method      string `json:"method"`
	Result      string `json:"result"`
	PerformedAt string `json:"performed_at,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Review moves the result to decision on behalf of reviewer.
// Returns ErrInvalidTransition if the move is not allowed from the
// current state; the result is left unchanged in that case.
func (r *TestResult) Review(decision, reviewer, notes string, now time.Time) error {
	from := r.ApprovalStatus
	if from == "" {
		from = ApprovalPending
	}
	if !CanTransitionApproval(from, decision) {
		return ErrInvalidTransition
	}
	r.ApprovalStatus = decision
	r.ReviewedBy = reviewer
	r.ReviewNotes = notes
	if decision == ApprovalPending {
		r.ReviewedAt = nil
	} else {
		t := now
		r.ReviewedAt = &t
	}
	r.UpdatedAt = now
	return nil
}

// ValidOutcome reports whether s is a known outcome classification.
func ValidOutcome(s string) bool {
	switch s {
	case OutcomePositive, OutcomeNegative, OutcomeInconclusive:
		return true
	}
	return false
}
