package types

import "time"

// Alert action types.
const (
	ActionDeleted          = "deleted"
	ActionUpdated          = "updated"
	ActionNew              = "new"
	ActionResultsCompleted = "results_completed"
)

// actionPriority orders action types; the lowest number is surfaced first.
var actionPriority = map[string]int{
	ActionDeleted:          1,
	ActionUpdated:          2,
	ActionNew:              3,
	ActionResultsCompleted: 4,
}

// ActionPriority returns the priority of an action type, or 0 if unknown.
func ActionPriority(action string) int {
	return actionPriority[action]
}

// ValidAction reports whether action is a known alert action type.
func ValidAction(action string) bool {
	return actionPriority[action] > 0
}

// Alert is a lifecycle notification for an external procedure number.
// Rows are never upserted: repeated events for the same pair accumulate as
// history and only the newest non-dismissed row per action type matters.
type Alert struct {
	ID              string    `json:"id"`
	ProcedureNumber string    `json:"procedure_number"`
	ActionType      string    `json:"action_type"`
	CreatedAt       time.Time `json:"created_at"`
	Dismissed       bool      `json:"is_dismissed"`
}

// SelectActive returns the alert to surface for a procedure: the
// non-dismissed alert with the highest-priority action type, newest first
// within a type. Returns nil when every alert is dismissed.
func SelectActive(alerts []*Alert) *Alert {
	var best *Alert
	for _, a := range alerts {
		if a == nil || a.Dismissed || !ValidAction(a.ActionType) {
			continue
		}
		if best == nil {
			best = a
			continue
		}
		pa, pb := ActionPriority(a.ActionType), ActionPriority(best.ActionType)
		switch {
		case pa < pb:
			best = a
		case pa == pb && (a.CreatedAt.After(best.CreatedAt) ||
			(a.CreatedAt.Equal(best.CreatedAt) && a.ID > best.ID)):
			best = a
		}
	}
	return best
}
