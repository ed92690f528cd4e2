package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionPriority(t *testing.T) {
	assert.Less(t, ActionPriority(ActionDeleted), ActionPriority(ActionUpdated))
	assert.Less(t, ActionPriority(ActionUpdated), ActionPriority(ActionNew))
	assert.Less(t, ActionPriority(ActionNew), ActionPriority(ActionResultsCompleted))
	assert.Zero(t, ActionPriority("archived"))
	assert.False(t, ValidAction("archived"))
}

func TestSelectActive(t *testing.T) {
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	at := func(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }

	tests := []struct {
		name   string
		alerts []*Alert
		wantID string
	}{
		{"empty", nil, ""},
		{"all dismissed", []*Alert{{ID: "a", ActionType: ActionDeleted, Dismissed: true}}, ""},
		{
			"priority beats recency",
			[]*Alert{
				{ID: "old-delete", ActionType: ActionDeleted, CreatedAt: at(0)},
				{ID: "new-update", ActionType: ActionUpdated, CreatedAt: at(5)},
			},
			"old-delete",
		},
		{
			"newest within a type",
			[]*Alert{
				{ID: "u1", ActionType: ActionUpdated, CreatedAt: at(1)},
				{ID: "u2", ActionType: ActionUpdated, CreatedAt: at(3)},
				{ID: "u3", ActionType: ActionUpdated, CreatedAt: at(2)},
			},
			"u2",
		},
		{
			"dismissed rows are skipped",
			[]*Alert{
				{ID: "d", ActionType: ActionDeleted, CreatedAt: at(9), Dismissed: true},
				{ID: "n", ActionType: ActionNew, CreatedAt: at(1)},
			},
			"n",
		},
		{
			"same timestamp breaks on id",
			[]*Alert{
				{ID: "b", ActionType: ActionNew, CreatedAt: at(0)},
				{ID: "c", ActionType: ActionNew, CreatedAt: at(0)},
				{ID: "a", ActionType: ActionNew, CreatedAt: at(0)},
			},
			"c",
		},
		{"unknown actions are ignored", []*Alert{{ID: "x", ActionType: "archived"}, nil}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectActive(tt.alerts)
			if tt.wantID == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}
