package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	c  = StateCompleted
	ip = StateInProgress
	p  = StatePending
)

func TestNewStagePayload(t *testing.T) {
	now := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)
	pl := NewStagePayload(now)
	assert.Equal(t, ShapeWrapped, pl.Shape)
	assert.Equal(t, []StageState{c, ip, p, p, p}, pl.Status.Ordered())
	require.NotNil(t, pl.Timings[StageInspectionSampling].StartedAt)
	assert.Equal(t, now, *pl.Timings[StageInspectionSampling].StartedAt)
}

func TestStagePayload_Apply(t *testing.T) {
	t0 := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	t2 := t1.Add(time.Hour)

	tests := []struct {
		event StageEvent
		want  []StageState
	}{
		{EventSamplesDelivered, []StageState{c, c, c, ip, p}},
		{EventLabProcedureDeleted, []StageState{c, c, ip, ip, p}},
		{EventResultDeleted, []StageState{c, c, c, ip, ip}},
		{EventResultsCompleted, []StageState{c, c, c, c, ip}},
	}
	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			got, err := NewStagePayload(t0).Apply(tt.event, t1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status.Ordered())
		})
	}

	delivered, err := NewStagePayload(t0).Apply(EventSamplesDelivered, t1)
	require.NoError(t, err)
	inspection := delivered.Timings[StageInspectionSampling]
	assert.Equal(t, t0, *inspection.StartedAt, "start time survives completion")
	assert.Equal(t, t1, *inspection.CompletedAt)

	regressed, err := delivered.Apply(EventLabProcedureDeleted, t2)
	require.NoError(t, err)
	samples := regressed.Timings[StageSamplesDelivered]
	assert.Nil(t, samples.CompletedAt)
	assert.Equal(t, t2, *samples.StartedAt)
	assert.Equal(t, t1, *delivered.Timings[StageSamplesDelivered].CompletedAt, "Apply does not mutate its receiver")

	_, err = delivered.Apply("teleported", t2)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestParseStagePayload(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantShape PayloadShape
		want      []StageState
		wantErr   error
	}{
		{"empty", "", ShapeEmpty, []StageState{"", "", "", "", ""}, nil},
		{"legacy", `{"transaction_received":"completed","inspection_sampling":"in_progress"}`, ShapeLegacy, []StageState{c, ip, p, p, p}, nil},
		{"wrapped", `{"stage_status":{"transaction_received":"completed","inspection_sampling":"completed","samples_delivered":"completed","testing":"in_progress","clearance_procedures":"pending"},"stage_timings":null}`, ShapeWrapped, []StageState{c, c, c, ip, p}, nil},
		{"unknown state", `{"testing":"paused"}`, 0, nil, ErrInvalidState},
		{"null", `null`, 0, nil, ErrNoStages},
		{"empty object", `{}`, 0, nil, ErrNoStages},
		{"unrelated keys", `{"color":"red"}`, 0, nil, ErrNoStages},
		{"null wrapped status", `{"stage_status":null}`, 0, nil, ErrNoStages},
		{"empty wrapped status", `{"stage_status":{},"stage_timings":{}}`, 0, nil, ErrNoStages},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStagePayload(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantShape, got.Shape)
			assert.Equal(t, tt.want, got.Status.Ordered())
		})
	}

	_, err := ParseStagePayload(`[1,2`)
	assert.Error(t, err)
}

func TestStagePayload_EncodeUpgradesLegacy(t *testing.T) {
	legacy, err := ParseStagePayload(`{"transaction_received":"completed","inspection_sampling":"in_progress","samples_delivered":"pending","testing":"pending","clearance_procedures":"pending"}`)
	require.NoError(t, err)

	encoded, err := legacy.Encode()
	require.NoError(t, err)
	var probe map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(encoded), &probe))
	assert.Contains(t, probe, "stage_status")

	again, err := ParseStagePayload(encoded)
	require.NoError(t, err)
	assert.Equal(t, ShapeWrapped, again.Shape)
	assert.Equal(t, legacy.Status, again.Status)
}
