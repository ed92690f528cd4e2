package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Stage names a step of the quarantine workflow pipeline.
type Stage string

// The five workflow stages in pipeline order.
const (
	StageTransactionReceived Stage = "transaction_received"
	StageInspectionSampling  Stage = "inspection_sampling"
	StageSamplesDelivered    Stage = "samples_delivered"
	StageTesting             Stage = "testing"
	StageClearance           Stage = "clearance_procedures"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{
	StageTransactionReceived,
	StageInspectionSampling,
	StageSamplesDelivered,
	StageTesting,
	StageClearance,
}

// StageState is the progress of a single stage.
type StageState string

// Stage states.
const (
	StatePending    StageState = "pending"
	StateInProgress StageState = "in_progress"
	StateCompleted  StageState = "completed"
)

func (s StageState) valid() bool {
	return s == StatePending || s == StateInProgress || s == StateCompleted
}

// StageStatus holds the state of every stage. Its JSON form is the bare
// stage map stored by older releases.
type StageStatus struct {
	TransactionReceived StageState `json:"transaction_received"`
	InspectionSampling  StageState `json:"inspection_sampling"`
	SamplesDelivered    StageState `json:"samples_delivered"`
	Testing             StageState `json:"testing"`
	ClearanceProcedures StageState `json:"clearance_procedures"`
}

// Get returns the state of stage.
func (s StageStatus) Get(stage Stage) StageState {
	switch stage {
	case StageTransactionReceived:
		return s.TransactionReceived
	case StageInspectionSampling:
		return s.InspectionSampling
	case StageSamplesDelivered:
		return s.SamplesDelivered
	case StageTesting:
		return s.Testing
	case StageClearance:
		return s.ClearanceProcedures
	}
	return ""
}

// Set assigns the state of stage. Unknown stages are ignored.
func (s *StageStatus) Set(stage Stage, state StageState) {
	switch stage {
	case StageTransactionReceived:
		s.TransactionReceived = state
	case StageInspectionSampling:
		s.InspectionSampling = state
	case StageSamplesDelivered:
		s.SamplesDelivered = state
	case StageTesting:
		s.Testing = state
	case StageClearance:
		s.ClearanceProcedures = state
	}
}

// Ordered returns the stage states in pipeline order.
func (s StageStatus) Ordered() []StageState {
	out := make([]StageState, len(Stages))
	for i, st := range Stages {
		out[i] = s.Get(st)
	}
	return out
}

// normalize fills missing stages with pending and rejects unknown values.
func (s *StageStatus) normalize() error {
	for _, st := range Stages {
		v := s.Get(st)
		if v == "" {
			s.Set(st, StatePending)
			continue
		}
		if !v.valid() {
			return fmt.Errorf("stage %s: %q: %w", st, v, ErrInvalidState)
		}
	}
	return nil
}

// StageTiming records when a stage started and completed.
type StageTiming struct {
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StageTimings maps stages to their timing record.
type StageTimings map[Stage]StageTiming

// PayloadShape tags which stored layout a stage payload was read from.
type PayloadShape int

const (
	// ShapeEmpty means no stage payload was stored.
	ShapeEmpty PayloadShape = iota
	// ShapeLegacy is the bare stage map.
	ShapeLegacy
	// ShapeWrapped is {"stage_status": ..., "stage_timings": ...}.
	ShapeWrapped
)

// StagePayload is the decoded stage column of a QuarantineProcedure.
// Readers get the same Status whichever shape was stored; Encode always
// writes the wrapped shape, so legacy rows upgrade on their next write.
type StagePayload struct {
	Shape   PayloadShape
	Status  StageStatus
	Timings StageTimings
}

type wrappedPayload struct {
	StageStatus  StageStatus  `json:"stage_status"`
	StageTimings StageTimings `json:"stage_timings,omitempty"`
}

// hasStageKey reports whether obj carries at least one stage name.
func hasStageKey(obj map[string]json.RawMessage) bool {
	for _, st := range Stages {
		if _, ok := obj[string(st)]; ok {
			return true
		}
	}
	return false
}

// ParseStagePayload decodes a stored stage column. The wrapped layout is
// chosen only when the top-level object carries a stage_status key. A
// payload with no stage keys is an error rather than an all-pending status.
func ParseStagePayload(raw string) (StagePayload, error) {
	if strings.TrimSpace(raw) == "" {
		return StagePayload{Shape: ShapeEmpty}, nil
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return StagePayload{}, fmt.Errorf("decoding stage payload: %w", err)
	}

	var p StagePayload
	if inner, ok := probe["stage_status"]; ok {
		p.Shape = ShapeWrapped
		var stages map[string]json.RawMessage
		if err := json.Unmarshal(inner, &stages); err != nil {
			return StagePayload{}, fmt.Errorf("decoding wrapped stage status: %w", err)
		}
		if !hasStageKey(stages) {
			return StagePayload{}, fmt.Errorf("wrapped stage status: %w", ErrNoStages)
		}
		if err := json.Unmarshal(inner, &p.Status); err != nil {
			return StagePayload{}, fmt.Errorf("decoding wrapped stage status: %w", err)
		}
		if t, ok := probe["stage_timings"]; ok && string(t) != "null" {
			if err := json.Unmarshal(t, &p.Timings); err != nil {
				return StagePayload{}, fmt.Errorf("decoding stage timings: %w", err)
			}
		}
	} else {
		p.Shape = ShapeLegacy
		if !hasStageKey(probe) {
			return StagePayload{}, fmt.Errorf("legacy stage status: %w", ErrNoStages)
		}
		if err := json.Unmarshal([]byte(raw), &p.Status); err != nil {
			return StagePayload{}, fmt.Errorf("decoding legacy stage status: %w", err)
		}
	}
	if err := p.Status.normalize(); err != nil {
		return StagePayload{}, err
	}
	return p, nil
}

// Encode returns the wrapped JSON form of the payload.
func (p StagePayload) Encode() (string, error) {
	data, err := json.Marshal(wrappedPayload{StageStatus: p.Status, StageTimings: p.Timings})
	if err != nil {
		return "", fmt.Errorf("encoding stage payload: %w", err)
	}
	return string(data), nil
}

// StageEvent is a cross-domain occurrence that moves the pipeline.
type StageEvent string

// Stage events raised by the lab side of the workflow.
const (
	EventSamplesDelivered    StageEvent = "samples_delivered"
	EventLabProcedureDeleted StageEvent = "lab_procedure_deleted"
	EventResultDeleted       StageEvent = "result_deleted"
	EventResultsCompleted    StageEvent = "results_completed"
)

// stageTargets gives the full stage vector each event produces, in
// pipeline order.
var stageTargets = map[StageEvent][5]StageState{
	EventSamplesDelivered:    {StateCompleted, StateCompleted, StateCompleted, StateInProgress, StatePending},
	EventLabProcedureDeleted: {StateCompleted, StateCompleted, StateInProgress, StateInProgress, StatePending},
	EventResultDeleted:       {StateCompleted, StateCompleted, StateCompleted, StateInProgress, StateInProgress},
	EventResultsCompleted:    {StateCompleted, StateCompleted, StateCompleted, StateCompleted, StateInProgress},
}

// NewStagePayload returns the state of a freshly created procedure: the
// transaction is received and inspection has started.
func NewStagePayload(now time.Time) StagePayload {
	p := StagePayload{Shape: ShapeWrapped, Timings: StageTimings{}}
	p.Status = StageStatus{
		TransactionReceived: StateCompleted,
		InspectionSampling:  StateInProgress,
		SamplesDelivered:    StatePending,
		Testing:             StatePending,
		ClearanceProcedures: StatePending,
	}
	t := now
	p.Timings[StageInspectionSampling] = StageTiming{StartedAt: &t}
	return p
}

// Apply returns the payload after event. Timings are stamped for stages that
// start or complete, and cleared for stages that regress.
func (p StagePayload) Apply(event StageEvent, now time.Time) (StagePayload, error) {
	target, ok := stageTargets[event]
	if !ok {
		return p, fmt.Errorf("stage event %q: %w", event, ErrInvalidTransition)
	}
	out := StagePayload{Shape: ShapeWrapped, Status: p.Status, Timings: StageTimings{}}
	for k, v := range p.Timings {
		out.Timings[k] = v
	}
	for i, st := range Stages {
		prev, next := p.Status.Get(st), target[i]
		out.Status.Set(st, next)
		if prev == next {
			continue
		}
		t := now
		timing := out.Timings[st]
		switch next {
		case StatePending:
			delete(out.Timings, st)
			continue
		case StateInProgress:
			timing.StartedAt = &t
			timing.CompletedAt = nil
		case StateCompleted:
			if timing.StartedAt == nil {
				timing.StartedAt = &t
			}
			timing.CompletedAt = &t
		}
		out.Timings[st] = timing
	}
	return out, nil
}
