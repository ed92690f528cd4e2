package types

import "errors"

// Filter narrows a Fetch. Keys are column names; values are matched for
// equality. A nil or empty filter returns every row.
type Filter map[string]any

// Table provides uniform CRUD operations for a single entity type.
// Get and Fetch return any; callers type-assert to the concrete entity struct.
type Table interface {
	// Create inserts a new entity. The backend generates the ID and stamps
	// created_at and updated_at; any caller-supplied values are ignored.
	Create(data any) (string, error)

	// Get retrieves the entity with the given ID.
	// Returns ErrNotFound if no entity exists with that ID.
	Get(id string) (any, error)

	// Fetch returns all entities matching the filter ordered newest first.
	Fetch(filter Filter) ([]any, error)

	// Update applies a partial set of column values. The id and created_at
	// keys are dropped silently; updated_at is always refreshed.
	Update(id string, fields map[string]any) error

	// Delete removes the entity with the given ID and cascades to children.
	// Returns ErrNotFound if no entity exists with that ID.
	Delete(id string) error
}

// Table operation errors.
var (
	ErrNotFound       = errors.New("entity not found")
	ErrInvalidID      = errors.New("invalid entity ID")
	ErrInvalidData    = errors.New("invalid entity data")
	ErrInvalidFilter  = errors.New("invalid filter")
	ErrUnknownField   = errors.New("unknown field")
	ErrProtectedField = errors.New("field cannot be updated directly")
)

// Domain rule errors.
var (
	ErrInvalidState        = errors.New("invalid stage state")
	ErrNoStages            = errors.New("stage payload names no stages")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrInvalidAction       = errors.New("invalid alert action type")
	ErrInvalidNumber       = errors.New("invalid procedure number")
	ErrNumberInUse         = errors.New("procedure number already in use")
	ErrExternalNumberInUse = errors.New("external procedure number already registered")
	ErrNumberExhausted     = errors.New("procedure number space exhausted for year")
	ErrImpactChanged       = errors.New("deletion impact changed since preview")
)
