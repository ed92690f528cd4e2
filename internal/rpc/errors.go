package rpc

import (
	"errors"

	"github.com/mesh-intelligence/vetlab/pkg/types"
)

// Stable error codes carried in Response.Error.Code.
const (
	CodeNotInitialized   = "not_initialized"
	CodeNotFound         = "not_found"
	CodeInvalidArgument  = "invalid_argument"
	CodeConflict         = "conflict"
	CodeUnknownOperation = "unknown_operation"
	CodeInternal         = "internal"
)

// ErrUnknownOperation is returned for operation names with no handler.
var ErrUnknownOperation = errors.New("unknown operation")

// codeTable maps sentinel errors to codes. Order matters only for errors
// that wrap more than one sentinel.
var codeTable = []struct {
	err  error
	code string
}{
	{types.ErrStoreNotInitialized, CodeNotInitialized},
	{ErrUnknownOperation, CodeUnknownOperation},
	{types.ErrNotFound, CodeNotFound},
	{types.ErrTableNotFound, CodeNotFound},
	{types.ErrExternalNumberInUse, CodeConflict},
	{types.ErrNumberInUse, CodeConflict},
	{types.ErrNumberExhausted, CodeConflict},
	{types.ErrImpactChanged, CodeConflict},
	{types.ErrStoreNotEmpty, CodeConflict},
	{types.ErrAlreadyAttached, CodeConflict},
	{types.ErrInvalidID, CodeInvalidArgument},
	{types.ErrInvalidData, CodeInvalidArgument},
	{types.ErrInvalidFilter, CodeInvalidArgument},
	{types.ErrUnknownField, CodeInvalidArgument},
	{types.ErrProtectedField, CodeInvalidArgument},
	{types.ErrInvalidState, CodeInvalidArgument},
	{types.ErrInvalidTransition, CodeInvalidArgument},
	{types.ErrInvalidAction, CodeInvalidArgument},
	{types.ErrInvalidNumber, CodeInvalidArgument},
	{types.ErrBackendEmpty, CodeInvalidArgument},
	{types.ErrBackendUnknown, CodeInvalidArgument},
}

// ErrorCode returns the stable code for err. Unrecognized errors are
// internal.
func ErrorCode(err error) string {
	for _, e := range codeTable {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeInternal
}
