package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Backend clients and stores return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in the ledger, index, or content store
// - ErrAccessDenied: the ledger refused the operation for the acting principal
// - ErrConflict: entity already exists in a conflicting state
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: backend temporarily unreachable or timed out
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrAccessDenied = errors.New("access denied")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
