package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, locks and outbound
// clients return these (optionally wrapped) so services can translate them
// into domain errors.
//
//   - ErrNotFound: party, token or entity does not exist
//   - ErrConflict: key or (encoding, token) pair already owned by another record
//   - ErrExpired: token outside its validity window
//   - ErrInvalidState: record in the wrong state for the operation
//   - ErrLocked: another worker holds the lock for this key
//   - ErrUnavailable: backend or counterpart temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrLocked       = errors.New("locked")
	ErrUnavailable  = errors.New("unavailable")
)
