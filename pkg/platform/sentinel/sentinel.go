package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These describe the state of a row, not the validity of input:
//   - ErrNotFound: no row matches the lookup
//   - ErrAlreadyUsed: a unique key (token, contribution+beneficiary) is taken
//   - ErrInvalidState: a conditional write found the row in another state
//   - ErrConflict: a concurrent writer already holds the row (send lease)
//   - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
