package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into domain
// errors.
//
// These represent factual states about resources, not business failures:
// - ErrNotFound: record does not exist in the store
// - ErrConflict: record already exists or a concurrent write won
// - ErrUnavailable: backend temporarily unreachable
//
// For business failures (insufficient balance, authorization), use
// pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
