package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and API clients return these
// (optionally wrapped) and services translate them into domain errors or
// domain outcomes such as "not found".
//
//   - ErrNotFound: row or upstream record does not exist
//   - ErrConflict: a concurrent writer holds the resource (e.g. the ingestion lock)
//   - ErrUnavailable: dependency temporarily unavailable (circuit open, upstream down)
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
