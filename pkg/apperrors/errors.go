package apperrors

import "errors"

var (
	// ErrSourceUnavailable means the backing data source cannot be reached.
	ErrSourceUnavailable = errors.New("data source unavailable")
	// ErrSourceQueryError means a query against the data source was rejected.
	ErrSourceQueryError = errors.New("data source query failed")
	// ErrNotCached means no ontology row exists for the requested pair.
	ErrNotCached = errors.New("graph not cached")
	// ErrBuildFailed means the build pipeline aborted; the cache was not touched.
	ErrBuildFailed = errors.New("graph build failed")
	// ErrInvalidOption means a caller option was rejected before any I/O.
	ErrInvalidOption = errors.New("invalid option")
	// ErrStoreIntegrity means the cache store detected a constraint violation.
	ErrStoreIntegrity = errors.New("cache store integrity violation")
)
