package pipeline

import "errors"

var (
	// ErrFetch marks network, HTTP status and file access failures while fetching a source.
	ErrFetch = errors.New("fetch failed")

	// ErrSchemaDrift marks input tables whose columns or cells no longer match the expected layout.
	ErrSchemaDrift = errors.New("schema drift")
)
