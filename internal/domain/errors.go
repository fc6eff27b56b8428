package domain

import "errors"

// Failure kinds shared by integrations and the pipeline. Integrations wrap
// these so callers can classify with errors.Is.
var (
	ErrMissingInput     = errors.New("missing input")
	ErrEmptyOutput      = errors.New("no output produced")
	ErrRetriesExhausted = errors.New("retries exhausted")
)
