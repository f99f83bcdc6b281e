package crawler

import "errors"

// Lookup outcomes returned by the rendering and fetch collaborators.
var (
	// ErrTimeout indicates a bounded wait elapsed before the element appeared.
	ErrTimeout = errors.New("wait timed out")
	// ErrNotFound indicates the page loaded but the element is absent.
	ErrNotFound = errors.New("element not found")
	// ErrMissingField marks a structurally required field that could not be read.
	// It aborts the containing item only.
	ErrMissingField = errors.New("required field missing")
)
