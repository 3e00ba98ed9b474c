package shared

import "errors"

var (
	// ErrNotFound indicates a document or resource does not exist upstream.
	ErrNotFound = errors.New("not found")
	// ErrSourceUnavailable indicates a required input collection could not be fetched.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrUnsupportedDocType indicates a document type the pipeline does not handle.
	ErrUnsupportedDocType = errors.New("unsupported document type")
)
