package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnknownEntity is returned when an entity has no synonym table entry.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrMalformedListing is returned when a listing row cannot be interpreted.
	ErrMalformedListing = errors.New("malformed listing")
	// ErrContainerMissing is returned when the expected detail container is absent.
	ErrContainerMissing = errors.New("content container missing")
	// ErrObjectNotFound is returned by blob stores for missing paths.
	ErrObjectNotFound = errors.New("object not found")
	// ErrNoData is returned when a run has nothing to write.
	ErrNoData = errors.New("no data for run")
	// ErrTimestamp is returned when a document's publish time cannot be parsed.
	ErrTimestamp = errors.New("unparseable timestamp")
)

// StatusError is returned by fetchers when a board answers with an HTTP error status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Permanent reports whether repeating the request cannot help. Boards answer 404 or 410 for
// deleted posts; 408 and 429 are the client errors worth waiting out.
func (e *StatusError) Permanent() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != http.StatusRequestTimeout && e.Code != http.StatusTooManyRequests
}
