package store

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates a 404-equivalent outcome from a store service.
	ErrNotFound = errors.New("not found")

	// ErrService indicates a non-success response from a store service.
	ErrService = errors.New("service error")

	// ErrNameRequired indicates a writer for a new dataset was opened without a name.
	ErrNameRequired = errors.New("new datasets must specify name")

	// ErrEntriesDiffer indicates a non-overwriting put over an existing, different catalogue entry.
	ErrEntriesDiffer = errors.New("catalogue entries differ")

	// ErrSinkClosed indicates a write, commit or cancel on a sink that was already finished.
	ErrSinkClosed = errors.New("sink already closed")
)

// ServiceError carries a non-2xx response verbatim.
type ServiceError struct {
	Op         string // e.g. "GET", "PUT"
	URL        string
	StatusCode int
	Message    string // response body as returned by the service
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d: %s", e.Op, e.URL, e.StatusCode, e.Message)
}

// Is implements error comparison so callers can use errors.Is(err, ErrNotFound).
func (e *ServiceError) Is(target error) bool {
	if target == ErrService {
		return true
	}

	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// DatasetError wraps store errors with the dataset they concern.
type DatasetError struct {
	Op        string
	Namespace string
	ID        string
	Err       error
}

func (e *DatasetError) Error() string {
	return fmt.Sprintf("%s operation failed for dataset %s::%s: %v", e.Op, e.Namespace, e.ID, e.Err)
}

func (e *DatasetError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a not-found outcome.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsServiceError reports whether err came from a non-success service response.
func IsServiceError(err error) bool {
	return errors.Is(err, ErrService)
}
