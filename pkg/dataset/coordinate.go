// Package dataset provides the coordinate type used to address datasets by namespace and id.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Separator joins namespace and id in the string form of a coordinate.
const Separator = "::"

var (
	// ErrInvalidCoordinate indicates a namespace or id containing the ':' character.
	ErrInvalidCoordinate = errors.New("dataset coordinate cannot contain ':' character")

	// ErrUnqualified indicates an attempt to resolve a coordinate without a namespace.
	ErrUnqualified = errors.New("unqualified dataset")

	// ErrMalformed indicates a string that is not of the form "ns::id" or "::id".
	ErrMalformed = errors.New("malformed dataset coordinate")
)

// CoordinateError wraps coordinate errors with the offending value.
type CoordinateError struct {
	Value string
	Err   error
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Value)
}

func (e *CoordinateError) Unwrap() error {
	return e.Err
}

// Coordinate identifies a dataset. An empty Namespace means the coordinate is unqualified.
// Coordinates are comparable and can be used as map keys.
type Coordinate struct {
	Namespace string
	ID        string
}

// New creates a coordinate, rejecting components that contain ':'.
func New(id, namespace string) (Coordinate, error) {
	for _, part := range []string{namespace, id} {
		if strings.Contains(part, ":") {
			return Coordinate{}, &CoordinateError{Value: part, Err: ErrInvalidCoordinate}
		}
	}

	return Coordinate{Namespace: namespace, ID: id}, nil
}

// MustNew is like New but panics on invalid input. Intended for pipeline declarations.
func MustNew(id, namespace string) Coordinate {
	c, err := New(id, namespace)
	if err != nil {
		panic(err)
	}

	return c
}

// Unqualified returns a coordinate without namespace.
func Unqualified(id string) Coordinate {
	return MustNew(id, "")
}

// Qualified returns a coordinate in the given namespace.
func Qualified(namespace, id string) Coordinate {
	return MustNew(id, namespace)
}

// Parse is the inverse of Coordinate.String.
func Parse(s string) (Coordinate, error) {
	namespace, id, found := strings.Cut(s, Separator)
	if !found {
		return Coordinate{}, &CoordinateError{Value: s, Err: ErrMalformed}
	}

	return New(id, namespace)
}

// IsQualified reports whether the coordinate carries a namespace.
func (c Coordinate) IsQualified() bool {
	return c.Namespace != ""
}

// WithNamespace returns a copy of c in the given namespace.
func (c Coordinate) WithNamespace(namespace string) Coordinate {
	return Coordinate{Namespace: namespace, ID: c.ID}
}

// FullyQualified returns c unchanged when it has a namespace, otherwise a copy in defaultNamespace.
func (c Coordinate) FullyQualified(defaultNamespace string) Coordinate {
	if c.IsQualified() {
		return c
	}

	return c.WithNamespace(defaultNamespace)
}

func (c Coordinate) String() string {
	return c.Namespace + Separator + c.ID
}

// MarshalJSON renders the descriptor form {"namespace": ..., "dataset_id": ...}.
func (c Coordinate) MarshalJSON() ([]byte, error) {
	var namespace *string
	if c.IsQualified() {
		namespace = &c.Namespace
	}

	return json.Marshal(struct {
		Namespace *string `json:"namespace"`
		DatasetID string  `json:"dataset_id"`
	}{namespace, c.ID})
}

// UnmarshalJSON accepts the descriptor form.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	var raw struct {
		Namespace *string `json:"namespace"`
		DatasetID string  `json:"dataset_id"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	namespace := ""
	if raw.Namespace != nil {
		namespace = *raw.Namespace
	}

	parsed, err := New(raw.DatasetID, namespace)
	if err != nil {
		return err
	}

	*c = parsed

	return nil
}

// Resolver turns a fully qualified (namespace, id) pair into a live dataset handle.
type Resolver[H any] interface {
	Dataset(namespace, id string) (H, error)
}

// Resolve obtains a handle for c from r. c must be fully qualified.
func Resolve[H any](c Coordinate, r Resolver[H]) (H, error) {
	if !c.IsQualified() {
		var zero H

		return zero, &CoordinateError{Value: c.String(), Err: ErrUnqualified}
	}

	return r.Dataset(c.Namespace, c.ID)
}

// Strings renders a slice of coordinates in their string form.
func Strings(coords []Coordinate) []string {
	out := make([]string, len(coords))
	for i, c := range coords {
		out[i] = c.String()
	}

	return out
}
