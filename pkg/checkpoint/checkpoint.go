// Package checkpoint persists the set of datasets a pipeline run has already materialised so
// an interrupted run can resume where it stopped.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/quartictech/quartic/pkg/dataset"
)

// Set holds fully qualified output coordinates.
type Set map[dataset.Coordinate]struct{}

// NewSet returns a set holding cs.
func NewSet(cs ...dataset.Coordinate) Set {
	s := make(Set, len(cs))
	for _, c := range cs {
		s.Add(c)
	}

	return s
}

func (s Set) Add(c dataset.Coordinate) {
	s[c] = struct{}{}
}

func (s Set) Has(c dataset.Coordinate) bool {
	_, ok := s[c]

	return ok
}

// Qualified returns a copy of s with unqualified entries moved into namespace, so "::B" and
// "ns::B" collapse into one entry.
func (s Set) Qualified(namespace string) Set {
	out := make(Set, len(s))
	for c := range s {
		out.Add(c.FullyQualified(namespace))
	}

	return out
}

// Strings returns the serialised coordinates in sorted order.
func (s Set) Strings() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c.String())
	}

	slices.Sort(out)

	return out
}

// MarshalJSON writes the set as a flat, sorted array of "ns::id" strings.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}

	set, err := parseSet(raw)
	if err != nil {
		return err
	}

	*s = set

	return nil
}

func parseSet(raw []string) (Set, error) {
	set := make(Set, len(raw))

	for _, item := range raw {
		c, err := dataset.Parse(item)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCheckpoint, err)
		}

		set.Add(c)
	}

	return set, nil
}

// Store loads and saves the checkpoint of one pipeline.
type Store interface {
	// Load returns the saved set, or an empty set when nothing was saved yet.
	Load(ctx context.Context) (Set, error)
	// Save replaces the saved set.
	Save(ctx context.Context, set Set) error
	Close() error
}

// Memory keeps the checkpoint in process. It is used when no resume location is given.
type Memory struct {
	set Set
}

func NewMemory() *Memory {
	return &Memory{set: NewSet()}
}

func (m *Memory) Load(context.Context) (Set, error) {
	return m.copy(), nil
}

func (m *Memory) Save(_ context.Context, set Set) error {
	m.set = NewSet()
	for c := range set {
		m.set.Add(c)
	}

	return nil
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) copy() Set {
	out := NewSet()
	for c := range m.set {
		out.Add(c)
	}

	return out
}
