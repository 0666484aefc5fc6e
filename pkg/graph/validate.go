package graph

import (
	"errors"
	"slices"

	"github.com/quartictech/quartic/pkg/dataset"
)

const (
	white = iota
	grey
	black
)

// Validate checks the graph is acyclic and that every derived dataset has a single writer.
// Both checks always run; a graph failing both returns the two errors joined.
func Validate(g *Graph) error {
	return errors.Join(CheckAcyclic(g), CheckWriters(g))
}

// CheckAcyclic runs a depth-first search and reports the first cycle found.
func CheckAcyclic(g *Graph) error {
	colour := make(map[dataset.Coordinate]int, len(g.vertices))
	parent := make(map[dataset.Coordinate]dataset.Coordinate, len(g.vertices))

	var visit func(v dataset.Coordinate) *CycleError

	visit = func(v dataset.Coordinate) *CycleError {
		colour[v] = grey

		for _, next := range g.Successors(v) {
			switch colour[next] {
			case grey:
				return &CycleError{Path: cyclePath(parent, v, next)}
			case white:
				parent[next] = v
				if err := visit(next); err != nil {
					return err
				}
			}
		}

		colour[v] = black

		return nil
	}

	for _, v := range g.vertices {
		if colour[v] != white {
			continue
		}

		if err := visit(v); err != nil {
			return err
		}
	}

	return nil
}

func cyclePath(parent map[dataset.Coordinate]dataset.Coordinate, from, to dataset.Coordinate) []dataset.Coordinate {
	path := []dataset.Coordinate{from}
	for cur := from; cur != to; {
		cur = parent[cur]
		path = append(path, cur)
	}

	slices.Reverse(path)

	return append(path, to)
}

// CheckWriters reports every dataset written by more than one node. Nodes without inputs
// count as writers too, so two ingest steps for one dataset conflict.
func CheckWriters(g *Graph) error {
	var conflicts []Conflict

	for _, v := range g.vertices {
		writers := g.Producers(v)
		if len(writers) <= 1 {
			continue
		}

		conflict := Conflict{Dataset: v}
		for _, w := range writers {
			conflict.Writers = append(conflict.Writers, Writer{ID: w.ID(), Name: w.Name(), File: w.File()})
		}

		conflicts = append(conflicts, conflict)
	}

	if len(conflicts) > 0 {
		return &ConflictError{Conflicts: conflicts}
	}

	return nil
}
