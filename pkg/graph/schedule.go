package graph

import (
	"slices"

	"github.com/quartictech/quartic/pkg/dataset"
	"github.com/quartictech/quartic/pkg/pipeline"
)

// Schedule is the execution plan for a validated graph.
type Schedule struct {
	// Order is every vertex in topological order.
	Order []dataset.Coordinate
	// Raw holds the vertices nothing writes to, in topological order.
	Raw []dataset.Coordinate
	// Derived holds the remaining vertices, in topological order.
	Derived []dataset.Coordinate
	// Steps holds the producer of each derived vertex, aligned with Derived.
	Steps []*pipeline.Node
}

// NewSchedule orders the graph with Kahn's algorithm. Ties are broken by vertex insertion
// order so the same graph always yields the same plan.
func NewSchedule(g *Graph) (*Schedule, error) {
	order, err := TopologicalSort(g)
	if err != nil {
		return nil, err
	}

	s := &Schedule{Order: order}

	for _, v := range order {
		if g.IsRaw(v) {
			s.Raw = append(s.Raw, v)

			continue
		}

		writers := g.Writers(v)

		switch len(writers) {
		case 0:
			return nil, &InconsistentError{Dataset: v, Reason: "derived dataset has no recorded writer"}
		case 1:
		default:
			return nil, &InconsistentError{Dataset: v, Reason: "derived dataset has more than one writer"}
		}

		s.Derived = append(s.Derived, v)
		s.Steps = append(s.Steps, writers[0])
	}

	return s, nil
}

// TopologicalSort returns all vertices so that every edge points forward.
func TopologicalSort(g *Graph) ([]dataset.Coordinate, error) {
	inDegree := make(map[dataset.Coordinate]int, len(g.vertices))

	var ready []int

	for i, v := range g.vertices {
		inDegree[v] = g.InDegree(v)
		if inDegree[v] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]dataset.Coordinate, 0, len(g.vertices))

	for len(ready) > 0 {
		v := g.vertices[ready[0]]
		ready = ready[1:]
		order = append(order, v)

		for _, e := range g.out[v] {
			inDegree[e.To]--
			if inDegree[e.To] == 0 {
				idx := g.index[e.To]
				pos, _ := slices.BinarySearch(ready, idx)
				ready = slices.Insert(ready, pos, idx)
			}
		}
	}

	if len(order) != len(g.vertices) {
		if err := CheckAcyclic(g); err != nil {
			return nil, err
		}

		return nil, ErrNotDAG
	}

	return order, nil
}

// Ingest returns the nodes without inputs, which produce raw datasets, following the
// order of Raw.
func (s *Schedule) Ingest(g *Graph) []*pipeline.Node {
	var out []*pipeline.Node

	for _, v := range s.Raw {
		for _, n := range g.Producers(v) {
			if len(n.Inputs()) == 0 {
				out = append(out, n)
			}
		}
	}

	return out
}

// Plan is the serialisable form of a schedule.
type Plan struct {
	Raw     []dataset.Coordinate  `json:"raw"`
	Derived []dataset.Coordinate  `json:"derived"`
	Steps   []pipeline.Descriptor `json:"steps"`
}

// Plan exports the schedule.
func (s *Schedule) Plan() Plan {
	return Plan{
		Raw:     nonNil(s.Raw),
		Derived: nonNil(s.Derived),
		Steps:   pipeline.Descriptors(s.Steps),
	}
}

func nonNil(cs []dataset.Coordinate) []dataset.Coordinate {
	if cs == nil {
		return []dataset.Coordinate{}
	}

	return cs
}
