package pipeline

import (
	"github.com/quartictech/quartic/pkg/dataset"
)

// Declaration pairs a step with its datasets. Params are kept in declaration order.
type Declaration struct {
	Name        string `validate:"required"`
	Description string
	Params      []Param `validate:"dive"`
	Output      *dataset.Coordinate
}

// Param is one step argument: either a single dataset or a named group of datasets (fan-in).
type Param struct {
	Name    string `validate:"required"`
	Dataset *dataset.Coordinate
	Group   []Named
}

// Named is one member of a fan-in group.
type Named struct {
	Key     string
	Dataset dataset.Coordinate
}

// Input declares a single-dataset parameter.
func Input(name string, c dataset.Coordinate) Param {
	return Param{Name: name, Dataset: &c}
}

// FanIn declares a parameter receiving several named datasets.
func FanIn(name string, members ...Named) Param {
	return Param{Name: name, Group: members}
}

// Member is one entry of a FanIn parameter.
func Member(key string, c dataset.Coordinate) Named {
	return Named{Key: key, Dataset: c}
}

// Output is a helper for Declaration.Output.
func Output(c dataset.Coordinate) *dataset.Coordinate {
	return &c
}

func (p Param) annotated() bool {
	return p.Dataset != nil || len(p.Group) > 0
}

func (p Param) coordinates() []dataset.Coordinate {
	if p.Dataset != nil {
		return []dataset.Coordinate{*p.Dataset}
	}

	out := make([]dataset.Coordinate, len(p.Group))
	for i, member := range p.Group {
		out[i] = member.Dataset
	}

	return out
}
