// Package pipeline declares pipeline steps as nodes over dataset coordinates and collects them
// into registration contexts.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/adler32"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/quartictech/quartic/pkg/dataset"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Node is a registered step: its datasets, where it was declared and how it executes.
type Node struct {
	name        string
	description string
	params      []Param
	output      dataset.Coordinate
	source      Source
	executor    Executor
	id          string
}

// NewNode builds a node from decl. Every parameter must carry coordinates and an output
// must be declared.
func NewNode(decl Declaration, executor Executor, source Source) (*Node, error) {
	for _, p := range decl.Params {
		if !p.annotated() {
			return nil, &DeclarationError{Step: decl.Name, Param: p.Name, Err: ErrUnannotatedArgument}
		}
	}

	if decl.Output == nil {
		return nil, &DeclarationError{Step: decl.Name, Err: ErrNoOutput}
	}

	if err := validate.Struct(decl); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return nil, &DeclarationError{Step: decl.Name, Err: fmt.Errorf("%w: %v", ErrInvalidDeclaration, validationErrors)}
		}

		return nil, err
	}

	seen := make(map[string]struct{}, len(decl.Params))
	for _, p := range decl.Params {
		if _, dup := seen[p.Name]; dup {
			return nil, &DeclarationError{Step: decl.Name, Param: p.Name, Err: ErrDuplicateParam}
		}

		seen[p.Name] = struct{}{}
	}

	node := &Node{
		name:        decl.Name,
		description: decl.Description,
		params:      slices.Clone(decl.Params),
		output:      *decl.Output,
		source:      source,
		executor:    executor,
	}
	node.id = structuralID(node)

	return node, nil
}

// Step declares an ordinary transformation step located at fn.
func Step(decl Declaration, fn TransformFunc) (*Node, error) {
	return NewNode(decl, &Transform{Func: fn}, SourceOf(fn))
}

// Raw declares a raw ingestion step located at the caller.
func Raw(decl Declaration, src RawSource) (*Node, error) {
	return NewNode(decl, &RawIngest{Source: src}, CallerSource(1))
}

func (n *Node) Name() string        { return n.name }
func (n *Node) Description() string { return n.description }
func (n *Node) Source() Source      { return n.source }
func (n *Node) File() string        { return n.source.File }
func (n *Node) Executor() Executor  { return n.executor }
func (n *Node) Params() []Param     { return slices.Clone(n.params) }

// ID is the structural identity of the node. It depends only on the coordinates it reads
// and writes, never on the step body.
func (n *Node) ID() string {
	return n.id
}

// Inputs flattens all parameter coordinates in declaration order, without deduplication.
func (n *Node) Inputs() []dataset.Coordinate {
	var out []dataset.Coordinate
	for _, p := range n.params {
		out = append(out, p.coordinates()...)
	}

	return out
}

// Outputs always holds exactly one coordinate.
func (n *Node) Outputs() []dataset.Coordinate {
	return []dataset.Coordinate{n.output}
}

// Output is the single output coordinate.
func (n *Node) Output() dataset.Coordinate {
	return n.output
}

// Datasets is Inputs followed by Outputs.
func (n *Node) Datasets() []dataset.Coordinate {
	return append(n.Inputs(), n.Outputs()...)
}

// Execute runs the node's executor in namespace.
func (n *Node) Execute(ctx context.Context, ec *ExecutionContext) error {
	return n.executor.Execute(ctx, ec, n.params, n.output)
}

func (n *Node) String() string {
	return fmt.Sprintf("%s (%s)", n.name, n.id)
}

func structuralID(n *Node) string {
	lines := dataset.Strings(n.Inputs())
	slices.Sort(lines)
	lines = append(lines, dataset.Strings(n.Outputs())...)

	return strconv.FormatUint(uint64(adler32.Checksum([]byte(strings.Join(lines, "\n")))), 10)
}

// Descriptor is the exported form of a node consumed by external tooling.
type Descriptor struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	File        string               `json:"file"`
	LineRange   [2]int               `json:"line_range"`
	Inputs      []dataset.Coordinate `json:"inputs"`
	Outputs     []dataset.Coordinate `json:"outputs"`
	Executor    map[string]any       `json:"-"`
}

// MarshalJSON merges the executor description into the top-level object.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	type plain Descriptor

	base, err := json.Marshal(plain(d))
	if err != nil {
		return nil, err
	}

	if len(d.Executor) == 0 {
		return base, nil
	}

	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}

	for key, value := range d.Executor {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}

		merged[key] = raw
	}

	return json.Marshal(merged)
}

// UnmarshalJSON reads back descriptors, keeping unknown keys as executor description.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	type plain Descriptor

	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}

	for _, known := range []string{"id", "name", "description", "file", "line_range", "inputs", "outputs"} {
		delete(all, known)
	}

	if len(all) > 0 {
		p.Executor = all
	}

	*d = Descriptor(p)

	return nil
}

// Descriptor exports the node.
func (n *Node) Descriptor() Descriptor {
	inputs := n.Inputs()
	if inputs == nil {
		inputs = []dataset.Coordinate{}
	}

	return Descriptor{
		ID:          n.id,
		Name:        n.name,
		Description: n.description,
		File:        n.source.File,
		LineRange:   n.source.LineRange,
		Inputs:      inputs,
		Outputs:     n.Outputs(),
		Executor:    maps.Clone(n.executor.Describe()),
	}
}

// Descriptors exports a list of nodes.
func Descriptors(nodes []*Node) []Descriptor {
	out := make([]Descriptor, len(nodes))
	for i, n := range nodes {
		out[i] = n.Descriptor()
	}

	return out
}
