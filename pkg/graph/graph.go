// Package graph builds the dataset dependency graph from registered nodes, validates it and
// derives an execution schedule.
package graph

import (
	"slices"

	"github.com/quartictech/quartic/pkg/dataset"
	"github.com/quartictech/quartic/pkg/pipeline"
)

// Edge links an input dataset to the output of the node reading it.
type Edge struct {
	From dataset.Coordinate
	To   dataset.Coordinate
	Node *pipeline.Node
}

// Graph is a directed multigraph over fully qualified dataset coordinates. Vertices keep
// insertion order and parallel edges are preserved.
type Graph struct {
	namespace string
	nodes     []*pipeline.Node
	vertices  []dataset.Coordinate
	index     map[dataset.Coordinate]int
	out       map[dataset.Coordinate][]Edge
	in        map[dataset.Coordinate][]Edge
	producers map[dataset.Coordinate][]*pipeline.Node
}

// Build qualifies every coordinate of nodes against namespace and links each node's inputs
// to its output.
func Build(nodes []*pipeline.Node, namespace string) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, ErrNoSteps
	}

	g := &Graph{
		namespace: namespace,
		nodes:     nodes,
		index:     make(map[dataset.Coordinate]int),
		out:       make(map[dataset.Coordinate][]Edge),
		in:        make(map[dataset.Coordinate][]Edge),
		producers: make(map[dataset.Coordinate][]*pipeline.Node),
	}

	for _, node := range nodes {
		for _, c := range node.Datasets() {
			g.addVertex(c.FullyQualified(namespace))
		}
	}

	for _, node := range nodes {
		output := node.Output().FullyQualified(namespace)
		if !slices.Contains(g.producers[output], node) {
			g.producers[output] = append(g.producers[output], node)
		}

		for _, input := range node.Inputs() {
			edge := Edge{From: input.FullyQualified(namespace), To: output, Node: node}
			g.out[edge.From] = append(g.out[edge.From], edge)
			g.in[edge.To] = append(g.in[edge.To], edge)
		}
	}

	return g, nil
}

func (g *Graph) addVertex(c dataset.Coordinate) {
	if _, ok := g.index[c]; ok {
		return
	}

	g.index[c] = len(g.vertices)
	g.vertices = append(g.vertices, c)
}

// Namespace is the default namespace the graph was qualified with.
func (g *Graph) Namespace() string { return g.namespace }

// Nodes returns the nodes the graph was built from.
func (g *Graph) Nodes() []*pipeline.Node { return g.nodes }

// Vertices returns all datasets in insertion order.
func (g *Graph) Vertices() []dataset.Coordinate {
	out := make([]dataset.Coordinate, len(g.vertices))
	copy(out, g.vertices)

	return out
}

// Has reports whether c is a vertex.
func (g *Graph) Has(c dataset.Coordinate) bool {
	_, ok := g.index[c]

	return ok
}

func (g *Graph) InEdges(c dataset.Coordinate) []Edge  { return g.in[c] }
func (g *Graph) OutEdges(c dataset.Coordinate) []Edge { return g.out[c] }
func (g *Graph) InDegree(c dataset.Coordinate) int    { return len(g.in[c]) }
func (g *Graph) OutDegree(c dataset.Coordinate) int   { return len(g.out[c]) }

// Edges returns every edge grouped by source vertex in insertion order.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, v := range g.vertices {
		out = append(out, g.out[v]...)
	}

	return out
}

// Successors returns the distinct targets of v's out-edges in insertion order.
func (g *Graph) Successors(v dataset.Coordinate) []dataset.Coordinate {
	return distinct(g.out[v], func(e Edge) dataset.Coordinate { return e.To })
}

// Predecessors returns the distinct sources of v's in-edges in insertion order.
func (g *Graph) Predecessors(v dataset.Coordinate) []dataset.Coordinate {
	return distinct(g.in[v], func(e Edge) dataset.Coordinate { return e.From })
}

// Writers returns the distinct nodes writing v.
func (g *Graph) Writers(v dataset.Coordinate) []*pipeline.Node {
	return writersOf(g.in[v])
}

// Producers returns every node declaring v as its output, including nodes without inputs.
func (g *Graph) Producers(v dataset.Coordinate) []*pipeline.Node {
	return g.producers[v]
}

// IsRaw reports a vertex nothing writes to.
func (g *Graph) IsRaw(v dataset.Coordinate) bool { return g.InDegree(v) == 0 }

// IsSink reports a vertex nothing reads from.
func (g *Graph) IsSink(v dataset.Coordinate) bool { return g.OutDegree(v) == 0 }

// InputVertices returns vertices with in-degree 0.
func (g *Graph) InputVertices() []dataset.Coordinate {
	return g.filter(g.IsRaw)
}

// OutputVertices returns vertices with out-degree 0.
func (g *Graph) OutputVertices() []dataset.Coordinate {
	return g.filter(g.IsSink)
}

// IntermediateVertices returns vertices that are both read and written.
func (g *Graph) IntermediateVertices() []dataset.Coordinate {
	return g.filter(func(v dataset.Coordinate) bool { return !g.IsRaw(v) && !g.IsSink(v) })
}

func (g *Graph) filter(keep func(dataset.Coordinate) bool) []dataset.Coordinate {
	var out []dataset.Coordinate
	for _, v := range g.vertices {
		if keep(v) {
			out = append(out, v)
		}
	}

	return out
}

func distinct(edges []Edge, key func(Edge) dataset.Coordinate) []dataset.Coordinate {
	seen := make(map[dataset.Coordinate]struct{}, len(edges))

	var out []dataset.Coordinate

	for _, e := range edges {
		k := key(e)
		if _, ok := seen[k]; ok {
			continue
		}

		seen[k] = struct{}{}
		out = append(out, k)
	}

	return out
}

func writersOf(edges []Edge) []*pipeline.Node {
	seen := make(map[*pipeline.Node]struct{}, len(edges))

	var out []*pipeline.Node

	for _, e := range edges {
		if _, ok := seen[e.Node]; ok {
			continue
		}

		seen[e.Node] = struct{}{}
		out = append(out, e.Node)
	}

	return out
}
