package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/quartictech/quartic/pkg/dataset"
)

// contractThreshold is the number of single-successor predecessors from one namespace above
// which they are collapsed into a single node in DOT output.
const contractThreshold = 5

type JSONNodeData struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

type JSONNode struct {
	Data JSONNodeData `json:"data"`
}

type JSONEdgeData struct {
	ID     int    `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

type JSONEdge struct {
	Data JSONEdgeData `json:"data"`
}

// JSONGraph is the node/edge document consumed by the graph viewer.
type JSONGraph struct {
	Nodes []JSONNode `json:"nodes"`
	Edges []JSONEdge `json:"edges"`
}

// Degrees counts vertices by role.
type Degrees struct {
	Raw          int `json:"raw"`
	Intermediate int `json:"intermediate"`
	Output       int `json:"output"`
}

// Degrees counts raw, intermediate and output vertices. Raw vertices that nothing reads are
// counted as raw only.
func (g *Graph) Degrees() Degrees {
	var d Degrees

	for _, v := range g.vertices {
		raw, sink := g.IsRaw(v), g.IsSink(v)

		switch {
		case raw:
			d.Raw++
		case sink:
			d.Output++
		default:
			d.Intermediate++
		}
	}

	return d
}

type link struct {
	from, to dataset.Coordinate
	label    string
}

// links collapses parallel edges into one link per vertex pair.
func (g *Graph) links() []link {
	seen := make(map[[2]dataset.Coordinate]struct{})

	var out []link

	for _, e := range g.Edges() {
		key := [2]dataset.Coordinate{e.From, e.To}
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}
		out = append(out, link{from: e.From, to: e.To, label: e.Node.Name()})
	}

	return out
}

// JSON exports the graph as nodes and edges.
func (g *Graph) JSON() JSONGraph {
	doc := JSONGraph{Nodes: []JSONNode{}, Edges: []JSONEdge{}}

	for _, v := range g.vertices {
		kind := "derived"
		if g.IsRaw(v) {
			kind = "raw"
		}

		doc.Nodes = append(doc.Nodes, JSONNode{Data: JSONNodeData{ID: v.String(), Title: v.String(), Type: kind}})
	}

	for i, l := range g.links() {
		doc.Edges = append(doc.Edges, JSONEdge{Data: JSONEdgeData{ID: i, Source: l.from.String(), Target: l.to.String()}})
	}

	return doc
}

// WriteJSON writes the JSON export to w.
func (g *Graph) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")

	if err := enc.Encode(g.JSON()); err != nil {
		return fmt.Errorf("failed to encode graph json: %w", err)
	}

	return nil
}

type dotVertex struct {
	label string
	color string
	style string
}

// WriteDOT writes the graph in Graphviz DOT format and logs the degree summary.
func (g *Graph) WriteDOT(w io.Writer, logger *slog.Logger) error {
	degrees := g.Degrees()
	logger.Info("Graph summary", "raw", degrees.Raw, "intermediate", degrees.Intermediate, "output", degrees.Output)

	attrs := make(map[dataset.Coordinate]*dotVertex, len(g.vertices))
	for _, v := range g.vertices {
		attr := &dotVertex{label: v.String()}

		if g.IsRaw(v) {
			attr.color = "blue"
		}

		if g.IsSink(v) {
			attr.color = "deeppink"
		}

		attrs[v] = attr
	}

	removed := make(map[dataset.Coordinate]bool)
	for _, v := range g.vertices {
		if removed[v] {
			continue
		}

		g.contract(v, attrs, removed)
	}

	var b strings.Builder

	b.WriteString("digraph {\n")

	for _, v := range g.vertices {
		if removed[v] {
			continue
		}

		attr := attrs[v]
		fields := []string{"shape=box", "label=" + quote(attr.label)}

		if attr.color != "" {
			fields = append(fields, "color="+attr.color)
		}

		if attr.style != "" {
			fields = append(fields, "style="+attr.style)
		}

		fmt.Fprintf(&b, "\t%s [%s];\n", quote(v.String()), strings.Join(fields, ", "))
	}

	for _, l := range g.links() {
		if removed[l.from] || removed[l.to] {
			continue
		}

		fmt.Fprintf(&b, "\t%s -> %s [label=%s];\n", quote(l.from.String()), quote(l.to.String()), quote(l.label))
	}

	b.WriteString("}\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write graph dot: %w", err)
	}

	return nil
}

// contract collapses the predecessors of v that feed only v, per namespace, when there are
// more than contractThreshold of them.
func (g *Graph) contract(v dataset.Coordinate, attrs map[dataset.Coordinate]*dotVertex, removed map[dataset.Coordinate]bool) {
	var namespaces []string

	groups := make(map[string][]dataset.Coordinate)

	for _, pred := range g.Predecessors(v) {
		if removed[pred] {
			continue
		}

		successors := g.Successors(pred)
		if len(successors) != 1 || successors[0] != v {
			continue
		}

		if _, ok := groups[pred.Namespace]; !ok {
			namespaces = append(namespaces, pred.Namespace)
		}

		groups[pred.Namespace] = append(groups[pred.Namespace], pred)
	}

	for _, ns := range namespaces {
		group := groups[ns]
		if len(group) <= contractThreshold {
			continue
		}

		for _, pred := range group[1:] {
			removed[pred] = true
		}

		first := attrs[group[0]]
		first.label = fmt.Sprintf("%s\n + %d more", group[0], len(group)-1)
		first.style = "dotted"
	}
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s) + `"`
}
