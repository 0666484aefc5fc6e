package engine

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/quartictech/quartic/pkg/checkpoint"
	"github.com/quartictech/quartic/pkg/dataset"
	"github.com/quartictech/quartic/pkg/graph"
)

const explainWidth = 80

// Explain prints what a run of schedule would do without executing anything. Steps whose
// output is in done are marked as skipped; done may be nil.
func Explain(w io.Writer, schedule *graph.Schedule, namespace string, done checkpoint.Set) error {
	heading := color.New(color.FgCyan, color.Bold)
	stepColor := color.New(color.FgGreen)
	skipColor := color.New(color.FgYellow)

	done = done.Qualified(namespace)
	p := &printer{w: w}

	p.line(heading.Sprint("raw:"))
	p.list(schedule.Raw)
	p.line(heading.Sprint("materialize:"))
	p.list(schedule.Derived)

	for i, node := range schedule.Steps {
		title := fmt.Sprintf("[%s] %s ", node.Name(), node.Description())
		if pad := explainWidth - len(title); pad > 0 {
			title += strings.Repeat("-", pad)
		}

		p.line(stepColor.Sprint(title))
		p.line("inputs: " + strings.Join(dataset.Strings(qualify(node.Inputs(), namespace)), ", "))
		p.line("output: " + schedule.Derived[i].String())

		if done.Has(schedule.Derived[i]) {
			p.line(skipColor.Sprint("> Skipping due to checkpoint"))
		}
	}

	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(s string) {
	if p.err != nil {
		return
	}

	_, p.err = fmt.Fprintln(p.w, s)
}

func (p *printer) list(cs []dataset.Coordinate) {
	if len(cs) == 0 {
		p.line("  (none)")

		return
	}

	for _, c := range cs {
		p.line("  - " + c.String())
	}
}

func qualify(cs []dataset.Coordinate, namespace string) []dataset.Coordinate {
	out := make([]dataset.Coordinate, len(cs))
	for i, c := range cs {
		out[i] = c.FullyQualified(namespace)
	}

	return out
}
