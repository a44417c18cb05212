package purgo

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"gopkg.in/go-playground/colors.v1"
)

// Info is a read-only snapshot of a pipeline for diagnostics.
type Info struct {
	Name  string
	RunID string
	State State
	// Steps holds the step names in execution order.
	Steps []string
	// Params is a shallow copy of the parameter store.
	Params   map[string]any
	Warnings []Warning
	// FailedStep is the index of the step that stopped the last run, or -1.
	// Adding or removing a step resets it.
	FailedStep int
}

// String returns a one-line summary for logs.
func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pipeline %q [%s] steps=[%s] params=%d warnings=%d",
		i.Name, i.State, strings.Join(i.Steps, " -> "), len(i.Params), len(i.Warnings))
	if i.RunID != "" {
		fmt.Fprintf(&b, " run=%s", i.RunID)
	}
	return b.String()
}

var (
	readerColor = [3]uint8{70, 130, 180}
	failedColor = [3]uint8{220, 20, 60}
)

func hexColor(rgb [3]uint8) (string, error) {
	c, err := colors.RGB(rgb[0], rgb[1], rgb[2])
	if err != nil {
		return "", fmt.Errorf("unable to get colour: %w", err)
	}
	return c.ToHEX().String(), nil
}

// DOT writes the step order as a Graphviz digraph. The first step (the
// reader) is filled blue and the step that failed the last run red.
func (i Info) DOT(w io.Writer) error {
	g := graph.New(graph.StringHash, graph.Directed())

	readerFill, err := hexColor(readerColor)
	if err != nil {
		return err
	}
	failedFill, err := hexColor(failedColor)
	if err != nil {
		return err
	}

	keys := make([]string, len(i.Steps))
	for idx, name := range i.Steps {
		// Step names may repeat, the position keeps vertices distinct.
		keys[idx] = strconv.Itoa(idx) + ":" + name

		opts := []func(*graph.VertexProperties){
			graph.VertexAttribute("label", name),
			graph.VertexAttribute("shape", "box"),
		}
		switch {
		case idx == i.FailedStep && i.State == StateFailed:
			opts = append(opts, graph.VertexAttribute("style", "filled"), graph.VertexAttribute("fillcolor", failedFill))
		case idx == 0:
			opts = append(opts, graph.VertexAttribute("style", "filled"), graph.VertexAttribute("fillcolor", readerFill))
		}

		if err := g.AddVertex(keys[idx], opts...); err != nil {
			return fmt.Errorf("unable to add vertex %q: %w", name, err)
		}
		if idx > 0 {
			if err := g.AddEdge(keys[idx-1], keys[idx]); err != nil {
				return fmt.Errorf("unable to add edge from %s to %s: %w", keys[idx-1], keys[idx], err)
			}
		}
	}

	label := i.Name
	if label == "" {
		label = "pipeline"
	}
	return draw.DOT(g, w, draw.GraphAttribute("label", label), draw.GraphAttribute("rankdir", "LR"))
}
