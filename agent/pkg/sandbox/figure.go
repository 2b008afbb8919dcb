package sandbox

import (
	"fmt"
	"strings"
)

// Kind identifies the type of chart a Figure holds.
type Kind string

const (
	KindBar     Kind = "bar"
	KindLine    Kind = "line"
	KindScatter Kind = "scatter"
	KindPie     Kind = "pie"
	KindHist    Kind = "hist"
	KindGraph   Kind = "graph"
)

// Point is a single data point. X is a category label or a number.
type Point struct {
	X any     `json:"x"`
	Y float64 `json:"y"`
}

type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Node is a vertex of a graph figure.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Figure is a chart produced by a visualization program. It carries data only;
// rendering is left to the presentation layer.
type Figure struct {
	Kind   Kind     `json:"kind"`
	Title  string   `json:"title,omitempty"`
	XLabel string   `json:"x_label,omitempty"`
	YLabel string   `json:"y_label,omitempty"`
	Series []Series `json:"series,omitempty"`
	Nodes  []Node   `json:"nodes,omitempty"`
	Edges  []Edge   `json:"edges,omitempty"`
}

// Titled sets the figure title and returns the figure for chaining.
func (f *Figure) Titled(title string) *Figure {
	f.Title = title
	return f
}

// Labeled sets the axis labels and returns the figure for chaining.
func (f *Figure) Labeled(x, y string) *Figure {
	f.XLabel = x
	f.YLabel = y
	return f
}

// Summary describes the figure in one line.
func (f *Figure) Summary() string {
	var sb strings.Builder
	sb.WriteString(string(f.Kind))
	sb.WriteString(" chart")
	if f.Title != "" {
		sb.WriteString(fmt.Sprintf(" %q", f.Title))
	}

	if f.Kind == KindGraph {
		sb.WriteString(fmt.Sprintf(": %d nodes, %d edges", len(f.Nodes), len(f.Edges)))
		return sb.String()
	}

	points := 0
	for _, s := range f.Series {
		points += len(s.Points)
	}
	sb.WriteString(fmt.Sprintf(": %d series, %d points", len(f.Series), points))
	if f.XLabel != "" || f.YLabel != "" {
		sb.WriteString(fmt.Sprintf(" (x: %s, y: %s)", f.XLabel, f.YLabel))
	}
	return sb.String()
}
