package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

const defaultHistBins = 10

// canvas holds the figures created during a single evaluation. Each run gets
// its own canvas, so programs never observe each other's state.
type canvas struct {
	ctx     context.Context
	figures []*Figure
}

// checkCancelled stops a drawing call once the evaluation has timed out.
func (c *canvas) checkCancelled() {
	if c.ctx != nil && c.ctx.Err() != nil {
		panic("evaluation cancelled")
	}
}

func (c *canvas) add(f *Figure) *Figure {
	c.figures = append(c.figures, f)
	return f
}

func (c *canvas) current() *Figure {
	if len(c.figures) == 0 {
		return nil
	}
	return c.figures[len(c.figures)-1]
}

// Plot is the charting namespace exposed to programs as plt.
type Plot struct {
	c *canvas
}

// Bar draws one bar per row, labelled by column x with height from column y.
func (p *Plot) Bar(rows any, x, y string) *Figure {
	return p.c.add(p.c.categorical(KindBar, rows, x, y))
}

// Pie draws one slice per row, labelled by column label with size from column value.
func (p *Plot) Pie(rows any, label, value string) *Figure {
	return p.c.add(p.c.categorical(KindPie, rows, label, value))
}

// Line draws a line through the rows in order.
func (p *Plot) Line(rows any, x, y string) *Figure {
	records := mustRecords(rows)
	points := make([]Point, 0, len(records))
	for i, r := range records {
		p.c.checkCancelled()
		points = append(points, Point{X: column(r, x, i), Y: mustFloat(column(r, y, i), y, i)})
	}
	return p.c.add(&Figure{
		Kind:   KindLine,
		XLabel: x,
		YLabel: y,
		Series: []Series{{Name: y, Points: points}},
	})
}

// Scatter plots numeric column y against numeric column x.
func (p *Plot) Scatter(rows any, x, y string) *Figure {
	records := mustRecords(rows)
	points := make([]Point, 0, len(records))
	for i, r := range records {
		p.c.checkCancelled()
		points = append(points, Point{
			X: mustFloat(column(r, x, i), x, i),
			Y: mustFloat(column(r, y, i), y, i),
		})
	}
	return p.c.add(&Figure{
		Kind:   KindScatter,
		XLabel: x,
		YLabel: y,
		Series: []Series{{Name: y, Points: points}},
	})
}

// Hist buckets numeric column col into bins of equal width. X of each point is
// the lower bound of its bin.
func (p *Plot) Hist(rows any, col string, bins int) *Figure {
	if bins <= 0 {
		bins = defaultHistBins
	}
	records := mustRecords(rows)
	values := make([]float64, 0, len(records))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, r := range records {
		p.c.checkCancelled()
		v := mustFloat(column(r, col, i), col, i)
		values = append(values, v)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	fig := &Figure{Kind: KindHist, XLabel: col, YLabel: "count"}
	if len(values) == 0 {
		fig.Series = []Series{{Name: col}}
		return p.c.add(fig)
	}

	width := (hi - lo) / float64(bins)
	counts := make([]float64, bins)
	for _, v := range values {
		idx := 0
		if width > 0 {
			idx = int((v - lo) / width)
		}
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}

	points := make([]Point, bins)
	for i := range counts {
		points[i] = Point{X: lo + float64(i)*width, Y: counts[i]}
	}
	fig.Series = []Series{{Name: col, Points: points}}
	return p.c.add(fig)
}

// Gcf returns the most recently created figure, or nil.
func (p *Plot) Gcf() *Figure {
	return p.c.current()
}

// Graph is the graph-drawing namespace exposed to programs as nx.
type Graph struct {
	c *canvas
}

// Draw builds a graph figure with one edge per row, taken from the source and
// target columns. Nodes are listed in order of first appearance.
func (g *Graph) Draw(rows any, source, target string) *Figure {
	records := mustRecords(rows)
	fig := &Figure{Kind: KindGraph}
	seen := make(map[string]bool)
	addNode := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		fig.Nodes = append(fig.Nodes, Node{ID: id, Label: id})
	}
	for i, r := range records {
		g.c.checkCancelled()
		s := label(column(r, source, i))
		t := label(column(r, target, i))
		addNode(s)
		addNode(t)
		fig.Edges = append(fig.Edges, Edge{Source: s, Target: t})
	}
	return g.c.add(fig)
}

func (c *canvas) categorical(kind Kind, rows any, x, y string) *Figure {
	records := mustRecords(rows)
	points := make([]Point, 0, len(records))
	for i, r := range records {
		c.checkCancelled()
		points = append(points, Point{X: label(column(r, x, i)), Y: mustFloat(column(r, y, i), y, i)})
	}
	return &Figure{
		Kind:   kind,
		XLabel: x,
		YLabel: y,
		Series: []Series{{Name: y, Points: points}},
	}
}

// mustRecords coerces the row argument of a drawing call. Programs may pass
// rows directly or the result of filter/map over rows.
func mustRecords(rows any) []map[string]any {
	switch v := rows.(type) {
	case nil:
		return nil
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for i, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				panic(fmt.Sprintf("row %d is %T, not a record", i, item))
			}
			out = append(out, m)
		}
		return out
	default:
		panic(fmt.Sprintf("rows must be a list of records, got %T", rows))
	}
}

func column(r map[string]any, name string, i int) any {
	v, ok := r[name]
	if !ok {
		panic(fmt.Sprintf("row %d has no column %q", i, name))
	}
	return v
}

func mustFloat(v any, name string, i int) float64 {
	f, ok := toFloat(v)
	if !ok {
		panic(fmt.Sprintf("row %d column %q is not a finite number: %v", i, name, v))
	}
	return f
}

// toFloat reports false for anything that is not a finite number, including
// NaN and infinities parsed from strings.
func toFloat(v any) (float64, bool) {
	f, ok := numeric(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func label(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
