package sandbox

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSandbox_Figure_Summary(t *testing.T) {
	t.Parallel()

	t.Run("bar", func(t *testing.T) {
		t.Parallel()

		fig := (&Figure{
			Kind:   KindBar,
			Series: []Series{{Name: "count", Points: []Point{{X: "a", Y: 1}, {X: "b", Y: 2}}}},
		}).Titled("Nodes per mindmap").Labeled("mindmap", "count")

		require.Equal(t, `bar chart "Nodes per mindmap": 1 series, 2 points (x: mindmap, y: count)`, fig.Summary())
	})

	t.Run("graph", func(t *testing.T) {
		t.Parallel()

		fig := &Figure{
			Kind:  KindGraph,
			Nodes: []Node{{ID: "1", Label: "1"}, {ID: "2", Label: "2"}},
			Edges: []Edge{{Source: "1", Target: "2"}},
		}
		require.Equal(t, "graph chart: 2 nodes, 1 edges", fig.Summary())
	})
}

func TestSandbox_Figure_JSON(t *testing.T) {
	t.Parallel()

	fig := &Figure{Kind: KindGraph, Edges: []Edge{{Source: "1", Target: "2"}}}
	data, err := json.Marshal(fig)
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"graph","edges":[{"source":"1","target":"2"}]}`, string(data))
}
