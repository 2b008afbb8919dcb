package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipeline_ExtractQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want Extraction
	}{
		{
			name: "marker on its own line",
			raw:  "SQLQuery:\nSELECT COUNT(*) FROM \"public\".\"nodes\";",
			want: Found(`SELECT COUNT(*) FROM "public"."nodes";`),
		},
		{
			name: "marker inline",
			raw:  "Here you go. SQLQuery: SELECT 1",
			want: Found("SELECT 1"),
		},
		{
			name: "fenced sql block after marker",
			raw:  "SQLQuery:\n```sql\nSELECT \"label\" FROM \"public\".\"nodes\"\n```\nThis lists labels.",
			want: Found(`SELECT "label" FROM "public"."nodes"`),
		},
		{
			name: "bold marker",
			raw:  "**SQLQuery:** SELECT id FROM nodes",
			want: Found("SELECT id FROM nodes"),
		},
		{
			name: "text after query without fence is kept",
			raw:  "SQLQuery:\nSELECT 1\nFROM nodes",
			want: Found("SELECT 1\nFROM nodes"),
		},
		{
			name: "marker inside the query is kept",
			raw:  "SQLQuery:\nSELECT label FROM nodes WHERE label = 'SQLQuery:'",
			want: Found("SELECT label FROM nodes WHERE label = 'SQLQuery:'"),
		},
		{
			name: "non select is still extracted",
			raw:  "SQLQuery:\nDROP TABLE nodes;",
			want: Found("DROP TABLE nodes;"),
		},
		{name: "missing marker", raw: "SELECT 1", want: NotFound()},
		{name: "lowercase marker is not a marker", raw: "sqlquery: SELECT 1", want: NotFound()},
		{name: "nothing after marker", raw: "SQLQuery:   \n", want: NotFound()},
		{name: "empty fence", raw: "SQLQuery:\n```sql\n```", want: NotFound()},
		{name: "unterminated opening fence", raw: "SQLQuery: ```sql", want: NotFound()},
		{name: "empty input", raw: "", want: NotFound()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, ExtractQuery(tt.raw))
		})
	}
}

func TestPipeline_ExtractQuery_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"SQLQuery:\nSELECT 1",
		"SQLQuery:\n```sql\nSELECT \"id\" FROM \"public\".\"edges\"\n```",
		"no marker at all",
		"SQLQuery: SELECT a FROM b WHERE c = 'SQLQuery:'",
	}
	for _, in := range inputs {
		first := ExtractQuery(in)
		require.Equal(t, first, ExtractQuery(in))
		if first.Found {
			again := ExtractQuery(QueryMarker + "\n" + first.Text)
			require.Equal(t, first, again, in)
		}
	}
}

func TestPipeline_ExtractCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "fenced with language",
			response: "Here is the program:\n```expr\nnx.Draw(rows, \"source\", \"target\")\n```\nDone.",
			want:     `nx.Draw(rows, "source", "target")`,
		},
		{
			name:     "fenced without language",
			response: "```\nplt.Bar(rows, \"label\", \"count\")\n```",
			want:     `plt.Bar(rows, "label", "count")`,
		},
		{
			name:     "no fence",
			response: "  plt.Pie(rows, \"label\", \"count\")  ",
			want:     `plt.Pie(rows, "label", "count")`,
		},
		{
			name:     "unterminated fence",
			response: "```expr\nplt.Gcf()",
			want:     "plt.Gcf()",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, extractCode(tt.response))
		})
	}
}
