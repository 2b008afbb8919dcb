package store

import "strings"

// DefaultSchemaDescription describes the mindmap tables created by Migrate.
const DefaultSchemaDescription = `The database consists of two tables: "public"."nodes" and "public"."edges". This is a PostgreSQL database.

The "public"."nodes" table contains:
- "id": A unique identifier for each node (auto-increment, SERIAL).
- "label": The label of the node (TEXT).
- "mindmap_id": The ID of the associated mindmap (TEXT).

The "public"."edges" table contains:
- "id": A unique identifier for each edge (auto-increment, SERIAL).
- "source": The ID of the source node (INTEGER), references "public"."nodes"("id").
- "target": The ID of the target node (INTEGER), references "public"."nodes"("id").
- "mindmap_id": The ID of the associated mindmap (TEXT).

Foreign keys:
- "public"."edges"."source" and "public"."edges"."target" reference "public"."nodes"."id".

Use standard PostgreSQL queries.`

const describeColumnsSQL = `
SELECT table_schema, table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema NOT IN ('information_schema', 'pg_catalog', 'system', 'INFORMATION_SCHEMA')
ORDER BY table_schema, table_name, ordinal_position`

type columnInfo struct {
	Schema string
	Table  string
	Name   string
	Type   string
}

func formatSchema(columns []columnInfo, engine string) string {
	var sb strings.Builder
	sb.WriteString("This is a " + engine + " database.\n\n")

	currentTable := ""
	for _, col := range columns {
		qualified := col.Table
		if col.Schema != "" {
			qualified = `"` + col.Schema + `"."` + col.Table + `"`
		}
		if qualified != currentTable {
			if currentTable != "" {
				sb.WriteString("\n")
			}
			currentTable = qualified
			sb.WriteString(qualified + ":\n")
		}
		sb.WriteString(`  - "` + col.Name + `" (` + col.Type + ")\n")
	}

	if currentTable == "" {
		sb.WriteString("No tables found.\n")
	}

	return sb.String()
}
