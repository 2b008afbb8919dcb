package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// ExecuteQuery guards and runs an extracted query. It never returns an error;
// every failure is folded into an Error outcome.
func (p *Pipeline) ExecuteQuery(ctx context.Context, ext Extraction) ExecutionOutcome {
	if !ext.Found {
		p.log.Info("pipeline: no query found in synthesis response")
		return ErrorOutcome(ErrNoQueryFound.Error())
	}

	if err := GuardQuery(ext.Text); err != nil {
		rejectedQueries.Inc()
		p.log.Warn("pipeline: query rejected", "query", ext.Text, "error", err)
		return ErrorOutcome("invalid query: " + err.Error())
	}

	result, err := p.cfg.Store.Execute(ctx, ext.Text)
	if err != nil {
		p.log.Info("pipeline: query returned error", "query", ext.Text, "error", err)
		return ErrorOutcome(err.Error())
	}

	p.log.Info("pipeline: query executed", "rows", result.Count())
	return OkOutcome(result.Columns, result.Rows)
}

// formatValueForLLM formats a single value for display to the LLM.
// Floats are rounded to 2 decimal places.
func formatValueForLLM(v any) string {
	switch val := v.(type) {
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case float32:
		if val == float32(int32(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case nil:
		return ""
	default:
		s := fmt.Sprintf("%v", v)
		if len(s) > 100 {
			s = s[:97] + "..."
		}
		return s
	}
}

// FormatOutcome renders an outcome as text for a prompt, showing at most maxRows rows.
func FormatOutcome(o ExecutionOutcome, maxRows int) string {
	if !o.OK {
		return fmt.Sprintf("Error: %s", o.Message)
	}

	if len(o.Rows) == 0 {
		return "Query returned no results."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Columns: %s\n", strings.Join(o.Columns, ", ")))
	sb.WriteString(fmt.Sprintf("Rows (%d total):\n", len(o.Rows)))

	displayRows := min(len(o.Rows), maxRows)
	for i := 0; i < displayRows; i++ {
		values := make([]string, len(o.Columns))
		for j, col := range o.Columns {
			values[j] = formatValueForLLM(o.Rows[i][col])
		}
		sb.WriteString(strings.Join(values, " | ") + "\n")
	}

	if len(o.Rows) > maxRows {
		sb.WriteString(fmt.Sprintf("... and %d more rows\n", len(o.Rows)-maxRows))
	}

	return sb.String()
}
