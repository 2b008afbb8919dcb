package main

import (
	"fmt"
	"io"

	"github.com/malbeclabs/mindlake/agent/pkg/pipeline"
	"github.com/olekukonko/tablewriter"
)

const maxPrintedRows = 20

func printResponse(w io.Writer, resp *pipeline.PipelineResponse) {
	fmt.Fprintln(w, resp.Answer)

	if resp.Route == pipeline.RouteRetrieval {
		for _, src := range resp.Sources {
			fmt.Fprintf(w, "  source: %s\n", src)
		}
		fmt.Fprintln(w)
		return
	}

	if resp.Query.Found {
		fmt.Fprintf(w, "\nQuery: %s\n", resp.Query.Text)
	}
	if !resp.Outcome.OK {
		fmt.Fprintf(w, "Error: %s\n", resp.Outcome.Message)
	} else if len(resp.Outcome.Rows) > 0 {
		printRows(w, resp.Outcome)
	}
	for _, fig := range resp.Figures {
		fmt.Fprintf(w, "Figure: %s\n", fig.Summary())
	}
	fmt.Fprintln(w)
}

func printRows(w io.Writer, o pipeline.ExecutionOutcome) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader(o.Columns)

	for i, row := range o.Rows {
		if i == maxPrintedRows {
			break
		}
		values := make([]string, len(o.Columns))
		for j, col := range o.Columns {
			if v := row[col]; v != nil {
				values[j] = fmt.Sprint(v)
			}
		}
		table.Append(values)
	}
	table.Render()

	if len(o.Rows) > maxPrintedRows {
		fmt.Fprintf(w, "... and %d more rows\n", len(o.Rows)-maxPrintedRows)
	}
}
