package ui

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"medallion/pkg/models"
)

// RenderRunSummary writes a reconciliation run summary table.
func RenderRunSummary(w io.Writer, summary models.RunSummary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Count"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	table.Append([]string{"Inserted", strconv.Itoa(summary.Inserted)})
	table.Append([]string{"Updated", strconv.Itoa(summary.Updated)})
	table.Append([]string{"Unchanged", strconv.Itoa(summary.Unchanged)})
	table.Append([]string{"Deduplicated", strconv.Itoa(summary.Deduplicated)})
	table.Append([]string{"Coerced", strconv.Itoa(summary.Coerced)})
	table.Append([]string{"Defaulted", strconv.Itoa(summary.Defaulted)})
	table.Append([]string{"Quarantined", strconv.Itoa(summary.Quarantined)})

	fmt.Fprintf(w, "\nRun %s (%s, batch %s)\n", summary.RunID, summary.Source, summary.BatchID)
	table.Render()
	fmt.Fprintf(w, "Completed in %s\n", formatDuration(summary.Duration))
}

// RenderQuarantine writes quarantined rows as a table.
func RenderQuarantine(w io.Writer, records []models.QuarantinedRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No quarantined records.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Run", "Source", "Line", "Column", "Value", "Reason", "Detail"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, rec := range records {
		table.Append([]string{
			rec.RunID,
			rec.Source,
			strconv.Itoa(rec.Line),
			rec.Column,
			rec.Value,
			string(rec.Reason),
			rec.Detail,
		})
	}

	table.Render()
	fmt.Fprintf(w, "%d quarantined record(s)\n", len(records))
}

// RenderStatus writes a table of per-table row counts.
func RenderStatus(w io.Writer, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Table", "Rows", "Inserted", "Updated", "Deleted"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, row := range rows {
		table.Append(row)
	}

	table.Render()
}
