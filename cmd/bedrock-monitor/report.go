package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/nrbedrock/bedrock-observability/monitor"
)

type report struct {
	results     []scenarioResult
	eventCounts map[string]int
	spanCount   int
	failedCount int
}

// buildReport combines the scenario results with what the recorder captured.
// rec may be nil.
func buildReport(results []scenarioResult, rec *monitor.RecorderSink) report {
	rep := report{
		results:     results,
		eventCounts: map[string]int{},
	}
	for _, res := range results {
		if !res.Success {
			rep.failedCount++
		}
	}

	if rec != nil {
		for _, e := range rec.Events() {
			rep.eventCounts[e.Type]++
		}
		rep.spanCount = len(rec.Spans())
	}
	return rep
}

// renderReport prints the results table and the telemetry summary to w.
func renderReport(w io.Writer, rep report) {
	if len(rep.results) == 0 {
		fmt.Fprintln(w, "no scenarios selected")
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Bedrock Invocations ===")

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Scenario", "Kind", "Model", "Status", "Duration", "Output"})
	table.SetAutoWrapText(false)
	for _, res := range rep.results {
		status, output := "PASS", res.Output
		if !res.Success {
			status, output = "FAIL", preview(res.Error)
		}
		table.Append([]string{
			res.Label,
			string(res.Kind),
			res.ModelID,
			status,
			fmt.Sprintf("%.2fs", res.Duration.Seconds()),
			output,
		})
	}
	table.Render()

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Recorded Telemetry ===")

	types := make([]string, 0, len(rep.eventCounts))
	for t := range rep.eventCounts {
		types = append(types, t)
	}
	sort.Strings(types)

	counts := tablewriter.NewWriter(w)
	counts.SetHeader([]string{"Type", "Count"})
	for _, t := range types {
		counts.Append([]string{t, strconv.Itoa(rep.eventCounts[t])})
	}
	counts.Append([]string{"spans", strconv.Itoa(rep.spanCount)})
	counts.Render()

	fmt.Fprintf(w, "\nTotals  | Scenarios: %d | Passed: %d | Failed: %d\n\n",
		len(rep.results), len(rep.results)-rep.failedCount, rep.failedCount)
}
