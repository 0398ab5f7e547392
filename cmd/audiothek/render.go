package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"

	"audiothek/internal/catalog"
	"audiothek/internal/quality"
	"audiothek/internal/textutil"
	"audiothek/internal/workflow"
)

var outcomeOrder = []workflow.Outcome{
	workflow.OutcomeCreated,
	workflow.OutcomeReplaced,
	workflow.OutcomeRepaired,
	workflow.OutcomeSkipped,
	workflow.OutcomeUnavailable,
	workflow.OutcomeFailed,
}

func outcomeColor(outcome workflow.Outcome) text.Colors {
	switch outcome {
	case workflow.OutcomeCreated, workflow.OutcomeReplaced, workflow.OutcomeRepaired:
		return text.Colors{text.FgGreen}
	case workflow.OutcomeUnavailable:
		return text.Colors{text.FgYellow}
	case workflow.OutcomeFailed:
		return text.Colors{text.FgRed}
	default:
		return nil
	}
}

// renderReport prints the outcome counts, then failures, stale folders and
// listing errors when there are any.
func renderReport(r workflow.Report, colorize bool) string {
	var b strings.Builder
	title := "Sync summary"
	if r.DryRun {
		title += " (dry run)"
	}
	if r.Aborted {
		title += " (aborted)"
	}
	fmt.Fprintf(&b, "%s: %d episodes listed\n", title, r.Listed)
	if r.NotDispatched > 0 {
		fmt.Fprintf(&b, "%d listed episodes were not started\n", r.NotDispatched)
	}

	rows := make([][]string, 0, len(outcomeOrder))
	for _, outcome := range outcomeOrder {
		label := string(outcome)
		if colorize && r.Count(outcome) > 0 {
			if colors := outcomeColor(outcome); colors != nil {
				label = colors.Sprint(label)
			}
		}
		rows = append(rows, []string{label, strconv.Itoa(r.Count(outcome))})
	}
	b.WriteString(renderTable([]string{"Outcome", "Episodes"}, rows, []columnAlignment{alignLeft, alignRight}))

	if len(r.Failures) > 0 {
		rows = rows[:0]
		for _, f := range r.Failures {
			rows = append(rows, []string{f.Resource, f.ID, textutil.DisplayTitle(f.Title), f.Err.Error()})
		}
		b.WriteString("Failures:\n")
		b.WriteString(renderTable([]string{"Resource", "ID", "Title", "Error"}, rows, nil))
	}
	if len(r.Stale) > 0 {
		b.WriteString("Stale folders (no longer in the catalog, left untouched):\n")
		for _, folder := range r.Stale {
			fmt.Fprintf(&b, "  %s\n", folder)
		}
	}
	if len(r.ListingErrors) > 0 {
		rows = rows[:0]
		for _, le := range r.ListingErrors {
			rows = append(rows, []string{le.Resource, le.Folder, le.Err.Error()})
		}
		b.WriteString("Listing errors:\n")
		b.WriteString(renderTable([]string{"Resource", "Folder", "Error"}, rows, nil))
	}
	return b.String()
}

func renderMigration(r workflow.MigrationReport, dryRun bool) string {
	var b strings.Builder
	verb := "Renamed"
	if dryRun {
		verb = "Would rename"
	}
	fmt.Fprintf(&b, "%s %d folders, skipped %d, failed %d\n", verb, len(r.Renamed), len(r.Skipped), len(r.Failed))
	for _, name := range r.Renamed {
		fmt.Fprintf(&b, "  -> %s\n", name)
	}
	if len(r.Failed) > 0 {
		rows := make([][]string, 0, len(r.Failed))
		for _, f := range r.Failed {
			rows = append(rows, []string{f.Folder, f.Err.Error()})
		}
		b.WriteString(renderTable([]string{"Folder", "Error"}, rows, nil))
	}
	return b.String()
}

func renderDecisions(decisions []quality.Decision, dryRun bool) string {
	if len(decisions) == 0 {
		return "No lower-quality duplicates found\n"
	}
	rows := make([][]string, 0, len(decisions))
	removed := 0
	for _, d := range decisions {
		status := "kept (dry run)"
		switch {
		case d.Removed:
			status = "removed"
			removed++
		case d.Err != nil:
			status = "error: " + d.Err.Error()
		case !dryRun:
			status = "kept"
		}
		rows = append(rows, []string{d.Path, d.Quality.String(), d.KeptQuality.String(), status})
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d lower-quality files found, %d removed\n", len(decisions), removed)
	b.WriteString(renderTable([]string{"File", "Quality", "Better copy", "Status"}, rows, nil))
	return b.String()
}

func renderSearch(results []catalog.SearchResult) string {
	if len(results) == 0 {
		return "No results\n"
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{string(r.Kind), r.ID, textutil.DisplayTitle(r.Title), strconv.Itoa(r.NumberOfElements)})
	}
	return renderTable([]string{"Type", "ID", "Title", "Episodes"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight})
}
