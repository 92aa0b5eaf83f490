package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/ingest"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/program"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/storage"
)

var sessionHeaders = []string{"Date", "Start", "End", "Hall", "Track", "Topic", "Speakers"}

func sessionRows(sessions []*storage.SessionRecord) [][]string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{s.Date, s.Start, s.End, s.Hall, s.Track, s.Topic, personNames(s.Speakers)})
	}
	return rows
}

func personNames(people []program.Person) string {
	names := make([]string, len(people))
	for i, p := range people {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}

// writeResult prints an import or analysis result, as JSON when --json is set.
func writeResult(w io.Writer, ui *UI, r *ingest.Result) error {
	if outputJSON {
		return encodeJSON(w, r)
	}

	title := "Import"
	if r.DryRun {
		title = "Analysis (dry run)"
	}
	ui.Section(title)
	ui.KeyValue("File", r.FileName)
	if r.JobID != uuid.Nil {
		ui.KeyValue("Job ID", r.JobID)
	}
	ui.KeyValue("Rows", r.Rows)
	ui.KeyValue("Sessions", r.Sessions)
	ui.KeyValue("Halls", r.Halls)
	ui.KeyValue("Faculty", r.Faculty)
	ui.KeyValue("Tracks", r.Tracks)
	if skipped := r.Skipped.Total(); skipped > 0 {
		ui.KeyValue("Rows skipped", fmt.Sprintf("%d (invalid date %d, invalid time %d, missing topic %d)",
			skipped, r.Skipped.InvalidDate, r.Skipped.InvalidTime, r.Skipped.MissingTopic))
	}
	if r.Skipped.MetadataRows > 0 {
		ui.KeyValue("Track header rows", r.Skipped.MetadataRows)
	}
	ui.KeyValue("Duration", FormatDuration(r.Duration()))

	ui.Section("Columns")
	colRows := make([][]string, 0, len(r.Columns))
	for _, c := range r.Columns {
		colRows = append(colRows, []string{c.Header, string(c.Type), strconv.Itoa(c.Confidence), c.Source})
	}
	ui.Table([]string{"Header", "Type", "Confidence", "Source"}, colRows)

	if len(r.Summary.Days) > 0 {
		ui.Section("Schedule")
		dayRows := make([][]string, 0, len(r.Summary.Days))
		for _, d := range r.Summary.Days {
			dayRows = append(dayRows, []string{
				d.Date,
				strconv.Itoa(d.Sessions),
				strconv.FormatFloat(d.Hours, 'f', -1, 64),
				strconv.Itoa(d.Halls),
				strconv.Itoa(d.Speakers),
			})
		}
		ui.Table([]string{"Date", "Sessions", "Hours", "Halls", "Speakers"}, dayRows)

		if len(r.Summary.TopFaculty) > 0 {
			facRows := make([][]string, 0, len(r.Summary.TopFaculty))
			for _, f := range r.Summary.TopFaculty {
				facRows = append(facRows, []string{f.Name, strconv.Itoa(f.Sessions)})
			}
			ui.Table([]string{"Faculty", "Sessions"}, facRows)
		}
	}

	ui.Section("Issues")
	if r.IssuesTotal == 0 {
		ui.Success("No scheduling issues found")
	} else {
		kinds := make([]string, 0, len(r.IssueCounts))
		for k, n := range r.IssueCounts {
			kinds = append(kinds, fmt.Sprintf("%s %d", k, n))
		}
		sort.Strings(kinds)
		ui.Warning("%d issues: %s", r.IssuesTotal, strings.Join(kinds, ", "))

		issueRows := make([][]string, 0, len(r.Issues))
		for _, is := range r.Issues {
			issueRows = append(issueRows, []string{string(is.Kind), is.Detail})
		}
		ui.Table([]string{"Kind", "Detail"}, issueRows)
		if hidden := r.IssuesTotal - len(r.Issues); hidden > 0 {
			ui.Info("%d more not shown (use --issues to list more)", hidden)
		}
	}

	if !r.DryRun {
		c := r.Counts
		ui.Section("Written")
		ui.KeyValue("Sessions", fmt.Sprintf("%d new, %d already stored", c.SessionsCreated, c.SessionsExisting))
		ui.KeyValue("Faculty", fmt.Sprintf("%d new, %d updated", c.FacultyCreated, c.FacultyUpdated))
		ui.KeyValue("Tracks", fmt.Sprintf("%d new, %d updated", c.TracksCreated, c.TracksUpdated))
		ui.Success("Import completed")
	}
	return nil
}
