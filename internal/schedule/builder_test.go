package schedule

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/classify"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/program"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/tabular"
)

const programHeader = "Date,Time,Topic,Hall,Track,Name,Role,Email,Phone\n"

func build(t *testing.T, csv string) *Schedule {
	t.Helper()
	table, err := tabular.ParseCSV([]byte(csv))
	require.NoError(t, err)
	cols := classify.BuildColumnMap(classify.NewClassifier(classify.DefaultOptions(), nil).Classify(context.Background(), table))
	return NewBuilder(0, nil).Build(table, cols)
}

func TestBuild_OpeningKeynoteScenario(t *testing.T) {
	sched := build(t, programHeader+
		"2024-03-01,09:00-10:00,Opening Keynote,Hall A,Track1,Dr. Smith,Speaker,smith@x.com,9876543210\n"+
		"2024-03-01,09:00-10:00,Opening Keynote,Hall A,Track1,Dr. Jones,Chairperson,,\n")

	require.Len(t, sched.Sessions, 1)
	sess := sched.Sessions[0]
	assert.Equal(t, "Opening Keynote", sess.Topic)
	assert.Equal(t, "2024-03-01", sess.Date)
	assert.Equal(t, "09:00", sess.Start)
	assert.Equal(t, "10:00", sess.End)
	require.NotNil(t, sess.Duration)
	assert.Equal(t, 60, *sess.Duration)
	assert.Equal(t, program.TypeKeynote, sess.Type)

	require.Len(t, sess.Speakers, 1)
	assert.Equal(t, program.Person{Name: "Dr. Smith", Email: "smith@x.com", Phone: "9876543210"}, sess.Speakers[0])
	require.Len(t, sess.Chairpersons, 1)
	assert.Equal(t, "Dr. Jones", sess.Chairpersons[0].Name)
	assert.Empty(t, sess.Moderators)
	assert.Empty(t, sess.Panelists)

	assert.Len(t, sched.Faculty, 2)
	assert.Len(t, sched.Slots, 2)
	require.Len(t, sched.Tracks, 1)
	assert.Equal(t, "Track1", sched.Tracks[0].Name)
	assert.Empty(t, sched.Issues)
}

func TestBuild_TrackMetadataRows(t *testing.T) {
	sched := build(t, programHeader+
		"2024-03-01,,Cardiology Update,Hall A,Cardio,,,,\n"+
		"2024-03-01,,Cardiology Update,Hall A,Cardio,Dr. Chair,Chairperson,chair@x.com,\n"+
		"2024-03-01,09:00-09:30,Heart Failure,Hall A,Cardio,Dr. A,Speaker,,\n"+
		"2024-03-01,09:30-10:00,Arrhythmia,Hall A,Cardio,Dr. B,Speaker,,\n"+
		"2024-03-01,,Cardiology Update,Hall A,Cardio,,,,\n")

	assert.Len(t, sched.Sessions, 2)
	assert.Equal(t, 3, sched.Skipped.MetadataRows)
	assert.Equal(t, 0, sched.Skipped.Total())

	require.Len(t, sched.Tracks, 1)
	track := sched.Tracks[0]
	assert.Equal(t, "Cardiology Update", track.Description)
	require.Len(t, track.Chairpersons, 1)
	assert.Equal(t, program.Person{Name: "Dr. Chair", Email: "chair@x.com"}, track.Chairpersons[0])

	// The chair is still extracted as faculty but holds no session slot.
	assert.Len(t, sched.Faculty, 3)
	assert.Len(t, sched.Slots, 2)
}

func TestBuild_SessionCountMatchesDistinctKeys(t *testing.T) {
	var b strings.Builder
	b.WriteString(programHeader)
	keys := make(map[string]bool)
	for i := 0; i < 40; i++ {
		hall := fmt.Sprintf("Hall %d", i%3)
		start := 8 + i%5
		topic := fmt.Sprintf("Talk %d", i%7)
		fmt.Fprintf(&b, "2024-03-0%d,%02d:00-%02d:30,%s,%s,T%d,Dr. P%d,Speaker,,\n", 1+i%2, start, start, topic, hall, i%2, i%11)
		keys[fmt.Sprintf("%d|%s|T%d|%d|%s", 1+i%2, hall, i%2, start, topic)] = true
	}

	sched := build(t, b.String())
	assert.Len(t, sched.Sessions, len(keys))
	assert.Equal(t, 0, sched.Skipped.MetadataRows)
}

func TestBuild_SkipStats(t *testing.T) {
	sched := build(t, programHeader+
		"someday,09:00-10:00,Talk A,Hall A,T1,Dr. Late,Speaker,late@x.com,\n"+
		"2024-03-01,morning,Talk B,Hall A,T1,Dr. B,Speaker,,\n"+
		"2024-03-01,09:00-10:00,,Hall A,,Dr. C,Speaker,,\n"+
		"2024-03-01,10:00-11:00,Talk D,Hall A,T1,Dr. D,Speaker,,\n")

	assert.Equal(t, SkipStats{InvalidDate: 1, InvalidTime: 1, MissingTopic: 1}, sched.Skipped)
	assert.Equal(t, 3, sched.Skipped.Total())
	assert.Len(t, sched.Sessions, 1)

	// Rows skipped for bad dates still contribute faculty.
	keys := make([]string, 0, len(sched.Faculty))
	for _, f := range sched.Faculty {
		keys = append(keys, f.Key)
	}
	assert.Contains(t, keys, "dr. late")
}

func TestBuild_FacultyEnrichment(t *testing.T) {
	sched := build(t, programHeader+
		"2024-03-01,09:00-10:00,Talk A,Hall A,,Dr.  Smith,,,\n"+
		"2024-03-01,10:00-11:00,Talk B,Hall A,,dr. smith,Speaker,first@x.com,\n"+
		"2024-03-01,11:00-12:00,Talk C,Hall A,,DR. SMITH,Chairperson,second@x.com,555\n")

	require.Len(t, sched.Faculty, 1)
	f := sched.Faculty[0]
	assert.Equal(t, "dr. smith", f.Key)
	assert.Equal(t, "Dr.  Smith", f.Name)
	assert.Equal(t, "first@x.com", f.Email)
	assert.Equal(t, "555", f.Phone)
	assert.Equal(t, program.RoleSpeaker, f.Role)
	assert.Len(t, sched.Slots, 3)
}

func TestBuild_LongSessionIssue(t *testing.T) {
	sched := build(t, programHeader+
		"2024-03-01,09:00-12:30,Cardiac Imaging,Hall A,,Dr. A,Speaker,,\n"+
		"2024-03-01,09:00-13:00,Suturing Workshop,Hall B,,Dr. B,Speaker,,\n"+
		"2024-03-01,13:00-16:00,Board Review,Hall A,,Dr. C,Speaker,,\n")

	require.Len(t, sched.Issues, 1)
	issue, ok := sched.Issues[0].(program.LongSessionIssue)
	require.True(t, ok)
	assert.Equal(t, "Cardiac Imaging", issue.Session)
	assert.Equal(t, 210, issue.DurationMinutes)
}

func TestBuild_NegativeSpanHasNoDuration(t *testing.T) {
	sched := build(t, programHeader+
		"2024-03-01,11:00-10:00,Backwards,Hall A,,Dr. A,Speaker,,\n")

	require.Len(t, sched.Sessions, 1)
	assert.Nil(t, sched.Sessions[0].Duration)
	assert.Equal(t, "11:00", sched.Sessions[0].Start)
	assert.Empty(t, sched.Sessions[0].End)
	assert.Equal(t, 660, sched.Sessions[0].EndMinute())

	same := build(t, programHeader+
		"2024-03-01,10:00-10:00,Zero,Hall A,,Dr. A,Speaker,,\n")
	require.Len(t, same.Sessions, 1)
	assert.Empty(t, same.Sessions[0].End)
}

func TestBuild_WithoutNameColumn(t *testing.T) {
	sched := build(t, "Date,Time,Topic,Hall,Track\n"+
		"2024-03-01,09:00-10:00,Heart Failure,Hall A,Cardio\n"+
		"2024-03-01,10:00-11:00,Arrhythmia,Hall A,Cardio\n")

	assert.Len(t, sched.Sessions, 2)
	assert.Equal(t, 0, sched.Skipped.MetadataRows)
	assert.Empty(t, sched.Faculty)
}

func TestBuild_HallsAndIndependence(t *testing.T) {
	csv := programHeader +
		"2024-03-01,09:00-10:00,A,Hall B,,Dr. A,,,\n" +
		"2024-03-01,09:00-10:00,B,Hall A,,Dr. A,,,\n" +
		"2024-03-01,10:00-11:00,C,Hall B,,Dr. A,,,\n" +
		"2024-03-01,10:00-11:00,D,,,Dr. A,,,\n"

	first := build(t, csv)
	second := build(t, csv)

	assert.Equal(t, []string{"Hall B", "Hall A"}, first.Halls())
	assert.Equal(t, len(first.Sessions), len(second.Sessions))
	assert.Len(t, second.Faculty, 1)
	assert.NotSame(t, first.Faculty[0], second.Faculty[0])
}

func TestClassifyRow(t *testing.T) {
	desc := TrackState{Description: "Cardiology Update"}
	tests := []struct {
		name   string
		facts  RowFacts
		track  TrackState
		kind   RowKind
		reason MetadataReason
	}{
		{"no track", RowFacts{Topic: "X", NamesKnown: true}, TrackState{}, SessionRow, ReasonNone},
		{"first nameless row is header", RowFacts{Track: "T", Topic: "Cardiology Update", NamesKnown: true}, TrackState{}, TrackMetadataRow, ReasonHeader},
		{"nameless row without topic", RowFacts{Track: "T", NamesKnown: true}, TrackState{}, SessionRow, ReasonNone},
		{"repeated header", RowFacts{Track: "T", Topic: "Cardiology Update", NamesKnown: true}, desc, TrackMetadataRow, ReasonHeader},
		{"nameless session row", RowFacts{Track: "T", Topic: "Lunch", NamesKnown: true}, desc, SessionRow, ReasonNone},
		{"chair on description", RowFacts{Track: "T", Topic: "Cardiology Update", Name: "Dr. C", RoleText: "Co-Chairperson", NamesKnown: true}, desc, TrackMetadataRow, ReasonChair},
		{"coordinator on description", RowFacts{Track: "T", Topic: "Cardiology Update", Name: "Dr. C", RoleText: "Coordinator", NamesKnown: true}, desc, TrackMetadataRow, ReasonChair},
		{"chair on session topic", RowFacts{Track: "T", Topic: "Heart Failure", Name: "Dr. C", RoleText: "Chairperson", NamesKnown: true}, desc, SessionRow, ReasonNone},
		{"chair before description", RowFacts{Track: "T", Topic: "Cardiology Update", Name: "Dr. C", RoleText: "Chairperson", NamesKnown: true}, TrackState{}, SessionRow, ReasonNone},
		{"speaker on description topic", RowFacts{Track: "T", Topic: "Cardiology Update", Name: "Dr. S", RoleText: "Speaker", NamesKnown: true}, desc, SessionRow, ReasonNone},
		{"no name column", RowFacts{Track: "T", Topic: "Cardiology Update"}, desc, SessionRow, ReasonNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, reason := ClassifyRow(tt.facts, tt.track)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestRowKind_String(t *testing.T) {
	assert.Equal(t, "session", SessionRow.String())
	assert.Equal(t, "track_metadata", TrackMetadataRow.String())
}
