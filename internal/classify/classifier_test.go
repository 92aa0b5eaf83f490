package classify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/tabular"
)

func newTestClassifier() *Classifier {
	return NewClassifier(DefaultOptions(), nil)
}

func TestClassifyColumn_HeaderKeywords(t *testing.T) {
	c := newTestClassifier()
	tests := []struct {
		header string
		want   ColumnType
	}{
		{"Date", TypeDate},
		{"Session Time", TypeTime},
		{"Hall", TypeHall},
		{"Venue", TypeHall},
		{"E-mail", TypeEmail},
		{"Mobile Number", TypePhone},
		{"Role", TypeRole},
		{"Topic", TypeTopic},
		{"Lecture Title", TypeTopic},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			col := c.ClassifyColumn(tt.header, []string{"x"})
			assert.Equal(t, tt.want, col.Type)
			assert.Equal(t, 95, col.Confidence)
		})
	}
}

func TestClassifyColumn_ValuePatterns(t *testing.T) {
	c := newTestClassifier()
	tests := []struct {
		name    string
		samples []string
		want    ColumnType
		conf    int
	}{
		{"dates", []string{"01.03.2024", "2024-03-02", "bad"}, TypeDate, 90},
		{"times", []string{"09:00-10:00", "10:00 - 11:30", "14:00"}, TypeTime, 90},
		{"emails", []string{"a@x.com", "b@y.org"}, TypeEmail, 90},
		{"phones", []string{"+91 98765 43210", "(022) 1234-5678"}, TypePhone, 85},
		{"halls", []string{"Hall A", "Main Auditorium", "Room 3"}, TypeHall, 80},
		{"roles", []string{"Speaker", "Chairperson", "Moderator"}, TypeRole, 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := c.ClassifyColumn("Column 4", tt.samples)
			assert.Equal(t, tt.want, col.Type)
			assert.Equal(t, tt.conf, col.Confidence)
		})
	}
}

func TestClassifyColumn_HeaderBeatsValuePattern(t *testing.T) {
	c := newTestClassifier()
	col := c.ClassifyColumn("Hall", []string{"a@x.com", "b@x.com"})
	assert.Equal(t, TypeHall, col.Type)
	assert.Equal(t, 95, col.Confidence)
}

func TestClassifyColumn_SessionDisambiguation(t *testing.T) {
	c := newTestClassifier()

	short := c.ClassifyColumn("Track", []string{"Track1", "Cardiology"})
	assert.Equal(t, TypeSession, short.Type)
	assert.Equal(t, 90, short.Confidence)

	long := c.ClassifyColumn("Session", []string{
		"Management of acute coronary syndromes in the elderly",
		"Recent advances in interventional cardiology practice",
	})
	assert.Equal(t, TypeTopic, long.Type)
	assert.Equal(t, 85, long.Confidence)

	// Hall-like values (80) are below the session floor and get relabelled.
	hallish := c.ClassifyColumn("Session", []string{"Hall A", "Hall B"})
	assert.Equal(t, TypeSession, hallish.Type)
}

func TestClassifyColumn_Names(t *testing.T) {
	c := newTestClassifier()

	byHeader := c.ClassifyColumn("Speaker Name", []string{"dr smith"})
	assert.Equal(t, TypeName, byHeader.Type)
	assert.Equal(t, 90, byHeader.Confidence)

	byShape := c.ClassifyColumn("Column 6", []string{"Dr. John Smith", "Jane O'Neil", "lowercase name"})
	assert.Equal(t, TypeName, byShape.Type)
	assert.Equal(t, 70, byShape.Confidence)

	sessionName := c.ClassifyColumn("Session Name", []string{"Cardio", "Neuro"})
	assert.Equal(t, TypeSession, sessionName.Type)
}

func TestClassifyColumn_Fallback(t *testing.T) {
	c := newTestClassifier()
	long := "this free text column holds a long abstract that clearly exceeds fifty characters"

	topic := c.ClassifyColumn("Notes", []string{long})
	assert.Equal(t, TypeTopic, topic.Type)
	assert.Equal(t, 60, topic.Confidence)

	desc := c.ClassifyColumn("Track Description", []string{long})
	assert.NotEqual(t, TypeUnknown, desc.Type, "track keyword still applies")

	notes := c.ClassifyColumn("Remarks description", []string{long})
	assert.Equal(t, TypeUnknown, notes.Type)
	assert.Equal(t, 0, notes.Confidence)

	empty := c.ClassifyColumn("Misc", nil)
	assert.Equal(t, TypeUnknown, empty.Type)
}

func TestClassifyColumn_SampleLimit(t *testing.T) {
	c := newTestClassifier()
	samples := make([]string, 25)
	for i := range samples {
		samples[i] = "Hall A"
	}
	col := c.ClassifyColumn("X", samples)
	assert.Len(t, col.Samples, 10)
}

func TestClassify_Deterministic(t *testing.T) {
	csv := "Date,Time,Topic,Hall,Track,Name,Role,Email,Phone\n" +
		"2024-03-01,09:00-10:00,Opening Keynote,Hall A,Track1,Dr. Smith,Speaker,smith@x.com,9876543210\n" +
		"2024-03-01,09:00-10:00,Opening Keynote,Hall A,Track1,Dr. Jones,Chairperson,,\n"
	table, err := tabular.ParseCSV([]byte(csv))
	require.NoError(t, err)

	c := newTestClassifier()
	first := BuildColumnMap(c.Classify(context.Background(), table))
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, BuildColumnMap(c.Classify(context.Background(), table)))
	}

	assert.Equal(t, ColumnMap{
		TypeDate:    "Date",
		TypeTime:    "Time",
		TypeTopic:   "Topic",
		TypeHall:    "Hall",
		TypeSession: "Track",
		TypeName:    "Name",
		TypeRole:    "Role",
		TypeEmail:   "Email",
		TypePhone:   "Phone",
	}, first)
}

func TestBuildColumnMap(t *testing.T) {
	cols := []DetectedColumn{
		{Header: "Title", Type: TypeTopic, Confidence: 85},
		{Header: "Topic", Type: TypeTopic, Confidence: 95},
		{Header: "Hall 1", Type: TypeHall, Confidence: 80},
		{Header: "Hall 2", Type: TypeHall, Confidence: 80},
		{Header: "Junk", Type: TypeUnknown, Confidence: 0},
	}
	m := BuildColumnMap(cols)

	assert.Equal(t, "Topic", m.Header(TypeTopic))
	assert.Equal(t, "Hall 1", m.Header(TypeHall), "ties go to the first column")
	assert.False(t, m.Has(TypeUnknown))
	assert.Equal(t, "", m.Header(TypeEmail))
	assert.Equal(t, []ColumnType{TypeDate, TypeTime}, m.Missing(TypeDate, TypeTime, TypeTopic))
}

func TestBuildColumnMap_TieGoesToParsableValues(t *testing.T) {
	table, err := tabular.ParseCSV([]byte("Day,Date,Time Slot,Time,Topic\n" +
		"Day 1,01/03/2024,Morning,09:00-10:00,Opening Keynote\n" +
		"Day 1,01/03/2024,Morning,10:00-11:00,Heart Failure\n"))
	require.NoError(t, err)

	cols := newTestClassifier().Classify(context.Background(), table)
	require.Equal(t, TypeDate, cols[0].Type)
	assert.Equal(t, cols[0].Confidence, cols[1].Confidence)

	m := BuildColumnMap(cols)
	assert.Equal(t, "Date", m.Header(TypeDate))
	assert.Equal(t, "Time", m.Header(TypeTime))
}

type stubAdvisor struct {
	answer ColumnType
	err    error
	calls  int
}

func (s *stubAdvisor) Suggest(_ context.Context, _ string, _ []string) (ColumnType, error) {
	s.calls++
	return s.answer, s.err
}

func TestClassify_AdvisorOnlyForUnknown(t *testing.T) {
	table, err := tabular.ParseCSV([]byte("Topic,Code\nKeynote,ab-1\n"))
	require.NoError(t, err)

	advisor := &stubAdvisor{answer: TypeSession}
	c := newTestClassifier().WithAdvisor(advisor, 50)
	cols := c.Classify(context.Background(), table)

	require.Len(t, cols, 2)
	assert.Equal(t, SourceRules, cols[0].Source)
	assert.Equal(t, TypeSession, cols[1].Type)
	assert.Equal(t, 50, cols[1].Confidence)
	assert.Equal(t, SourceAdvisor, cols[1].Source)
	assert.Equal(t, 1, advisor.calls)
}

func TestClassify_AdvisorFailureKeepsUnknown(t *testing.T) {
	table, err := tabular.ParseCSV([]byte("Code\nab-1\n"))
	require.NoError(t, err)

	c := newTestClassifier().WithAdvisor(&stubAdvisor{err: errors.New("boom")}, 50)
	cols := c.Classify(context.Background(), table)
	assert.Equal(t, TypeUnknown, cols[0].Type)
}

func TestOpenAIAdvisor_Suggest(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":0,"model":"m",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Hall."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	advisor := NewOpenAIAdvisor("test-key", "m", srv.URL)
	got, err := advisor.Suggest(context.Background(), "Venue Code", []string{"H1", "H2"})
	require.NoError(t, err)
	assert.Equal(t, TypeHall, got)
	assert.Contains(t, body, "Venue Code")
}
