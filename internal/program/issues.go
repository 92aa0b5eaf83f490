package program

import (
	"encoding/json"
	"fmt"
)

// IssueKind tags a timing issue variant.
type IssueKind string

const (
	KindOverlap           IssueKind = "overlap"
	KindGap               IssueKind = "gap"
	KindMissingBreak      IssueKind = "missing_break"
	KindLongSession       IssueKind = "long_session"
	KindFacultyConflict   IssueKind = "faculty_conflict"
	KindHeavySpeakerLoad  IssueKind = "heavy_speaker_load"
	KindUnderutilizedHall IssueKind = "underutilized_hall"
)

// Issue is an advisory finding about a built schedule. Issues never block
// an import.
type Issue interface {
	Kind() IssueKind
	Detail() string
}

// OverlapIssue: two sessions in the same hall run at the same time.
type OverlapIssue struct {
	Date           string `json:"date"`
	Hall           string `json:"hall"`
	First          string `json:"first_session"`
	Second         string `json:"second_session"`
	OverlapMinutes int    `json:"overlap_minutes"`
}

func (i OverlapIssue) Kind() IssueKind { return KindOverlap }

func (i OverlapIssue) Detail() string {
	return fmt.Sprintf("%s on %s: %q overlaps %q by %d min", i.Hall, i.Date, i.First, i.Second, i.OverlapMinutes)
}

// GapIssue: idle time between consecutive sessions in a hall exceeds the limit.
type GapIssue struct {
	Date       string `json:"date"`
	Hall       string `json:"hall"`
	Before     string `json:"before_session"`
	After      string `json:"after_session"`
	GapMinutes int    `json:"gap_minutes"`
}

func (i GapIssue) Kind() IssueKind { return KindGap }

func (i GapIssue) Detail() string {
	return fmt.Sprintf("%s on %s: %d min gap between %q and %q", i.Hall, i.Date, i.GapMinutes, i.Before, i.After)
}

// MissingBreakIssue: a hall runs too long without a break session.
type MissingBreakIssue struct {
	Date              string `json:"date"`
	Hall              string `json:"hall"`
	Session           string `json:"session"`
	ContinuousMinutes int    `json:"continuous_minutes"`
}

func (i MissingBreakIssue) Kind() IssueKind { return KindMissingBreak }

func (i MissingBreakIssue) Detail() string {
	return fmt.Sprintf("%s on %s: %d min without a break by the end of %q, consider adding one", i.Hall, i.Date, i.ContinuousMinutes, i.Session)
}

// LongSessionIssue: a lecture runs longer than the limit.
type LongSessionIssue struct {
	Date            string `json:"date"`
	Hall            string `json:"hall"`
	Session         string `json:"session"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (i LongSessionIssue) Kind() IssueKind { return KindLongSession }

func (i LongSessionIssue) Detail() string {
	return fmt.Sprintf("%q on %s runs %d min", i.Session, i.Date, i.DurationMinutes)
}

// SlotRef is one side of a faculty conflict.
type SlotRef struct {
	Session string `json:"session"`
	Hall    string `json:"hall"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// FacultyConflictIssue: one person is booked in two halls at once.
type FacultyConflictIssue struct {
	Faculty string  `json:"faculty"`
	Date    string  `json:"date"`
	First   SlotRef `json:"first"`
	Second  SlotRef `json:"second"`
}

func (i FacultyConflictIssue) Kind() IssueKind { return KindFacultyConflict }

func (i FacultyConflictIssue) Detail() string {
	return fmt.Sprintf("%s on %s: %q (%s %s-%s) overlaps %q (%s %s-%s)",
		i.Faculty, i.Date,
		i.First.Session, i.First.Hall, i.First.Start, i.First.End,
		i.Second.Session, i.Second.Hall, i.Second.Start, i.Second.End)
}

// HeavySpeakerLoadIssue: one person has more assignments than the limit.
type HeavySpeakerLoadIssue struct {
	Faculty   string `json:"faculty"`
	Sessions  int    `json:"sessions"`
	Threshold int    `json:"threshold"`
}

func (i HeavySpeakerLoadIssue) Kind() IssueKind { return KindHeavySpeakerLoad }

func (i HeavySpeakerLoadIssue) Detail() string {
	return fmt.Sprintf("%s is assigned to %d sessions (limit %d)", i.Faculty, i.Sessions, i.Threshold)
}

// UnderutilizedHallIssue: a hall hosts far fewer sessions than the average.
type UnderutilizedHallIssue struct {
	Hall     string  `json:"hall"`
	Sessions int     `json:"sessions"`
	Mean     float64 `json:"mean_sessions"`
}

func (i UnderutilizedHallIssue) Kind() IssueKind { return KindUnderutilizedHall }

func (i UnderutilizedHallIssue) Detail() string {
	return fmt.Sprintf("%s hosts %d sessions against a mean of %.1f", i.Hall, i.Sessions, i.Mean)
}

// IssueRecord is the serialized form of an issue.
type IssueRecord struct {
	Kind   IssueKind `json:"kind"`
	Detail string    `json:"detail"`
	Data   Issue     `json:"data"`
}

// UnmarshalJSON restores the concrete issue type from the kind tag.
func (r *IssueRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind   IssueKind       `json:"kind"`
		Detail string          `json:"detail"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var (
		issue Issue
		err   error
	)
	switch raw.Kind {
	case KindOverlap:
		issue, err = decodeIssue[OverlapIssue](raw.Data)
	case KindGap:
		issue, err = decodeIssue[GapIssue](raw.Data)
	case KindMissingBreak:
		issue, err = decodeIssue[MissingBreakIssue](raw.Data)
	case KindLongSession:
		issue, err = decodeIssue[LongSessionIssue](raw.Data)
	case KindFacultyConflict:
		issue, err = decodeIssue[FacultyConflictIssue](raw.Data)
	case KindHeavySpeakerLoad:
		issue, err = decodeIssue[HeavySpeakerLoadIssue](raw.Data)
	case KindUnderutilizedHall:
		issue, err = decodeIssue[UnderutilizedHallIssue](raw.Data)
	default:
		return fmt.Errorf("unknown issue kind %q", raw.Kind)
	}
	if err != nil {
		return fmt.Errorf("decode %s issue: %w", raw.Kind, err)
	}

	*r = IssueRecord{Kind: raw.Kind, Detail: raw.Detail, Data: issue}
	return nil
}

func decodeIssue[T Issue](data json.RawMessage) (Issue, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Records converts issues to their serialized form, keeping order.
func Records(issues []Issue) []IssueRecord {
	out := make([]IssueRecord, 0, len(issues))
	for _, issue := range issues {
		out = append(out, IssueRecord{Kind: issue.Kind(), Detail: issue.Detail(), Data: issue})
	}
	return out
}

// CountByKind tallies issues per kind.
func CountByKind(issues []Issue) map[IssueKind]int {
	counts := make(map[IssueKind]int)
	for _, issue := range issues {
		counts[issue.Kind()]++
	}
	return counts
}
