package schedule

import (
	"github.com/spherical-ai/spherical/libs/program-engine/internal/program"
)

// RowKind says whether an input row describes a session or its track.
type RowKind int

const (
	SessionRow RowKind = iota
	TrackMetadataRow
)

func (k RowKind) String() string {
	if k == TrackMetadataRow {
		return "track_metadata"
	}
	return "session"
}

// MetadataReason explains why a row was taken as track metadata.
type MetadataReason string

const (
	ReasonNone   MetadataReason = ""
	ReasonChair  MetadataReason = "chair"
	ReasonHeader MetadataReason = "header"
)

// RowFacts are the fields of a row that decide its kind.
type RowFacts struct {
	Track    string
	Topic    string
	Name     string
	RoleText string
	// NamesKnown is false when the file has no person column at all; in that
	// case a missing name says nothing about the row.
	NamesKnown bool
}

// TrackState is what has been recorded for a track so far.
type TrackState struct {
	Description string
}

// ClassifyRow applies the row rules in order:
//
//  1. A row without a track is a session row.
//  2. A chair or coordinator row whose topic equals the recorded track
//     description is track metadata; the person becomes a track chair.
//  3. A row without a person name, on a track with no description yet, is
//     the track header; its topic becomes the description.
//  4. A row without a person name whose topic equals the recorded
//     description is a repeated track header.
//  5. Anything else is a session row.
//
// Rules 3 and 4 only apply when the file has a person column.
func ClassifyRow(f RowFacts, track TrackState) (RowKind, MetadataReason) {
	if f.Track == "" {
		return SessionRow, ReasonNone
	}

	if program.IsChairRole(f.RoleText) && track.Description != "" && f.Topic == track.Description {
		return TrackMetadataRow, ReasonChair
	}

	if f.NamesKnown && f.Name == "" {
		if track.Description == "" && f.Topic != "" {
			return TrackMetadataRow, ReasonHeader
		}
		if track.Description != "" && f.Topic == track.Description {
			return TrackMetadataRow, ReasonHeader
		}
	}

	return SessionRow, ReasonNone
}
