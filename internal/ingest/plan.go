package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/program"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/schedule"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/storage"
)

// planImport diffs a built schedule against what the event already holds.
// Existing sessions are suppressed, known faculty only get empty contact
// fields filled and known tracks only get a missing description and new
// chairpersons.
func planImport(ctx context.Context, store Store, eventID uuid.UUID, sched *schedule.Schedule) (*storage.ImportPlan, storage.ImportCounts, error) {
	var (
		plan   = &storage.ImportPlan{}
		counts storage.ImportCounts
	)

	keys, err := store.SessionKeys(ctx, eventID)
	if err != nil {
		return nil, counts, fmt.Errorf("load session keys: %w", err)
	}
	for _, s := range sched.Sessions {
		if keys[s.Key().String()] {
			counts.SessionsExisting++
			continue
		}
		plan.Sessions = append(plan.Sessions, s)
	}
	counts.SessionsCreated = len(plan.Sessions)

	existingFaculty, err := store.ListFaculty(ctx, eventID)
	if err != nil {
		return nil, counts, fmt.Errorf("load faculty: %w", err)
	}
	facultyByKey := make(map[string]*storage.FacultyRecord, len(existingFaculty))
	for _, f := range existingFaculty {
		facultyByKey[f.Key] = f
	}
	for _, f := range sched.Faculty {
		rec, ok := facultyByKey[f.Key]
		if !ok {
			plan.Faculty = append(plan.Faculty, f)
			counts.FacultyCreated++
			continue
		}
		merged := rec.Faculty
		if merged.Enrich(f.Email, f.Phone, f.Role) {
			plan.Faculty = append(plan.Faculty, &merged)
			counts.FacultyUpdated++
		}
	}

	existingTracks, err := store.ListTracks(ctx, eventID)
	if err != nil {
		return nil, counts, fmt.Errorf("load tracks: %w", err)
	}
	tracksByName := make(map[string]*storage.TrackRecord, len(existingTracks))
	for _, t := range existingTracks {
		tracksByName[t.Name] = t
	}
	for _, t := range sched.Tracks {
		rec, ok := tracksByName[t.Name]
		if !ok {
			plan.Tracks = append(plan.Tracks, storage.TrackChange{
				Name:            t.Name,
				Description:     t.Description,
				NewChairpersons: t.Chairpersons,
			})
			counts.TracksCreated++
			continue
		}

		change := storage.TrackChange{Name: t.Name}
		if rec.Description == "" {
			change.Description = t.Description
		}
		known := rec.Track
		known.Chairpersons = append([]program.Person(nil), rec.Chairpersons...)
		for _, c := range t.Chairpersons {
			if known.AddChairperson(c) {
				change.NewChairpersons = append(change.NewChairpersons, c)
			}
		}
		if change.Description != "" || len(change.NewChairpersons) > 0 {
			plan.Tracks = append(plan.Tracks, change)
			counts.TracksUpdated++
		}
	}

	return plan, counts, nil
}
