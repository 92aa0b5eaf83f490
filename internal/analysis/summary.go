package analysis

import (
	"math"
	"sort"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/program"
)

// DefaultTopFaculty is the number of busiest faculty listed in a summary.
const DefaultTopFaculty = 10

// DaySummary describes one program day.
type DaySummary struct {
	Date     string  `json:"date"`
	Sessions int     `json:"sessions"`
	Hours    float64 `json:"hours"`
	Halls    int     `json:"halls"`
	Speakers int     `json:"speakers"`
}

// FacultyLoad is the number of sessions one person is assigned to.
type FacultyLoad struct {
	Name     string `json:"name"`
	Sessions int    `json:"sessions"`
}

// HallLoad is the number of sessions held in one hall.
type HallLoad struct {
	Hall     string `json:"hall"`
	Sessions int    `json:"sessions"`
}

// Summary is an overview of a built schedule.
type Summary struct {
	Days       []DaySummary  `json:"days"`
	TopFaculty []FacultyLoad `json:"top_faculty"`
	Halls      []HallLoad    `json:"halls"`
}

// Summarize computes per-day totals, the topN busiest faculty and per-hall
// session counts.
func Summarize(sessions []*program.Session, slots []program.Slot, topN int) Summary {
	if topN <= 0 {
		topN = DefaultTopFaculty
	}

	type dayAcc struct {
		sessions int
		minutes  int
		halls    map[string]bool
		speakers map[string]bool
	}
	days := make(map[string]*dayAcc)
	hallCounts := make(map[string]int)

	for _, s := range sessions {
		d, ok := days[s.Date]
		if !ok {
			d = &dayAcc{halls: make(map[string]bool), speakers: make(map[string]bool)}
			days[s.Date] = d
		}
		d.sessions++
		if s.Duration != nil {
			d.minutes += *s.Duration
		}
		if s.Hall != "" {
			d.halls[s.Hall] = true
			hallCounts[s.Hall]++
		}
		for _, p := range s.Speakers {
			d.speakers[program.NormalizeName(p.Name)] = true
		}
	}

	var out Summary
	for date, d := range days {
		out.Days = append(out.Days, DaySummary{
			Date:     date,
			Sessions: d.sessions,
			Hours:    math.Round(float64(d.minutes)/60*100) / 100,
			Halls:    len(d.halls),
			Speakers: len(d.speakers),
		})
	}
	sort.Slice(out.Days, func(i, j int) bool { return out.Days[i].Date < out.Days[j].Date })

	for hall, n := range hallCounts {
		out.Halls = append(out.Halls, HallLoad{Hall: hall, Sessions: n})
	}
	sort.Slice(out.Halls, func(i, j int) bool { return out.Halls[i].Hall < out.Halls[j].Hall })

	loads := make(map[string]*FacultyLoad)
	for _, s := range slots {
		l, ok := loads[s.FacultyKey]
		if !ok {
			l = &FacultyLoad{Name: s.FacultyName}
			loads[s.FacultyKey] = l
		}
		l.Sessions++
	}
	for _, l := range loads {
		out.TopFaculty = append(out.TopFaculty, *l)
	}
	sort.Slice(out.TopFaculty, func(i, j int) bool {
		a, b := out.TopFaculty[i], out.TopFaculty[j]
		if a.Sessions != b.Sessions {
			return a.Sessions > b.Sessions
		}
		return a.Name < b.Name
	})
	if len(out.TopFaculty) > topN {
		out.TopFaculty = out.TopFaculty[:topN]
	}

	return out
}
