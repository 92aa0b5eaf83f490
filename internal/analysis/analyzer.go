// Package analysis detects timing problems in a built schedule and
// summarizes it.
package analysis

import (
	"sort"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/program"
)

// Default thresholds.
const (
	DefaultMaxGapMinutes        = 90
	DefaultMaxContinuousMinutes = 180
	DefaultHeavyLoadSessions    = 15
	DefaultUnderutilizedRatio   = 0.5
)

// Thresholds tune the detectors.
type Thresholds struct {
	// MaxGapMinutes is the longest idle time allowed between sessions in a hall.
	MaxGapMinutes int
	// MaxContinuousMinutes is the longest a hall may run without a break.
	MaxContinuousMinutes int
	// HeavyLoadSessions is the most sessions one person may be assigned.
	HeavyLoadSessions int
	// UnderutilizedRatio flags halls hosting fewer than this share of the mean.
	UnderutilizedRatio float64
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxGapMinutes:        DefaultMaxGapMinutes,
		MaxContinuousMinutes: DefaultMaxContinuousMinutes,
		HeavyLoadSessions:    DefaultHeavyLoadSessions,
		UnderutilizedRatio:   DefaultUnderutilizedRatio,
	}
}

// Analyzer runs all detectors. It is stateless and safe for concurrent use.
type Analyzer struct {
	th Thresholds
}

// NewAnalyzer creates an analyzer. Zero thresholds take their defaults.
func NewAnalyzer(th Thresholds) *Analyzer {
	def := DefaultThresholds()
	if th.MaxGapMinutes <= 0 {
		th.MaxGapMinutes = def.MaxGapMinutes
	}
	if th.MaxContinuousMinutes <= 0 {
		th.MaxContinuousMinutes = def.MaxContinuousMinutes
	}
	if th.HeavyLoadSessions <= 0 {
		th.HeavyLoadSessions = def.HeavyLoadSessions
	}
	if th.UnderutilizedRatio <= 0 {
		th.UnderutilizedRatio = def.UnderutilizedRatio
	}
	return &Analyzer{th: th}
}

// Thresholds returns the effective thresholds.
func (a *Analyzer) Thresholds() Thresholds {
	return a.th
}

// Analyze returns every issue found. The result depends only on the inputs
// and is ordered: hall issues by date and hall, then faculty conflicts,
// hall utilization and speaker load.
func (a *Analyzer) Analyze(sessions []*program.Session, slots []program.Slot) []program.Issue {
	var issues []program.Issue
	issues = append(issues, a.HallIssues(sessions)...)
	issues = append(issues, a.FacultyConflicts(slots)...)
	issues = append(issues, a.UnderutilizedHalls(sessions)...)
	issues = append(issues, a.HeavySpeakerLoad(slots)...)
	return issues
}

type hallGroup struct {
	date, hall string
	sessions   []*program.Session
}

func groupByHall(sessions []*program.Session) []hallGroup {
	idx := make(map[[2]string]int)
	var groups []hallGroup
	for _, s := range sessions {
		if s.Hall == "" {
			continue
		}
		k := [2]string{s.Date, s.Hall}
		i, ok := idx[k]
		if !ok {
			i = len(groups)
			idx[k] = i
			groups = append(groups, hallGroup{date: s.Date, hall: s.Hall})
		}
		groups[i].sessions = append(groups[i].sessions, s)
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].date != groups[j].date {
			return groups[i].date < groups[j].date
		}
		return groups[i].hall < groups[j].hall
	})
	for _, g := range groups {
		sort.SliceStable(g.sessions, func(i, j int) bool {
			a, b := g.sessions[i], g.sessions[j]
			if a.StartMinute != b.StartMinute {
				return a.StartMinute < b.StartMinute
			}
			return a.EndMinute() < b.EndMinute()
		})
	}
	return groups
}

// HallIssues sweeps each (date, hall) in start order and reports overlaps,
// long gaps and stretches without a break. Sessions without a hall are
// not compared.
func (a *Analyzer) HallIssues(sessions []*program.Session) []program.Issue {
	var issues []program.Issue
	for _, g := range groupByHall(sessions) {
		issues = append(issues, a.sweepHall(g)...)
	}
	return issues
}

func (a *Analyzer) sweepHall(g hallGroup) []program.Issue {
	var (
		issues  []program.Issue
		active  []*program.Session
		lastEnd *program.Session

		coveredUntil int
		continuous   int
		flagged      bool
		started      bool
	)

	for _, s := range g.sessions {
		start, end := s.StartMinute, s.EndMinute()

		// Every active session still running at s.start overlaps s.
		kept := active[:0]
		for _, prev := range active {
			if prev.EndMinute() > start {
				kept = append(kept, prev)
				issues = append(issues, program.OverlapIssue{
					Date:           g.date,
					Hall:           g.hall,
					First:          prev.Topic,
					Second:         s.Topic,
					OverlapMinutes: min(prev.EndMinute(), end) - start,
				})
			}
		}
		active = append(kept, s)

		if lastEnd != nil && start-lastEnd.EndMinute() > a.th.MaxGapMinutes {
			issues = append(issues, program.GapIssue{
				Date:       g.date,
				Hall:       g.hall,
				Before:     lastEnd.Topic,
				After:      s.Topic,
				GapMinutes: start - lastEnd.EndMinute(),
			})
		}
		if lastEnd == nil || end > lastEnd.EndMinute() {
			lastEnd = s
		}

		if program.IsBreak(s) {
			continuous, flagged = 0, false
			coveredUntil = end
			started = true
			continue
		}
		if !started || start > coveredUntil {
			coveredUntil = start
			started = true
		}
		if end > coveredUntil {
			continuous += end - coveredUntil
			coveredUntil = end
		}
		if continuous > a.th.MaxContinuousMinutes && !flagged {
			flagged = true
			issues = append(issues, program.MissingBreakIssue{
				Date:              g.date,
				Hall:              g.hall,
				Session:           s.Topic,
				ContinuousMinutes: continuous,
			})
		}
	}
	return issues
}

// FacultyConflicts reports, per person and date, every pair of assignments
// in different halls whose intervals overlap.
func (a *Analyzer) FacultyConflicts(slots []program.Slot) []program.Issue {
	byFaculty := make(map[string][]program.Slot)
	for _, s := range slots {
		byFaculty[s.FacultyKey] = append(byFaculty[s.FacultyKey], s)
	}

	keys := make([]string, 0, len(byFaculty))
	for k := range byFaculty {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var issues []program.Issue
	for _, k := range keys {
		list := byFaculty[k]
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Date != list[j].Date {
				return list[i].Date < list[j].Date
			}
			if list[i].StartMinute != list[j].StartMinute {
				return list[i].StartMinute < list[j].StartMinute
			}
			return list[i].EndMinute < list[j].EndMinute
		})

		var active []program.Slot
		for _, s := range list {
			kept := active[:0]
			for _, prev := range active {
				if prev.Date == s.Date && prev.EndMinute > s.StartMinute {
					kept = append(kept, prev)
					if prev.Hall != s.Hall {
						issues = append(issues, program.FacultyConflictIssue{
							Faculty: s.FacultyName,
							Date:    s.Date,
							First:   slotRef(prev),
							Second:  slotRef(s),
						})
					}
				}
			}
			active = append(kept, s)
		}
	}
	return issues
}

func slotRef(s program.Slot) program.SlotRef {
	return program.SlotRef{
		Session: s.Session,
		Hall:    s.Hall,
		Start:   program.FormatClock(s.StartMinute),
		End:     program.FormatClock(s.EndMinute),
	}
}

// UnderutilizedHalls flags halls whose session count is below the
// configured share of the mean across halls.
func (a *Analyzer) UnderutilizedHalls(sessions []*program.Session) []program.Issue {
	counts := make(map[string]int)
	total := 0
	for _, s := range sessions {
		if s.Hall == "" {
			continue
		}
		counts[s.Hall]++
		total++
	}
	if len(counts) == 0 {
		return nil
	}

	mean := float64(total) / float64(len(counts))
	halls := make([]string, 0, len(counts))
	for h := range counts {
		halls = append(halls, h)
	}
	sort.Strings(halls)

	var issues []program.Issue
	for _, h := range halls {
		if float64(counts[h]) < mean*a.th.UnderutilizedRatio {
			issues = append(issues, program.UnderutilizedHallIssue{Hall: h, Sessions: counts[h], Mean: mean})
		}
	}
	return issues
}

// HeavySpeakerLoad flags people assigned to more sessions than allowed.
func (a *Analyzer) HeavySpeakerLoad(slots []program.Slot) []program.Issue {
	counts := make(map[string]int)
	names := make(map[string]string)
	for _, s := range slots {
		counts[s.FacultyKey]++
		if _, ok := names[s.FacultyKey]; !ok {
			names[s.FacultyKey] = s.FacultyName
		}
	}

	keys := make([]string, 0, len(counts))
	for k, n := range counts {
		if n > a.th.HeavyLoadSessions {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	issues := make([]program.Issue, 0, len(keys))
	for _, k := range keys {
		issues = append(issues, program.HeavySpeakerLoadIssue{
			Faculty:   names[k],
			Sessions:  counts[k],
			Threshold: a.th.HeavyLoadSessions,
		})
	}
	return issues
}
