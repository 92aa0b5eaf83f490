// Package schedule turns classified program rows into sessions, faculty and
// tracks.
package schedule

import (
	"github.com/spherical-ai/spherical/libs/program-engine/internal/classify"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/program"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/tabular"
)

// DefaultLongSessionMinutes is the lecture length above which a
// long-session issue is raised.
const DefaultLongSessionMinutes = 180

// SkipStats counts rows that did not produce a session.
type SkipStats struct {
	InvalidDate  int `json:"invalid_date"`
	InvalidTime  int `json:"invalid_time"`
	MissingTopic int `json:"missing_topic"`
	MetadataRows int `json:"metadata_rows"`
}

// Total returns the number of rows skipped for bad data. Metadata rows are
// expected and not counted.
func (s SkipStats) Total() int {
	return s.InvalidDate + s.InvalidTime + s.MissingTopic
}

// Schedule is the output of one build.
type Schedule struct {
	Sessions []*program.Session
	Faculty  []*program.Faculty
	Tracks   []*program.Track
	Slots    []program.Slot
	Issues   []program.Issue
	Skipped  SkipStats
}

// Halls returns distinct non-empty session halls in order of appearance.
func (s *Schedule) Halls() []string {
	seen := make(map[string]bool)
	var halls []string
	for _, sess := range s.Sessions {
		if sess.Hall != "" && !seen[sess.Hall] {
			seen[sess.Hall] = true
			halls = append(halls, sess.Hall)
		}
	}
	return halls
}

// Builder builds schedules. It holds no state between builds.
type Builder struct {
	longSessionMinutes int
	logger             *observability.Logger
}

// NewBuilder creates a builder. longSessionMinutes <= 0 uses the default.
func NewBuilder(longSessionMinutes int, logger *observability.Logger) *Builder {
	if longSessionMinutes <= 0 {
		longSessionMinutes = DefaultLongSessionMinutes
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Builder{longSessionMinutes: longSessionMinutes, logger: logger}
}

// buildState is the per-invocation accumulator.
type buildState struct {
	sched    *Schedule
	sessions map[program.SessionKey]*program.Session
	faculty  map[string]*program.Faculty
	tracks   map[string]*program.Track
	slotSeen map[string]bool
}

func newBuildState() *buildState {
	return &buildState{
		sched:    &Schedule{},
		sessions: make(map[program.SessionKey]*program.Session),
		faculty:  make(map[string]*program.Faculty),
		tracks:   make(map[string]*program.Track),
		slotSeen: make(map[string]bool),
	}
}

type rowFields struct {
	date, time, topic, hall, track string
	name, role, email, phone       string
}

func readRow(row tabular.Row, cols classify.ColumnMap) rowFields {
	return rowFields{
		date:  row.Get(cols.Header(classify.TypeDate)),
		time:  row.Get(cols.Header(classify.TypeTime)),
		topic: row.Get(cols.Header(classify.TypeTopic)),
		hall:  row.Get(cols.Header(classify.TypeHall)),
		track: row.Get(cols.Header(classify.TypeSession)),
		name:  row.Get(cols.Header(classify.TypeName)),
		role:  row.Get(cols.Header(classify.TypeRole)),
		email: row.Get(cols.Header(classify.TypeEmail)),
		phone: row.Get(cols.Header(classify.TypePhone)),
	}
}

// Build groups rows into sessions keyed by (date, hall, track, start, topic),
// extracts faculty and tracks, and records one slot per faculty and session.
func (b *Builder) Build(table *tabular.Table, cols classify.ColumnMap) *Schedule {
	st := newBuildState()
	namesKnown := cols.Has(classify.TypeName)

	for _, row := range table.Rows {
		f := readRow(row, cols)

		var fac *program.Faculty
		if f.name != "" {
			fac = st.upsertFaculty(f)
		}

		var track *program.Track
		if f.track != "" {
			track = st.track(f.track)
		}

		state := TrackState{}
		if track != nil {
			state.Description = track.Description
		}
		kind, reason := ClassifyRow(RowFacts{
			Track:      f.track,
			Topic:      f.topic,
			Name:       f.name,
			RoleText:   f.role,
			NamesKnown: namesKnown,
		}, state)

		if kind == TrackMetadataRow {
			st.sched.Skipped.MetadataRows++
			switch reason {
			case ReasonHeader:
				if track.Description == "" {
					track.Description = f.topic
				}
			case ReasonChair:
				track.AddChairperson(program.Person{Name: f.name, Email: f.email, Phone: f.phone})
			}
			b.logger.Debug().Int("line", row.Line).Str("track", f.track).Str("reason", string(reason)).Msg("Track metadata row")
			continue
		}

		date := program.NormalizeDate(f.date)
		if date == "" {
			st.sched.Skipped.InvalidDate++
			b.logger.Debug().Int("line", row.Line).Str("value", f.date).Msg("Skipping row with invalid date")
			continue
		}
		tr, ok := program.ParseTimeRange(f.time)
		if !ok {
			st.sched.Skipped.InvalidTime++
			b.logger.Debug().Int("line", row.Line).Str("value", f.time).Msg("Skipping row with invalid time")
			continue
		}
		if f.topic == "" {
			st.sched.Skipped.MissingTopic++
			b.logger.Debug().Int("line", row.Line).Msg("Skipping row without topic")
			continue
		}

		sess := b.session(st, date, tr, f)

		if fac != nil {
			person := program.Person{Name: f.name, Email: f.email, Phone: f.phone}
			sess.AddPerson(program.BucketRole(f.role), person)
			st.addSlot(fac, sess)
		}
	}

	b.logger.Debug().
		Int("sessions", len(st.sched.Sessions)).
		Int("faculty", len(st.sched.Faculty)).
		Int("tracks", len(st.sched.Tracks)).
		Int("slots", len(st.sched.Slots)).
		Int("skipped", st.sched.Skipped.Total()).
		Msg("Schedule built")

	return st.sched
}

func (b *Builder) session(st *buildState, date string, tr program.TimeRange, f rowFields) *program.Session {
	key := program.SessionKey{
		Date:  date,
		Hall:  f.hall,
		Track: f.track,
		Start: program.FormatClock(tr.Start),
		Topic: f.topic,
	}
	if sess, ok := st.sessions[key]; ok {
		return sess
	}

	sess := &program.Session{
		Date:        date,
		Start:       key.Start,
		StartMinute: tr.Start,
		Duration:    tr.Duration(),
		Topic:       f.topic,
		Hall:        f.hall,
		Track:       f.track,
		Type:        program.InferSessionType(f.topic),
	}
	// An end at or before the start is not a usable end time.
	if tr.HasEnd && sess.Duration != nil {
		sess.End = program.FormatClock(tr.End)
	}
	st.sessions[key] = sess
	st.sched.Sessions = append(st.sched.Sessions, sess)

	if sess.Duration != nil && *sess.Duration > b.longSessionMinutes && sess.Type == program.TypeLecture {
		st.sched.Issues = append(st.sched.Issues, program.LongSessionIssue{
			Date:            sess.Date,
			Hall:            sess.Hall,
			Session:         sess.Topic,
			DurationMinutes: *sess.Duration,
		})
	}
	return sess
}

func (st *buildState) upsertFaculty(f rowFields) *program.Faculty {
	key := program.NormalizeName(f.name)
	var role program.Role
	if f.role != "" {
		role = program.BucketRole(f.role)
	}

	if fac, ok := st.faculty[key]; ok {
		fac.Enrich(f.email, f.phone, role)
		return fac
	}

	fac := &program.Faculty{Key: key, Name: f.name, Email: f.email, Phone: f.phone, Role: role}
	st.faculty[key] = fac
	st.sched.Faculty = append(st.sched.Faculty, fac)
	return fac
}

func (st *buildState) track(name string) *program.Track {
	if t, ok := st.tracks[name]; ok {
		return t
	}
	t := &program.Track{Name: name}
	st.tracks[name] = t
	st.sched.Tracks = append(st.sched.Tracks, t)
	return t
}

func (st *buildState) addSlot(fac *program.Faculty, sess *program.Session) {
	id := fac.Key + "\x00" + sess.Key().String()
	if st.slotSeen[id] {
		return
	}
	st.slotSeen[id] = true
	st.sched.Slots = append(st.sched.Slots, program.Slot{
		FacultyKey:  fac.Key,
		FacultyName: fac.Name,
		Date:        sess.Date,
		StartMinute: sess.StartMinute,
		EndMinute:   sess.EndMinute(),
		Session:     sess.Topic,
		Hall:        sess.Hall,
	})
}
