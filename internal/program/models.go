// Package program defines the conference program model shared by the
// schedule builder, the conflict analyzer and the store.
package program

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Role is the bucket a person occupies within a session.
type Role string

const (
	RoleSpeaker     Role = "speaker"
	RoleChairperson Role = "chairperson"
	RoleModerator   Role = "moderator"
	RolePanelist    Role = "panelist"
)

// SessionType is inferred from the session topic.
type SessionType string

const (
	TypeLecture     SessionType = "lecture"
	TypePanel       SessionType = "panel"
	TypeKeynote     SessionType = "keynote"
	TypeWorkshop    SessionType = "workshop"
	TypeLiveSurgery SessionType = "live_surgery"
	TypeCeremony    SessionType = "ceremony"
	TypeBreak       SessionType = "break"
)

// Person is a name with optional contact details.
type Person struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// SessionKey identifies a session within one import.
type SessionKey struct {
	Date  string `json:"date"`
	Hall  string `json:"hall"`
	Track string `json:"track"`
	Start string `json:"start"`
	Topic string `json:"topic"`
}

// String renders the key in a stable form suitable for unique indexes. The
// fields are JSON-encoded before hashing so separators inside values cannot
// make two keys equal.
func (k SessionKey) String() string {
	data, _ := json.Marshal(k)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Session is one scheduled program item.
type Session struct {
	Date         string      `json:"date"`
	Start        string      `json:"start_time"`
	End          string      `json:"end_time,omitempty"`
	StartMinute  int         `json:"-"`
	Duration     *int        `json:"duration_minutes"`
	Topic        string      `json:"topic"`
	Hall         string      `json:"hall,omitempty"`
	Track        string      `json:"track,omitempty"`
	Type         SessionType `json:"session_type"`
	Speakers     []Person    `json:"speakers"`
	Chairpersons []Person    `json:"chairpersons"`
	Moderators   []Person    `json:"moderators"`
	Panelists    []Person    `json:"panelists"`
}

// Key returns the identity key of the session.
func (s *Session) Key() SessionKey {
	return SessionKey{Date: s.Date, Hall: s.Hall, Track: s.Track, Start: s.Start, Topic: s.Topic}
}

// EndMinute returns the end of the session in minutes since midnight. A
// session without a valid duration ends where it starts.
func (s *Session) EndMinute() int {
	if s.Duration == nil {
		return s.StartMinute
	}
	return s.StartMinute + *s.Duration
}

// People returns the bucket for role.
func (s *Session) People(role Role) []Person {
	switch role {
	case RoleChairperson:
		return s.Chairpersons
	case RoleModerator:
		return s.Moderators
	case RolePanelist:
		return s.Panelists
	default:
		return s.Speakers
	}
}

// AddPerson appends p to the bucket for role unless a person with the exact
// same name is already there. It reports whether p was added.
func (s *Session) AddPerson(role Role, p Person) bool {
	for _, existing := range s.People(role) {
		if existing.Name == p.Name {
			return false
		}
	}
	switch role {
	case RoleChairperson:
		s.Chairpersons = append(s.Chairpersons, p)
	case RoleModerator:
		s.Moderators = append(s.Moderators, p)
	case RolePanelist:
		s.Panelists = append(s.Panelists, p)
	default:
		s.Speakers = append(s.Speakers, p)
	}
	return true
}

// PeopleCount returns the number of people across all buckets.
func (s *Session) PeopleCount() int {
	return len(s.Speakers) + len(s.Chairpersons) + len(s.Moderators) + len(s.Panelists)
}

// Faculty is a person extracted from the program, keyed by normalized name.
type Faculty struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Role  Role   `json:"role,omitempty"`
}

// Enrich fills empty contact fields from other. Set values are never
// overwritten. It reports whether anything changed.
func (f *Faculty) Enrich(email, phone string, role Role) bool {
	changed := false
	if f.Email == "" && email != "" {
		f.Email = email
		changed = true
	}
	if f.Phone == "" && phone != "" {
		f.Phone = phone
		changed = true
	}
	if f.Role == "" && role != "" {
		f.Role = role
		changed = true
	}
	return changed
}

// Track is a named stream of sessions.
type Track struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Chairpersons []Person `json:"chairpersons"`
}

// AddChairperson appends p unless the name is already listed.
func (t *Track) AddChairperson(p Person) bool {
	for _, c := range t.Chairpersons {
		if c.Name == p.Name {
			return false
		}
	}
	t.Chairpersons = append(t.Chairpersons, p)
	return true
}

// Slot is one faculty assignment to one session, used for conflict analysis.
type Slot struct {
	FacultyKey  string `json:"faculty_key"`
	FacultyName string `json:"faculty_name"`
	Date        string `json:"date"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	Session     string `json:"session"`
	Hall        string `json:"hall"`
}

// NormalizeName lowercases a name and collapses internal whitespace.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
