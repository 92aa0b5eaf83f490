package program

import (
	"regexp"
	"strings"
)

type typeRule struct {
	keywords []string
	typ      SessionType
}

// Evaluated in order; the first rule with a matching keyword wins.
var sessionTypeRules = []typeRule{
	{keywords: []string{"panel", "discussion"}, typ: TypePanel},
	{keywords: []string{"keynote", "oration"}, typ: TypeKeynote},
	{keywords: []string{"workshop"}, typ: TypeWorkshop},
	{keywords: []string{"live", "surgery"}, typ: TypeLiveSurgery},
	{keywords: []string{"inaug"}, typ: TypeCeremony},
	{keywords: []string{"break", "lunch"}, typ: TypeBreak},
}

// InferSessionType classifies a session by substrings of its topic.
func InferSessionType(topic string) SessionType {
	t := strings.ToLower(topic)
	for _, rule := range sessionTypeRules {
		if containsAny(t, rule.keywords...) {
			return rule.typ
		}
	}
	return TypeLecture
}

// BucketRole maps free role text to a session bucket.
func BucketRole(roleText string) Role {
	r := strings.ToLower(roleText)
	switch {
	case IsChairRole(r):
		return RoleChairperson
	case strings.Contains(r, "moderator"):
		return RoleModerator
	case strings.Contains(r, "panel"):
		return RolePanelist
	default:
		return RoleSpeaker
	}
}

// IsChairRole reports whether role text names a chair or coordinator.
func IsChairRole(roleText string) bool {
	return containsAny(strings.ToLower(roleText), "chair", "coordinator")
}

// teaWord matches "tea" as a whole word so "Team" or "Steady" are not breaks.
var teaWord = regexp.MustCompile(`\btea\b`)

// IsBreak reports whether a session is a break for the continuous-time check.
func IsBreak(s *Session) bool {
	if s.Type == TypeBreak {
		return true
	}
	t := strings.ToLower(s.Topic)
	return containsAny(t, "break", "lunch") || teaWord.MatchString(t)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
