// Package classify infers the semantic type of each column in an uploaded
// program from its header and a sample of its values.
package classify

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/program"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/tabular"
)

// ColumnType is the semantic type of a column.
type ColumnType string

const (
	TypeDate    ColumnType = "date"
	TypeTime    ColumnType = "time"
	TypeTopic   ColumnType = "topic"
	TypeHall    ColumnType = "hall"
	TypeSession ColumnType = "session"
	TypeName    ColumnType = "name"
	TypeEmail   ColumnType = "email"
	TypePhone   ColumnType = "phone"
	TypeRole    ColumnType = "role"
	TypeUnknown ColumnType = "unknown"
)

// AllTypes lists every known column type except unknown.
var AllTypes = []ColumnType{TypeDate, TypeTime, TypeTopic, TypeHall, TypeSession, TypeName, TypeEmail, TypePhone, TypeRole}

// ParseColumnType maps a string to a known column type.
func ParseColumnType(s string) (ColumnType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range AllTypes {
		if string(t) == s {
			return t, true
		}
	}
	return TypeUnknown, false
}

// Source records which step decided a column.
const (
	SourceRules   = "rules"
	SourceAdvisor = "advisor"
)

// DetectedColumn is the classification of one column.
type DetectedColumn struct {
	Header     string     `json:"header"`
	Type       ColumnType `json:"type"`
	Confidence int        `json:"confidence"`
	Samples    []string   `json:"samples"`
	Source     string     `json:"source"`
}

// Confidences are the scores assigned by each rule.
type Confidences struct {
	HeaderKeyword  int
	ValuePattern   int
	PhonePattern   int
	HallPattern    int
	RolePattern    int
	SessionLabel   int
	SessionAsTopic int
	NameHeader     int
	NameHeuristic  int
	LongTextTopic  int
}

// DefaultConfidences returns the stock scores.
func DefaultConfidences() Confidences {
	return Confidences{
		HeaderKeyword:  95,
		ValuePattern:   90,
		PhonePattern:   85,
		HallPattern:    80,
		RolePattern:    75,
		SessionLabel:   90,
		SessionAsTopic: 85,
		NameHeader:     90,
		NameHeuristic:  70,
		LongTextTopic:  60,
	}
}

// Options configures a Classifier.
type Options struct {
	SampleSize         int
	Confidences        Confidences
	SessionLabelMaxLen int
	LongTextMinLen     int
}

// DefaultOptions returns the stock classifier options.
func DefaultOptions() Options {
	return Options{
		SampleSize:         10,
		Confidences:        DefaultConfidences(),
		SessionLabelMaxLen: 30,
		LongTextMinLen:     50,
	}
}

// Advisor suggests a type for a column the rules left unknown.
type Advisor interface {
	Suggest(ctx context.Context, header string, samples []string) (ColumnType, error)
}

// Classifier assigns semantic types to columns.
type Classifier struct {
	opts       Options
	advisor    Advisor
	advisorCap int
	logger     *observability.Logger
}

// NewClassifier creates a rule-based classifier.
func NewClassifier(opts Options, logger *observability.Logger) *Classifier {
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultOptions().SampleSize
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Classifier{opts: opts, logger: logger}
}

// WithAdvisor attaches an advisor consulted only for columns the rules leave
// unknown. Advisor results are capped at maxConfidence.
func (c *Classifier) WithAdvisor(a Advisor, maxConfidence int) *Classifier {
	c.advisor = a
	c.advisorCap = maxConfidence
	return c
}

// Classify returns one detected column per header, in header order.
func (c *Classifier) Classify(ctx context.Context, table *tabular.Table) []DetectedColumn {
	cols := make([]DetectedColumn, 0, len(table.Headers))
	for _, h := range table.Headers {
		col := c.ClassifyColumn(h, table.Column(h, c.opts.SampleSize))
		if col.Type == TypeUnknown && c.advisor != nil && len(col.Samples) > 0 {
			col = c.consultAdvisor(ctx, col)
		}
		c.logger.Debug().
			Str("header", h).
			Str("type", string(col.Type)).
			Int("confidence", col.Confidence).
			Str("source", col.Source).
			Msg("Column classified")
		cols = append(cols, col)
	}
	return cols
}

func (c *Classifier) consultAdvisor(ctx context.Context, col DetectedColumn) DetectedColumn {
	t, err := c.advisor.Suggest(ctx, col.Header, col.Samples)
	if err != nil {
		c.logger.Warn().Err(err).Str("header", col.Header).Msg("Column advisor failed")
		return col
	}
	if t == TypeUnknown {
		return col
	}
	col.Type = t
	col.Confidence = c.advisorCap
	col.Source = SourceAdvisor
	return col
}

// ClassifyColumn applies the rule chain to one column. Each step only runs
// while the current confidence is below its floor, so a later rule never
// overrides a more confident earlier result.
func (c *Classifier) ClassifyColumn(header string, samples []string) DetectedColumn {
	if len(samples) > c.opts.SampleSize {
		samples = samples[:c.opts.SampleSize]
	}
	conf := c.opts.Confidences
	h := strings.ToLower(header)

	typ, score := TypeUnknown, 0

	// 1. header keywords
	if t, ok := headerKeywordType(h); ok {
		typ, score = t, conf.HeaderKeyword
	}

	// 2. value patterns
	if score < conf.HallPattern && len(samples) > 0 {
		if t, s, ok := valuePatternType(samples, conf); ok {
			typ, score = t, s
		}
	}

	// 3. session or track header, disambiguated by value length
	if score < conf.SessionAsTopic && containsAny(h, sessionHeaderKeywords) {
		if averageLength(samples) > float64(c.opts.SessionLabelMaxLen) {
			typ, score = TypeTopic, conf.SessionAsTopic
		} else {
			typ, score = TypeSession, conf.SessionLabel
		}
	}

	// 4. names
	if score < conf.NameHeader && isNameHeader(h) {
		typ, score = TypeName, conf.NameHeader
	} else if score < conf.NameHeuristic && len(samples) > 0 && matchRatio(samples, personNameRe.MatchString) >= 0.5 {
		typ, score = TypeName, conf.NameHeuristic
	}

	// 5. long free text
	if typ == TypeUnknown {
		if averageLength(samples) > float64(c.opts.LongTextMinLen) && !strings.Contains(h, "description") {
			typ, score = TypeTopic, conf.LongTextTopic
		} else {
			score = 0
		}
	}

	return DetectedColumn{
		Header:     header,
		Type:       typ,
		Confidence: score,
		Samples:    samples,
		Source:     SourceRules,
	}
}

type keywordRule struct {
	typ      ColumnType
	keywords []string
}

// Checked in order; the first hit wins.
var headerKeywordRules = []keywordRule{
	{TypeDate, []string{"date", "day"}},
	{TypeTime, []string{"time", "timing", "slot"}},
	{TypeHall, []string{"hall", "venue", "room", "auditorium", "location"}},
	{TypeEmail, []string{"email", "e-mail", "mail"}},
	{TypePhone, []string{"phone", "mobile", "cell", "whatsapp", "contact no"}},
	{TypeRole, []string{"role", "designation", "capacity"}},
	{TypeTopic, []string{"topic", "title", "subject", "lecture", "talk"}},
}

var (
	sessionHeaderKeywords = []string{"session", "track", "stream", "theme"}
	nameHeaderKeywords    = []string{"name", "speaker", "faculty", "chairperson", "moderator", "panelist", "presenter", "person"}
	hallValueKeywords     = []string{"hall", "room", "auditorium", "venue", "theatre", "theater", "ballroom", "pavilion", "arena"}
	roleValueKeywords     = []string{"speaker", "chair", "moderator", "panelist", "panel", "coordinator", "convenor", "presenter", "faculty", "judge"}
)

var (
	emailRe      = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	nonDigitRe   = regexp.MustCompile(`\D`)
	personNameRe = regexp.MustCompile(`^[A-Z][a-zA-Z.'\-]*(?:\s+[A-Z][a-zA-Z.'\-]*){0,3}$`)
)

func headerKeywordType(h string) (ColumnType, bool) {
	for _, rule := range headerKeywordRules {
		if containsAny(h, rule.keywords) {
			return rule.typ, true
		}
	}
	return TypeUnknown, false
}

func valuePatternType(samples []string, conf Confidences) (ColumnType, int, bool) {
	checks := []struct {
		typ   ColumnType
		score int
		match func(string) bool
	}{
		{TypeDate, conf.ValuePattern, func(v string) bool { _, _, ok := program.ParseDate(v); return ok }},
		{TypeTime, conf.ValuePattern, func(v string) bool { _, ok := program.ParseTimeRange(v); return ok }},
		{TypeEmail, conf.ValuePattern, emailRe.MatchString},
		{TypePhone, conf.PhonePattern, func(v string) bool { return len(nonDigitRe.ReplaceAllString(v, "")) >= 10 }},
		{TypeHall, conf.HallPattern, func(v string) bool { return containsAny(strings.ToLower(v), hallValueKeywords) }},
		{TypeRole, conf.RolePattern, func(v string) bool { return containsAny(strings.ToLower(v), roleValueKeywords) }},
	}
	for _, check := range checks {
		if matchRatio(samples, check.match) >= 0.5 {
			return check.typ, check.score, true
		}
	}
	return TypeUnknown, 0, false
}

// isNameHeader matches person headers but not "Session Name" style labels.
func isNameHeader(h string) bool {
	if containsAny(h, sessionHeaderKeywords) || containsAny(h, []string{"topic", "title"}) {
		return false
	}
	return containsAny(h, nameHeaderKeywords)
}

func matchRatio(samples []string, match func(string) bool) float64 {
	if len(samples) == 0 {
		return 0
	}
	n := 0
	for _, s := range samples {
		if match(s) {
			n++
		}
	}
	return float64(n) / float64(len(samples))
}

func averageLength(samples []string) float64 {
	if len(samples) == 0 {
		return 0
	}
	total := 0
	for _, s := range samples {
		total += utf8.RuneCountInString(s)
	}
	return float64(total) / float64(len(samples))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
