package program

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout records how a date was written so it can be reproduced.
type DateLayout struct {
	Separator  string
	YearFirst  bool
	DayWidth   int
	MonthWidth int
	YearWidth  int
}

type datePattern struct {
	re        *regexp.Regexp
	sep       string
	yearFirst bool
}

// Supported patterns, tried in order: D.M.Y, D/M/Y, D-M-Y, Y-M-D.
var datePatterns = []datePattern{
	{re: regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4}|\d{2})$`), sep: "."},
	{re: regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4}|\d{2})$`), sep: "/"},
	{re: regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4}|\d{2})$`), sep: "-"},
	{re: regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`), sep: "-", yearFirst: true},
}

// ParseDate normalizes a program date. The first matching pattern wins.
// Two-digit years are read as 20YY. Impossible calendar dates are rejected.
func ParseDate(s string) (time.Time, DateLayout, bool) {
	s = strings.TrimSpace(s)
	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}

		dayStr, monthStr, yearStr := m[1], m[2], m[3]
		if p.yearFirst {
			yearStr, monthStr, dayStr = m[1], m[2], m[3]
		}

		day, _ := strconv.Atoi(dayStr)
		month, _ := strconv.Atoi(monthStr)
		year, _ := strconv.Atoi(yearStr)
		if len(yearStr) == 2 {
			year += 2000
		}

		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Day() != day || int(t.Month()) != month || t.Year() != year {
			return time.Time{}, DateLayout{}, false
		}

		return t, DateLayout{
			Separator:  p.sep,
			YearFirst:  p.yearFirst,
			DayWidth:   len(dayStr),
			MonthWidth: len(monthStr),
			YearWidth:  len(yearStr),
		}, true
	}
	return time.Time{}, DateLayout{}, false
}

// NormalizeDate returns the ISO calendar day for s, or "" if s is not a
// supported date.
func NormalizeDate(s string) string {
	t, _, ok := ParseDate(s)
	if !ok {
		return ""
	}
	return t.Format("2006-01-02")
}

// Format writes t using the layout it was parsed from.
func (l DateLayout) Format(t time.Time) string {
	year := t.Year()
	if l.YearWidth == 2 {
		year %= 100
	}
	d := fmt.Sprintf("%0*d", l.DayWidth, t.Day())
	m := fmt.Sprintf("%0*d", l.MonthWidth, int(t.Month()))
	y := fmt.Sprintf("%0*d", l.YearWidth, year)
	if l.YearFirst {
		return y + l.Separator + m + l.Separator + d
	}
	return d + l.Separator + m + l.Separator + y
}

// TimeRange is a parsed time cell. End is only meaningful when HasEnd is set.
type TimeRange struct {
	Start  int
	End    int
	HasEnd bool
}

const clockPart = `(\d{1,2}):(\d{2})\s*([AaPp]\.?[Mm]\.?)?`

var (
	timeRangeRe  = regexp.MustCompile(`^` + clockPart + `\s*[-–—]\s*` + clockPart + `$`)
	singleTimeRe = regexp.MustCompile(`^` + clockPart + `$`)
)

// ParseTimeRange reads "H:M - H:M" (hyphen, en dash or em dash) or a single
// "H:M". An optional am/pm suffix is honored.
func ParseTimeRange(s string) (TimeRange, bool) {
	s = strings.TrimSpace(s)
	if m := timeRangeRe.FindStringSubmatch(s); m != nil {
		start, ok := clockMinutes(m[1], m[2], m[3])
		if !ok {
			return TimeRange{}, false
		}
		end, ok := clockMinutes(m[4], m[5], m[6])
		if !ok {
			return TimeRange{}, false
		}
		return TimeRange{Start: start, End: end, HasEnd: true}, true
	}
	if m := singleTimeRe.FindStringSubmatch(s); m != nil {
		start, ok := clockMinutes(m[1], m[2], m[3])
		if !ok {
			return TimeRange{}, false
		}
		return TimeRange{Start: start}, true
	}
	return TimeRange{}, false
}

// Duration returns end minus start, or nil when there is no end or the span
// is not positive.
func (r TimeRange) Duration() *int {
	if !r.HasEnd {
		return nil
	}
	d := r.End - r.Start
	if d <= 0 {
		return nil
	}
	return &d
}

func clockMinutes(hourStr, minStr, meridiem string) (int, bool) {
	hour, _ := strconv.Atoi(hourStr)
	minute, _ := strconv.Atoi(minStr)
	if minute > 59 {
		return 0, false
	}

	switch strings.ToLower(strings.ReplaceAll(meridiem, ".", "")) {
	case "":
		if hour > 23 {
			return 0, false
		}
	case "am":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, false
		}
		if hour != 12 {
			hour += 12
		}
	}
	return hour*60 + minute, true
}

// FormatClock renders minutes since midnight as HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
