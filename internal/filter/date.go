package filter

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDateRegex   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	slashDateRegex = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})(?:\s+(\d{1,2}):(\d{2})(?::(\d{2}))?\s*([AaPp][Mm])?)?`)
	ordinalRegex   = regexp.MustCompile(`(\d)(st|nd|rd|th)\b`)
	timezoneSuffix = regexp.MustCompile(`\s+(?:[A-Z]{2,4}|[A-Z][a-z]+ Time)$`)
)

// textLayouts are tried in order after the numeric forms.
var textLayouts = []string{
	"January 2, 2006 3:04 PM",
	"January 2, 2006 at 3:04 PM",
	"January 2, 2006",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"Monday, January 2, 2006",
	"Mon, Jan 2, 2006",
	"January 2 2006",
	"Jan. 2, 2006",
}

// NormalizeDate rewrites a portal date into ISO 8601. Date-only inputs give
// "2006-01-02"; inputs with a time give "2006-01-02T15:04:05". Anything it
// cannot parse is returned trimmed but otherwise untouched.
func NormalizeDate(dateStr string) string {
	s := strings.TrimSpace(dateStr)
	if s == "" || strings.EqualFold(s, "N/A") || strings.EqualFold(s, "TBD") {
		return s
	}

	//case 1: already ISO "2026-01-27" or 2026-01-27T...
	if isoDateRegex.MatchString(s) {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Format("2006-01-02T15:04:05Z07:00")
		}
		if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
			return t.Format("2006-01-02T15:04:05")
		}
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t.Format("2006-01-02")
		}
	}

	//case 2: mm/dd/yyyy, dd/mm/yyyy when the first part cannot be a month
	if m := slashDateRegex.FindStringSubmatch(s); m != nil {
		if t, hasTime, ok := parseSlashDate(m); ok {
			if hasTime {
				return t.Format("2006-01-02T15:04:05")
			}
			return t.Format("2006-01-02")
		}
	}

	//case 3: written-out months
	cleaned := ordinalRegex.ReplaceAllString(s, "$1")
	if loc := timezoneSuffix.FindStringIndex(cleaned); loc != nil {
		suffix := strings.ToUpper(strings.TrimSpace(cleaned[loc[0]:]))
		if suffix != "AM" && suffix != "PM" {
			cleaned = cleaned[:loc[0]]
		}
	}
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	for _, layout := range textLayouts {
		t, err := time.Parse(layout, cleaned)
		if err != nil {
			continue
		}
		if strings.Contains(layout, "3:04") {
			return t.Format("2006-01-02T15:04:05")
		}
		return t.Format("2006-01-02")
	}

	return s
}

func parseSlashDate(m []string) (time.Time, bool, bool) {
	first, _ := strconv.Atoi(m[1])
	second, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if year < 100 {
		year += 2000
	}

	month, day := first, second
	if first > 12 && second <= 12 {
		//assume dd/mm/yyyy
		month, day = second, first
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false, false
	}

	if m[4] == "" {
		return t, false, true
	}
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	sec := 0
	if m[6] != "" {
		sec, _ = strconv.Atoi(m[6])
	}
	switch strings.ToLower(m[7]) {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 || sec > 59 {
		return t, false, true
	}
	return t.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(sec)*time.Second), true, true
}
