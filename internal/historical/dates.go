package historical

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	dayMonYear = regexp.MustCompile(`^(\d{1,2})\s(\w{3})\s(\d{4})$`)
	isoPrefix  = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})`)
)

var months = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// ParseDate reads "30 Sep 2025" or "2025-09-30" (anything after the day in
// the ISO form is ignored). Out-of-range days such as "31 Feb" are rejected.
func ParseDate(s string) (time.Time, bool) {
	var y, d int
	var m time.Month

	if p := dayMonYear.FindStringSubmatch(s); p != nil {
		mm, ok := months[p[2]]
		if !ok {
			return time.Time{}, false
		}
		d, _ = strconv.Atoi(p[1])
		y, _ = strconv.Atoi(p[3])
		m = mm
	} else if p := isoPrefix.FindStringSubmatch(s); p != nil {
		y, _ = strconv.Atoi(p[1])
		mi, _ := strconv.Atoi(p[2])
		d, _ = strconv.Atoi(p[3])
		if mi < 1 || mi > 12 {
			return time.Time{}, false
		}
		m = time.Month(mi)
	} else {
		return time.Time{}, false
	}

	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || t.Month() != m {
		return time.Time{}, false
	}
	return t, true
}

// DateKey normalizes a date to a sortable "YYYY-MM-DD", or "" if unparseable.
func DateKey(s string) string {
	t, ok := ParseDate(s)
	if !ok {
		return ""
	}
	return t.Format(time.DateOnly)
}

// DisplayDate renders "30 Sep 2025", falling back to the input unchanged.
func DisplayDate(s string) string {
	t, ok := ParseDate(s)
	if !ok {
		return s
	}
	return t.Format("02 Jan 2006")
}

// DateFrom is the first day of the month three months before now.
func DateFrom(now time.Time) string {
	now = now.UTC()
	first := time.Date(now.Year(), now.Month()-3, 1, 0, 0, 0, 0, time.UTC)
	return fmt.Sprintf("%04d-%02d-%02d", first.Year(), first.Month(), first.Day())
}
