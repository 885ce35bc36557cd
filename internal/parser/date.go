package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// zone offsets in minutes for the obsolete named zones of RFC 5322 section 4.3.
var namedZones = map[string]int{
	"ut": 0, "utc": 0, "gmt": 0, "z": 0,
	"est": -5 * 60, "edt": -4 * 60,
	"cst": -6 * 60, "cdt": -5 * 60,
	"mst": -7 * 60, "mdt": -6 * 60,
	"pst": -8 * 60, "pdt": -7 * 60,
}

// ParseDate parses an RFC 5322 date-time, tolerating a missing day of week, two or
// three digit years, missing seconds and named or military zones. Values outside
// that grammar are tried with a generic date parser before giving up.
func ParseDate(s string) (time.Time, bool) {
	if t, ok := parseRFC5322Date(s); ok {
		return t, true
	}
	s = strings.TrimSpace(stripComments(s))
	if s == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func parseRFC5322Date(s string) (time.Time, bool) {
	fields := strings.FieldsFunc(stripComments(s), func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})
	if len(fields) > 0 {
		if _, err := strconv.Atoi(fields[0]); err != nil && len(fields[0]) >= 3 {
			if _, isMonth := months[strings.ToLower(fields[0][:3])]; !isMonth {
				fields = fields[1:] // day of week
			}
		}
	}
	if len(fields) < 4 {
		return time.Time{}, false
	}

	day, err := strconv.Atoi(fields[0])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	if len(fields[1]) < 3 {
		return time.Time{}, false
	}
	month, ok := months[strings.ToLower(fields[1][:3])]
	if !ok {
		return time.Time{}, false
	}
	year, ok := parseYear(fields[2])
	if !ok {
		return time.Time{}, false
	}
	hour, minute, sec, ok := parseClock(fields[3])
	if !ok {
		return time.Time{}, false
	}

	offset := 0
	if len(fields) > 4 {
		if offset, ok = parseZone(fields[4]); !ok {
			return time.Time{}, false
		}
	}

	loc := time.UTC
	if offset != 0 {
		loc = time.FixedZone("", offset*60)
	}
	t := time.Date(year, month, day, hour, minute, sec, 0, loc)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func parseYear(s string) (int, bool) {
	y, err := strconv.Atoi(s)
	if err != nil || y < 0 {
		return 0, false
	}
	switch len(s) {
	case 2:
		if y < 50 {
			return 2000 + y, true
		}
		return 1900 + y, true
	case 3:
		return 1900 + y, true
	case 4:
		return y, true
	}
	return 0, false
}

func parseClock(s string) (hour, minute, sec int, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, 0, false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, 0, 0, false
		}
		nums[i] = n
	}
	if nums[0] > 23 || nums[1] > 59 || nums[2] > 60 {
		return 0, 0, 0, false
	}
	if nums[2] == 60 {
		nums[2] = 59
	}
	return nums[0], nums[1], nums[2], true
}

// parseZone returns the zone offset in minutes east of UTC.
func parseZone(s string) (int, bool) {
	if len(s) == 5 && (s[0] == '+' || s[0] == '-') {
		hh, err1 := strconv.Atoi(s[1:3])
		mm, err2 := strconv.Atoi(s[3:5])
		if err1 != nil || err2 != nil || mm > 59 {
			return 0, false
		}
		offset := hh*60 + mm
		if s[0] == '-' {
			offset = -offset
		}
		return offset, true
	}

	lower := strings.ToLower(s)
	if offset, ok := namedZones[lower]; ok {
		return offset, true
	}
	// Military zones are ambiguous in practice; RFC 5322 says to treat them as -0000.
	if len(lower) == 1 && lower[0] >= 'a' && lower[0] <= 'z' && lower[0] != 'j' {
		return 0, true
	}
	return 0, false
}
