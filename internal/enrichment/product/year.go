package product

import (
	"regexp"
	"strconv"
)

var yearPattern = regexp.MustCompile(`\b(1[5-9]\d{2}|20\d{2})\b`)

// ParseYear extracts the first plausible 4 digit year from a free-form date
// such as "May 1991" or "1991-05-01". Returns 0 when none is found.
func ParseYear(date string) int {
	m := yearPattern.FindString(date)
	if m == "" {
		return 0
	}
	year, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return year
}
