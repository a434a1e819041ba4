package shared

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ═══════════════════════════════════════════════════════════════════════════
// Date Value Object
// ═══════════════════════════════════════════════════════════════════════════

const dateLayout = "2006-01-02"

// Date is a naive calendar date in canonical YYYY-MM-DD form.
// Lexicographic order on Date equals chronological order.
type Date string

// String returns the canonical representation.
func (d Date) String() string { return string(d) }

// Time returns the date at UTC midnight. Invalid dates yield the zero time.
func (d Date) Time() time.Time {
	t, err := time.Parse(dateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// InRange reports whether from <= d < to.
func (d Date) InRange(from, to Date) bool {
	return d >= from && d < to
}

// ParseDate accepts only strict YYYY-MM-DD real calendar dates.
func ParseDate(field, value string) (Date, error) {
	v := strings.TrimSpace(value)
	if len(v) != len(dateLayout) {
		return "", NewValidationError("shared", "ParseDate", CodeInvalidDate, field, "date must be YYYY-MM-DD")
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return "", NewValidationError("shared", "ParseDate", CodeInvalidDate, field, "date is not a real calendar date")
	}
	return DateOf(t), nil
}

// DateOf formats a time as a Date, ignoring its clock and zone.
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// ═══════════════════════════════════════════════════════════════════════════
// Clock Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Clock is a time of day in canonical zero-padded HH:MM form.
// Lexicographic order on Clock equals chronological order.
type Clock string

// String returns the canonical representation.
func (c Clock) String() string { return string(c) }

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseClock accepts H:MM or HH:MM with hour 0..23 and minute 0..59 and
// returns the zero-padded canonical form.
func ParseClock(field, value string) (Clock, error) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return "", NewValidationError("shared", "ParseClock", CodeInvalidTime, field, "time must be HH:MM")
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return "", NewValidationError("shared", "ParseClock", CodeInvalidTime, field, "time is out of range")
	}
	return Clock(pad2(hour) + ":" + pad2(minute)), nil
}

// ParseOptionalClock treats a blank value as absent.
func ParseOptionalClock(field, value string) (*Clock, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	c, err := ParseClock(field, value)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateClockRange requires start < end.
func ValidateClockRange(start, end Clock) error {
	if start >= end {
		return NewValidationError("shared", "ValidateClockRange", CodeRangeInvalid, "end_time", "end_time must be after start_time")
	}
	return nil
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// ═══════════════════════════════════════════════════════════════════════════
// YearMonth Value Object
// ═══════════════════════════════════════════════════════════════════════════

const yearMonthLayout = "2006-01"

// YearMonth is a calendar month in canonical YYYY-MM form.
type YearMonth string

// String returns the canonical representation.
func (ym YearMonth) String() string { return string(ym) }

// Bounds returns the half-open range [first day, first day of next month).
// December rolls over into January of the next year.
func (ym YearMonth) Bounds() (from, to Date) {
	t, err := time.Parse(yearMonthLayout, string(ym))
	if err != nil {
		return "", ""
	}
	return DateOf(t), DateOf(t.AddDate(0, 1, 0))
}

// ParseYearMonth accepts only strict YYYY-MM with a month in 01..12.
func ParseYearMonth(field, value string) (YearMonth, error) {
	v := strings.TrimSpace(value)
	if len(v) != len(yearMonthLayout) {
		return "", NewValidationError("shared", "ParseYearMonth", CodeInvalidDate, field, "month must be YYYY-MM")
	}
	t, err := time.Parse(yearMonthLayout, v)
	if err != nil {
		return "", NewValidationError("shared", "ParseYearMonth", CodeInvalidDate, field, "month is not a real calendar month")
	}
	return YearMonthOf(t), nil
}

// YearMonthOf formats a time as a YearMonth.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth(t.Format(yearMonthLayout))
}

// ═══════════════════════════════════════════════════════════════════════════
// Text helpers
// ═══════════════════════════════════════════════════════════════════════════

// Truncate trims surrounding whitespace and cuts s to at most max runes.
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}

// OptionalText trims and truncates s, returning nil when nothing is left.
func OptionalText(s string, max int) *string {
	t := Truncate(s, max)
	if t == "" {
		return nil
	}
	return &t
}
