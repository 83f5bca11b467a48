package convert

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date is the number of days since the Unix epoch (spec.md §4.5).
type Date int32

// TimeOfDay is nanoseconds since midnight (spec.md §4.5).
type TimeOfDay int64

// Timestamp is milliseconds since the Unix epoch (spec.md §4.5).
type Timestamp int64

// pyDirectives maps the subset of Python strftime directives spec.md's
// datetimeformat option uses (e.g. "%Y-%m-%d %H:%M:%S%z") to Go's
// reference-time layout tokens.
var pyDirectives = strings.NewReplacer(
	"%Y", "2006",
	"%m", "01",
	"%d", "02",
	"%H", "15",
	"%M", "04",
	"%S", "05",
	"%z", "-0700",
)

// goLayout translates a Python strftime format into a Go time layout.
func goLayout(pyFormat string) string {
	return pyDirectives.Replace(pyFormat)
}

// cqlTimestampPattern is the fallback regex spec.md §4.5 specifies for
// when the configured time format doesn't match: YYYY-MM-DD[ T]HH:MM[:SS][+-HH:MM].
var cqlTimestampPattern = regexp.MustCompile(
	`^(\d{4})-(\d{2})-(\d{2})[ T]?(?:(\d{2}):(\d{2})(?::(\d{2}))?)?(?:([+-])(\d{2}):?(\d{2}))?$`)

// ParseTimestamp implements spec.md §4.5's timestamp rule: try the
// configured format first, then fall back to the CQL regex; no
// timezone group means local offset.
func ParseTimestamp(val, timeFormat string) (Timestamp, error) {
	if layout := goLayout(timeFormat); layout != timeFormat {
		if t, err := time.Parse(layout, val); err == nil {
			return Timestamp(t.UnixMilli()), nil
		}
	}

	m := cqlTimestampPattern.FindStringSubmatch(val)
	if m == nil {
		return 0, fmt.Errorf("can't interpret %q as a date, specified time format is %s", val, timeFormat)
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	hour, min, sec := 0, 0, 0
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
	}
	if m[5] != "" {
		min, _ = strconv.Atoi(m[5])
	}
	if m[6] != "" {
		sec, _ = strconv.Atoi(m[6])
	}

	loc := time.Local
	if m[7] != "" {
		offH, _ := strconv.Atoi(m[8])
		offM, _ := strconv.Atoi(m[9])
		offSeconds := offH*3600 + offM*60
		if m[7] == "-" {
			offSeconds = -offSeconds
		}
		loc = time.FixedZone("", offSeconds)
	}

	t := time.Date(year, time.Month(month), day, hour, min, sec, 0, loc)
	return Timestamp(t.UnixMilli()), nil
}

// FormatTimestamp renders a Timestamp back using the configured
// format.
func FormatTimestamp(ts Timestamp, timeFormat string) string {
	t := time.UnixMilli(int64(ts)).UTC()
	return t.Format(goLayout(timeFormat))
}

// ParseDate accepts either an integer count of days since the epoch or
// an ISO YYYY-MM-DD string.
func ParseDate(val string) (Date, error) {
	if n, err := strconv.ParseInt(val, 10, 32); err == nil {
		return Date(n), nil
	}
	t, err := time.Parse("2006-01-02", val)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", val, err)
	}
	days := t.Unix() / 86400
	return Date(days), nil
}

// FormatDate renders a Date as ISO YYYY-MM-DD.
func FormatDate(d Date) string {
	t := time.Unix(int64(d)*86400, 0).UTC()
	return t.Format("2006-01-02")
}

// ParseTimeOfDay accepts either nanoseconds since midnight or
// HH:MM:SS[.fff].
func ParseTimeOfDay(val string) (TimeOfDay, error) {
	if n, err := strconv.ParseInt(val, 10, 64); err == nil {
		return TimeOfDay(n), nil
	}
	parts := strings.SplitN(val, ":", 3)
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q, want HH:MM:SS[.fff]", val)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", val, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", val, err)
	}
	secParts := strings.SplitN(parts[2], ".", 2)
	sec, err := strconv.Atoi(secParts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", val, err)
	}
	var nanos int64
	if len(secParts) == 2 {
		frac := secParts[1]
		for len(frac) < 9 {
			frac += "0"
		}
		frac = frac[:9]
		n, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid time %q: %w", val, err)
		}
		nanos = n
	}
	total := (int64(hour)*3600+int64(minute)*60+int64(sec))*int64(time.Second) + nanos
	return TimeOfDay(total), nil
}

// FormatTimeOfDay renders a TimeOfDay as HH:MM:SS.fffffffff.
func FormatTimeOfDay(t TimeOfDay) string {
	d := time.Duration(t)
	hour := d / time.Hour
	d -= hour * time.Hour
	minute := d / time.Minute
	d -= minute * time.Minute
	sec := d / time.Second
	d -= sec * time.Second
	return fmt.Sprintf("%02d:%02d:%02d.%09d", hour, minute, sec, int64(d))
}
