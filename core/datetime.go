package core

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// LocalDateTimeFormat is the ISO-8601 local date-time layout used on the wire.
const LocalDateTimeFormat = "2006-01-02T15:04:05"

var localDateTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// LocalDateTime is a date-time without a time zone, like 2022-04-20T17:35:00.
// The wall clock is kept in UTC with microsecond precision, the precision of a
// postgres TIMESTAMP.
type LocalDateTime struct {
	time.Time
}

// NewLocalDateTime returns the wall clock of t as a LocalDateTime
func NewLocalDateTime(t time.Time) LocalDateTime {
	wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	return LocalDateTime{Time: wall.Truncate(time.Microsecond)}
}

// ParseLocalDateTime parses yyyy-MM-ddTHH:mm, yyyy-MM-ddTHH:mm:ss and the latter
// with fractional seconds. Digits beyond microseconds are dropped.
func ParseLocalDateTime(s string) (LocalDateTime, error) {
	for _, layout := range localDateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return LocalDateTime{Time: t.Truncate(time.Microsecond)}, nil
		}
	}
	return LocalDateTime{}, fmt.Errorf("'%s' is not a valid local date-time", s)
}

// MustParseLocalDateTime is like ParseLocalDateTime but panics on error
func MustParseLocalDateTime(s string) LocalDateTime {
	ldt, err := ParseLocalDateTime(s)
	if err != nil {
		panic(err)
	}
	return ldt
}

// String returns the ISO-8601 representation, with fractional seconds only if present
func (l LocalDateTime) String() string {
	if l.Nanosecond() != 0 {
		return l.Format("2006-01-02T15:04:05.999999999")
	}
	return l.Format(LocalDateTimeFormat)
}

// MarshalJSON is a custom JSON marshaller
func (l LocalDateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON is a custom JSON unmarshaller
func (l *LocalDateTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	ldt, err := ParseLocalDateTime(s)
	if err != nil {
		return err
	}
	*l = ldt
	return nil
}
