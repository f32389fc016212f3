package record

import (
	"fmt"
	"time"
)

const dateOnly = "2006-01-02"

var dateLayouts = []string{
	time.RFC3339Nano,
	dateOnly,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// Date is the client-facing point in time of a record. Instants at midnight
// UTC render as a calendar date, everything else as RFC 3339.
type Date struct {
	time.Time
}

// NewDate wraps t, normalized to UTC.
func NewDate(t time.Time) Date { return Date{Time: t.UTC()} }

// ParseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
// Values without a zone are read as UTC.
func ParseDate(s string) (Date, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t), nil
		}
	}
	return Date{}, fmt.Errorf("unparseable date %q", s)
}

func (d Date) String() string {
	t := d.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(dateOnly)
	}
	return t.Format(time.RFC3339Nano)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return codec.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := codec.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
