package record

import (
	"time"
	"unicode/utf8"
)

// Stats summarizes the whole collection. Derived fields are nil when the
// collection holds nothing to derive them from.
type Stats struct {
	Total        int        `json:"total"`
	LastModified *time.Time `json:"lastModified,omitempty"`
	LongestName  *string    `json:"longestName,omitempty"`
	EarliestDate *Date      `json:"earliestDate,omitempty"`
	LatestDate   *Date      `json:"latestDate,omitempty"`
}

// Summarize computes Stats in a single pass over records.
// Name length is counted in runes; on equal length the earliest record in
// the given order wins. Records without a date are ignored for the date bounds.
func Summarize(records []Record) Stats {
	s := Stats{Total: len(records)}
	longest := -1
	for i := range records {
		r := &records[i]
		if s.LastModified == nil || r.UpdatedAt.After(*s.LastModified) {
			t := r.UpdatedAt
			s.LastModified = &t
		}
		if n := utf8.RuneCountInString(r.Name); n > longest {
			longest = n
			name := r.Name
			s.LongestName = &name
		}
		if r.Date == nil {
			continue
		}
		if s.EarliestDate == nil || r.Date.Before(s.EarliestDate.Time) {
			d := *r.Date
			s.EarliestDate = &d
		}
		if s.LatestDate == nil || r.Date.After(s.LatestDate.Time) {
			d := *r.Date
			s.LatestDate = &d
		}
	}
	return s
}
