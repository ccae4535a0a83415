// Package export renders a filtered project view into documents and
// calendars: a PDF progress report, an iCalendar feed and Google Calendar
// events. Callers pass the view already reduced by the visibility filter.
package export

import (
	"fmt"
	"time"

	"baulot/internal/domain"
	"baulot/internal/progress"
)

// Entry is one all-day schedule item. End is exclusive.
type Entry struct {
	UID         string
	Kind        string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// Entries derives the schedule of p: one entry per trade with a start date
// and one per task with a due date. Items without dates are skipped.
func Entries(p domain.Project) []Entry {
	var out []Entry
	for _, tr := range p.Trades {
		if start, ok := parseDate(tr.StartDate); ok {
			end := start
			if e, ok := parseDate(tr.EndDate); ok && !e.Before(start) {
				end = e
			}
			sum := progress.AggregateTrades([]domain.Trade{tr})
			out = append(out, Entry{
				UID:         "trade-" + tr.ID,
				Kind:        "trade",
				Summary:     fmt.Sprintf("%s: %s", p.Name, tr.Name),
				Description: fmt.Sprintf("%d of %d tasks done (%d%%)", sum.Trades[0].Done, sum.Trades[0].Total, sum.TotalPercentage),
				Start:       start,
				End:         end.AddDate(0, 0, 1),
			})
		}
		for _, t := range tr.Tasks {
			due, ok := parseDate(t.DueDate)
			if !ok {
				continue
			}
			desc := fmt.Sprintf("%s, status %s", tr.Name, t.Status)
			if t.BlockedReason != nil {
				desc += ": " + *t.BlockedReason
			}
			out = append(out, Entry{
				UID:         "task-" + t.ID,
				Kind:        "task",
				Summary:     fmt.Sprintf("Due: %s", t.Title),
				Description: desc,
				Start:       due,
				End:         due.AddDate(0, 0, 1),
			})
		}
	}
	return out
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
