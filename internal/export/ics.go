package export

import (
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"baulot/internal/domain"
)

// lineBreaks folds every line break variant into a single newline so that
// no bare CR survives into a content line.
var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// WriteICS writes p's schedule as an RFC 5545 calendar with all-day events.
func WriteICS(w io.Writer, p domain.Project, stamp time.Time) error {
	cal := ics.NewCalendar()
	cal.SetProductId("-//BauLot//Project Schedule//EN")
	cal.SetMethod(ics.MethodPublish)
	cal.SetXWRCalName(oneLine(p.Name))
	for _, e := range Entries(p) {
		ev := cal.AddEvent(e.UID + "@baulot")
		ev.SetDtStampTime(stamp.UTC())
		ev.SetAllDayStartAt(e.Start)
		ev.SetAllDayEndAt(e.End)
		ev.SetSummary(oneLine(e.Summary))
		if e.Description != "" {
			ev.SetDescription(lineBreaks.Replace(e.Description))
		}
		ev.SetProperty(ics.ComponentPropertyCategories, strings.ToUpper(e.Kind))
	}
	return cal.SerializeTo(w)
}
