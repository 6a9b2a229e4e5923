package layout

import (
	"time"

	"weekcal/internal/model"
	"weekcal/internal/week"
)

// Column is a day column ready for rendering.
type Column struct {
	Day
	Header  string
	IsToday bool
	// IsSunday columns are shaded and do not accept new events.
	IsSunday bool
}

// HourLabel is one row of the time column.
type HourLabel struct {
	Hour  int
	Label string
}

// Grid is a full week view.
type Grid struct {
	Title   string
	Start   time.Time
	End     time.Time
	Hours   []HourLabel
	Columns []Column
}

// Week lays out the 7 days beginning at start. now decides which column is
// today.
func Week(start time.Time, events []model.Event, now time.Time, opts Options) Grid {
	g := Grid{
		Title: week.FormatMonth(start),
		Start: start,
		End:   start.AddDate(0, 0, 7).Add(-time.Nanosecond),
	}
	for _, h := range week.Hours() {
		g.Hours = append(g.Hours, HourLabel{Hour: h, Label: week.FormatHour(h)})
	}
	for _, d := range week.Days(start) {
		g.Columns = append(g.Columns, Column{
			Day:      ForDay(d, events, opts),
			Header:   week.FormatDayHeader(d),
			IsToday:  week.IsToday(d, now),
			IsSunday: d.Weekday() == time.Sunday,
		})
	}
	return g
}
