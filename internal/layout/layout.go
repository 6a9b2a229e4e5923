// Package layout decides where events go on the week grid: which are drawn
// as all-day markers in the header row and where timed blocks sit on the
// time axis. Units are pixels at one pixel per minute.
package layout

import (
	"time"

	"weekcal/internal/model"
	"weekcal/internal/week"
)

const (
	// HeaderOffset is the height of the day header plus all-day row above
	// the first hour cell.
	HeaderOffset = 120
	// MinHeight is the minimum height of a timed block.
	MinHeight = 20
	// AllDayHeight is the fixed height of an all-day marker.
	AllDayHeight = 20
	// allDaySpan is the minimum duration of a midnight-start timed event
	// that is drawn as all-day.
	allDaySpan = 2 * time.Hour
)

// Options tunes placement.
type Options struct {
	// CorrectOffset drops the end-hour term that is otherwise added to a
	// timed event's Top.
	CorrectOffset bool
}

// Placement is one event's position in a day column.
type Placement struct {
	Event  model.Event
	AllDay bool
	// Top is the offset from the column top; zero for all-day markers.
	Top    int
	Height int
}

// Day is the classified content of one day column.
type Day struct {
	Date   time.Time
	AllDay []Placement
	Timed  []Placement
}

// IsAllDay reports whether e is drawn as an all-day marker: either its type
// says so, or it starts exactly at midnight and lasts at least two hours.
func IsAllDay(e model.Event) bool {
	if e.Type.AllDay() {
		return true
	}
	return e.End.Sub(e.Start) >= allDaySpan && e.Start.Hour() == 0 && e.Start.Minute() == 0
}

// Timed computes the vertical placement of a timed event from its local
// start and end clock times.
//
// Top is the start in minutes since midnight plus HeaderOffset plus the end
// hour; the end hour term is kept for compatibility unless
// opts.CorrectOffset is set. Height is the clock-time duration in minutes,
// never below MinHeight.
func Timed(e model.Event, opts Options) Placement {
	startHour, startMinute := e.Start.Hour(), e.Start.Minute()
	endHour, endMinute := e.End.Hour(), e.End.Minute()

	startPosition := startHour*60 + startMinute
	duration := endHour*60 + endMinute - startPosition

	top := startPosition + HeaderOffset
	if !opts.CorrectOffset {
		top += endHour
	}
	return Placement{
		Event:  e,
		Top:    top,
		Height: max(duration, MinHeight),
	}
}

// ForDay classifies the events starting on day. Times are read in day's
// location.
func ForDay(day time.Time, events []model.Event, opts Options) Day {
	out := Day{
		Date:   week.Midnight(day),
		AllDay: make([]Placement, 0),
		Timed:  make([]Placement, 0),
	}
	for _, e := range model.OnDate(events, day) {
		e = e.In(day.Location())
		if IsAllDay(e) {
			out.AllDay = append(out.AllDay, Placement{Event: e, AllDay: true, Height: AllDayHeight})
			continue
		}
		out.Timed = append(out.Timed, Timed(e, opts))
	}
	return out
}
