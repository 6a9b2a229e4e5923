package model

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrMissingField is returned when title, type, start or end is empty.
	ErrMissingField = errors.New("event: required field missing")

	// ErrInvalidInstant is returned when start or end is outside the range
	// the millisecond wire format can carry.
	ErrInvalidInstant = errors.New("event: invalid start or end instant")

	// ErrEndNotAfterStart is returned when a timed event does not end after
	// it starts.
	ErrEndNotAfterStart = errors.New("event: end must be after start")
)

// Normalize builds an Event from d, generating an ID when d has none. All
// other fields are copied verbatim.
func Normalize(d Draft, ids *IDSource) Event {
	id := d.ID
	if id == "" {
		id = ids.New()
	}
	return Event{
		ID:    id,
		Title: d.Title,
		Type:  d.Type,
		Start: d.Start,
		End:   d.End,
	}
}

// NormalizeAll normalizes every draft in order.
func NormalizeAll(drafts []Draft, ids *IDSource) []Event {
	out := make([]Event, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, Normalize(d, ids))
	}
	return out
}

// Check returns the first rule e violates, or nil.
func Check(e Event) error {
	switch {
	case e.Title == "":
		return fmt.Errorf("%w: title", ErrMissingField)
	case e.Type == "":
		return fmt.Errorf("%w: type", ErrMissingField)
	case absent(e.Start):
		return fmt.Errorf("%w: start", ErrMissingField)
	case absent(e.End):
		return fmt.Errorf("%w: end", ErrMissingField)
	}

	if !validInstant(e.Start) || !validInstant(e.End) {
		return ErrInvalidInstant
	}

	if e.Type.AllDay() {
		return nil
	}
	if !e.End.After(e.Start) {
		return ErrEndNotAfterStart
	}
	return nil
}

// Validate reports whether e satisfies every event rule.
func Validate(e Event) bool {
	return Check(e) == nil
}

// absent reports whether t is unset. Millisecond 0 is the wire encoding of
// an unset instant, so the epoch itself counts as absent.
func absent(t time.Time) bool {
	return t.IsZero() || t.UnixMilli() == 0
}

func validInstant(t time.Time) bool {
	y := t.Year()
	return y >= 1 && y <= 9999
}

// SortByStart returns a new slice ordered by Start ascending. Events with
// equal starts keep their relative order.
func SortByStart(events []Event) []Event {
	out := slices.Clone(events)
	slices.SortStableFunc(out, func(a, b Event) int {
		return a.Start.Compare(b.Start)
	})
	return out
}

// OnDate returns the events whose Start falls on day's calendar day, in
// day's location.
func OnDate(events []Event, day time.Time) []Event {
	y, m, d := day.Date()
	out := make([]Event, 0)
	for _, e := range events {
		ey, em, ed := e.Start.In(day.Location()).Date()
		if ey == y && em == m && ed == d {
			out = append(out, e)
		}
	}
	return out
}

// Index returns the position of the event with the given id, or -1.
func Index(events []Event, id string) int {
	return slices.IndexFunc(events, func(e Event) bool { return e.ID == id })
}
