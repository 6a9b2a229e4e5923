package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FormLayout is the datetime-local input format used by the event form.
const FormLayout = "2006-01-02T15:04"

// ErrSundaySlot is returned when a Sunday time slot is clicked; Sunday
// columns do not accept new events.
var ErrSundaySlot = errors.New("form: events cannot be created on Sunday")

// Form mirrors the create/edit modal: free-text title, a type picker and two
// datetime-local fields.
type Form struct {
	Title string `json:"title"`
	Type  Type   `json:"type"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// FieldErrors maps a form field name to a user-facing message.
type FieldErrors map[string]string

// NewForm returns the defaults for a new event starting at slot: a one-hour
// TASK.
func NewForm(slot time.Time) Form {
	return Form{
		Type:  TypeTask,
		Start: slot.Format(FormLayout),
		End:   slot.Add(time.Hour).Format(FormLayout),
	}
}

// SlotForm returns the form for a click on the given hour of day. Sunday
// slots are rejected.
func SlotForm(day time.Time, hour int) (Form, error) {
	if day.Weekday() == time.Sunday {
		return Form{}, ErrSundaySlot
	}
	y, m, d := day.Date()
	return NewForm(time.Date(y, m, d, hour, 0, 0, 0, day.Location())), nil
}

// FormFromEvent pre-fills the form for editing e.
func FormFromEvent(e Event) Form {
	f := Form{Title: e.Title, Type: e.Type}
	if f.Type == "" {
		f.Type = TypeTask
	}
	if !e.Start.IsZero() {
		f.Start = e.Start.Format(FormLayout)
	}
	if !e.End.IsZero() {
		f.End = e.End.Format(FormLayout)
	}
	return f
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 0, 0, t.Location())
}

// WithType switches the type. Switching to an all-day type snaps the range
// to the whole start day.
func (f Form) WithType(t Type, loc *time.Location) Form {
	f.Type = t
	if !t.AllDay() || f.Start == "" {
		return f
	}
	start, err := time.ParseInLocation(FormLayout, f.Start, loc)
	if err != nil {
		return f
	}
	y, m, d := start.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	f.Start = day.Format(FormLayout)
	f.End = endOfDay(day).Format(FormLayout)
	return f
}

// WithStart changes the start. If the current end would no longer be after
// it, the end moves to start+1h, or to the end of the day for all-day types.
func (f Form) WithStart(value string, loc *time.Location) Form {
	f.Start = value
	if value == "" || f.End == "" {
		return f
	}
	start, err := time.ParseInLocation(FormLayout, value, loc)
	if err != nil {
		return f
	}
	end, err := time.ParseInLocation(FormLayout, f.End, loc)
	if err != nil {
		return f
	}
	if end.After(start) {
		return f
	}
	if f.Type.AllDay() {
		f.End = endOfDay(start).Format(FormLayout)
	} else {
		f.End = start.Add(time.Hour).Format(FormLayout)
	}
	return f
}

// Validate checks the form the way the modal does before submitting. An
// empty result means the form can be submitted.
func (f Form) Validate(loc *time.Location) FieldErrors {
	errs := FieldErrors{}

	if strings.TrimSpace(f.Title) == "" {
		errs["title"] = "Event name is required"
	}
	if f.Type != "" && !f.Type.Known() {
		errs["type"] = "Event type is not supported"
	}
	if f.Start == "" {
		errs["start"] = "Start date time is required"
	}
	if f.End == "" {
		errs["end"] = "End date time is required"
	}
	if f.Start == "" || f.End == "" {
		return errs
	}

	start, serr := time.ParseInLocation(FormLayout, f.Start, loc)
	if serr != nil {
		errs["start"] = "Start date time is invalid"
	}
	end, eerr := time.ParseInLocation(FormLayout, f.End, loc)
	if eerr != nil {
		errs["end"] = "End date time is invalid"
	}
	if serr != nil || eerr != nil {
		return errs
	}

	if !f.Type.AllDay() {
		if end.Before(start) {
			errs["end"] = "End date must be after start date"
		} else if end.Equal(start) {
			errs["end"] = "End time must be after start time"
		}
	}
	if start.Weekday() == time.Sunday {
		errs["start"] = "Events cannot be created on Sunday"
	}
	return errs
}

// Draft converts a submitted form into event input. The title is trimmed;
// an empty type defaults to TASK.
func (f Form) Draft(loc *time.Location) (Draft, error) {
	start, err := time.ParseInLocation(FormLayout, f.Start, loc)
	if err != nil {
		return Draft{}, fmt.Errorf("parse start: %w", err)
	}
	end, err := time.ParseInLocation(FormLayout, f.End, loc)
	if err != nil {
		return Draft{}, fmt.Errorf("parse end: %w", err)
	}
	t := f.Type
	if t == "" {
		t = TypeTask
	}
	return Draft{
		Title: strings.TrimSpace(f.Title),
		Type:  t,
		Start: start,
		End:   end,
	}, nil
}
