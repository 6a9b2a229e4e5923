package model

import (
	"encoding/json"
	"time"
)

// Type categorizes an event. It drives both the display color and the
// all-day classification.
type Type string

const (
	TypeTask     Type = "TASK"
	TypeMeeting  Type = "MEETING"
	TypeAllDay   Type = "ALL DAY EVENT"
	TypeHoliday  Type = "HOLIDAY"
	TypeReminder Type = "REMINDER"
	TypePersonal Type = "PERSONAL"
)

// Types lists the selectable event types in display order.
var Types = []Type{TypeTask, TypeMeeting, TypeAllDay, TypeHoliday, TypeReminder, TypePersonal}

var colors = map[Type]string{
	TypeTask:     "#3b82f6",
	TypeMeeting:  "#8b5cf6",
	TypeAllDay:   "#10b981",
	TypeHoliday:  "#ef4444",
	TypeReminder: "#f59e0b",
	TypePersonal: "#ec4899",
}

// Color returns the display color for t, or a neutral grey for unknown types.
func (t Type) Color() string {
	if c, ok := colors[t]; ok {
		return c
	}
	return "#9ca3af"
}

// Known reports whether t is one of Types.
func (t Type) Known() bool {
	_, ok := colors[t]
	return ok
}

// AllDay reports whether events of this type are always shown as full-day
// markers and exempt from start/end ordering.
func (t Type) AllDay() bool {
	return t == TypeAllDay || t == TypeHoliday
}

// Event is a single calendar entry.
type Event struct {
	ID    string
	Title string
	Type  Type

	// Start / End are interpreted in the calendar's display location.
	Start time.Time
	End   time.Time
}

// Draft is raw event input, e.g. a submitted form or seed data. ID is
// optional.
type Draft struct {
	ID    string
	Title string
	Type  Type
	Start time.Time
	End   time.Time
}

// wireEvent is the persisted/JSON shape; start and end are epoch
// milliseconds.
type wireEvent struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  Type   `json:"type"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// MarshalJSON encodes e as {id,title,type,start,end} with millisecond
// timestamps.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		ID:    e.ID,
		Title: e.Title,
		Type:  e.Type,
		Start: toMillis(e.Start),
		End:   toMillis(e.End),
	})
}

// UnmarshalJSON decodes the millisecond wire shape. Decoded times are in
// time.Local; use In to move them to the display location.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = Event{
		ID:    w.ID,
		Title: w.Title,
		Type:  w.Type,
		Start: fromMillis(w.Start),
		End:   fromMillis(w.End),
	}
	return nil
}

// In returns a copy of e with Start and End converted to loc.
func (e Event) In(loc *time.Location) Event {
	if !e.Start.IsZero() {
		e.Start = e.Start.In(loc)
	}
	if !e.End.IsZero() {
		e.End = e.End.In(loc)
	}
	return e
}

// Equal reports field-wise equality, comparing instants rather than
// locations.
func (e Event) Equal(o Event) bool {
	return e.ID == o.ID &&
		e.Title == o.Title &&
		e.Type == o.Type &&
		e.Start.Equal(o.Start) &&
		e.End.Equal(o.End)
}

// Patch is a partial update; nil fields keep the current value.
type Patch struct {
	Title *string
	Type  *Type
	Start *time.Time
	End   *time.Time
}

// Apply merges p into e field by field and returns the new value. e is not
// modified. The ID is never patched.
func (p Patch) Apply(e Event) Event {
	out := e
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.Start != nil {
		out.Start = *p.Start
	}
	if p.End != nil {
		out.End = *p.End
	}
	return out
}

// PatchFromDraft builds a patch that sets every field of d.
func PatchFromDraft(d Draft) Patch {
	return Patch{
		Title: &d.Title,
		Type:  &d.Type,
		Start: &d.Start,
		End:   &d.End,
	}
}

// Occurrence is a single concrete instance of an imported event, after
// recurrence expansion and timezone normalization.
type Occurrence struct {
	// UID is the iCalendar UID of the source event.
	UID string

	// InstanceKey uniquely identifies one occurrence of a recurring event,
	// derived from its local start time.
	InstanceKey string

	Summary string
	Type    Type
	AllDay  bool

	// Start / End are in the display timezone.
	Start time.Time
	End   time.Time
}
