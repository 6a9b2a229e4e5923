package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"weekcal/internal/model"
	"weekcal/internal/week"
)

// uidSuffix marks UIDs written by Export so re-importing keeps event IDs.
const uidSuffix = "@weekcal"

const productID = "-//weekcal//weekcal//EN"

// Export renders events as an iCalendar document. ALL DAY EVENT and HOLIDAY
// events are written as DATE values; the type goes into CATEGORIES.
func Export(events []model.Event, now time.Time) []byte {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, e := range model.SortByStart(events) {
		ve := cal.AddEvent(e.ID + uidSuffix)
		ve.SetDtStampTime(now)
		ve.SetSummary(e.Title)
		ve.AddProperty(ical.ComponentPropertyCategories, string(e.Type))

		if e.Type.AllDay() {
			first := week.Midnight(e.Start)
			last := week.Midnight(e.End)
			if last.Before(first) {
				last = first
			}
			ve.SetAllDayStartAt(first)
			ve.SetAllDayEndAt(last.AddDate(0, 0, 1))
			continue
		}
		ve.SetStartAt(e.Start)
		ve.SetEndAt(e.End)
	}

	return []byte(cal.Serialize())
}

// Import parses body and expands it within cfg's window into event drafts.
func Import(body []byte, cfg ExpandConfig) ([]model.Draft, ExpandResult, error) {
	parsed, err := Parse(body, cfg.DisplayLocation)
	if err != nil {
		return nil, ExpandResult{}, err
	}
	res, err := Expand(parsed, cfg)
	if err != nil {
		return nil, ExpandResult{}, err
	}
	return Drafts(res.Occurrences), res, nil
}

// Drafts converts occurrences into event input. All-day occurrences end one
// minute before the following midnight, matching events created by hand.
func Drafts(occs []model.Occurrence) []model.Draft {
	out := make([]model.Draft, 0, len(occs))
	for _, o := range occs {
		d := model.Draft{
			ID:    importID(o),
			Title: o.Summary,
			Type:  o.Type,
			Start: o.Start,
			End:   o.End,
		}
		if d.Title == "" {
			d.Title = "(untitled)"
		}
		if o.AllDay && d.End.After(d.Start) {
			d.End = d.End.Add(-time.Minute)
		}
		out = append(out, d)
	}
	return out
}

// importID derives a stable ID so importing the same feed twice does not
// duplicate events. UIDs written by Export map back to the original ID.
func importID(o model.Occurrence) string {
	if id, ok := strings.CutSuffix(o.UID, uidSuffix); ok && id != "" {
		return id
	}
	sum := sha256.Sum256([]byte(o.UID + "|" + o.InstanceKey))
	return "ics-" + hex.EncodeToString(sum[:])[:20]
}
