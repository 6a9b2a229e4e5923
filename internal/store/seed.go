package store

import (
	"time"

	"weekcal/internal/model"
	"weekcal/internal/week"
)

// SeedDrafts returns the example events shown on first run, laid out over
// the week that starts at weekStart (midnight of its first day).
func SeedDrafts(weekStart time.Time) []model.Draft {
	y, m, d := weekStart.Date()
	at := func(day, hour, minute int) time.Time {
		return time.Date(y, m, d+day, hour, minute, 0, 0, weekStart.Location())
	}
	return []model.Draft{
		{ID: "seed-1", Title: "Team Standup", Type: model.TypeMeeting, Start: at(1, 9, 0), End: at(1, 9, 30)},
		{ID: "seed-2", Title: "Code Review", Type: model.TypeTask, Start: at(1, 14, 0), End: at(1, 15, 30)},
		{ID: "seed-3", Title: "Company Offsite", Type: model.TypeAllDay, Start: at(2, 0, 0), End: at(2, 23, 59)},
		{ID: "seed-4", Title: "Sprint Planning", Type: model.TypeMeeting, Start: at(3, 10, 0), End: at(3, 12, 0)},
		{ID: "seed-5", Title: "Dentist", Type: model.TypePersonal, Start: at(3, 16, 15), End: at(3, 17, 0)},
		{ID: "seed-6", Title: "Submit Report", Type: model.TypeReminder, Start: at(4, 11, 0), End: at(4, 11, 15)},
		{ID: "seed-7", Title: "Public Holiday", Type: model.TypeHoliday, Start: at(5, 0, 0), End: at(5, 23, 59)},
		{ID: "seed-8", Title: "Deep Work", Type: model.TypeTask, Start: at(6, 0, 0), End: at(6, 3, 0)},
	}
}

// seedFor returns the seed drafts for the week containing now.
func seedFor(now time.Time, first time.Weekday) []model.Draft {
	return SeedDrafts(week.Start(now, first))
}
