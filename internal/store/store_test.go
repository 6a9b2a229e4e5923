package store

import (
	"errors"
	"testing"
	"time"

	"weekcal/internal/model"
	"weekcal/internal/storage"
)

// 2025-03-05 is a Wednesday.
var now = time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)

// recordingAdapter is an in-memory Adapter counting writes.
type recordingAdapter struct {
	stored  []model.Event
	present bool
	saves   int
	clears  int
}

func (r *recordingAdapter) Save(events []model.Event) {
	r.saves++
	r.stored = append([]model.Event(nil), events...)
	r.present = true
}

func (r *recordingAdapter) Load() ([]model.Event, bool) {
	if !r.present {
		return nil, false
	}
	return append([]model.Event(nil), r.stored...), true
}

func (r *recordingAdapter) Clear() {
	r.clears++
	r.stored = nil
	r.present = false
}

func (r *recordingAdapter) Info() (storage.Info, bool) {
	return storage.Info{Count: len(r.stored)}, true
}

func newStore(t *testing.T, adapter storage.Adapter) *Store {
	t.Helper()
	s := New(adapter, Options{
		Location:  time.UTC,
		WeekStart: time.Sunday,
		Seed:      true,
		Now:       func() time.Time { return now },
	})
	s.Init()
	return s
}

func draft(title string, typ model.Type, start time.Time, d time.Duration) model.Draft {
	return model.Draft{Title: title, Type: typ, Start: start, End: start.Add(d)}
}

func TestInitSeedsEmptyStorageAndPersists(t *testing.T) {
	kv, err := storage.OpenBadger("")
	if err != nil {
		t.Fatal(err)
	}
	defer kv.Close()
	adapter := storage.New(kv, time.UTC)

	s := newStore(t, adapter)

	got := s.Events()
	seed := SeedDrafts(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC))
	if len(got) != len(seed) {
		t.Fatalf("seeded %d events, want %d", len(got), len(seed))
	}
	for i, d := range seed {
		if got[i].ID != d.ID || got[i].Title != d.Title || !got[i].Start.Equal(d.Start) {
			t.Errorf("event %d = %+v, want draft %+v", i, got[i], d)
		}
		if !model.Validate(got[i]) {
			t.Errorf("seed event %s is invalid", got[i].ID)
		}
	}

	persisted, ok := adapter.Load()
	if !ok || len(persisted) != len(got) {
		t.Fatalf("seed not persisted: %v, %v", persisted, ok)
	}
	for i := range got {
		if !persisted[i].Equal(got[i]) {
			t.Errorf("persisted %d = %+v, want %+v", i, persisted[i], got[i])
		}
	}
}

func TestInitLoadsStoredEvents(t *testing.T) {
	stored := []model.Event{{ID: "x", Title: "Stored", Type: model.TypeTask, Start: now, End: now.Add(time.Hour)}}
	adapter := &recordingAdapter{stored: stored, present: true}

	s := newStore(t, adapter)
	if got := s.Events(); len(got) != 1 || got[0].ID != "x" {
		t.Fatalf("Events = %+v", got)
	}
	if adapter.saves != 0 {
		t.Errorf("loading should not write, got %d saves", adapter.saves)
	}
}

func TestInitReseedsEmptyList(t *testing.T) {
	adapter := &recordingAdapter{stored: []model.Event{}, present: true}
	s := newStore(t, adapter)
	if s.Len() == 0 || adapter.saves != 1 {
		t.Errorf("len=%d saves=%d", s.Len(), adapter.saves)
	}
}

func TestInitWithoutSeed(t *testing.T) {
	adapter := &recordingAdapter{}
	s := New(adapter, Options{Location: time.UTC})
	s.Init()
	if s.Len() != 0 || adapter.saves != 0 {
		t.Errorf("len=%d saves=%d", s.Len(), adapter.saves)
	}
}

func TestAdd(t *testing.T) {
	adapter := &recordingAdapter{}
	s := newStore(t, adapter)
	before := s.Len()
	saves := adapter.saves

	e, err := s.Add(draft("Standup", model.TypeMeeting, now, 30*time.Minute))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if e.ID == "" {
		t.Error("expected generated id")
	}
	if s.Len() != before+1 {
		t.Errorf("len = %d, want %d", s.Len(), before+1)
	}
	if adapter.saves != saves+1 || len(adapter.stored) != before+1 {
		t.Errorf("write-through missing: saves=%d stored=%d", adapter.saves, len(adapter.stored))
	}
	if got, ok := s.Get(e.ID); !ok || !got.Equal(e) {
		t.Errorf("Get = %+v, %v", got, ok)
	}
}

func TestAddRejectsInvalid(t *testing.T) {
	adapter := &recordingAdapter{}
	s := newStore(t, adapter)
	before := s.Len()
	saves := adapter.saves

	tests := []model.Draft{
		draft("", model.TypeTask, now, time.Hour),
		draft("Backwards", model.TypeTask, now, -time.Hour),
		draft("Zero", model.TypeMeeting, now, 0),
		{Title: "No type", Start: now, End: now.Add(time.Hour)},
	}
	for _, d := range tests {
		if _, err := s.Add(d); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("Add(%+v) err = %v", d, err)
		}
	}
	if s.Len() != before || adapter.saves != saves {
		t.Errorf("invalid adds changed state: len=%d saves=%d", s.Len(), adapter.saves)
	}
}

func TestAddDuplicateID(t *testing.T) {
	s := newStore(t, &recordingAdapter{})
	d := draft("Dup", model.TypeTask, now, time.Hour)
	d.ID = "seed-1"
	if _, err := s.Add(d); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("duplicate id err = %v", err)
	}
}

func TestMerge(t *testing.T) {
	adapter := &recordingAdapter{}
	s := newStore(t, adapter)
	before := s.Len()
	saves := adapter.saves

	orig, _ := s.Get("seed-1")
	changed := model.Draft{ID: "seed-1", Title: "Moved standup", Type: orig.Type, Start: orig.Start.Add(time.Hour), End: orig.End.Add(time.Hour)}
	same := model.Draft{ID: "seed-2"}
	if e, ok := s.Get("seed-2"); ok {
		same = model.Draft{ID: e.ID, Title: e.Title, Type: e.Type, Start: e.Start, End: e.End}
	}

	added, replaced := s.Merge([]model.Draft{
		draft("One", model.TypeTask, now, time.Hour),
		draft("", model.TypeTask, now, time.Hour),
		draft("Two", model.TypeHoliday, now, -time.Hour),
		changed,
		same,
	})
	if added != 2 || replaced != 1 {
		t.Errorf("added=%d replaced=%d, want 2 and 1", added, replaced)
	}
	if s.Len() != before+2 {
		t.Errorf("len = %d, want %d", s.Len(), before+2)
	}
	if e, _ := s.Get("seed-1"); e.Title != "Moved standup" {
		t.Errorf("seed-1 not replaced: %+v", e)
	}
	if adapter.saves != saves+1 {
		t.Errorf("Merge should save once, saved %d times", adapter.saves-saves)
	}

	if a, r := s.Merge([]model.Draft{changed, draft("", model.TypeTask, now, time.Hour)}); a != 0 || r != 0 || adapter.saves != saves+1 {
		t.Errorf("no-op merge: added=%d replaced=%d saves=%d", a, r, adapter.saves-saves)
	}
}

func TestUpdate(t *testing.T) {
	adapter := &recordingAdapter{}
	s := newStore(t, adapter)

	title := "Renamed"
	got, err := s.Update("seed-1", model.Patch{Title: &title})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Title != "Renamed" || got.ID != "seed-1" {
		t.Errorf("Update = %+v", got)
	}
	if e, _ := s.Get("seed-1"); e.Title != "Renamed" {
		t.Errorf("stored title = %q", e.Title)
	}
	if adapter.stored[0].Title != "Renamed" {
		t.Error("update not written through")
	}
}

func TestUpdateInvalidKeepsOriginal(t *testing.T) {
	adapter := &recordingAdapter{}
	s := newStore(t, adapter)
	orig, _ := s.Get("seed-2")
	saves := adapter.saves

	end := orig.Start.Add(-time.Minute)
	if _, err := s.Update("seed-2", model.Patch{End: &end}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("err = %v", err)
	}
	empty := ""
	if _, err := s.Update("seed-2", model.Patch{Title: &empty}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("err = %v", err)
	}

	after, _ := s.Get("seed-2")
	if after != orig {
		t.Errorf("event changed: %+v -> %+v", orig, after)
	}
	if adapter.saves != saves {
		t.Error("rejected update was saved")
	}
}

func TestUpdateAllDayAllowsReversedRange(t *testing.T) {
	s := newStore(t, &recordingAdapter{})
	orig, _ := s.Get("seed-3")
	end := orig.Start.Add(-time.Hour)
	if _, err := s.Update("seed-3", model.Patch{End: &end}); err != nil {
		t.Errorf("all-day update rejected: %v", err)
	}
}

func TestUpdateUnknownID(t *testing.T) {
	s := newStore(t, &recordingAdapter{})
	title := "x"
	if _, err := s.Update("missing", model.Patch{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestRemove(t *testing.T) {
	adapter := &recordingAdapter{}
	s := newStore(t, adapter)
	before := s.Events()
	saves := adapter.saves

	if s.Remove("missing") {
		t.Error("Remove of unknown id reported success")
	}
	after := s.Events()
	if len(after) != len(before) {
		t.Fatalf("len changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if after[i].ID != before[i].ID {
			t.Fatalf("order changed at %d", i)
		}
	}
	if adapter.saves != saves {
		t.Error("no-op remove should not save")
	}

	if !s.Remove("seed-2") {
		t.Fatal("Remove failed")
	}
	if _, ok := s.Get("seed-2"); ok {
		t.Error("event still present")
	}
	if s.Len() != len(before)-1 || len(adapter.stored) != len(before)-1 {
		t.Errorf("len=%d stored=%d", s.Len(), len(adapter.stored))
	}
}

func TestSnapshotsAreIndependent(t *testing.T) {
	s := newStore(t, &recordingAdapter{})
	snap := s.Events()
	snap[0].Title = "mutated"
	s.Remove(snap[1].ID)

	if e, _ := s.Get(snap[0].ID); e.Title == "mutated" {
		t.Error("snapshot aliases internal state")
	}
	if snap[1].ID != "seed-2" {
		t.Error("remove rewrote a previously returned snapshot")
	}
}

func TestClearAllAndReset(t *testing.T) {
	adapter := &recordingAdapter{}
	s := newStore(t, adapter)

	s.ClearAll()
	if s.Len() != 0 || adapter.present || adapter.clears != 1 {
		t.Errorf("ClearAll: len=%d present=%v clears=%d", s.Len(), adapter.present, adapter.clears)
	}

	s.ResetToSeed()
	if s.Len() != len(SeedDrafts(now)) {
		t.Errorf("ResetToSeed len = %d", s.Len())
	}
	if !adapter.present || len(adapter.stored) != s.Len() {
		t.Error("reset not persisted")
	}
}

func TestWeek(t *testing.T) {
	s := newStore(t, &recordingAdapter{})
	if _, err := s.Add(draft("Next week", model.TypeTask, now.AddDate(0, 0, 7), time.Hour)); err != nil {
		t.Fatal(err)
	}

	start := s.WeekStart(now)
	if !start.Equal(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("WeekStart = %v", start)
	}
	got := s.Week(start)
	if len(got) != len(SeedDrafts(start)) {
		t.Fatalf("Week returned %d events", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Start.Before(got[i-1].Start) {
			t.Error("Week not sorted by start")
		}
	}
	if next := s.Week(start.AddDate(0, 0, 7)); len(next) != 1 || next[0].Title != "Next week" {
		t.Errorf("next week = %+v", next)
	}
}

func TestSeedKeepsWallClockAcrossDST(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// Monday weeks ending on the spring-forward and fall-back Sundays.
	for _, monday := range []time.Time{
		time.Date(2025, 3, 24, 0, 0, 0, 0, berlin),
		time.Date(2025, 10, 20, 0, 0, 0, 0, berlin),
	} {
		for _, d := range SeedDrafts(monday) {
			if d.ID != "seed-8" {
				continue
			}
			if d.Start.Weekday() != time.Sunday || d.Start.Hour() != 0 || d.Start.Minute() != 0 {
				t.Errorf("week of %s: Deep Work starts %v, want Sunday 00:00", monday.Format("2006-01-02"), d.Start)
			}
			if d.End.Hour() != 3 {
				t.Errorf("week of %s: Deep Work ends %v, want 03:00", monday.Format("2006-01-02"), d.End)
			}
		}
	}
}
