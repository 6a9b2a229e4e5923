// Package store holds the in-memory event collection and writes every
// successful change through to storage.
package store

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	appLog "weekcal/internal/log"
	"weekcal/internal/model"
	"weekcal/internal/storage"
	"weekcal/internal/week"
)

var (
	// ErrNotFound is returned when no event has the requested ID.
	ErrNotFound = errors.New("store: event not found")

	// ErrInvalidEvent is returned when a change would produce an invalid
	// event. The change is discarded.
	ErrInvalidEvent = errors.New("store: invalid event")
)

// Options configures a Store.
type Options struct {
	// Location events are interpreted in. Defaults to time.Local.
	Location *time.Location
	// WeekStart positions the seed data. Defaults to Sunday.
	WeekStart time.Weekday
	// Seed populates empty storage with the example events on Init.
	Seed bool
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Store is the event state container. Reads return copies; mutations are
// serialized and each successful one saves the full collection.
type Store struct {
	mu      sync.RWMutex
	events  []model.Event
	storage storage.Adapter
	ids     *model.IDSource
	opts    Options
}

// New creates a Store over adapter. Call Init before use.
func New(adapter storage.Adapter, opts Options) *Store {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		storage: adapter,
		ids:     model.NewIDSource(),
		opts:    opts,
	}
}

// Init loads the persisted collection. When nothing (or an empty list) is
// stored and seeding is enabled, the seed dataset is installed and saved
// immediately.
func (s *Store) Init() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if saved, ok := s.storage.Load(); ok && len(saved) > 0 {
		s.events = saved
		appLog.Info("events loaded", "count", len(saved))
		return
	}

	if !s.opts.Seed {
		s.events = []model.Event{}
		appLog.Info("no stored events; starting empty")
		return
	}

	s.events = s.seed()
	s.storage.Save(s.events)
	appLog.Info("no stored events; seeded example data", "count", len(s.events))
}

func (s *Store) seed() []model.Event {
	now := s.opts.Now().In(s.opts.Location)
	return model.NormalizeAll(seedFor(now, s.opts.WeekStart), s.ids)
}

// Events returns a copy of the collection in insertion order.
func (s *Store) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

// Len returns the number of events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Get returns the event with the given id.
func (s *Store) Get(id string) (model.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := model.Index(s.events, id); i >= 0 {
		return s.events[i], true
	}
	return model.Event{}, false
}

// Week returns the events starting within the week that begins at start,
// ordered by start.
func (s *Store) Week(start time.Time) []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	end := start.AddDate(0, 0, 7)
	out := make([]model.Event, 0)
	for _, e := range s.events {
		if !e.Start.Before(start) && e.Start.Before(end) {
			out = append(out, e)
		}
	}
	return model.SortByStart(out)
}

// Add normalizes and validates d, then appends it. Invalid input is logged
// and discarded.
func (s *Store) Add(d model.Draft) (model.Event, error) {
	e := model.Normalize(d, s.ids)
	if err := model.Check(e); err != nil {
		appLog.Warn("invalid event data", "id", e.ID, "title", e.Title, "type", e.Type, "reason", err)
		return model.Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if model.Index(s.events, e.ID) >= 0 {
		appLog.Warn("duplicate event id", "id", e.ID)
		return model.Event{}, fmt.Errorf("%w: duplicate id %s", ErrInvalidEvent, e.ID)
	}

	s.events = append(slices.Clone(s.events), e)
	s.storage.Save(s.events)
	return e, nil
}

// Merge upserts drafts: a draft whose ID matches an existing event replaces
// it, any other is appended. Invalid drafts are logged and skipped. The
// collection is saved once; the number of added and replaced events is
// returned.
func (s *Store) Merge(drafts []model.Draft) (added, replaced int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := slices.Clone(s.events)
	for _, d := range drafts {
		e := model.Normalize(d, s.ids)
		if err := model.Check(e); err != nil {
			appLog.Warn("invalid event data", "id", e.ID, "title", e.Title, "reason", err)
			continue
		}
		if i := model.Index(next, e.ID); i >= 0 {
			if !next[i].Equal(e) {
				next[i] = e
				replaced++
			}
			continue
		}
		next = append(next, e)
		added++
	}
	if added == 0 && replaced == 0 {
		return 0, 0
	}

	s.events = next
	s.storage.Save(s.events)
	return added, replaced
}

// Update merges p into the event with the given id. If the merged event is
// invalid the original is kept unchanged and the rejection is logged.
func (s *Store) Update(id string, p model.Patch) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := model.Index(s.events, id)
	if i < 0 {
		return model.Event{}, ErrNotFound
	}

	updated := p.Apply(s.events[i])
	if err := model.Check(updated); err != nil {
		appLog.Warn("invalid event data after update", "id", id, "title", updated.Title, "type", updated.Type, "reason", err)
		return s.events[i], fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	next := slices.Clone(s.events)
	next[i] = updated
	s.events = next
	s.storage.Save(s.events)
	return updated, nil
}

// Remove deletes the event with the given id. It reports whether an event
// was removed; an unknown id leaves the collection untouched.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := model.Index(s.events, id)
	if i < 0 {
		return false
	}
	s.events = slices.Delete(slices.Clone(s.events), i, i+1)
	s.storage.Save(s.events)
	return true
}

// ClearAll empties the collection and the persisted copy.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = []model.Event{}
	s.storage.Clear()
	appLog.Info("all events cleared")
}

// ResetToSeed replaces the collection with the seed dataset for the
// current week and saves it.
func (s *Store) ResetToSeed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = s.seed()
	s.storage.Save(s.events)
	appLog.Info("events reset to example data", "count", len(s.events))
}

// WeekStart returns midnight of the first day of the week containing t in
// the store's location.
func (s *Store) WeekStart(t time.Time) time.Time {
	return week.Start(t.In(s.opts.Location), s.opts.WeekStart)
}
