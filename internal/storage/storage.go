// Package storage persists the event collection into a single key-value
// slot. Nothing in this package returns an error to its caller: every
// failure is logged and degrades to a no-op or a "not found" result.
package storage

import (
	"encoding/json"
	"errors"
	"time"

	appLog "weekcal/internal/log"
	"weekcal/internal/model"
)

// Keys under which the collection and its modification time are stored.
const (
	EventsKey   = "weekcal:events"
	ModifiedKey = "weekcal:events:mtime"
)

// Info summarizes what is currently persisted.
type Info struct {
	Count        int       `json:"count"`
	SizeBytes    int       `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// Adapter is the persistence contract the event store depends on.
type Adapter interface {
	Save(events []model.Event)
	Load() ([]model.Event, bool)
	Clear()
	Info() (Info, bool)
}

// Storage implements Adapter on top of a KV.
type Storage struct {
	kv  KV
	loc *time.Location
	now func() time.Time
}

// New returns a Storage writing to kv. Loaded events are converted to loc;
// nil means time.Local.
func New(kv KV, loc *time.Location) *Storage {
	if loc == nil {
		loc = time.Local
	}
	return &Storage{kv: kv, loc: loc, now: time.Now}
}

// Save serializes the whole collection and overwrites the stored one.
func (s *Storage) Save(events []model.Event) {
	if events == nil {
		events = []model.Event{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		appLog.Error("failed to serialize events", err, "count", len(events))
		return
	}
	mtime, err := s.now().UTC().MarshalText()
	if err != nil {
		appLog.Error("failed to encode modification time", err)
		return
	}
	if err := s.kv.SetAll(Entry{Key: EventsKey, Value: data}, Entry{Key: ModifiedKey, Value: mtime}); err != nil {
		appLog.Error("failed to save events", err, "count", len(events))
		return
	}
	appLog.Debug("events saved", "count", len(events), "bytes", len(data))
}

// Load returns the stored collection. ok is false when nothing is stored
// or the stored value cannot be decoded.
func (s *Storage) Load() ([]model.Event, bool) {
	data, err := s.read()
	if err != nil {
		appLog.Error("failed to load events", err)
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	var events []model.Event
	if err := json.Unmarshal(data, &events); err != nil {
		appLog.Error("failed to decode stored events", err, "bytes", len(data))
		return nil, false
	}
	for i := range events {
		events[i] = events[i].In(s.loc)
	}
	return events, true
}

// Clear removes the stored collection.
func (s *Storage) Clear() {
	for _, key := range []string{EventsKey, ModifiedKey} {
		if err := s.kv.Delete(key); err != nil {
			appLog.Error("failed to clear stored events", err, "key", key)
		}
	}
}

// Info reports count, serialized size and last write time. With nothing
// stored it returns a zero Info and true; ok is false when the stored value
// cannot be decoded.
func (s *Storage) Info() (Info, bool) {
	data, err := s.read()
	if err != nil {
		appLog.Error("failed to get storage info", err)
		return Info{}, false
	}
	if len(data) == 0 {
		return Info{}, true
	}

	var events []json.RawMessage
	if err := json.Unmarshal(data, &events); err != nil {
		appLog.Error("failed to get storage info", err)
		return Info{}, false
	}

	info := Info{Count: len(events), SizeBytes: len(data)}
	if raw, err := s.kv.Get(ModifiedKey); err == nil {
		var t time.Time
		if err := t.UnmarshalText(raw); err == nil {
			info.LastModified = t.In(s.loc)
		}
	}
	return info, true
}

// read fetches the raw collection. A missing key is not an error and yields
// nil data.
func (s *Storage) read() ([]byte, error) {
	data, err := s.kv.Get(EventsKey)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	return data, err
}
