package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"weekcal/internal/config"
	"weekcal/internal/model"
	"weekcal/internal/storage"
	"weekcal/internal/store"
)

// 2025-03-05 is a Wednesday; the week starts Sunday 2025-03-02.
var now = time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *store.Store) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	if mutate != nil {
		mutate(cfg)
	}

	kv, err := storage.OpenBadger("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kv.Close() })

	adapter := storage.New(kv, time.UTC)
	st := store.New(adapter, store.Options{
		Location: time.UTC,
		Seed:     true,
		Now:      func() time.Time { return now },
	})
	st.Init()

	s := NewServer(cfg, st, adapter)
	s.now = func() time.Time { return now }
	return s, st
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestBasicAuth(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	})
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health should bypass auth, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/events", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated = %d", rec.Code)
	}
}

func TestSecureCompare(t *testing.T) {
	if !secureCompare("abc", "abc") || secureCompare("abc", "abd") || secureCompare("abc", "ab") {
		t.Error("secureCompare mismatch")
	}
}

func TestWeek(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/week", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[weekResponse](t, rec)

	if resp.Title != "March 2025" || len(resp.Days) != 7 || len(resp.Hours) != 24 {
		t.Fatalf("week = %+v", resp)
	}
	if resp.Days[0].Date != "2025-03-02" || !resp.Days[0].IsSunday {
		t.Errorf("first column = %+v", resp.Days[0])
	}
	if !resp.Days[3].IsToday {
		t.Error("Wednesday should be today")
	}

	var total int
	for _, d := range resp.Days {
		total += len(d.AllDay) + len(d.Timed)
		for _, p := range d.Timed {
			if p.Color == "" || p.Height < 20 {
				t.Errorf("placement = %+v", p)
			}
		}
	}
	if total != 8 {
		t.Errorf("placed %d events, want the 8 seed events", total)
	}

	rec = do(t, s.Handler(), http.MethodGet, "/api/week?date=2025-03-12", "")
	resp = decode[weekResponse](t, rec)
	if resp.Days[0].Date != "2025-03-09" {
		t.Errorf("next week starts %s", resp.Days[0].Date)
	}
	for _, d := range resp.Days {
		if len(d.AllDay)+len(d.Timed) != 0 {
			t.Errorf("unexpected events on %s", d.Date)
		}
	}

	if rec := do(t, s.Handler(), http.MethodGet, "/api/week?date=03/12/2025", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date = %d", rec.Code)
	}
}

func TestSlot(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/slot?at=2025-03-04T09:00", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	form := decode[model.Form](t, rec)
	if form.Type != model.TypeTask || form.Start != "2025-03-04T09:00" || form.End != "2025-03-04T10:00" {
		t.Errorf("form = %+v", form)
	}

	if rec := do(t, h, http.MethodGet, "/api/slot?at=2025-03-02T09:00", ""); rec.Code != http.StatusConflict {
		t.Errorf("sunday slot = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/slot", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing at = %d", rec.Code)
	}
}

func TestEventLifecycle(t *testing.T) {
	s, st := newTestServer(t, nil)
	h := s.Handler()
	before := st.Len()

	rec := do(t, h, http.MethodPost, "/api/events",
		`{"title":"  Review  ","type":"MEETING","start":"2025-03-04T13:00","end":"2025-03-04T14:30"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	created := decode[model.Event](t, rec)
	if created.ID == "" || created.Title != "Review" || created.Type != model.TypeMeeting {
		t.Errorf("created = %+v", created)
	}
	if st.Len() != before+1 {
		t.Errorf("len = %d", st.Len())
	}

	rec = do(t, h, http.MethodGet, "/api/events/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Errorf("get = %d", rec.Code)
	}

	rec = do(t, h, http.MethodPut, "/api/events/"+created.ID,
		`{"title":"Review v2","type":"MEETING","start":"2025-03-04T15:00","end":"2025-03-04T16:00"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d %s", rec.Code, rec.Body.String())
	}
	updated := decode[model.Event](t, rec)
	if updated.ID != created.ID || updated.Title != "Review v2" || updated.Start.Hour() != 15 {
		t.Errorf("updated = %+v", updated)
	}

	rec = do(t, h, http.MethodDelete, "/api/events/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/events/"+created.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/events/"+created.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d", rec.Code)
	}
	if st.Len() != before {
		t.Errorf("len = %d, want %d", st.Len(), before)
	}
}

func TestCreateValidation(t *testing.T) {
	s, st := newTestServer(t, nil)
	h := s.Handler()
	before := st.Len()

	rec := do(t, h, http.MethodPost, "/api/events",
		`{"title":"","type":"TASK","start":"2025-03-04T10:00","end":"2025-03-04T09:00"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[fieldErrorsResponse](t, rec)
	if resp.Fields["title"] != "Event name is required" || resp.Fields["end"] != "End date must be after start date" {
		t.Errorf("fields = %v", resp.Fields)
	}

	rec = do(t, h, http.MethodPost, "/api/events",
		`{"title":"Brunch","type":"PERSONAL","start":"2025-03-02T10:00","end":"2025-03-02T11:00"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("sunday create = %d", rec.Code)
	}

	if rec := do(t, h, http.MethodPost, "/api/events", `{not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d", rec.Code)
	}
	if st.Len() != before {
		t.Errorf("rejected creates changed the store: %d", st.Len())
	}
}

func TestUpdateMissing(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodPut, "/api/events/nope",
		`{"title":"x","type":"TASK","start":"2025-03-04T10:00","end":"2025-03-04T11:00"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestClearAndReset(t *testing.T) {
	s, st := newTestServer(t, nil)
	h := s.Handler()

	if rec := do(t, h, http.MethodDelete, "/api/events", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("clear = %d", rec.Code)
	}
	if st.Len() != 0 {
		t.Errorf("len after clear = %d", st.Len())
	}

	rec := do(t, h, http.MethodGet, "/api/storage", "")
	info := decode[storage.Info](t, rec)
	if rec.Code != http.StatusOK || info.Count != 0 {
		t.Errorf("storage after clear = %d %+v", rec.Code, info)
	}

	rec = do(t, h, http.MethodPost, "/api/events/reset", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset = %d", rec.Code)
	}
	events := decode[[]model.Event](t, rec)
	if len(events) != 8 {
		t.Errorf("reset returned %d events", len(events))
	}

	info = decode[storage.Info](t, do(t, h, http.MethodGet, "/api/storage", ""))
	if info.Count != 8 || info.SizeBytes == 0 {
		t.Errorf("storage after reset = %+v", info)
	}
}

func TestExportImport(t *testing.T) {
	s, st := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/export.ics", "")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar") {
		t.Fatalf("export = %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	exported := rec.Body.String()
	if got := strings.Count(exported, "BEGIN:VEVENT"); got != st.Len() {
		t.Errorf("exported %d events, store has %d", got, st.Len())
	}

	// Re-importing our own export matches every event by id.
	rec = do(t, h, http.MethodPost, "/api/import", exported)
	if rec.Code != http.StatusOK {
		t.Fatalf("import = %d %s", rec.Code, rec.Body.String())
	}
	resp := decode[importResponse](t, rec)
	if resp.Added != 0 || resp.Occurrences != st.Len() {
		t.Errorf("import = %+v", resp)
	}

	if rec := do(t, h, http.MethodPost, "/api/import", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("empty import = %d", rec.Code)
	}
}

func TestEventForm(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/events/seed-1/form", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	form := decode[model.Form](t, rec)
	want := model.Form{Title: "Team Standup", Type: model.TypeMeeting, Start: "2025-03-03T09:00", End: "2025-03-03T09:30"}
	if form != want {
		t.Errorf("form = %+v, want %+v", form, want)
	}

	if rec := do(t, h, http.MethodGet, "/api/events/nope/form", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing event form = %d", rec.Code)
	}
}

func TestFormChange(t *testing.T) {
	s, _ := newTestServer(t, nil)
	h := s.Handler()

	tests := []struct {
		name string
		body string
		want model.Form
	}{
		{
			name: "all-day type snaps to whole day",
			body: `{"form":{"title":"Trip","type":"TASK","start":"2025-03-04T09:30","end":"2025-03-04T10:30"},"type":"ALL DAY EVENT"}`,
			want: model.Form{Title: "Trip", Type: model.TypeAllDay, Start: "2025-03-04T00:00", End: "2025-03-04T23:59"},
		},
		{
			name: "start past end moves end by an hour",
			body: `{"form":{"title":"Call","type":"MEETING","start":"2025-03-04T09:00","end":"2025-03-04T10:00"},"start":"2025-03-04T11:00"}`,
			want: model.Form{Title: "Call", Type: model.TypeMeeting, Start: "2025-03-04T11:00", End: "2025-03-04T12:00"},
		},
		{
			name: "start before end keeps end",
			body: `{"form":{"title":"Call","type":"MEETING","start":"2025-03-04T09:00","end":"2025-03-04T10:00"},"start":"2025-03-04T08:00"}`,
			want: model.Form{Title: "Call", Type: model.TypeMeeting, Start: "2025-03-04T08:00", End: "2025-03-04T10:00"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/form", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d %s", rec.Code, rec.Body.String())
			}
			if got := decode[model.Form](t, rec); got != tt.want {
				t.Errorf("form = %+v, want %+v", got, tt.want)
			}
		})
	}

	if rec := do(t, h, http.MethodPost, "/api/form", `{"form":{}}`); rec.Code != http.StatusBadRequest {
		t.Errorf("no change = %d", rec.Code)
	}
}

func TestCreateAllDaySnapsToWholeDay(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s.Handler(), http.MethodPost, "/api/events",
		`{"title":"Offsite","type":"ALL DAY EVENT","start":"2025-03-06T14:00","end":"2025-03-06T15:00"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	e := decode[model.Event](t, rec).In(time.UTC)
	if e.Start.Format(model.FormLayout) != "2025-03-06T00:00" || e.End.Format(model.FormLayout) != "2025-03-06T23:59" {
		t.Errorf("all-day event = %v .. %v", e.Start, e.End)
	}
}
