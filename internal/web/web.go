package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"weekcal/internal/config"
	"weekcal/internal/ics"
	"weekcal/internal/layout"
	appLog "weekcal/internal/log"
	"weekcal/internal/model"
	"weekcal/internal/storage"
	"weekcal/internal/store"
)

// maxImportBytes bounds an uploaded .ics body.
const maxImportBytes = 10 << 20

const dateLayout = "2006-01-02"

// Server provides the JSON API over the event store.
type Server struct {
	cfg     *config.Config
	store   *store.Store
	storage storage.Adapter
	loc     *time.Location
	layout  layout.Options
	mux     *http.ServeMux
	now     func() time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, st *store.Store, adapter storage.Adapter) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		storage: adapter,
		loc:     cfg.Location(),
		layout:  layout.Options{CorrectOffset: cfg.Layout.CorrectOffset},
		mux:     http.NewServeMux(),
		now:     time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="weekcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/week", s.handleWeek)
	s.mux.HandleFunc("GET /api/slot", s.handleSlot)
	s.mux.HandleFunc("POST /api/form", s.handleFormChange)

	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("DELETE /api/events", s.handleClearEvents)
	s.mux.HandleFunc("POST /api/events/reset", s.handleResetEvents)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("GET /api/events/{id}/form", s.handleEventForm)
	s.mux.HandleFunc("PUT /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)

	s.mux.HandleFunc("GET /api/storage", s.handleStorage)
	s.mux.HandleFunc("GET /api/export.ics", s.handleExport)
	s.mux.HandleFunc("POST /api/import", s.handleImport)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// weekResponse is the JSON shape of /api/week.
type weekResponse struct {
	Title    string      `json:"title"`
	Start    time.Time   `json:"start"`
	End      time.Time   `json:"end"`
	Timezone string      `json:"timezone"`
	Hours    []hourDTO   `json:"hours"`
	Days     []columnDTO `json:"days"`
}

type hourDTO struct {
	Hour  int    `json:"hour"`
	Label string `json:"label"`
}

type columnDTO struct {
	Date     string         `json:"date"`
	Header   string         `json:"header"`
	IsToday  bool           `json:"is_today"`
	IsSunday bool           `json:"is_sunday"`
	AllDay   []placementDTO `json:"all_day"`
	Timed    []placementDTO `json:"timed"`
}

type placementDTO struct {
	Event  model.Event `json:"event"`
	Color  string      `json:"color"`
	Top    int         `json:"top"`
	Height int         `json:"height"`
}

func placements(ps []layout.Placement) []placementDTO {
	out := make([]placementDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, placementDTO{
			Event:  p.Event,
			Color:  p.Event.Type.Color(),
			Top:    p.Top,
			Height: p.Height,
		})
	}
	return out
}

// handleWeek lays out the week containing ?date=YYYY-MM-DD (default today).
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	now := s.now().In(s.loc)
	ref := now
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.ParseInLocation(dateLayout, v, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		ref = d
	}

	start := s.store.WeekStart(ref)
	events := s.store.Week(start)
	for i := range events {
		events[i] = events[i].In(s.loc)
	}
	grid := layout.Week(start, events, now, s.layout)

	resp := weekResponse{
		Title:    grid.Title,
		Start:    grid.Start,
		End:      grid.End,
		Timezone: s.loc.String(),
		Hours:    make([]hourDTO, 0, len(grid.Hours)),
		Days:     make([]columnDTO, 0, len(grid.Columns)),
	}
	for _, h := range grid.Hours {
		resp.Hours = append(resp.Hours, hourDTO{Hour: h.Hour, Label: h.Label})
	}
	for _, c := range grid.Columns {
		resp.Days = append(resp.Days, columnDTO{
			Date:     c.Date.Format(dateLayout),
			Header:   c.Header,
			IsToday:  c.IsToday,
			IsSunday: c.IsSunday,
			AllDay:   placements(c.AllDay),
			Timed:    placements(c.Timed),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSlot returns the form defaults for a click on ?at=YYYY-MM-DDTHH:MM.
func (s *Server) handleSlot(w http.ResponseWriter, r *http.Request) {
	at, err := time.ParseInLocation(model.FormLayout, r.URL.Query().Get("at"), s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "at must be YYYY-MM-DDTHH:MM")
		return
	}
	form, err := model.SlotForm(at, at.Hour())
	if errors.Is(err, model.ErrSundaySlot) {
		writeError(w, http.StatusConflict, "Events cannot be created on Sunday")
		return
	}
	writeJSON(w, http.StatusOK, form)
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Events())
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	e, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleEventForm pre-fills the edit form for an existing event.
func (s *Server) handleEventForm(w http.ResponseWriter, r *http.Request) {
	e, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, model.FormFromEvent(e.In(s.loc)))
}

// formChangeRequest is one edit made in the open form: a new type, a new
// start, or both. The type is applied first.
type formChangeRequest struct {
	Form  model.Form  `json:"form"`
	Type  *model.Type `json:"type,omitempty"`
	Start *string     `json:"start,omitempty"`
}

// handleFormChange applies a type or start change to a form and returns the
// adjusted form: all-day types snap to the whole day, and an end that is no
// longer after the start moves with it.
func (s *Server) handleFormChange(w http.ResponseWriter, r *http.Request) {
	var req formChangeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Type == nil && req.Start == nil {
		writeError(w, http.StatusBadRequest, "type or start is required")
		return
	}

	form := req.Form
	if req.Type != nil {
		form = form.WithType(*req.Type, s.loc)
	}
	if req.Start != nil {
		form = form.WithStart(*req.Start, s.loc)
	}
	writeJSON(w, http.StatusOK, form)
}

// fieldErrorsResponse is the 422 body for a form that fails validation.
type fieldErrorsResponse struct {
	Error  string            `json:"error"`
	Fields model.FieldErrors `json:"fields"`
}

// decodeForm reads and validates a form body. It writes the error response
// itself and returns ok=false when the request cannot proceed.
func (s *Server) decodeForm(w http.ResponseWriter, r *http.Request) (model.Draft, bool) {
	var form model.Form
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return model.Draft{}, false
	}

	// All-day submissions always cover the whole start day.
	if form.Type.AllDay() {
		form = form.WithType(form.Type, s.loc)
	}

	if fe := form.Validate(s.loc); len(fe) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, fieldErrorsResponse{Error: "validation failed", Fields: fe})
		return model.Draft{}, false
	}

	d, err := form.Draft(s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return model.Draft{}, false
	}
	return d, true
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	d, ok := s.decodeForm(w, r)
	if !ok {
		return
	}
	e, err := s.store.Add(d)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	appLog.Info("event created", "id", e.ID, "type", e.Type)
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.store.Get(id); !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	d, ok := s.decodeForm(w, r)
	if !ok {
		return
	}

	e, err := s.store.Update(id, model.PatchFromDraft(d))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		appLog.Info("event updated", "id", e.ID)
		writeJSON(w, http.StatusOK, e)
	}
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.store.Remove(id) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	appLog.Info("event deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearEvents(w http.ResponseWriter, _ *http.Request) {
	s.store.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetEvents(w http.ResponseWriter, _ *http.Request) {
	s.store.ResetToSeed()
	writeJSON(w, http.StatusOK, s.store.Events())
}

func (s *Server) handleStorage(w http.ResponseWriter, _ *http.Request) {
	info, ok := s.storage.Info()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "storage info unavailable")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	body := ics.Export(s.store.Events(), s.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="weekcal.ics"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// importResponse is the JSON shape of /api/import.
type importResponse struct {
	Added         int      `json:"added"`
	Replaced      int      `json:"replaced"`
	Occurrences   int      `json:"occurrences"`
	TruncatedUIDs []string `json:"truncated_uids,omitempty"`
}

// handleImport merges an uploaded .ics body into the store. Recurrences are
// expanded over the configured import window.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	window := ics.Window(s.loc, s.now(), s.cfg.Import.BackfillDays, s.cfg.Import.HorizonDays)
	drafts, res, err := ics.Import(body, window)
	if err != nil {
		appLog.Warn("ics import rejected", "reason", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	added, replaced := s.store.Merge(drafts)
	appLog.Info("ics imported", "occurrences", len(res.Occurrences), "added", added, "replaced", replaced)
	writeJSON(w, http.StatusOK, importResponse{
		Added:         added,
		Replaced:      replaced,
		Occurrences:   len(res.Occurrences),
		TruncatedUIDs: res.TruncatedEvents,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
