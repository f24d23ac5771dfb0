// Package api exposes HTTP handlers for the study tracker.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/studytrack/internal/auth"
	"example.com/studytrack/internal/domain"
	"example.com/studytrack/internal/persistence"
	"example.com/studytrack/internal/progress"
)

const maxPageSize = 500

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service  *domain.Service
	location *time.Location
	now      func() time.Time
	progress progress.Options
}

// Option configures a Handler.
type Option func(*Handler)

// WithLocation sets the zone in which "today" is observed.
func WithLocation(loc *time.Location) Option {
	return func(h *Handler) {
		if loc != nil {
			h.location = loc
		}
	}
}

// WithClock overrides the handler's time source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// WithProgressOptions overrides the palette and milestone table.
func WithProgressOptions(opts progress.Options) Option {
	return func(h *Handler) {
		h.progress = opts
	}
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, opts ...Option) *Handler {
	h := &Handler{service: service, location: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/me", h.me)
	mux.HandleFunc("/v1/sessions", h.sessions)
	mux.HandleFunc("/v1/sessions/", h.sessionByID)
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/progress", h.progressSummary)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := h.authorize(w, r, auth.ScopeStudyRead)
	if !ok {
		return
	}
	user, err := h.ensureUser(r, claims)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listSessions(w, r)
	case http.MethodPost:
		h.createSession(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) sessionByID(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions/"), "/")
	switch {
	case id == "":
		writeError(w, http.StatusBadRequest, "invalid_request", "missing session id")
	case id == "export" && r.Method == http.MethodGet:
		h.exportSessions(w, r)
	case id == "import" && r.Method == http.MethodPut:
		h.importSessions(w, r)
	case r.Method == http.MethodPatch:
		h.updateSession(w, r, id)
	case r.Method == http.MethodDelete:
		h.deleteSession(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listActivities(w, r)
	case http.MethodPost:
		h.logActivity(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := h.profile(w, r, auth.ScopeStudyRead)
	if !ok {
		return
	}
	sessions, err := h.service.ListSessions(r.Context(), p)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	p, ok := h.profile(w, r, auth.ScopeStudyWrite)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	session, err := h.service.CreateSession(r.Context(), p, domain.CreateSessionInput{
		Name:               req.Name,
		Description:        req.Description,
		Theme:              req.Theme,
		DailyTargetMinutes: req.DailyTargetMinutes,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) updateSession(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := h.profile(w, r, auth.ScopeStudyWrite)
	if !ok {
		return
	}

	var patch domain.SessionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "validation_failed", "no fields to update")
		return
	}

	session, err := h.service.UpdateSession(r.Context(), p, id, patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := h.profile(w, r, auth.ScopeStudyWrite)
	if !ok {
		return
	}
	if err := h.service.DeleteSession(r.Context(), p, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) exportSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := h.profile(w, r, auth.ScopeStudyRead)
	if !ok {
		return
	}
	sessions, err := h.service.ExportSessions(r.Context(), p)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="study-sessions.json"`)
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) importSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := h.profile(w, r, auth.ScopeStudyWrite)
	if !ok {
		return
	}

	var sessions []domain.Session
	if err := json.NewDecoder(r.Body).Decode(&sessions); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON array of sessions")
		return
	}

	imported, err := h.service.ImportSessions(r.Context(), p, sessions)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, imported)
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	p, ok := h.profile(w, r, auth.ScopeStudyRead)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxPageSize)
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, err := h.service.ListActivities(r.Context(), p, r.URL.Query().Get("session_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	page, next := persistence.PageActivities(activities, cursor, limit)
	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      page,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) logActivity(w http.ResponseWriter, r *http.Request) {
	p, ok := h.profile(w, r, auth.ScopeStudyWrite)
	if !ok {
		return
	}

	var req LogActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	date := h.today()
	if req.Date != "" {
		parsed, err := domain.ParseDate(req.Date)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		date = parsed
	}

	activity, err := h.service.LogActivity(r.Context(), p, domain.LogActivityInput{
		SessionID:       req.SessionID,
		Date:            date,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
		Media:           req.Media,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, activity)
}

func (h *Handler) progressSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	p, ok := h.profile(w, r, auth.ScopeStudyRead)
	if !ok {
		return
	}

	today := h.today()
	if raw := r.URL.Query().Get("today"); raw != "" {
		parsed, err := domain.ParseDate(raw)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		today = parsed
	}

	snapshot, err := h.service.Snapshot(r.Context(), p)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress.Summarize(snapshot.Sessions, snapshot.Activities, today, h.progress))
}

func (h *Handler) today() domain.Date {
	return domain.Today(h.location, h.now())
}

// authorize checks that the request carries claims with scope. Write access
// implies read access.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) && !(scope == auth.ScopeStudyRead && claims.HasScope(auth.ScopeStudyWrite)) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

// profile authorizes the request and makes sure the caller has a profile row.
func (h *Handler) profile(w http.ResponseWriter, r *http.Request, scope string) (domain.Profile, bool) {
	claims, ok := h.authorize(w, r, scope)
	if !ok {
		return domain.Profile{}, false
	}
	user, err := h.ensureUser(r, claims)
	if err != nil {
		writeServiceError(w, err)
		return domain.Profile{}, false
	}
	return domain.Profile{UserID: user.ID}, true
}

func (h *Handler) ensureUser(r *http.Request, claims *auth.Claims) (domain.User, error) {
	return h.service.EnsureUser(r.Context(), domain.CreateUserInput{
		ID:          claims.Subject,
		DisplayName: claims.Name,
		Photo:       claims.Picture,
	})
}

// CreateSessionRequest is the payload for POST /v1/sessions.
type CreateSessionRequest struct {
	Name               string `json:"name"`
	Description        string `json:"description"`
	Theme              string `json:"theme"`
	DailyTargetMinutes int    `json:"dailyTargetMinutes"`
}

// Validate ensures request correctness.
func (r CreateSessionRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if r.DailyTargetMinutes <= 0 {
		return errors.New("dailyTargetMinutes must be > 0")
	}
	return nil
}

// LogActivityRequest is the payload for POST /v1/activities. An empty date
// means today.
type LogActivityRequest struct {
	SessionID       string   `json:"sessionId"`
	Date            string   `json:"date"`
	DurationMinutes int      `json:"durationMinutes"`
	Notes           string   `json:"notes"`
	Media           []string `json:"media"`
}

// Validate ensures request correctness.
func (r LogActivityRequest) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return errors.New("sessionId is required")
	}
	if r.DurationMinutes < 0 {
		return errors.New("durationMinutes must be >= 0")
	}
	return nil
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []domain.Activity `json:"items"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		log.Printf("api: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}
