package timecard

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/timecard-management/internal"
	"github.com/frahmantamala/timecard-management/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	SubmitEntry(ctx context.Context, actor *internal.User, dto SubmitEntryDTO) (*TimeCard, bool, error)
	DeleteEntry(ctx context.Context, actorID, entryID int64) error
	ListEntries(ctx context.Context, scope Scope, actorID int64, q ListQuery) ([]*TimeCard, error)
	LockEntry(ctx context.Context, actorID, entryID int64) (*TimeCard, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(base *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: base,
		Service:     svc,
	}
}

// SubmitEntry handles POST /timecards
func (h *Handler) SubmitEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrUnauthenticated)
		return
	}

	var dto SubmitEntryDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	tc, created, err := h.Service.SubmitEntry(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	status, message := http.StatusOK, "Time entry updated"
	if created {
		status, message = http.StatusCreated, "Time entry created"
	}
	h.WriteJSON(w, status, EntryResponse{Success: true, Message: message, Entry: tc.ToView()})
}

// DeleteEntry handles DELETE /timecards/{id}
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrUnauthenticated)
		return
	}

	id, err := parseEntryID(r)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	if err := h.Service.DeleteEntry(r.Context(), actor.ID, id); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Time entry deleted"})
}

// MyEntries handles GET /timecards/my-entries
func (h *Handler) MyEntries(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, ScopeEmployee)
}

// EmployerEntries handles GET /timecards/employer/entries
func (h *Handler) EmployerEntries(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, ScopeEmployer)
}

// AllEntries handles GET /timecards/admin/all-entries
func (h *Handler) AllEntries(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, ScopeAdmin)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, scope Scope) {
	actor, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrUnauthenticated)
		return
	}

	q, err := ParseListQuery(r.URL.Query())
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	entries, err := h.Service.ListEntries(r.Context(), scope, actor.ID, q)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	views := make([]View, 0, len(entries))
	for _, tc := range entries {
		views = append(views, tc.ToView())
	}
	h.WriteJSON(w, http.StatusOK, EntriesResponse{Success: true, Count: len(views), Entries: views})
}

// LockEntry handles PATCH /timecards/admin/{id}/lock
func (h *Handler) LockEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := internal.UserFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrUnauthenticated)
		return
	}

	id, err := parseEntryID(r)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	tc, err := h.Service.LockEntry(r.Context(), actor.ID, id)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, EntryResponse{Success: true, Message: "Time entry locked", Entry: tc.ToView()})
}

func parseEntryID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, internal.NewValidationFieldError("id", "id must be a positive integer", internal.ErrCodeValidationFailed)
	}
	return id, nil
}
