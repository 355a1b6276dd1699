package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/schoolmsg/internal/middleware"
	"github.com/schoolmsg/internal/service"
)

type PresenceHandler struct {
	svc *service.Presence
}

func NewPresenceHandler(svc *service.Presence) *PresenceHandler {
	return &PresenceHandler{svc: svc}
}

// Routes монтируется под /api/presence.
func (h *PresenceHandler) Routes(r chi.Router) {
	r.Get("/active-users", h.ActiveUsers)
	r.Post("/online", h.Online)
	r.Post("/offline", h.Offline)
}

func (h *PresenceHandler) ActiveUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	recs, err := h.svc.ListActive(r.Context(), q.Get("role"), q.Get("classId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, recs)
}

type onlineRequest struct {
	ClassID string `json:"classId"`
}

func (h *PresenceHandler) Online(w http.ResponseWriter, r *http.Request) {
	var req onlineRequest
	if err := decodeJSON(w, r, &req, 0, true); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.SetOnline(r.Context(), middleware.GetActor(r.Context()), req.ClassID); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, nil)
}

func (h *PresenceHandler) Offline(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SetOffline(r.Context(), middleware.GetActor(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, nil)
}
