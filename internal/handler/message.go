package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/schoolmsg/internal/middleware"
	"github.com/schoolmsg/internal/model"
	"github.com/schoolmsg/internal/service"
)

// attachBodyLimit покрывает несколько файлов по 10 МБ в base64.
const attachBodyLimit = 64 << 20

type MessageHandler struct {
	svc *service.Messaging
}

func NewMessageHandler(svc *service.Messaging) *MessageHandler {
	return &MessageHandler{svc: svc}
}

// Routes монтируется под /api/messages.
func (h *MessageHandler) Routes(r chi.Router) {
	r.Get("/threads", h.ListThreads)
	r.Get("/threads/{threadId}", h.GetThread)
	r.Post("/threads", h.CreateThread)
	r.Get("/inbox", h.Inbox)
	r.Post("/send", h.Send)
	r.Post("/{messageId}/read", h.MarkRead)
	r.Post("/{messageId}/delivered", h.MarkDelivered)
	r.Get("/search", h.Search)
	r.Post("/flag", h.Flag)
	r.Delete("/flag", h.Unflag)
	r.Post("/archive", h.Archive)
	r.Delete("/archive", h.Unarchive)
	r.Post("/attach", h.Attach)
}

func (h *MessageHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := h.svc.ListThreads(r.Context(), middleware.GetActor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, threads)
}

func (h *MessageHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetThread(r.Context(), middleware.GetActor(r.Context()), chi.URLParam(r, "threadId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, detail)
}

type participantRequest struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type createThreadRequest struct {
	Subject      string               `json:"subject"`
	Participants []participantRequest `json:"participants" validate:"required"`
}

type threadCreatedResponse struct {
	ID string `json:"id"`
}

func (h *MessageHandler) CreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if err := decodeJSON(w, r, &req, 0, false); err != nil {
		writeError(w, r, err)
		return
	}
	parts := make([]model.Participant, 0, len(req.Participants))
	for _, p := range req.Participants {
		parts = append(parts, model.Participant{UserID: p.ID, Role: p.Role})
	}
	id, err := h.svc.CreateThread(r.Context(), middleware.GetActor(r.Context()), req.Subject, parts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, threadCreatedResponse{ID: id})
}

func (h *MessageHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.svc.Inbox(r.Context(), middleware.GetActor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, msgs)
}

type sendRequest struct {
	ThreadID  string `json:"threadId"`
	ToRole    string `json:"toRole"`
	ToID      string `json:"toId"`
	Subject   string `json:"subject"`
	Content   string `json:"content" validate:"required"`
	Sensitive bool   `json:"sensitive"`
}

// Send отвечает одним объектом, если создано одно сообщение, иначе массивом.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(w, r, &req, 0, false); err != nil {
		writeError(w, r, err)
		return
	}
	msgs, err := h.svc.Send(r.Context(), middleware.GetActor(r.Context()), service.SendInput{
		ThreadID:  req.ThreadID,
		ToRole:    req.ToRole,
		ToID:      req.ToID,
		Subject:   req.Subject,
		Content:   req.Content,
		Sensitive: req.Sensitive,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(msgs) == 1 {
		writeOK(w, msgs[0])
		return
	}
	writeOK(w, msgs)
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkRead(r.Context(), middleware.GetActor(r.Context()), chi.URLParam(r, "messageId")); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, nil)
}

func (h *MessageHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkDelivered(r.Context(), middleware.GetActor(r.Context()), chi.URLParam(r, "messageId")); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, nil)
}

func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.svc.Search(r.Context(), middleware.GetActor(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, msgs)
}

type flagRequest struct {
	MessageID string `json:"messageId" validate:"required"`
}

type archiveRequest struct {
	ThreadID string `json:"threadId" validate:"required"`
}

func (h *MessageHandler) Flag(w http.ResponseWriter, r *http.Request) {
	h.flag(w, r, h.svc.Flag)
}

func (h *MessageHandler) Unflag(w http.ResponseWriter, r *http.Request) {
	h.flag(w, r, h.svc.Unflag)
}

func (h *MessageHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.archive(w, r, h.svc.Archive)
}

func (h *MessageHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.archive(w, r, h.svc.Unarchive)
}

type markerOp func(ctx context.Context, actor model.Actor, id string) error

func (h *MessageHandler) flag(w http.ResponseWriter, r *http.Request, op markerOp) {
	var req flagRequest
	if err := decodeJSON(w, r, &req, 0, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := op(r.Context(), middleware.GetActor(r.Context()), req.MessageID); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, nil)
}

func (h *MessageHandler) archive(w http.ResponseWriter, r *http.Request, op markerOp) {
	var req archiveRequest
	if err := decodeJSON(w, r, &req, 0, false); err != nil {
		writeError(w, r, err)
		return
	}
	if err := op(r.Context(), middleware.GetActor(r.Context()), req.ThreadID); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, nil)
}

type attachFileRequest struct {
	Name   string `json:"name" validate:"required"`
	Mime   string `json:"mime"`
	Base64 string `json:"base64" validate:"required"`
}

type attachRequest struct {
	MessageID string              `json:"messageId" validate:"required"`
	Files     []attachFileRequest `json:"files" validate:"required,min=1,dive"`
}

func (h *MessageHandler) Attach(w http.ResponseWriter, r *http.Request) {
	var req attachRequest
	if err := decodeJSON(w, r, &req, attachBodyLimit, false); err != nil {
		writeError(w, r, err)
		return
	}
	files := make([]service.AttachmentFile, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, service.AttachmentFile{Name: f.Name, Mime: f.Mime, Base64: f.Base64})
	}
	saved, err := h.svc.Attach(r.Context(), middleware.GetActor(r.Context()), req.MessageID, files)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, saved)
}
