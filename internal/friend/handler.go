package friend

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
	"github.com/Devansh1501S/Chat-Sphere/internal/middleware"
	"github.com/Devansh1501S/Chat-Sphere/internal/model"
)

type Handler struct {
	service *Service
	log     zerolog.Logger
}

func NewHandler(s *Service, log zerolog.Logger) *Handler {
	return &Handler{service: s, log: log.With().Str("component", "friend-handler").Logger()}
}

type sendRequestBody struct {
	ReceiverID int64 `json:"receiver_id"`
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserID(r.Context())
	if !ok {
		apperr.WriteHTTP(w, h.log, apperr.New(apperr.KindUnauthorized, "missing identity"))
		return
	}

	var body sendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apperr.WriteHTTP(w, h.log, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}

	req, err := h.service.Send(r.Context(), callerID, body.ReceiverID)
	if err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}
	apperr.WriteJSON(w, http.StatusCreated, req)
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Accept)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.service.Reject)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request,
	transition func(ctx context.Context, callerID, requestID int64) (*model.FriendRequest, error),
) {
	callerID, ok := middleware.UserID(r.Context())
	if !ok {
		apperr.WriteHTTP(w, h.log, apperr.New(apperr.KindUnauthorized, "missing identity"))
		return
	}
	requestID, err := strconv.ParseInt(chi.URLParam(r, "requestID"), 10, 64)
	if err != nil {
		apperr.WriteHTTP(w, h.log, apperr.Field(apperr.KindValidation, "request_id", "invalid request id"))
		return
	}

	req, err := transition(r.Context(), callerID, requestID)
	if err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) PendingReceived(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserID(r.Context())
	if !ok {
		apperr.WriteHTTP(w, h.log, apperr.New(apperr.KindUnauthorized, "missing identity"))
		return
	}

	reqs, err := h.service.PendingReceived(r.Context(), callerID)
	if err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, reqs)
}

func (h *Handler) Sent(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserID(r.Context())
	if !ok {
		apperr.WriteHTTP(w, h.log, apperr.New(apperr.KindUnauthorized, "missing identity"))
		return
	}

	reqs, err := h.service.Sent(r.Context(), callerID)
	if err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, reqs)
}

// Status reports the friendship relation between the caller and user_id.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserID(r.Context())
	if !ok {
		apperr.WriteHTTP(w, h.log, apperr.New(apperr.KindUnauthorized, "missing identity"))
		return
	}
	otherID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		apperr.WriteHTTP(w, h.log, apperr.Field(apperr.KindValidation, "user_id", "invalid user id"))
		return
	}

	relation, err := h.service.Relation(r.Context(), callerID, otherID)
	if err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, map[string]model.Relation{"status": relation})
}
