package chat

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
	"github.com/Devansh1501S/Chat-Sphere/internal/middleware"
)

type Handler struct {
	service *Service
	log     zerolog.Logger
}

func NewHandler(s *Service, log zerolog.Logger) *Handler {
	return &Handler{service: s, log: log.With().Str("component", "chat-handler").Logger()}
}

type createConversationRequest struct {
	// Direct: target_id set, is_group false. Group: participant_ids + name.
	TargetID       int64   `json:"target_id,omitempty"`
	ParticipantIDs []int64 `json:"participant_ids,omitempty"`
	IsGroup        bool    `json:"is_group"`
	Name           string  `json:"name,omitempty"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserID(r.Context())
	if !ok {
		apperr.WriteHTTP(w, h.log, apperr.New(apperr.KindUnauthorized, "missing identity"))
		return
	}

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, h.log, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}

	if req.IsGroup {
		conv, err := h.service.CreateGroup(r.Context(), callerID, req.ParticipantIDs, req.Name)
		if err != nil {
			apperr.WriteHTTP(w, h.log, err)
			return
		}
		apperr.WriteJSON(w, http.StatusCreated, conv)
		return
	}

	if req.TargetID == 0 {
		apperr.WriteHTTP(w, h.log, apperr.Field(apperr.KindValidation, "target_id", "target_id is required"))
		return
	}
	conv, err := h.service.DirectConversation(r.Context(), callerID, req.TargetID)
	if err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, conv)
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserID(r.Context())
	if !ok {
		apperr.WriteHTTP(w, h.log, apperr.New(apperr.KindUnauthorized, "missing identity"))
		return
	}

	summaries, err := h.service.List(r.Context(), callerID)
	if err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, summaries)
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	callerID, convID, err := h.requestIdentity(r)
	if err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := h.service.Messages(r.Context(), callerID, convID, limit)
	if err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, msgs)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	callerID, convID, err := h.requestIdentity(r)
	if err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, h.log, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}

	msg, err := h.service.Send(r.Context(), callerID, convID, req.Content)
	if err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}
	apperr.WriteJSON(w, http.StatusCreated, msg)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	callerID, convID, err := h.requestIdentity(r)
	if err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}

	if err := h.service.MarkRead(r.Context(), callerID, convID); err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requestIdentity(r *http.Request) (callerID, convID int64, err error) {
	callerID, ok := middleware.UserID(r.Context())
	if !ok {
		return 0, 0, apperr.New(apperr.KindUnauthorized, "missing identity")
	}
	convID, err = strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
	if err != nil {
		return 0, 0, apperr.Field(apperr.KindValidation, "conversation_id", "invalid conversation id")
	}
	return callerID, convID, nil
}
