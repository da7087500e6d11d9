package user

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Devansh1501S/Chat-Sphere/internal/apperr"
	"github.com/Devansh1501S/Chat-Sphere/internal/middleware"
)

type Handler struct {
	service *Service
	log     zerolog.Logger
}

func NewHandler(s *Service, log zerolog.Logger) *Handler {
	return &Handler{service: s, log: log.With().Str("component", "user-handler").Logger()}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, h.log, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}

	u, err := h.service.Register(r.Context(), &req)
	if err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}
	apperr.WriteJSON(w, http.StatusCreated, u)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, h.log, apperr.New(apperr.KindValidation, "invalid request body"))
		return
	}

	res, err := h.service.Login(r.Context(), &req)
	if err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, users)
}

// Search handles exact-handle lookup, excluding the caller from results.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	callerID, ok := middleware.UserID(r.Context())
	if !ok {
		apperr.WriteHTTP(w, h.log, apperr.New(apperr.KindUnauthorized, "missing identity"))
		return
	}

	u, err := h.service.SearchExact(r.Context(), r.URL.Query().Get("username"), callerID)
	if err != nil {
		apperr.WriteHTTP(w, h.log, err)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, u)
}
