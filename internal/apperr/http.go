package apperr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// HTTPStatus maps an error kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteHTTP renders err as a JSON error response. Internal errors are
// logged with their cause and reduced to a generic message on the wire.
func WriteHTTP(w http.ResponseWriter, log zerolog.Logger, err error) {
	kind := KindOf(err)
	body := errorBody{Error: "internal server error"}

	var ae *Error
	if errors.As(err, &ae) && kind != KindInternal {
		body.Error = ae.Message
		body.Field = ae.Field
	}
	if kind == KindInternal {
		log.Error().Err(err).Msg("internal error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(kind))
	json.NewEncoder(w).Encode(body)
}

// WriteJSON renders v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
