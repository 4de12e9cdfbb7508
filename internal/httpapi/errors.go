package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"visionchat/internal/auth"
	"visionchat/internal/imageres"
	"visionchat/internal/inference"
	"visionchat/internal/manager"
	"visionchat/internal/store"
	"visionchat/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSONErrorKind(w, status, "", msg)
}

func writeJSONErrorKind(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Kind: kind, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.MessageResponse{Message: msg})
}

// statusFor maps a describe error to its status code and error kind.
func statusFor(err error) (int, string) {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode(), ""
	case manager.IsBadRequest(err):
		return http.StatusBadRequest, ""
	case manager.IsTooBusy(err):
		return http.StatusTooManyRequests, ""
	case manager.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable, ""
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, ""
	case errors.Is(err, store.ErrUsernameTaken):
		return http.StatusBadRequest, ""
	}
	switch k := imageres.KindOf(err); k {
	case imageres.KindInvalidSource:
		return http.StatusBadRequest, k.String()
	case imageres.KindFetch:
		return http.StatusBadGateway, k.String()
	case imageres.KindDecode:
		return http.StatusUnprocessableEntity, k.String()
	}
	if inference.IsInferenceError(err) {
		return http.StatusInternalServerError, "inference-error"
	}
	return http.StatusInternalServerError, ""
}
