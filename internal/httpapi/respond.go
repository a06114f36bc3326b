package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bookie.org/internal/auth"
	"bookie.org/internal/obs"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		case errors.As(err, &tooLarge):
			return errors.New("request body too large")
		}
		return errors.New("request body is not valid JSON")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// writeAccountError maps lifecycle errors to a status and the user-facing message.
func writeAccountError(w http.ResponseWriter, r *http.Request, err error) {
	msg := auth.UserMessage(err)
	var verr *auth.ValidationError
	switch {
	case errors.Is(err, auth.ErrUnexpected):
		obs.Logger().Error("account operation failed", "request_id", RequestIDFromContext(r.Context()), "err", err)
		writeError(w, r, http.StatusInternalServerError, msg)
	case errors.As(err, &verr), errors.Is(err, auth.ErrInvalidInput), errors.Is(err, auth.ErrPasswordMismatch):
		writeError(w, r, http.StatusBadRequest, msg)
	case errors.Is(err, auth.ErrDuplicateAccount):
		writeError(w, r, http.StatusConflict, msg)
	case errors.Is(err, auth.ErrAccountNotFound), errors.Is(err, auth.ErrInvalidAccountID):
		writeError(w, r, http.StatusNotFound, msg)
	case errors.Is(err, auth.ErrIncorrectPassword):
		writeError(w, r, http.StatusForbidden, msg)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, msg)
	default:
		obs.Logger().Error("unclassified account error", "request_id", RequestIDFromContext(r.Context()), "err", err)
		writeError(w, r, http.StatusInternalServerError, msg)
	}
}

func accountIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, auth.ErrInvalidAccountID
	}
	return id, nil
}
