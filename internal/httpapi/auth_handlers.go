package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"bookie.org/internal/audit"
	"bookie.org/internal/auth"
)

const dateLayout = "2006-01-02"

type signUpRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	DateOfBirth string `json:"date_of_birth"`
	Password    string `json:"password"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
	Account   auth.PublicAccount `json:"account"`
}

type createdResponse struct {
	ID int64 `json:"id"`
}

// parseDate accepts YYYY-MM-DD; an empty value yields the zero time.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, &auth.ValidationError{Field: auth.FieldDateOfBirth, Reason: "Date of birth must be formatted as YYYY-MM-DD"}
	}
	return t, nil
}

// handleSignUp is self-service registration; the role is always Student.
func (a *API) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		writeAccountError(w, r, err)
		return
	}
	id, err := a.accounts.SignUp(r.Context(), auth.SignUpInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		DateOfBirth: dob,
		Password:    req.Password,
		Role:        auth.RoleStudent,
	})
	if err != nil {
		writeAccountError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventSignUp, map[string]any{"account_id": id})
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	account, err := a.accounts.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrAccountNotFound) || errors.Is(err, auth.ErrInvalidCredentials) {
			_ = audit.LogEvent(r.Context(), audit.EventSignInFailed, map[string]any{"remote_ip": clientIP(r)})
			writeError(w, r, http.StatusUnauthorized, auth.UserMessage(auth.ErrInvalidCredentials))
			return
		}
		writeAccountError(w, r, err)
		return
	}
	token, expiresAt, err := a.sessions.Issue(account)
	if err != nil {
		writeAccountError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventSignIn, map[string]any{"account_id": account.ID})
	writeJSON(w, http.StatusOK, signInResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Account:   account.Public(),
	})
}
