package httpapi

import (
	"net/http"

	"bookie.org/internal/audit"
	"bookie.org/internal/auth"
)

type profileRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (req profileRequest) update() (auth.ProfileUpdate, error) {
	upd := auth.ProfileUpdate{FirstName: req.FirstName, LastName: req.LastName, Email: req.Email}
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		return auth.ProfileUpdate{}, err
	}
	if !dob.IsZero() {
		upd.DateOfBirth = &dob
	}
	return upd, nil
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}

func (a *API) handleGetMe(w http.ResponseWriter, r *http.Request) {
	account, err := a.accounts.Account(r.Context(), principal(r).AccountID)
	if err != nil {
		writeAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account.Public())
}

func (a *API) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.updateProfile(w, r, principal(r).AccountID, req)
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request, id int64, req profileRequest) {
	upd, err := req.update()
	if err != nil {
		writeAccountError(w, r, err)
		return
	}
	if err := a.accounts.UpdateProfile(r.Context(), id, upd); err != nil {
		writeAccountError(w, r, err)
		return
	}
	account, err := a.accounts.Account(r.Context(), id)
	if err != nil {
		writeAccountError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventProfileUpdated, map[string]any{"account_id": id})
	writeJSON(w, http.StatusOK, account.Public())
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := principal(r).AccountID
	if err := a.accounts.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		writeAccountError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventPasswordChanged, map[string]any{"account_id": id})
	w.WriteHeader(http.StatusNoContent)
}
