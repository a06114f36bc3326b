package httpapi

import (
	"errors"
	"net/http"

	"bookie.org/internal/audit"
	"bookie.org/internal/auth"
)

type createAccountRequest struct {
	signUpRequest
	Role string `json:"role,omitempty"`
}

type renameRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

func (a *API) listByRole(w http.ResponseWriter, r *http.Request, target auth.Role, roles ...auth.Role) {
	if err := Authorize(principal(r), PermListAccounts, target); err != nil {
		writeError(w, r, http.StatusForbidden, forbiddenMessage)
		return
	}
	accounts, err := a.directory.ListAccountsByRole(r.Context(), roles...)
	if err != nil {
		writeAccountError(w, r, err)
		return
	}
	out := make([]auth.PublicAccount, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, acc.Public())
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (a *API) handleListStudents(w http.ResponseWriter, r *http.Request) {
	a.listByRole(w, r, auth.RoleStudent, auth.RoleStudent)
}

func (a *API) handleListAdmins(w http.ResponseWriter, r *http.Request) {
	a.listByRole(w, r, auth.RoleAdmin, auth.RoleAdmin, auth.RoleSuperAdmin)
}

// handleCreateAccount registers an account on behalf of an administrator. Only a SuperAdmin
// may choose a role other than Student.
func (a *API) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role := auth.RoleStudent
	if req.Role != "" {
		parsed, err := auth.ParseRole(req.Role)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "Invalid role provided")
			return
		}
		role = parsed
	}
	if err := Authorize(principal(r), PermCreateAccount, role); err != nil {
		writeError(w, r, http.StatusForbidden, forbiddenMessage)
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
		Role:        role,
	})
	if err != nil {
		writeAccountError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventAccountCreated, map[string]any{"account_id": id, "role": string(role)})
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

// target loads the account named by the {id} path parameter and checks perm against it.
func (a *API) target(w http.ResponseWriter, r *http.Request, perm Permission) (auth.Account, bool) {
	id, err := accountIDParam(r)
	if err != nil {
		writeAccountError(w, r, err)
		return auth.Account{}, false
	}
	account, err := a.accounts.Account(r.Context(), id)
	if err != nil {
		writeAccountError(w, r, err)
		return auth.Account{}, false
	}
	if err := Authorize(principal(r), perm, account.Role); err != nil {
		writeError(w, r, http.StatusForbidden, forbiddenMessage)
		return auth.Account{}, false
	}
	return account, true
}

func (a *API) handleRenameAccount(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target, ok := a.target(w, r, PermRenameAccount)
	if !ok {
		return
	}
	if err := a.accounts.UpdateAdminProfile(r.Context(), target.ID, req.FirstName, req.LastName); err != nil {
		writeAccountError(w, r, err)
		return
	}
	updated, err := a.accounts.Account(r.Context(), target.ID)
	if err != nil {
		writeAccountError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventAdminProfileUpdated, map[string]any{"account_id": target.ID})
	writeJSON(w, http.StatusOK, updated.Public())
}

func (a *API) handleEditProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target, ok := a.target(w, r, PermEditProfile)
	if !ok {
		return
	}
	a.updateProfile(w, r, target.ID, req)
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target, ok := a.target(w, r, PermResetPassword)
	if !ok {
		return
	}
	if err := a.accounts.AdminUpdatePassword(r.Context(), target.ID, req.NewPassword); err != nil {
		writeAccountError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventPasswordReset, map[string]any{"account_id": target.ID})
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteAccount is idempotent: an unknown id answers 204.
func (a *API) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := accountIDParam(r)
	if err != nil {
		writeAccountError(w, r, err)
		return
	}
	if id == principal(r).AccountID {
		writeError(w, r, http.StatusForbidden, "You cannot delete your own account")
		return
	}
	account, err := a.accounts.Account(r.Context(), id)
	if errors.Is(err, auth.ErrAccountNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeAccountError(w, r, err)
		return
	}
	if err := Authorize(principal(r), PermDeleteAccount, account.Role); err != nil {
		writeError(w, r, http.StatusForbidden, forbiddenMessage)
		return
	}
	if err := a.accounts.DeleteAccount(r.Context(), id); err != nil {
		writeAccountError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventAccountDeleted, map[string]any{"account_id": id, "role": string(account.Role)})
	w.WriteHeader(http.StatusNoContent)
}
