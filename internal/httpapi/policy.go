package httpapi

import (
	"errors"
	"net/http"

	"bookie.org/internal/auth"
)

// Permission names an administrative action on another account.
type Permission string

const (
	PermListAccounts  Permission = "accounts.list"
	PermCreateAccount Permission = "accounts.create"
	PermRenameAccount Permission = "accounts.rename"
	PermEditProfile   Permission = "accounts.profile.edit"
	PermResetPassword Permission = "accounts.password.reset"
	PermDeleteAccount Permission = "accounts.delete"
)

var errForbidden = errors.New("httpapi: forbidden")

const forbiddenMessage = "You are not allowed to perform this action"

// rule is the least trusted actor role allowed, by target tier.
type rule struct {
	onStudent auth.Role
	onStaff   auth.Role
}

// Admins manage students; only a SuperAdmin manages Admin and SuperAdmin accounts.
var policy = map[Permission]rule{
	PermListAccounts:  {onStudent: auth.RoleAdmin, onStaff: auth.RoleAdmin},
	PermCreateAccount: {onStudent: auth.RoleAdmin, onStaff: auth.RoleSuperAdmin},
	PermRenameAccount: {onStudent: auth.RoleAdmin, onStaff: auth.RoleSuperAdmin},
	PermEditProfile:   {onStudent: auth.RoleAdmin, onStaff: auth.RoleSuperAdmin},
	PermResetPassword: {onStudent: auth.RoleAdmin, onStaff: auth.RoleSuperAdmin},
	PermDeleteAccount: {onStudent: auth.RoleAdmin, onStaff: auth.RoleSuperAdmin},
}

// Authorize reports whether actor may apply perm to an account holding target.
func Authorize(actor auth.Principal, perm Permission, target auth.Role) error {
	r, ok := policy[perm]
	if !ok || !actor.Role.Valid() {
		return errForbidden
	}
	need := r.onStudent
	if target != auth.RoleStudent {
		need = r.onStaff
	}
	if !actor.Role.Includes(need) {
		return errForbidden
	}
	return nil
}

// requireAdmin rejects principals below Admin before any admin handler runs.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			unauthorized(w, r, "authentication required")
			return
		}
		if !p.Role.IsAdmin() {
			writeError(w, r, http.StatusForbidden, forbiddenMessage)
			return
		}
		next.ServeHTTP(w, r)
	})
}
