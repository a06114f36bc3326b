package auth

import (
	"fmt"
	"strings"
)

// Role is the trust tier of an account.
type Role string

const (
	RoleStudent    Role = "student"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Roles lists every valid role from least to most trusted.
var Roles = []Role{RoleStudent, RoleAdmin, RoleSuperAdmin}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r.rank() > 0
}

func (r Role) rank() int {
	switch r {
	case RoleStudent:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperAdmin:
		return 3
	default:
		return 0
	}
}

// Includes reports whether r carries every privilege of other.
func (r Role) Includes(other Role) bool {
	return r.Valid() && other.Valid() && r.rank() >= other.rank()
}

// IsAdmin reports whether r is Admin or SuperAdmin.
func (r Role) IsAdmin() bool {
	return r.Includes(RoleAdmin)
}

func (r Role) String() string { return string(r) }

// ParseRole accepts role names case-insensitively ("SuperAdmin", "super_admin").
func ParseRole(raw string) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	switch key {
	case "student":
		return RoleStudent, nil
	case "admin":
		return RoleAdmin, nil
	case "super_admin", "superadmin":
		return RoleSuperAdmin, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
}

// RoleEncoding maps roles to the integers stored in the accounts table.
// Tables are versioned; a new scheme gets a new table rather than edits to an old one.
type RoleEncoding struct {
	Version int
	codes   map[Role]int16
}

// RoleEncodingV1 is the scheme used since the first schema: Student=1, Admin=2, SuperAdmin=3.
var RoleEncodingV1 = RoleEncoding{
	Version: 1,
	codes: map[Role]int16{
		RoleStudent:    1,
		RoleAdmin:      2,
		RoleSuperAdmin: 3,
	},
}

// Encode returns the stored code for role.
func (e RoleEncoding) Encode(role Role) (int16, error) {
	code, ok := e.codes[role]
	if !ok {
		return 0, fmt.Errorf("%w: cannot encode role %q (scheme v%d)", ErrInvalidInput, role, e.Version)
	}
	return code, nil
}

// Decode returns the role stored as code.
func (e RoleEncoding) Decode(code int16) (Role, error) {
	for role, c := range e.codes {
		if c == code {
			return role, nil
		}
	}
	return "", fmt.Errorf("%w: unknown role code %d (scheme v%d)", ErrInvalidInput, code, e.Version)
}

// EncodeRole encodes with the current scheme.
func EncodeRole(role Role) (int16, error) { return RoleEncodingV1.Encode(role) }

// DecodeRole decodes with the current scheme.
func DecodeRole(code int16) (Role, error) { return RoleEncodingV1.Decode(code) }
