package auth

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Account is a registered student or administrator.
type Account struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Role         Role
	DateOfBirth  time.Time
	NetworkHash  string
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

// PublicAccount is Account without the credential, safe to hand to presentation layers.
type PublicAccount struct {
	ID          int64     `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	DateOfBirth time.Time `json:"date_of_birth"`
	NetworkHash string    `json:"network_hash"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// Public strips the password hash.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		ID:          a.ID,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		DisplayName: a.DisplayName(),
		Email:       a.Email,
		Role:        a.Role,
		DateOfBirth: a.DateOfBirth,
		NetworkHash: a.NetworkHash,
		CreatedAt:   a.CreatedAt,
		ModifiedAt:  a.ModifiedAt,
	}
}

// DisplayName formats the stored lower-case names for display, e.g. "Julian Blake".
func (a Account) DisplayName() string {
	return strings.TrimSpace(capitalize(a.FirstName) + " " + capitalize(a.LastName))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToTitle(r)) + s[size:]
}

// SignUpInput carries a new account's raw fields. Role is optional and defaults to Student.
type SignUpInput struct {
	FirstName   string
	LastName    string
	Email       string
	DateOfBirth time.Time
	Password    string
	Role        Role
}

// ProfileUpdate carries a self-service profile edit. A nil DateOfBirth keeps the stored value.
type ProfileUpdate struct {
	FirstName   string
	LastName    string
	Email       string
	DateOfBirth *time.Time
}
