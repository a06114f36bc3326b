package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"bookie.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth resolves the bearer token to a live account. The principal carries the stored role,
// so role changes and deletions take effect before the token expires.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}
		claims, err := a.sessions.Parse(token)
		if err != nil {
			unauthorized(w, r, "invalid token")
			return
		}
		p, err := claims.Principal()
		if err != nil {
			unauthorized(w, r, "invalid token")
			return
		}
		account, err := a.accounts.Account(r.Context(), p.AccountID)
		if errors.Is(err, auth.ErrAccountNotFound) {
			unauthorized(w, r, "invalid token")
			return
		}
		if err != nil {
			writeAccountError(w, r, err)
			return
		}
		p.Role = account.Role

		ctx := auth.ContextWithPrincipal(r.Context(), p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="bookie"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
