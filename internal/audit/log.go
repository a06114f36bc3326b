package audit

import (
	"context"
	"errors"
	"sort"
	"strings"

	"bookie.org/internal/auth"
	"bookie.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// Events emitted by the HTTP layer.
const (
	EventSignUp              = "account.sign_up"
	EventSignIn              = "account.sign_in"
	EventSignInFailed        = "account.sign_in_failed"
	EventProfileUpdated      = "account.profile_updated"
	EventPasswordChanged     = "account.password_changed"
	EventPasswordReset       = "account.password_reset"
	EventAdminProfileUpdated = "account.admin_profile_updated"
	EventAccountCreated      = "account.created"
	EventAccountDeleted      = "account.deleted"
)

// reserved keys cannot be overwritten by event fields.
var reserved = map[string]bool{"type": true, "event": true, "request_id": true, "actor_id": true, "actor_role": true}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit line enriched with the request id and the acting account.
// Never pass passwords or hashes in fields.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	keyvals := []any{"type", "audit", "event", event}
	if rid := RequestIDFromContext(ctx); rid != "" {
		keyvals = append(keyvals, "request_id", rid)
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		keyvals = append(keyvals, "actor_id", p.AccountID, "actor_role", string(p.Role))
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !reserved[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		keyvals = append(keyvals, k, fields[k])
	}
	obs.Logger().Info("audit", keyvals...)
	return nil
}
