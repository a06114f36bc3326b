package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bookie.org/internal/auth"
	"bookie.org/internal/obs"
	"bookie.org/internal/session"
)

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe reports readiness; a nil Pinger is always ready.
type ReadyProbe struct {
	Pinger Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Pinger == nil {
		return nil
	}
	return rp.Pinger.Ping(ctx)
}

// Sessions issues and verifies bearer tokens.
type Sessions interface {
	Issue(account auth.Account) (string, time.Time, error)
	Parse(token string) (*session.Claims, error)
}

// Config wires the API to its collaborators.
type Config struct {
	Accounts     *auth.Manager
	Directory    auth.AccountDirectory
	Sessions     Sessions
	Ready        ReadyProbe
	Version      string
	RateBurst    int
	RatePerSec   float64
	MaxBodyBytes int64

	// TrustedProxies holds CIDRs or addresses allowed to set X-Forwarded-For.
	TrustedProxies []string
}

// API is the HTTP controller in front of the account manager.
type API struct {
	router       chi.Router
	accounts     *auth.Manager
	directory    auth.AccountDirectory
	sessions     Sessions
	readyProbe   ReadyProbe
	version      string
	rateBurst    int
	ratePerSec   float64
	maxBodyBytes int64
	trusted      TrustedProxies
}

func New(cfg Config) (*API, error) {
	if cfg.Accounts == nil {
		return nil, errors.New("httpapi: account manager is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("httpapi: session issuer is required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("httpapi: account directory is required")
	}
	trusted, err := ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("httpapi: %w", err)
	}
	a := &API{
		accounts:     cfg.Accounts,
		directory:    cfg.Directory,
		sessions:     cfg.Sessions,
		readyProbe:   cfg.Ready,
		version:      cfg.Version,
		rateBurst:    cfg.RateBurst,
		ratePerSec:   cfg.RatePerSec,
		maxBodyBytes: cfg.MaxBodyBytes,
		trusted:      trusted,
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}
	a.router = a.routes()
	return a, nil
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/signup", a.handleSignUp)
		r.Post("/auth/signin", a.handleSignIn)

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)

			r.Get("/me", a.handleGetMe)
			r.Put("/me", a.handleUpdateMe)
			r.Post("/me/password", a.handleChangePassword)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/students", a.handleListStudents)
				r.Get("/admins", a.handleListAdmins)
				r.Post("/accounts", a.handleCreateAccount)
				r.Put("/accounts/{id}", a.handleRenameAccount)
				r.Put("/accounts/{id}/profile", a.handleEditProfile)
				r.Put("/accounts/{id}/password", a.handleResetPassword)
				r.Delete("/accounts/{id}", a.handleDeleteAccount)
			})
		})
	})
	return r
}

// Handler returns the router wrapped in the standard middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, a.maxBodyBytes)
	if a.ratePerSec > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSec)
	}
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = obs.Instrument(h)
	h = ClientIP(h, a.trusted)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "bookie-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.Logger().Warn("readiness check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":         "bookie-api",
		"time":         time.Now().UTC().Format(time.RFC3339),
		"version":      a.version,
		"email_domain": a.accounts.Policy().EmailDomain,
	})
}
