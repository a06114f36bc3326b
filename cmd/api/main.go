package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookie.org/internal/auth"
	"bookie.org/internal/config"
	"bookie.org/internal/httpapi"
	"bookie.org/internal/migrate"
	"bookie.org/internal/obs"
	"bookie.org/internal/session"
	"bookie.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

const defaultAdminSeed = "default_admin"

func main() {
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		obs.Logger().Fatal("load configuration", "err", err)
	}
	obs.Configure(obs.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr)
	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger := obs.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hasher, err := auth.NewPasswordHasher(cfg.HashParams(), cfg.Auth.HashConcurrency)
	if err != nil {
		logger.Fatal("password hasher", "err", err)
	}
	seed, err := cfg.SeedAccount()
	if err != nil {
		logger.Fatal("seed account", "err", err)
	}

	var (
		store interface {
			auth.AccountStore
			auth.AccountDirectory
		}
		ready httpapi.ReadyProbe
		db    *pg.Store
	)
	if cfg.Database.DSN != "" {
		db, err = pg.Open(cfg.Database.DSN)
		if err != nil {
			logger.Fatal("open database", "err", err)
		}
		defer db.Close()
		store, ready = db, httpapi.ReadyProbe{Pinger: db}
	} else {
		logger.Warn("no database configured, accounts are kept in memory")
		store = auth.NewInMemoryStore()
	}

	accounts, err := auth.NewManager(store,
		auth.WithHasher(hasher),
		auth.WithPolicy(cfg.Policy()),
		auth.WithSeedAccount(seed),
	)
	if err != nil {
		logger.Fatal("account manager", "err", err)
	}

	if db != nil {
		mgr := migrate.NewManager(db.DB(), migrate.Migrations())
		if cfg.Database.AutoMigrate {
			if err := mgr.Up(ctx); err != nil {
				logger.Fatal("apply migrations", "err", err)
			}
		}
		if cfg.Seed.Enabled {
			if _, err := mgr.SeedOnce(ctx, defaultAdminSeed, bootstrap(accounts)); err != nil {
				logger.Fatal("seed default administrator", "err", err)
			}
		}
	} else if cfg.Seed.Enabled {
		if err := bootstrap(accounts)(ctx); err != nil {
			logger.Fatal("seed default administrator", "err", err)
		}
	}

	issuer, err := session.NewIssuer(cfg.Auth.TokenSecret, session.WithTTL(cfg.Auth.TokenTTL))
	if err != nil {
		logger.Fatal("session issuer", "err", err)
	}

	api, err := httpapi.New(httpapi.Config{
		Accounts:     accounts,
		Directory:    store,
		Sessions:     issuer,
		Ready:        ready,
		Version:      version,
		RateBurst:    cfg.RateLimit.Burst,
		RatePerSec:   cfg.RateLimit.RPS,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,

		TrustedProxies: cfg.Server.TrustedProxies,
	})
	if err != nil {
		logger.Fatal("http api", "err", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting bookie-api", "version", version, "addr", srv.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("listen", "err", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	logger.Info("stopped")
}

// bootstrap creates the default SuperAdmin. An account already holding the seed email counts as seeded.
func bootstrap(accounts *auth.Manager) migrate.SeedFunc {
	return func(ctx context.Context) error {
		_, err := accounts.BootstrapDefaultAdmin(ctx)
		if errors.Is(err, auth.ErrDuplicateAccount) {
			obs.Logger().Info("default administrator already present")
			return nil
		}
		return err
	}
}
