package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"bookie.org/internal/auth"
	"bookie.org/internal/config"
	"bookie.org/internal/migrate"
	"bookie.org/internal/obs"
	"bookie.org/internal/store/pg"
)

const defaultAdminSeed = "default_admin"

func main() {
	var (
		dsn       = flag.String("dsn", os.Getenv(config.EnvPrefix+"DATABASE_DSN"), "PostgreSQL DSN")
		seedsPath = flag.String("seeds", "", "optional directory of *.sql seeds")
		envFile   = flag.String("env", ".env", "optional dotenv file, read by the seed command")
	)
	flag.Parse()
	logger := obs.Logger()

	if *dsn == "" {
		logger.Fatal("missing DSN: provide via -dsn or " + config.EnvPrefix + "DATABASE_DSN")
	}
	if len(flag.Args()) == 0 {
		logger.Fatal("usage: migrate [up|down|seed|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		logger.Fatal("open db", "err", err)
	}
	defer store.Close()

	var opts []migrate.Option
	if *seedsPath != "" {
		opts = append(opts, migrate.WithSQLSeeds(os.DirFS(*seedsPath)))
	}
	mgr := migrate.NewManager(store.DB(), migrate.Migrations(), opts...)

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = seed(ctx, mgr, store, *envFile)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		logger.Fatal("unknown command", "command", cmd)
	}
	if err != nil {
		logger.Fatal("migrate failed", "command", cmd, "err", err)
	}
	logger.Info("migrate done", "command", cmd)
}

// seed applies SQL seeds and then creates the default SuperAdmin once.
func seed(ctx context.Context, mgr *migrate.Manager, store *pg.Store, envFile string) error {
	if err := mgr.Seed(ctx); err != nil {
		return err
	}
	cfg, err := config.LoadForSeeding(envFile)
	if err != nil {
		return err
	}
	if !cfg.Seed.Enabled {
		return nil
	}
	account, err := cfg.SeedAccount()
	if err != nil {
		return err
	}
	hasher, err := auth.NewPasswordHasher(cfg.HashParams(), cfg.Auth.HashConcurrency)
	if err != nil {
		return err
	}
	accounts, err := auth.NewManager(store,
		auth.WithHasher(hasher),
		auth.WithPolicy(cfg.Policy()),
		auth.WithSeedAccount(account),
	)
	if err != nil {
		return err
	}
	ran, err := mgr.SeedOnce(ctx, defaultAdminSeed, func(ctx context.Context) error {
		_, err := accounts.BootstrapDefaultAdmin(ctx)
		if errors.Is(err, auth.ErrDuplicateAccount) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	obs.Logger().Info("default administrator seed", "ran", ran)
	return nil
}
