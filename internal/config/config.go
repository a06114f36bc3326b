package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"bookie.org/internal/auth"
)

// EnvPrefix marks the environment variables read by Load. BOOKIE_SERVER_ADDR sets server.addr.
const EnvPrefix = "BOOKIE_"

const dateLayout = "2006-01-02"

type Config struct {
	Server    Server    `koanf:"server"`
	Database  Database  `koanf:"database"`
	Auth      Auth      `koanf:"auth"`
	Seed      Seed      `koanf:"seed"`
	Log       Log       `koanf:"log"`
	RateLimit RateLimit `koanf:"ratelimit"`
}

type Server struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" validate:"gt=0"`
	// TrustedProxies may set X-Forwarded-For; empty means the direct peer is the client.
	TrustedProxies  []string      `koanf:"trusted_proxies" validate:"dive,cidr|ip"`
}

// Database is optional; an empty DSN selects the in-memory store.
type Database struct {
	DSN         string `koanf:"dsn"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

type Auth struct {
	EmailDomain     string        `koanf:"email_domain" validate:"required,hostname"`
	MinimumAge      int           `koanf:"minimum_age" validate:"gte=1,lte=150"`
	HashConcurrency int64         `koanf:"hash_concurrency" validate:"gte=1"`
	Salt            string        `koanf:"salt" validate:"omitempty,min=8,max=128"`
	RandomSalt      bool          `koanf:"random_salt"`
	HashIterations  uint32        `koanf:"hash_iterations" validate:"gte=1,lte=64"`
	HashMemoryKiB   uint32        `koanf:"hash_memory_kib" validate:"gte=8,lte=2097152"`
	HashParallelism uint8         `koanf:"hash_parallelism" validate:"gte=1"`
	TokenSecret     string        `koanf:"token_secret" validate:"required,min=32"`
	TokenTTL        time.Duration `koanf:"token_ttl" validate:"gt=0"`
}

// Seed describes the SuperAdmin created on an empty database.
type Seed struct {
	Enabled     bool   `koanf:"enabled"`
	FirstName   string `koanf:"first_name" validate:"required_if=Enabled true"`
	LastName    string `koanf:"last_name" validate:"required_if=Enabled true"`
	Email       string `koanf:"email" validate:"required_if=Enabled true"`
	Password    string `koanf:"password" validate:"required_if=Enabled true"`
	DateOfBirth string `koanf:"date_of_birth" validate:"required_if=Enabled true,omitempty,datetime=2006-01-02"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text logfmt"`
}

type RateLimit struct {
	RPS   float64 `koanf:"rps" validate:"gte=0"`
	Burst int     `koanf:"burst" validate:"gte=0"`
}

// Default returns the built-in configuration. TokenSecret has no default.
func Default() Config {
	legacy := auth.LegacyHashParams()
	seed := auth.DefaultSeedAccount()
	return Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Database: Database{AutoMigrate: true},
		Auth: Auth{
			EmailDomain:     auth.DefaultEmailDomain,
			MinimumAge:      auth.DefaultMinimumAge,
			HashConcurrency: 4,
			Salt:            string(legacy.Salt),
			HashIterations:  legacy.Iterations,
			HashMemoryKiB:   legacy.Memory,
			HashParallelism: legacy.Parallelism,
			TokenTTL:        12 * time.Hour,
		},
		Seed: Seed{
			Enabled:     true,
			FirstName:   seed.FirstName,
			LastName:    seed.LastName,
			Email:       seed.Email,
			Password:    seed.Password,
			DateOfBirth: seed.DateOfBirth.Format(dateLayout),
		},
		Log:       Log{Level: "info", Format: "json"},
		RateLimit: RateLimit{RPS: 10, Burst: 20},
	}
}

// Load layers defaults, the given .env files (".env" when none) and BOOKIE_* variables, then validates.
// Missing .env files are ignored; variables already set in the process win over .env values.
func Load(envFiles ...string) (*Config, error) {
	return load(envFiles)
}

// LoadForSeeding is Load without the session settings, for tools that never issue tokens.
func LoadForSeeding(envFiles ...string) (*Config, error) {
	return load(envFiles, sessionFields...)
}

// sessionFields are skipped by LoadForSeeding.
var sessionFields = []string{"Auth.TokenSecret", "Auth.TokenTTL"}

func load(envFiles []string, skip ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKey(key), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.validate(skip...); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps BOOKIE_AUTH_TOKEN_SECRET to auth.token_secret.
func envKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '_' })
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return parts[0] + "." + strings.Join(parts[1:], "_")
}

// Validate checks struct tags.
func (c *Config) Validate() error {
	return c.validate()
}

func (c *Config) validate(skip ...string) error {
	v := validator.New()
	err := v.Struct(c)
	if len(skip) > 0 {
		err = v.StructExcept(c, skip...)
	}
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// HashParams converts the auth section into Argon2 parameters.
func (c *Config) HashParams() auth.HashParams {
	p := auth.HashParams{
		Iterations:  c.Auth.HashIterations,
		Memory:      c.Auth.HashMemoryKiB,
		Parallelism: c.Auth.HashParallelism,
		KeyLength:   32,
	}
	if c.Auth.RandomSalt || c.Auth.Salt == "" {
		p.SaltLength = 16
	} else {
		p.Salt = []byte(c.Auth.Salt)
	}
	return p
}

func (c *Config) Policy() auth.Policy {
	return auth.NewPolicy(c.Auth.EmailDomain, c.Auth.MinimumAge)
}

func (c *Config) SeedAccount() (auth.SeedAccount, error) {
	dob, err := time.ParseInLocation(dateLayout, c.Seed.DateOfBirth, time.UTC)
	if err != nil {
		return auth.SeedAccount{}, fmt.Errorf("seed date_of_birth: %w", err)
	}
	return auth.SeedAccount{
		FirstName:   c.Seed.FirstName,
		LastName:    c.Seed.LastName,
		Email:       c.Seed.Email,
		Password:    c.Seed.Password,
		DateOfBirth: dob,
	}, nil
}
