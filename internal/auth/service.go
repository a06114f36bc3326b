package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"

	"bookie.org/internal/obs"
)

// Hasher derives and checks password hashes.
type Hasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, encoded string) (bool, error)
}

// SeedAccount describes the SuperAdmin created on first start.
type SeedAccount struct {
	FirstName   string
	LastName    string
	Email       string
	Password    string
	DateOfBirth time.Time
}

// DefaultSeedAccount is the built-in SuperAdmin.
func DefaultSeedAccount() SeedAccount {
	return SeedAccount{
		FirstName:   "julian",
		LastName:    "blake",
		Email:       "jb@bookie.ac.uk",
		Password:    "Admin123",
		DateOfBirth: time.Date(1990, time.August, 21, 0, 0, 0, 0, time.UTC),
	}
}

// Manager runs the account lifecycle: sign-up, sign-in, profile and password edits, deletion.
// It holds no mutable state; construct one per process and share it.
type Manager struct {
	store    AccountStore
	hasher   Hasher
	identity IdentityGenerator
	policy   Policy
	seed     SeedAccount
	now      func() time.Time
	log      *charmlog.Logger
}

// Option configures Manager behaviour.
type Option func(*Manager) error

// WithClock overrides the time source for timestamps, age checks and identity hashes.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) error {
		if now == nil {
			return errors.New("auth: clock is nil")
		}
		m.now = now
		m.identity.now = now
		return nil
	}
}

// WithHasher replaces the default Argon2i hasher.
func WithHasher(h Hasher) Option {
	return func(m *Manager) error {
		if h == nil {
			return errors.New("auth: hasher is nil")
		}
		m.hasher = h
		return nil
	}
}

func WithPolicy(p Policy) Option {
	return func(m *Manager) error {
		m.policy = NewPolicy(p.EmailDomain, p.MinimumAge)
		return nil
	}
}

func WithSeedAccount(seed SeedAccount) Option {
	return func(m *Manager) error {
		m.seed = seed
		return nil
	}
}

func WithLogger(l *charmlog.Logger) Option {
	return func(m *Manager) error {
		if l != nil {
			m.log = l
		}
		return nil
	}
}

// NewManager builds a Manager over store. Unless overridden it hashes with LegacyHashParams.
func NewManager(store AccountStore, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("auth: account store is required")
	}
	m := &Manager{
		store:    store,
		identity: NewIdentityGenerator(),
		policy:   DefaultPolicy(),
		seed:     DefaultSeedAccount(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if m.hasher == nil {
		h, err := NewPasswordHasher(LegacyHashParams(), int64(runtime.GOMAXPROCS(0)))
		if err != nil {
			return nil, err
		}
		m.hasher = h
	}
	if m.log == nil {
		m.log = obs.Logger()
	}
	m.log = m.log.With("component", "auth")
	return m, nil
}

// Policy returns the validation rules in force.
func (m *Manager) Policy() Policy { return m.policy }

// SignUp registers an account and returns its id. An empty role means Student.
func (m *Manager) SignUp(ctx context.Context, in SignUpInput) (id int64, err error) {
	defer func() { m.record("sign_up", id, err) }()

	var dob *time.Time
	if !in.DateOfBirth.IsZero() {
		dob = &in.DateOfBirth
	}
	first, last, email, err := m.policy.validateProfile(in.FirstName, in.LastName, in.Email, dob, m.now())
	if err != nil {
		return 0, err
	}
	if dob == nil {
		return 0, invalid(FieldDateOfBirth, "Date of birth is required")
	}
	if err := m.policy.ValidatePasswordPresence(in.Password); err != nil {
		return 0, err
	}
	role := in.Role
	if role == "" {
		role = RoleStudent
	}
	if !role.Valid() {
		return 0, invalid(FieldRole, "Invalid role provided")
	}

	if _, err := m.store.FindAccountByEmail(ctx, email); err == nil {
		return 0, ErrDuplicateAccount
	} else if !errors.Is(err, ErrAccountNotFound) {
		return 0, unexpected("find account by email", err)
	}

	hash, err := m.hasher.Hash(ctx, in.Password)
	if err != nil {
		return 0, unexpected("hash password", err)
	}

	now := m.now().UTC()
	account := &Account{
		FirstName:    first,
		LastName:     last,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		DateOfBirth:  civilDate(in.DateOfBirth),
		NetworkHash:  m.identity.Generate(first, email),
		CreatedAt:    now,
		ModifiedAt:   now,
	}
	id, err = m.store.CreateAccount(ctx, account)
	switch {
	case errors.Is(err, ErrConflict):
		return 0, fmt.Errorf("%w: %w", ErrDuplicateAccount, err)
	case err != nil:
		return 0, unexpected("create account", err)
	case id <= 0:
		return 0, unexpected("create account", fmt.Errorf("store returned id %d", id))
	}
	return id, nil
}

// SignIn authenticates email and password. The returned Account still carries the hash;
// callers must present it through Account.Public.
func (m *Manager) SignIn(ctx context.Context, email, password string) (account Account, err error) {
	defer func() { m.record("sign_in", account.ID, err) }()

	email = NormalizeEmail(email)
	if email == "" {
		return Account{}, invalid(FieldEmail, "All fields are required!")
	}
	if password == "" {
		return Account{}, invalid(FieldPassword, "All fields are required!")
	}
	if err := m.policy.ValidateEmail(email); err != nil {
		return Account{}, err
	}

	found, err := m.store.FindAccountByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, unexpected("find account by email", err)
	}

	ok, err := m.hasher.Verify(ctx, password, found.PasswordHash)
	if errors.Is(err, ErrMalformedHash) {
		m.log.Error("stored password hash is unreadable", "account_id", found.ID, "err", err)
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, unexpected("verify password", err)
	}
	if !ok {
		return Account{}, ErrInvalidCredentials
	}
	return found, nil
}

// Account returns the account stored under id.
func (m *Manager) Account(ctx context.Context, id int64) (Account, error) {
	acc, err := m.store.FindAccountByID(ctx, id)
	if errors.Is(err, ErrAccountNotFound) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, unexpected("find account by id", err)
	}
	return acc, nil
}

// UpdateProfile applies a self-service edit. A nil DateOfBirth keeps the stored date.
func (m *Manager) UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) (err error) {
	defer func() { m.record("update_profile", id, err) }()

	current, err := m.Account(ctx, id)
	if err != nil {
		return err
	}
	now := m.now()
	first, last, email, err := m.policy.validateProfile(upd.FirstName, upd.LastName, upd.Email, upd.DateOfBirth, now)
	if err != nil {
		return err
	}
	if email != current.Email {
		other, err := m.store.FindAccountByEmail(ctx, email)
		switch {
		case err == nil && other.ID != id:
			return ErrDuplicateAccount
		case err != nil && !errors.Is(err, ErrAccountNotFound):
			return unexpected("find account by email", err)
		}
	}

	current.FirstName = first
	current.LastName = last
	current.Email = email
	if upd.DateOfBirth != nil {
		current.DateOfBirth = civilDate(*upd.DateOfBirth)
	}
	current.ModifiedAt = now.UTC()
	return m.save(ctx, current, ErrAccountNotFound)
}

// ChangePassword replaces the password after checking the current one.
func (m *Manager) ChangePassword(ctx context.Context, id int64, oldPassword, newPassword, confirmPassword string) (err error) {
	defer func() { m.record("change_password", id, err) }()

	if oldPassword == "" && newPassword == "" && confirmPassword == "" {
		return invalid(FieldPassword, "All fields are required!")
	}
	if err := m.policy.ValidatePasswordConfirmation(newPassword, confirmPassword); err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordMismatch, err)
	}
	if strings.TrimSpace(newPassword) == "" {
		return invalid(FieldPassword, "New password is required")
	}

	current, err := m.Account(ctx, id)
	if err != nil {
		return err
	}
	ok, err := m.hasher.Verify(ctx, oldPassword, current.PasswordHash)
	if errors.Is(err, ErrMalformedHash) {
		m.log.Error("stored password hash is unreadable", "account_id", id, "err", err)
		return ErrIncorrectPassword
	}
	if err != nil {
		return unexpected("verify password", err)
	}
	if !ok {
		return ErrIncorrectPassword
	}
	return m.setPassword(ctx, id, newPassword, ErrAccountNotFound)
}

// AdminUpdatePassword replaces the password without checking the current one.
// Callers must have authorized the acting user beforehand.
func (m *Manager) AdminUpdatePassword(ctx context.Context, id int64, newPassword string) (err error) {
	defer func() { m.record("admin_update_password", id, err) }()

	if strings.TrimSpace(newPassword) == "" {
		return invalid(FieldPassword, "New password is required")
	}
	if id <= 0 {
		return fmt.Errorf("%w: User ID is required", ErrInvalidAccountID)
	}
	return m.setPassword(ctx, id, newPassword, ErrAccountNotFound)
}

// UpdateAdminProfile renames an account. Callers must have authorized the acting user beforehand.
func (m *Manager) UpdateAdminProfile(ctx context.Context, id int64, firstName, lastName string) (err error) {
	defer func() { m.record("update_admin_profile", id, err) }()

	if id <= 0 {
		return fmt.Errorf("%w: User ID is required", ErrInvalidAccountID)
	}
	first, last := NormalizeName(firstName), NormalizeName(lastName)
	if err := m.policy.ValidateName(FieldFirstName, first); err != nil {
		return err
	}
	if err := m.policy.ValidateName(FieldLastName, last); err != nil {
		return err
	}

	current, err := m.store.FindAccountByID(ctx, id)
	if errors.Is(err, ErrAccountNotFound) {
		return ErrInvalidAccountID
	}
	if err != nil {
		return unexpected("find account by id", err)
	}
	current.FirstName = first
	current.LastName = last
	current.ModifiedAt = m.now().UTC()
	return m.save(ctx, current, ErrInvalidAccountID)
}

// DeleteAccount removes the account. Deleting an absent account succeeds.
func (m *Manager) DeleteAccount(ctx context.Context, id int64) (err error) {
	defer func() { m.record("delete_account", id, err) }()

	if id <= 0 {
		return nil
	}
	if err := m.store.DeleteAccount(ctx, id); err != nil && !errors.Is(err, ErrAccountNotFound) {
		return unexpected("delete account", err)
	}
	return nil
}

// BootstrapDefaultAdmin creates the seed SuperAdmin. It goes through SignUp, so a second call
// on the same store fails with ErrDuplicateAccount.
func (m *Manager) BootstrapDefaultAdmin(ctx context.Context) (int64, error) {
	id, err := m.SignUp(ctx, SignUpInput{
		FirstName:   m.seed.FirstName,
		LastName:    m.seed.LastName,
		Email:       m.seed.Email,
		DateOfBirth: m.seed.DateOfBirth,
		Password:    m.seed.Password,
		Role:        RoleSuperAdmin,
	})
	if err != nil {
		return 0, err
	}
	m.log.Info("default administrator created", "account_id", id, "email", NormalizeEmail(m.seed.Email))
	return id, nil
}

func (m *Manager) setPassword(ctx context.Context, id int64, password string, missing error) error {
	hash, err := m.hasher.Hash(ctx, password)
	if err != nil {
		return unexpected("hash password", err)
	}
	err = m.store.UpdatePasswordHash(ctx, id, hash)
	if errors.Is(err, ErrAccountNotFound) {
		return missing
	}
	if err != nil {
		return unexpected("update password hash", err)
	}
	return nil
}

func (m *Manager) save(ctx context.Context, account Account, missing error) error {
	err := m.store.UpdateAccount(ctx, account)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAccountNotFound):
		return missing
	case errors.Is(err, ErrConflict):
		return fmt.Errorf("%w: %w", ErrDuplicateAccount, err)
	default:
		return unexpected("update account", err)
	}
}

func (m *Manager) record(op string, id int64, err error) {
	outcome := Outcome(err)
	obs.ObserveAccountOperation(op, outcome)
	switch outcome {
	case "ok":
		m.log.Info("account operation", "op", op, "account_id", id)
	case "error":
		m.log.Error("account operation failed", "op", op, "account_id", id, "err", err)
	default:
		m.log.Debug("account operation rejected", "op", op, "account_id", id, "outcome", outcome)
	}
}

// Outcome classifies err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnexpected):
		return "error"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrPasswordMismatch):
		return "invalid"
	case errors.Is(err, ErrDuplicateAccount):
		return "duplicate"
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrInvalidAccountID):
		return "not_found"
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrIncorrectPassword):
		return "denied"
	default:
		return "error"
	}
}
