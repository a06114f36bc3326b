package auth

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	charmlog "github.com/charmbracelet/log"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, store AccountStore, opts ...Option) *Manager {
	t.Helper()
	base := []Option{
		WithHasher(testHasher(t)),
		WithClock(func() time.Time { return testNow }),
		WithLogger(charmlog.New(io.Discard)),
	}
	m, err := NewManager(store, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func student() SignUpInput {
	return SignUpInput{
		FirstName:   "  Alice ",
		LastName:    "Smith",
		Email:       "Alice.Smith@bookie.ac.uk",
		DateOfBirth: time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC),
		Password:    "hunter22",
	}
}

func TestSignUpSignInRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	m := newTestManager(t, store)

	id, err := m.SignUp(ctx, student())
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}

	acc, err := m.SignIn(ctx, " ALICE.smith@bookie.ac.uk", "hunter22")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if acc.ID != id || acc.FirstName != "alice" || acc.Email != "alice.smith@bookie.ac.uk" {
		t.Fatalf("unexpected account %+v", acc)
	}
	if acc.Role != RoleStudent {
		t.Fatalf("expected student role, got %s", acc.Role)
	}
	if acc.PasswordHash == "hunter22" || acc.PasswordHash == "" {
		t.Fatal("password stored in clear")
	}
	if acc.NetworkHash == "" || len(acc.NetworkHash) > 16 {
		t.Fatalf("unexpected network hash %q", acc.NetworkHash)
	}
	if !acc.CreatedAt.Equal(testNow) || !acc.ModifiedAt.Equal(testNow) {
		t.Fatalf("unexpected timestamps %v %v", acc.CreatedAt, acc.ModifiedAt)
	}
	if acc.DisplayName() != "Alice Smith" {
		t.Fatalf("DisplayName = %q", acc.DisplayName())
	}
}

func TestSignUpRejections(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, NewInMemoryStore())

	cases := []struct {
		name   string
		mutate func(*SignUpInput)
		field  string
	}{
		{"short first name", func(in *SignUpInput) { in.FirstName = "Al" }, FieldFirstName},
		{"digit in last name", func(in *SignUpInput) { in.LastName = "Sm1th" }, FieldLastName},
		{"foreign domain", func(in *SignUpInput) { in.Email = "alice@gmail.com" }, FieldEmail},
		{"too young", func(in *SignUpInput) { in.DateOfBirth = testNow.AddDate(-12, 0, 1) }, FieldDateOfBirth},
		{"missing birth date", func(in *SignUpInput) { in.DateOfBirth = time.Time{} }, FieldDateOfBirth},
		{"blank password", func(in *SignUpInput) { in.Password = " " }, FieldPassword},
		{"unknown role", func(in *SignUpInput) { in.Role = "lecturer" }, FieldRole},
	}
	for _, tc := range cases {
		in := student()
		tc.mutate(&in)
		_, err := m.SignUp(ctx, in)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
		if verr.Field != tc.field {
			t.Fatalf("%s: field = %s, want %s", tc.name, verr.Field, tc.field)
		}
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, NewInMemoryStore())
	if _, err := m.SignUp(ctx, student()); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	dup := student()
	dup.FirstName = "Bobby"
	dup.Email = "ALICE.SMITH@bookie.ac.uk"
	if _, err := m.SignUp(ctx, dup); !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}

// racingStore reports no existing account, then loses the insert to a concurrent writer.
type racingStore struct{ *InMemoryStore }

func (racingStore) FindAccountByEmail(context.Context, string) (Account, error) {
	return Account{}, ErrAccountNotFound
}

func (racingStore) CreateAccount(context.Context, *Account) (int64, error) {
	return 0, ErrConflict
}

func TestSignUpConflictOnInsert(t *testing.T) {
	m := newTestManager(t, racingStore{NewInMemoryStore()})
	_, err := m.SignUp(context.Background(), student())
	if !errors.Is(err, ErrDuplicateAccount) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected duplicate wrapping conflict, got %v", err)
	}
}

func TestSignInFailures(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	m := newTestManager(t, store)
	if _, err := m.SignUp(ctx, student()); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	if _, err := m.SignIn(ctx, "", "x"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty email: %v", err)
	}
	if _, err := m.SignIn(ctx, "alice.smith@bookie.ac.uk", ""); UserMessage(err) != "All fields are required!" {
		t.Fatalf("empty password: %v", err)
	}
	if _, err := m.SignIn(ctx, "alice@gmail.com", "x"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad email: %v", err)
	}
	if _, err := m.SignIn(ctx, "nobody@bookie.ac.uk", "x"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("unknown email: %v", err)
	}
	if _, err := m.SignIn(ctx, "alice.smith@bookie.ac.uk", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
}

func TestSignInMalformedStoredHash(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	m := newTestManager(t, store)
	id, err := m.SignUp(ctx, student())
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if err := store.UpdatePasswordHash(ctx, id, "not-a-hash"); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}
	if _, err := m.SignIn(ctx, "alice.smith@bookie.ac.uk", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	m := newTestManager(t, store)
	id, _ := m.SignUp(ctx, student())
	otherIn := student()
	otherIn.Email = "bob@bookie.ac.uk"
	if _, err := m.SignUp(ctx, otherIn); err != nil {
		t.Fatalf("SignUp other: %v", err)
	}

	err := m.UpdateProfile(ctx, id, ProfileUpdate{FirstName: "Alicia", LastName: "Jones", Email: "BOB@bookie.ac.uk"})
	if !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}

	dob := time.Date(1999, 5, 5, 15, 0, 0, 0, time.UTC)
	if err := m.UpdateProfile(ctx, id, ProfileUpdate{FirstName: "Alicia", LastName: "Jones", Email: "aj@bookie.ac.uk", DateOfBirth: &dob}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	acc, _ := store.FindAccountByID(ctx, id)
	if acc.FirstName != "alicia" || acc.LastName != "jones" || acc.Email != "aj@bookie.ac.uk" {
		t.Fatalf("profile not applied: %+v", acc)
	}
	if !acc.DateOfBirth.Equal(time.Date(1999, 5, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected dob %v", acc.DateOfBirth)
	}
	if _, err := store.FindAccountByEmail(ctx, "alice.smith@bookie.ac.uk"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatal("old email must be released")
	}

	if err := m.UpdateProfile(ctx, id, ProfileUpdate{FirstName: "Alicia", LastName: "Jones", Email: "aj@bookie.ac.uk"}); err != nil {
		t.Fatalf("keeping email: %v", err)
	}
	acc, _ = store.FindAccountByID(ctx, id)
	if !acc.DateOfBirth.Equal(time.Date(1999, 5, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("nil date of birth must keep stored value")
	}

	if err := m.UpdateProfile(ctx, 999, ProfileUpdate{FirstName: "Alicia", LastName: "Jones", Email: "x@bookie.ac.uk"}); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("missing account: %v", err)
	}
	if err := m.UpdateProfile(ctx, id, ProfileUpdate{FirstName: "Al", LastName: "Jones", Email: "aj@bookie.ac.uk"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("invalid name: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, NewInMemoryStore())
	id, _ := m.SignUp(ctx, student())

	if err := m.ChangePassword(ctx, id, "", "", ""); UserMessage(err) != "All fields are required!" {
		t.Fatalf("all empty: %v", err)
	}
	err := m.ChangePassword(ctx, id, "hunter22", "newpass1", "newpass2")
	if !errors.Is(err, ErrPasswordMismatch) || !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("mismatch: %v", err)
	}
	if UserMessage(err) != "New password is not the same as the password confirmation" {
		t.Fatalf("mismatch message: %q", UserMessage(err))
	}
	if err := m.ChangePassword(ctx, id, "hunter22", " ", " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank new password: %v", err)
	}
	if err := m.ChangePassword(ctx, id, "wrong", "newpass1", "newpass1"); !errors.Is(err, ErrIncorrectPassword) {
		t.Fatalf("wrong current: %v", err)
	}
	if err := m.ChangePassword(ctx, 404, "hunter22", "newpass1", "newpass1"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("missing account: %v", err)
	}
	if err := m.ChangePassword(ctx, id, "hunter22", "newpass1", "newpass1"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := m.SignIn(ctx, "alice.smith@bookie.ac.uk", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still works: %v", err)
	}
	if _, err := m.SignIn(ctx, "alice.smith@bookie.ac.uk", "newpass1"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestAdminUpdatePassword(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, NewInMemoryStore())
	id, _ := m.SignUp(ctx, student())

	if err := m.AdminUpdatePassword(ctx, id, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank: %v", err)
	}
	if err := m.AdminUpdatePassword(ctx, 0, "reset123"); !errors.Is(err, ErrInvalidAccountID) {
		t.Fatalf("zero id: %v", err)
	}
	if err := m.AdminUpdatePassword(ctx, 77, "reset123"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("missing: %v", err)
	}
	if err := m.AdminUpdatePassword(ctx, id, "reset123"); err != nil {
		t.Fatalf("AdminUpdatePassword: %v", err)
	}
	if _, err := m.SignIn(ctx, "alice.smith@bookie.ac.uk", "reset123"); err != nil {
		t.Fatalf("reset password rejected: %v", err)
	}
}

func TestUpdateAdminProfile(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	m := newTestManager(t, store)
	id, _ := m.SignUp(ctx, student())

	if err := m.UpdateAdminProfile(ctx, -1, "Carol", "White"); !errors.Is(err, ErrInvalidAccountID) {
		t.Fatalf("negative id: %v", err)
	}
	if err := m.UpdateAdminProfile(ctx, 55, "Carol", "White"); !errors.Is(err, ErrInvalidAccountID) {
		t.Fatalf("missing id: %v", err)
	}
	if err := m.UpdateAdminProfile(ctx, id, "Carol", "W"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("short last name: %v", err)
	}
	if err := m.UpdateAdminProfile(ctx, id, " Carol ", "WHITE"); err != nil {
		t.Fatalf("UpdateAdminProfile: %v", err)
	}
	acc, _ := store.FindAccountByID(ctx, id)
	if acc.FirstName != "carol" || acc.LastName != "white" {
		t.Fatalf("names not applied: %+v", acc)
	}
	if acc.Email != "alice.smith@bookie.ac.uk" {
		t.Fatal("email must not change")
	}
}

func TestDeleteAccountIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	m := newTestManager(t, store)
	id, _ := m.SignUp(ctx, student())

	for i := 0; i < 2; i++ {
		if err := m.DeleteAccount(ctx, id); err != nil {
			t.Fatalf("DeleteAccount #%d: %v", i, err)
		}
	}
	if err := m.DeleteAccount(ctx, 0); err != nil {
		t.Fatalf("DeleteAccount(0): %v", err)
	}
	if _, err := store.FindAccountByID(ctx, id); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("account still present: %v", err)
	}
	if _, err := m.SignUp(ctx, student()); err != nil {
		t.Fatalf("email must be reusable after delete: %v", err)
	}
}

func TestBootstrapDefaultAdmin(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, NewInMemoryStore())

	id, err := m.BootstrapDefaultAdmin(ctx)
	if err != nil {
		t.Fatalf("BootstrapDefaultAdmin: %v", err)
	}
	acc, err := m.SignIn(ctx, "jb@bookie.ac.uk", "Admin123")
	if err != nil {
		t.Fatalf("SignIn seed: %v", err)
	}
	if acc.ID != id || acc.Role != RoleSuperAdmin || acc.FirstName != "julian" || acc.LastName != "blake" {
		t.Fatalf("unexpected seed account %+v", acc)
	}
	if !acc.DateOfBirth.Equal(time.Date(1990, 8, 21, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected seed dob %v", acc.DateOfBirth)
	}
	if _, err := m.BootstrapDefaultAdmin(ctx); !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("second bootstrap: %v", err)
	}
}

func TestBootstrapCustomSeed(t *testing.T) {
	ctx := context.Background()
	seed := SeedAccount{
		FirstName:   "grace",
		LastName:    "hopper",
		Email:       "gh@example.edu",
		Password:    "Cobol1959",
		DateOfBirth: time.Date(1980, 12, 9, 0, 0, 0, 0, time.UTC),
	}
	m := newTestManager(t, NewInMemoryStore(), WithSeedAccount(seed), WithPolicy(NewPolicy("example.edu", 16)))
	if _, err := m.BootstrapDefaultAdmin(ctx); err != nil {
		t.Fatalf("BootstrapDefaultAdmin: %v", err)
	}
	if _, err := m.SignIn(ctx, "gh@example.edu", "Cobol1959"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
}

// brokenStore fails every call with an infrastructure error.
type brokenStore struct{}

var errDisk = errors.New("disk on fire")

func (brokenStore) CreateAccount(context.Context, *Account) (int64, error) { return 0, errDisk }
func (brokenStore) FindAccountByID(context.Context, int64) (Account, error) {
	return Account{}, errDisk
}
func (brokenStore) FindAccountByEmail(context.Context, string) (Account, error) {
	return Account{}, errDisk
}
func (brokenStore) UpdateAccount(context.Context, Account) error            { return errDisk }
func (brokenStore) UpdatePasswordHash(context.Context, int64, string) error { return errDisk }
func (brokenStore) DeleteAccount(context.Context, int64) error              { return errDisk }

func TestStoreFailuresAreUnexpected(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, brokenStore{})

	checks := map[string]error{}
	_, checks["sign_up"] = m.SignUp(ctx, student())
	_, checks["sign_in"] = m.SignIn(ctx, "alice.smith@bookie.ac.uk", "hunter22")
	checks["update_profile"] = m.UpdateProfile(ctx, 1, ProfileUpdate{FirstName: "alice", LastName: "smith", Email: "a@bookie.ac.uk"})
	checks["change_password"] = m.ChangePassword(ctx, 1, "a", "b", "b")
	checks["admin_update_password"] = m.AdminUpdatePassword(ctx, 1, "b")
	checks["update_admin_profile"] = m.UpdateAdminProfile(ctx, 1, "alice", "smith")
	checks["delete_account"] = m.DeleteAccount(ctx, 1)

	for op, err := range checks {
		if !errors.Is(err, ErrUnexpected) {
			t.Fatalf("%s: expected ErrUnexpected, got %v", op, err)
		}
		if !errors.Is(err, errDisk) {
			t.Fatalf("%s: cause lost: %v", op, err)
		}
		if UserMessage(err) != "Something went wrong" {
			t.Fatalf("%s: leaked message %q", op, UserMessage(err))
		}
		if Outcome(err) != "error" {
			t.Fatalf("%s: outcome %s", op, Outcome(err))
		}
	}
}

func TestNewManagerRequiresStore(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewManager(NewInMemoryStore(), WithClock(nil)); err == nil {
		t.Fatal("expected error for nil clock")
	}
}

func TestUserMessage(t *testing.T) {
	cases := map[error]string{
		nil:                                    "",
		ErrDuplicateAccount:                    "An account with this email already exists",
		ErrAccountNotFound:                     "Account not found",
		ErrInvalidCredentials:                  "Invalid credentials provided",
		ErrIncorrectPassword:                   "Incorrect current password provided, please try again",
		ErrInvalidAccountID:                    "Invalid User ID",
		invalid(FieldEmail, "Bad email"):       "Bad email",
		errors.New("boom"):                     "Something went wrong",
		unexpected("op", errors.New("secret")): "Something went wrong",
	}
	for err, want := range cases {
		if got := UserMessage(err); got != want {
			t.Fatalf("UserMessage(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestOutcome(t *testing.T) {
	cases := map[error]string{
		nil:                              "ok",
		invalid(FieldEmail, "x"):         "invalid",
		ErrPasswordMismatch:              "invalid",
		ErrDuplicateAccount:              "duplicate",
		ErrAccountNotFound:               "not_found",
		ErrInvalidAccountID:              "not_found",
		ErrInvalidCredentials:            "denied",
		ErrIncorrectPassword:             "denied",
		unexpected("x", errors.New("y")): "error",
	}
	for err, want := range cases {
		if got := Outcome(err); got != want {
			t.Fatalf("Outcome(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestSignUpAgeCheckWithClockOutsideUTC(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	edt := time.FixedZone("EDT", -4*60*60)
	m := newTestManager(t, store, WithClock(func() time.Time {
		return time.Date(2026, 10, 15, 12, 0, 0, 0, edt)
	}))

	in := student()
	in.DateOfBirth = time.Date(2014, 10, 16, 0, 0, 0, 0, time.UTC)
	if _, err := m.SignUp(ctx, in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected a day short of twelve to be rejected, got %v", err)
	}

	in.DateOfBirth = time.Date(2014, 10, 15, 0, 0, 0, 0, time.UTC)
	id, err := m.SignUp(ctx, in)
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	acc, _ := store.FindAccountByID(ctx, id)
	if !acc.DateOfBirth.Equal(time.Date(2014, 10, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("stored dob %v differs from the validated date", acc.DateOfBirth)
	}
}
