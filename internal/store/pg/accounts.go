package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookie.org/internal/auth"
)

var (
	_ auth.AccountStore     = (*Store)(nil)
	_ auth.AccountDirectory = (*Store)(nil)
)

const accountColumns = `id, first_name, last_name, email, password_hash, role, date_of_birth, network_name, created_at, modified_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (auth.Account, error) {
	var (
		acc  auth.Account
		role int16
	)
	if err := row.Scan(&acc.ID, &acc.FirstName, &acc.LastName, &acc.Email, &acc.PasswordHash,
		&role, &acc.DateOfBirth, &acc.NetworkHash, &acc.CreatedAt, &acc.ModifiedAt); err != nil {
		return auth.Account{}, err
	}
	decoded, err := auth.DecodeRole(role)
	if err != nil {
		return auth.Account{}, err
	}
	acc.Role = decoded
	acc.DateOfBirth = dateOnly(acc.DateOfBirth)
	return acc, nil
}

func (s *Store) CreateAccount(ctx context.Context, account *auth.Account) (int64, error) {
	role, err := auth.EncodeRole(account.Role)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		insert into accounts(first_name, last_name, email, password_hash, role, date_of_birth, network_name, created_at, modified_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		returning id
	`, account.FirstName, account.LastName, account.Email, account.PasswordHash, role,
		account.DateOfBirth, account.NetworkHash, account.CreatedAt, account.ModifiedAt).Scan(&id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return 0, fmt.Errorf("%w: %s", auth.ErrConflict, pgErr.ConstraintName)
		}
		return 0, err
	}
	account.ID = id
	return id, nil
}

func (s *Store) FindAccountByID(ctx context.Context, id int64) (auth.Account, error) {
	acc, err := scanAccount(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Account{}, auth.ErrAccountNotFound
	}
	return acc, err
}

func (s *Store) FindAccountByEmail(ctx context.Context, email string) (auth.Account, error) {
	acc, err := scanAccount(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where email=$1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Account{}, auth.ErrAccountNotFound
	}
	return acc, err
}

// UpdateAccount replaces every mutable column of the row.
func (s *Store) UpdateAccount(ctx context.Context, account auth.Account) error {
	role, err := auth.EncodeRole(account.Role)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set first_name=$2, last_name=$3, email=$4, password_hash=$5, role=$6,
		    date_of_birth=$7, network_name=$8, modified_at=$9
		where id=$1
	`, account.ID, account.FirstName, account.LastName, account.Email, account.PasswordHash, role,
		account.DateOfBirth, account.NetworkHash, account.ModifiedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: %s", auth.ErrConflict, pgErr.ConstraintName)
		}
		return err
	}
	return expectOneRow(res)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set password_hash=$2, modified_at=$3 where id=$1`,
		id, hash, s.now().UTC())
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// DeleteAccount is a no-op for unknown ids.
func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `delete from accounts where id=$1`, id)
	return err
}

func (s *Store) ListAccountsByRole(ctx context.Context, roles ...auth.Role) ([]auth.Account, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(roles))
	marks := make([]string, 0, len(roles))
	for i, r := range roles {
		code, err := auth.EncodeRole(r)
		if err != nil {
			return nil, err
		}
		args = append(args, code)
		marks = append(marks, fmt.Sprintf("$%d", i+1))
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+accountColumns+` from accounts where role in (`+strings.Join(marks, ",")+`) order by id asc`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []auth.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrAccountNotFound
	}
	return nil
}

// dateOnly keeps the calendar date of t.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
