package auth

import "context"

// AccountStore is the persistence contract the lifecycle manager depends on.
// Lookups report absence with ErrAccountNotFound; a unique email violation surfaces as ErrConflict.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *Account) (int64, error)
	FindAccountByID(ctx context.Context, id int64) (Account, error)
	FindAccountByEmail(ctx context.Context, email string) (Account, error)
	UpdateAccount(ctx context.Context, account Account) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	DeleteAccount(ctx context.Context, id int64) error
}

// AccountDirectory lists accounts for administration screens. It is not used by Manager.
type AccountDirectory interface {
	ListAccountsByRole(ctx context.Context, roles ...Role) ([]Account, error)
}
