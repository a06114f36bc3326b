package auth

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a process-local AccountStore. Safe for concurrent use.
type InMemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]Account
	byEmail map[string]int64
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[int64]Account),
		byEmail: make(map[string]int64),
		now:     time.Now,
	}
}

func (s *InMemoryStore) CreateAccount(ctx context.Context, account *Account) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[account.Email]; taken {
		return 0, ErrConflict
	}
	s.nextID++
	account.ID = s.nextID
	s.byID[account.ID] = *account
	s.byEmail[account.Email] = account.ID
	return account.ID, nil
}

func (s *InMemoryStore) FindAccountByID(ctx context.Context, id int64) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.byID[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acc, nil
}

func (s *InMemoryStore) FindAccountByEmail(ctx context.Context, email string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return s.byID[id], nil
}

func (s *InMemoryStore) UpdateAccount(ctx context.Context, account Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[account.ID]
	if !ok {
		return ErrAccountNotFound
	}
	if owner, taken := s.byEmail[account.Email]; taken && owner != account.ID {
		return ErrConflict
	}
	delete(s.byEmail, current.Email)
	s.byEmail[account.Email] = account.ID
	s.byID[account.ID] = account
	return nil
}

func (s *InMemoryStore) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.byID[id]
	if !ok {
		return ErrAccountNotFound
	}
	acc.PasswordHash = hash
	acc.ModifiedAt = s.now().UTC()
	s.byID[id] = acc
	return nil
}

// DeleteAccount removes the account if present.
func (s *InMemoryStore) DeleteAccount(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if acc, ok := s.byID[id]; ok {
		delete(s.byEmail, acc.Email)
		delete(s.byID, id)
	}
	return nil
}

// ListAccountsByRole returns accounts holding any of roles, ordered by id.
func (s *InMemoryStore) ListAccountsByRole(ctx context.Context, roles ...Role) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[Role]bool, len(roles))
	for _, r := range roles {
		want[r] = true
	}
	s.mu.RLock()
	out := make([]Account, 0, len(s.byID))
	for _, acc := range s.byID {
		if want[acc.Role] {
			out = append(out, acc)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
