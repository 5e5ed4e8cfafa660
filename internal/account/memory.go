package account

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps accounts in process memory. A single mutex serializes
// every write, which is enough for tests and single-instance development.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*Account
	byEmail map[string]uuid.UUID
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[uuid.UUID]*Account),
		byEmail: make(map[string]uuid.UUID),
		now:     time.Now,
	}
}

// Create inserts a new account. ID and timestamps are assigned when empty.
func (s *MemoryStore) Create(ctx context.Context, a *Account) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := NormalizeEmail(a.Email)
	if _, exists := s.byEmail[email]; exists {
		return nil, ErrDuplicateEmail
	}

	stored := a.Clone()
	stored.Email = email
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.Presence == "" {
		stored.Presence = PresenceOffline
	}
	now := s.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.byID[stored.ID] = stored
	s.byEmail[email] = stored.ID

	return stored.Clone(), nil
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

// Update applies mutate to a copy of the account and commits it only when
// mutate succeeds. ID, email and CreatedAt cannot be changed.
func (s *MemoryStore) Update(ctx context.Context, id uuid.UUID, mutate MutateFunc) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}

	working := current.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}

	working.ID = current.ID
	working.Email = current.Email
	working.CreatedAt = current.CreatedAt
	working.UpdatedAt = s.now()

	s.byID[id] = working
	return working.Clone(), nil
}
