package storage

import (
	"context"
	"sync"
	"time"

	"github.com/dgellow/throwapin-auth/internal/idp"
)

// Ensure MemoryStorage implements UserStore
var _ UserStore = (*MemoryStorage)(nil)

// MemoryStorage keeps users in process memory. Used for development and tests.
type MemoryStorage struct {
	users      map[string]*User // map[email] = User
	usersMutex sync.RWMutex
	now        func() time.Time
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users: make(map[string]*User),
		now:   time.Now,
	}
}

// UpsertUser creates the user or updates its mutable fields
func (s *MemoryStorage) UpsertUser(ctx context.Context, profile idp.Profile) error {
	if err := validateProfile(profile); err != nil {
		return err
	}

	s.usersMutex.Lock()
	defer s.usersMutex.Unlock()

	if user, exists := s.users[profile.Email]; exists {
		// Copy so readers holding the old value never see a partial update
		userCopy := *user
		userCopy.Name = profile.Name
		userCopy.AuthType = profile.AuthType
		s.users[profile.Email] = &userCopy
		return nil
	}

	s.users[profile.Email] = &User{
		Email:     profile.Email,
		Name:      profile.Name,
		AuthType:  profile.AuthType,
		CreatedAt: s.now().UTC(),
	}
	return nil
}

// GetUser returns a copy of the stored user
func (s *MemoryStorage) GetUser(ctx context.Context, email string) (*User, error) {
	s.usersMutex.RLock()
	defer s.usersMutex.RUnlock()

	user, exists := s.users[email]
	if !exists {
		return nil, ErrUserNotFound
	}
	userCopy := *user
	return &userCopy, nil
}

// Count returns the number of stored users
func (s *MemoryStorage) Count() int {
	s.usersMutex.RLock()
	defer s.usersMutex.RUnlock()
	return len(s.users)
}

// Close is a no-op for memory storage
func (s *MemoryStorage) Close(ctx context.Context) error {
	return nil
}
