package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"pollhub/contexts/identity-access/identity-service/domain/entities"
	domainerrors "pollhub/contexts/identity-access/identity-service/domain/errors"

	"github.com/google/uuid"
)

// Store is the in-memory user repository. The mutex spans the email
// uniqueness check and insert, matching the database constraint behavior.
type Store struct {
	mu sync.RWMutex

	users   map[string]entities.User
	byEmail map[string]string

	now time.Time
}

func NewStore() *Store {
	return &Store{
		users:   make(map[string]entities.User),
		byEmail: make(map[string]string),
	}
}

func (s *Store) SetNow(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.now.IsZero() {
		return time.Now().UTC()
	}
	return s.now
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Store) CreateUser(_ context.Context, user entities.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if _, taken := s.byEmail[email]; taken {
		return domainerrors.ErrEmailTaken
	}
	s.users[user.UserID] = user
	s.byEmail[email] = user.UserID
	return nil
}

func (s *Store) GetUser(_ context.Context, userID string) (entities.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[strings.TrimSpace(userID)]
	if !ok {
		return entities.User{}, domainerrors.ErrUserNotFound
	}
	return user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (entities.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return entities.User{}, false, nil
	}
	return s.users[userID], true, nil
}
