package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/eatthat/eatthat/internal/shared"
	"github.com/eatthat/eatthat/internal/users"
)

// UserDirectory resolves accounts for credential checks. Implemented by the
// users repository.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	directory UserDirectory
	sessions  SessionRepository
}

// NewService constructs a new Service.
func NewService(directory UserDirectory, sessions SessionRepository) *Service {
	return &Service{directory: directory, sessions: sessions}
}

// Authenticate validates email/password credentials. Every failure mode maps
// to the same error so responses never reveal which part was wrong.
func (s *Service) Authenticate(ctx context.Context, email, password string) (users.User, error) {
	user, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.sessions.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.sessions.DeleteSession(ctx, id)
}

// PurgeExpiredSessions sweeps session records past their expiry.
func (s *Service) PurgeExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return s.sessions.DeleteExpiredSessions(ctx, now)
}
