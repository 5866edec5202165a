package users

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/eatthat/eatthat/internal/rbac"
	"github.com/eatthat/eatthat/internal/shared"
	"github.com/eatthat/eatthat/internal/tenant"
)

// Service manages user accounts. Role assignment always runs as a second
// phase after the account row exists, so a failed resolution never leaves a
// half-created user with partial grants.
type Service struct {
	repo   Repository
	rbac   *rbac.Service
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, rbacSvc *rbac.Service, logger *slog.Logger) *Service {
	return &Service{repo: repo, rbac: rbacSvc, logger: logger}
}

// CreateInput carries the fields for a new account plus the roles to assign
// within the given scope once the account exists.
type CreateInput struct {
	Email    string
	Name     string
	Password string
	Roles    []string
}

// Create registers an account, then assigns the requested roles stamped with
// the scope. The account row is committed before assignment starts; callers
// that need atomicity across both phases retry the assignment.
func (s *Service) Create(ctx context.Context, scope tenant.Scope, input CreateInput) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		UUID:         uuid.NewString(),
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: string(hash),
	})
	if err != nil {
		return User{}, err
	}
	if len(input.Roles) > 0 {
		refs := make([]rbac.RoleRef, 0, len(input.Roles))
		for _, name := range input.Roles {
			refs = append(refs, rbac.RoleNamed(name))
		}
		if err := s.rbac.AssignRoles(ctx, scope, &user, refs...); err != nil {
			return User{}, err
		}
	}
	return user, nil
}

// Get fetches one account.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// Member resolves a user id into an RBAC member. Satisfies
// rbac.MemberLoader.
func (s *Service) Member(ctx context.Context, userID int64) (rbac.Member, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// List pages through accounts.
func (s *Service) List(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	users, total, err := s.repo.ListUsers(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(page, perPage, total), nil
}

// Delete soft-deletes an account.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.SoftDeleteUser(ctx, id)
}
