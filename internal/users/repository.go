package users

import "context"

// CreateUserParams carries the columns written for a new account.
type CreateUserParams struct {
	UUID         string
	Email        string
	Name         string
	PasswordHash string
}

// Repository defines persistence operations for user accounts.
type Repository interface {
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	FindByID(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]User, int, error)
	SoftDeleteUser(ctx context.Context, id int64) error
}
