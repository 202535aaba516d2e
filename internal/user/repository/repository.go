package repository

import (
	"context"
	"errors"

	"auth-service/internal/user/domain"
)

// ErrDuplicate is returned by Create when a unique constraint on email,
// username, or phone is violated. The database constraint, not the caller's
// lookup, is what closes the concurrent-registration race.
var ErrDuplicate = errors.New("duplicate user key")

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	// GetByEmailUsernameOrPhone returns any user matching one of the given
	// identifiers, active or not. Used for registration conflict checks.
	GetByEmailUsernameOrPhone(ctx context.Context, email, username, phone string) (*domain.User, error)
	GetActiveByEmail(ctx context.Context, email string) (*domain.User, error)
	GetActiveByPhone(ctx context.Context, phone string) (*domain.User, error)
	GetActiveByID(ctx context.Context, id int64) (*domain.User, error)
	// Create persists the user and fills in ID, CreatedAt, UpdatedAt.
	// Returns ErrDuplicate on a uniqueness violation.
	Create(ctx context.Context, u *domain.User) error
	// MarkEmailVerified sets email_verified and bumps updated_at. No-op if already set.
	MarkEmailVerified(ctx context.Context, id int64) error
	// MarkPhoneVerified sets phone_verified and bumps updated_at. No-op if already set.
	MarkPhoneVerified(ctx context.Context, id int64) error
}
