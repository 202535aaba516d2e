package repository

import (
	"context"
	"time"

	"auth-service/internal/session/domain"
	userdomain "auth-service/internal/user/domain"
)

// Repository defines persistence for OTP codes and refresh tokens.
//
// Redemption methods are conditional writes: MarkOTPUsed and
// RotateRefreshToken report whether the record was still redeemable, so two
// concurrent redemptions of the same code or token cannot both succeed.
type Repository interface {
	// CreateOTP persists the code and fills in ID and CreatedAt.
	CreateOTP(ctx context.Context, c *domain.OTPCode) error
	// GetValidOTP returns the newest unused, unexpired code for the given
	// user, code hash, and channel, or nil if none match.
	GetValidOTP(ctx context.Context, userID int64, codeHash string, channel userdomain.Channel, now time.Time) (*domain.OTPCode, error)
	// MarkOTPUsed flips used from false to true. Returns false when the code
	// was already used (lost a redemption race) or does not exist.
	MarkOTPUsed(ctx context.Context, id int64) (bool, error)

	// CreateRefreshToken persists the token record and fills in ID and CreatedAt.
	CreateRefreshToken(ctx context.Context, t *domain.RefreshToken) error
	// GetValidRefreshToken returns the unexpired record for tokenHash, or nil if none.
	GetValidRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error)
	// RotateRefreshToken atomically deletes the record with oldID and inserts
	// newToken. Returns false without inserting when oldID was already gone
	// (rotated or revoked concurrently).
	RotateRefreshToken(ctx context.Context, oldID int64, newToken *domain.RefreshToken) (bool, error)
	// DeleteAllRefreshTokensForUser removes every refresh token for the user.
	DeleteAllRefreshTokensForUser(ctx context.Context, userID int64) error
}
