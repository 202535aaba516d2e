package domain

import (
	"time"

	userdomain "auth-service/internal/user/domain"
)

// Purpose is the reason an OTP code was issued.
type Purpose string

const (
	PurposeLogin        Purpose = "login"
	PurposeVerification Purpose = "verification"
	PurposeReset        Purpose = "reset"
)

// OTPCode is a stored one-time code. Only the SHA-256 hash of the code is
// persisted. A code is valid at verification time when it is unused and
// unexpired; when several match, the most recently created wins. Used codes
// are retained for audit, never deleted.
type OTPCode struct {
	ID        int64
	UserID    int64
	CodeHash  string
	Channel   userdomain.Channel
	Purpose   Purpose
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// RefreshToken is a stored refresh token. Only the SHA-256 hash of the encoded
// token is persisted; the hash is the lookup key. A record is deleted on
// rotation or logout, never updated in place.
type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}
