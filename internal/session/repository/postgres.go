package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"auth-service/internal/session/domain"
	userdomain "auth-service/internal/user/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateOTP persists the OTP code and fills in ID and CreatedAt.
func (r *PostgresRepository) CreateOTP(ctx context.Context, c *domain.OTPCode) error {
	return r.db.QueryRowContext(ctx,
		`INSERT INTO otp_codes (user_id, code_hash, channel, purpose, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		c.UserID, c.CodeHash, string(c.Channel), string(c.Purpose), c.ExpiresAt,
	).Scan(&c.ID, &c.CreatedAt)
}

// GetValidOTP returns the newest unused, unexpired code for the given user,
// code hash, and channel, or nil if none match.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetValidOTP(ctx context.Context, userID int64, codeHash string, channel userdomain.Channel, now time.Time) (*domain.OTPCode, error) {
	var c domain.OTPCode
	var ch, purpose string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, code_hash, channel, purpose, expires_at, used, created_at
		 FROM otp_codes
		 WHERE user_id = $1 AND code_hash = $2 AND channel = $3
		   AND used = FALSE AND expires_at > $4
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID, codeHash, string(channel), now,
	).Scan(&c.ID, &c.UserID, &c.CodeHash, &ch, &purpose, &c.ExpiresAt, &c.Used, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c.Channel = userdomain.Channel(ch)
	c.Purpose = domain.Purpose(purpose)
	return &c, nil
}

// MarkOTPUsed flips used from false to true for the code with id. The
// conditional update means exactly one of two concurrent redemptions wins.
func (r *PostgresRepository) MarkOTPUsed(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE otp_codes SET used = TRUE WHERE id = $1 AND used = FALSE`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CreateRefreshToken persists the token record and fills in ID and CreatedAt.
func (r *PostgresRepository) CreateRefreshToken(ctx context.Context, t *domain.RefreshToken) error {
	return r.db.QueryRowContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		t.UserID, t.TokenHash, t.ExpiresAt,
	).Scan(&t.ID, &t.CreatedAt)
}

// GetValidRefreshToken returns the unexpired record for tokenHash, or nil if
// absent or expired. Expired rows are ignored here, not deleted; redemption
// time-checks expiry so no sweeper is needed.
func (r *PostgresRepository) GetValidRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, created_at
		 FROM refresh_tokens
		 WHERE token_hash = $1 AND expires_at > $2`,
		tokenHash, now,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// RotateRefreshToken deletes the record with oldID and inserts newToken in a
// single transaction. When oldID is already gone, nothing is inserted and
// false is returned: only one of two concurrent redemptions can observe the
// old record as present.
func (r *PostgresRepository) RotateRefreshToken(ctx context.Context, oldID int64, newToken *domain.RefreshToken) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, oldID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		newToken.UserID, newToken.TokenHash, newToken.ExpiresAt,
	).Scan(&newToken.ID, &newToken.CreatedAt)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteAllRefreshTokensForUser removes every refresh token for the user.
func (r *PostgresRepository) DeleteAllRefreshTokensForUser(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	return err
}
