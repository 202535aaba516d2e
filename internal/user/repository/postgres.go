package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"auth-service/internal/user/domain"
)

const userColumns = `id, email, phone, username, password_hash, first_name, last_name,
	age, address, city, country, postal_code, is_active, email_verified, phone_verified,
	created_at, updated_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmailUsernameOrPhone returns any user matching one of the given
// identifiers, or nil if none match. An empty phone matches nothing.
func (r *PostgresRepository) GetByEmailUsernameOrPhone(ctx context.Context, email, username, phone string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE email = $1 OR username = $2 OR ($3 <> '' AND phone = $3)
		 LIMIT 1`,
		email, username, phone)
	return scanUser(row)
}

// GetActiveByEmail returns the active user with the given email, or nil if none.
func (r *PostgresRepository) GetActiveByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND is_active = TRUE`, email)
	return scanUser(row)
}

// GetActiveByPhone returns the active user with the given phone, or nil if none.
func (r *PostgresRepository) GetActiveByPhone(ctx context.Context, phone string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE phone = $1 AND is_active = TRUE`, phone)
	return scanUser(row)
}

// GetActiveByID returns the active user for id, or nil if missing or deactivated.
func (r *PostgresRepository) GetActiveByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND is_active = TRUE`, id)
	return scanUser(row)
}

// Create persists the user and fills in ID, CreatedAt, UpdatedAt from the
// database. Returns ErrDuplicate when a unique constraint is violated.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (
			email, phone, username, password_hash, first_name, last_name,
			age, address, city, country, postal_code
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, is_active, email_verified, phone_verified, created_at, updated_at`,
		u.Email, nullString(u.Phone), u.Username, u.PasswordHash,
		nullString(u.FirstName), nullString(u.LastName), nullInt(u.Age),
		nullString(u.Address), nullString(u.City), nullString(u.Country),
		nullString(u.PostalCode),
	).Scan(&u.ID, &u.IsActive, &u.EmailVerified, &u.PhoneVerified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// MarkEmailVerified sets email_verified for the user and bumps updated_at.
func (r *PostgresRepository) MarkEmailVerified(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET email_verified = TRUE, updated_at = now() WHERE id = $1`, id)
	return err
}

// MarkPhoneVerified sets phone_verified for the user and bumps updated_at.
func (r *PostgresRepository) MarkPhoneVerified(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET phone_verified = TRUE, updated_at = now() WHERE id = $1`, id)
	return err
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u          domain.User
		phone      sql.NullString
		firstName  sql.NullString
		lastName   sql.NullString
		age        sql.NullInt64
		address    sql.NullString
		city       sql.NullString
		country    sql.NullString
		postalCode sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &phone, &u.Username, &u.PasswordHash,
		&firstName, &lastName, &age, &address, &city, &country, &postalCode,
		&u.IsActive, &u.EmailVerified, &u.PhoneVerified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Phone = phone.String
	u.FirstName = firstName.String
	u.LastName = lastName.String
	u.Age = int(age.Int64)
	u.Address = address.String
	u.City = city.String
	u.Country = country.String
	u.PostalCode = postalCode.String
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
