package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is malformed, unsigned, or carries bad claims.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a structurally valid token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// TokenProvider issues and decodes HS256 JWT access and refresh tokens signed
// with a shared server secret. Changing the secret or algorithm invalidates
// every outstanding token.
type TokenProvider struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenProvider returns a TokenProvider signing with secret. issuer is set
// on claims and validated on decode.
func NewTokenProvider(secret, issuer string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssueAccess issues a short-lived access JWT with subject userID.
// Returns the token string and its expiration time.
func (p *TokenProvider) IssueAccess(userID int64) (token string, expiresAt time.Time, err error) {
	return p.issue(userID, p.accessTTL)
}

// IssueRefresh issues a long-lived refresh JWT with subject userID. The caller
// must persist the token server-side: the signature alone is not sufficient
// for refresh validity (rotated-out tokens still verify).
func (p *TokenProvider) IssueRefresh(userID int64) (token string, expiresAt time.Time, err error) {
	return p.issue(userID, p.refreshTTL)
}

func (p *TokenProvider) issue(userID int64, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    p.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Decode parses and validates a token (signature, exp, iss) and returns its
// subject user ID. Returns ErrTokenExpired when the token is past its expiry
// and ErrInvalidToken for any other failure. Never touches storage.
func (p *TokenProvider) Decode(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, ErrInvalidToken
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}
	if claims.Issuer != p.issuer {
		return 0, ErrInvalidToken
	}
	if claims.Subject == "" {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, ErrInvalidToken
	}
	return userID, nil
}
