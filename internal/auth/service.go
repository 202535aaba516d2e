// Package auth implements the credential and token lifecycle engine:
// registration, password login, OTP request/verify, refresh-token rotation,
// and revocation. All security invariants live here; transports and storage
// are collaborators behind narrow interfaces.
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"auth-service/internal/notifier"
	"auth-service/internal/otp"
	"auth-service/internal/security"
	sessiondomain "auth-service/internal/session/domain"
	userdomain "auth-service/internal/user/domain"
	userrepository "auth-service/internal/user/repository"
)

// Sentinel errors for the auth service; the HTTP layer maps them to status codes.
// The core never logs these, it returns them.
var (
	// ErrInvalidInput wraps malformed or policy-violating request data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUserExists is returned when email, username, or phone is already taken.
	ErrUserExists = errors.New("user with this email, username, or phone already exists")
	// ErrUserNotFound is returned when no active user matches an identifier.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials covers both unknown identifier and wrong password,
	// deliberately indistinguishable to avoid user-existence disclosure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidOTP covers wrong, expired, and already-used codes, deliberately
	// merged to avoid leaking which condition failed.
	ErrInvalidOTP = errors.New("invalid or expired OTP")
	// ErrInvalidRefreshToken covers malformed, expired, rotated-out, and
	// revoked refresh tokens.
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	// ErrInvalidAccessToken covers malformed or expired access tokens and
	// missing or deactivated subjects.
	ErrInvalidAccessToken = errors.New("invalid or expired access token")
	// ErrDeliveryFailed is returned when the notifier cannot deliver an OTP.
	ErrDeliveryFailed = errors.New("failed to send OTP")
	// ErrUnavailable wraps transient collaborator failures (storage, network).
	ErrUnavailable = errors.New("service unavailable")
)

// TokenPair is an issued access/refresh token pair. The refresh token is
// persisted server-side and redeemable exactly once.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// RegisterParams holds the fields accepted at registration. Profile fields
// are optional and have no lifecycle impact.
type RegisterParams struct {
	Email      string
	Phone      string
	Username   string
	Password   string
	FirstName  string
	LastName   string
	Age        int
	Address    string
	City       string
	Country    string
	PostalCode string
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByEmailUsernameOrPhone(ctx context.Context, email, username, phone string) (*userdomain.User, error)
	GetActiveByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetActiveByPhone(ctx context.Context, phone string) (*userdomain.User, error)
	GetActiveByID(ctx context.Context, id int64) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	MarkEmailVerified(ctx context.Context, id int64) error
	MarkPhoneVerified(ctx context.Context, id int64) error
}

// SessionRepo is the minimal OTP/refresh-token repository needed by the auth service.
type SessionRepo interface {
	CreateOTP(ctx context.Context, c *sessiondomain.OTPCode) error
	GetValidOTP(ctx context.Context, userID int64, codeHash string, channel userdomain.Channel, now time.Time) (*sessiondomain.OTPCode, error)
	MarkOTPUsed(ctx context.Context, id int64) (bool, error)
	CreateRefreshToken(ctx context.Context, t *sessiondomain.RefreshToken) error
	GetValidRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*sessiondomain.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID int64, newToken *sessiondomain.RefreshToken) (bool, error)
	DeleteAllRefreshTokensForUser(ctx context.Context, userID int64) error
}

// Service implements registration, login, OTP request/verify, refresh, and logout.
type Service struct {
	users     UserRepo
	sessions  SessionRepo
	notifier  notifier.Notifier
	hasher    *security.Hasher
	tokens    *security.TokenProvider
	otpTTL    time.Duration
	otpLength int
}

// NewService returns a Service with the given dependencies.
func NewService(
	users UserRepo,
	sessions SessionRepo,
	n notifier.Notifier,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	otpTTL time.Duration,
	otpLength int,
) *Service {
	if otpLength <= 0 {
		otpLength = otp.DefaultLength
	}
	return &Service{
		users:     users,
		sessions:  sessions,
		notifier:  n,
		hasher:    hasher,
		tokens:    tokens,
		otpTTL:    otpTTL,
		otpLength: otpLength,
	}
}

// Register creates a user with the given credentials and profile. All
// verification flags start false and the account starts active. The returned
// user carries no password hash.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*userdomain.User, error) {
	p.Email = strings.TrimSpace(strings.ToLower(p.Email))
	p.Username = strings.TrimSpace(p.Username)
	p.Phone = strings.TrimSpace(p.Phone)
	if err := validateEmail(p.Email); err != nil {
		return nil, err
	}
	if err := validateUsername(p.Username); err != nil {
		return nil, err
	}
	if err := validatePhone(p.Phone); err != nil {
		return nil, err
	}
	if err := validatePassword(p.Password); err != nil {
		return nil, err
	}

	// The lookup gives a friendly answer in the common case; the database
	// unique constraints close the check-then-insert window (ErrDuplicate below).
	existing, err := s.users.GetByEmailUsernameOrPhone(ctx, p.Email, p.Username, p.Phone)
	if err != nil {
		return nil, unavailable(err)
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	hashed, err := s.hasher.Hash([]byte(p.Password))
	if err != nil {
		return nil, unavailable(err)
	}
	user := &userdomain.User{
		Email:        p.Email,
		Phone:        p.Phone,
		Username:     p.Username,
		PasswordHash: hashed,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Age:          p.Age,
		Address:      p.Address,
		City:         p.City,
		Country:      p.Country,
		PostalCode:   p.PostalCode,
		IsActive:     true,
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, userrepository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, unavailable(err)
	}

	out := *user
	out.PasswordHash = ""
	return &out, nil
}

// Login authenticates with an identifier (email when it contains "@",
// otherwise phone) and password, and returns a fresh token pair. Unknown
// identifier and wrong password both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, identifier, password string) (*TokenPair, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.lookupByIdentifier(ctx, identifier, channelFor(identifier))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issueTokenPair(ctx, user.ID)
}

// RequestOTP generates a login OTP for the active user matching identifier on
// the given channel, persists it, and hands it to the notifier. The stored
// code is kept even when delivery fails: it could still arrive or be resent.
func (s *Service) RequestOTP(ctx context.Context, identifier string, channel userdomain.Channel) error {
	identifier = strings.TrimSpace(identifier)
	if !channel.Valid() {
		return fmt.Errorf("%w: channel must be email or phone", ErrInvalidInput)
	}
	user, err := s.lookupByIdentifier(ctx, identifier, channel)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	code, err := otp.Generate(s.otpLength)
	if err != nil {
		return unavailable(err)
	}
	record := &sessiondomain.OTPCode{
		UserID:    user.ID,
		CodeHash:  otp.Hash(code),
		Channel:   channel,
		Purpose:   sessiondomain.PurposeLogin,
		ExpiresAt: time.Now().UTC().Add(s.otpTTL),
	}
	if err := s.sessions.CreateOTP(ctx, record); err != nil {
		return unavailable(err)
	}

	if err := s.notifier.SendOTP(ctx, channel, identifier, code, string(sessiondomain.PurposeLogin)); err != nil {
		return ErrDeliveryFailed
	}
	return nil
}

// VerifyOTP redeems a code for the active user matching identifier on the
// given channel. On success the code is spent, the channel's verified flag is
// set on the user, and a fresh token pair is issued. Wrong, expired, and
// already-used codes all return ErrInvalidOTP.
func (s *Service) VerifyOTP(ctx context.Context, identifier string, channel userdomain.Channel, code string) (*TokenPair, error) {
	identifier = strings.TrimSpace(identifier)
	if !channel.Valid() {
		return nil, fmt.Errorf("%w: channel must be email or phone", ErrInvalidInput)
	}
	user, err := s.lookupByIdentifier(ctx, identifier, channel)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	now := time.Now().UTC()
	record, err := s.sessions.GetValidOTP(ctx, user.ID, otp.Hash(code), channel, now)
	if err != nil {
		return nil, unavailable(err)
	}
	if record == nil {
		return nil, ErrInvalidOTP
	}
	// Conditional update: of two concurrent verifications, exactly one flips
	// used and proceeds; the other observes the code as spent.
	ok, err := s.sessions.MarkOTPUsed(ctx, record.ID)
	if err != nil {
		return nil, unavailable(err)
	}
	if !ok {
		return nil, ErrInvalidOTP
	}

	switch channel {
	case userdomain.ChannelEmail:
		err = s.users.MarkEmailVerified(ctx, user.ID)
	case userdomain.ChannelPhone:
		err = s.users.MarkPhoneVerified(ctx, user.ID)
	}
	if err != nil {
		return nil, unavailable(err)
	}

	return s.issueTokenPair(ctx, user.ID)
}

// Refresh redeems a refresh token for a new token pair. Redemption is
// rotation: the old record is deleted and the new one inserted atomically, so
// a token is redeemable exactly once even under concurrent attempts.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	userID, err := s.tokens.Decode(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	now := time.Now().UTC()
	record, err := s.sessions.GetValidRefreshToken(ctx, security.HashRefreshToken(refreshToken), now)
	if err != nil {
		return nil, unavailable(err)
	}
	// Absence means rotated out, revoked, or never issued: the signature alone
	// never suffices for refresh validity.
	if record == nil || record.UserID != userID {
		return nil, ErrInvalidRefreshToken
	}

	access, accessExp, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return nil, unavailable(err)
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(userID)
	if err != nil {
		return nil, unavailable(err)
	}
	newRecord := &sessiondomain.RefreshToken{
		UserID:    userID,
		TokenHash: security.HashRefreshToken(refresh),
		ExpiresAt: refreshExp,
	}
	ok, err := s.sessions.RotateRefreshToken(ctx, record.ID, newRecord)
	if err != nil {
		return nil, unavailable(err)
	}
	if !ok {
		return nil, ErrInvalidRefreshToken
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Logout revokes every refresh token for the user. Outstanding access tokens
// stay valid until their own expiry: stateless tokens trade instant
// revocation for statelessness.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	if err := s.sessions.DeleteAllRefreshTokensForUser(ctx, userID); err != nil {
		return unavailable(err)
	}
	return nil
}

// AuthenticateRequest decodes an access token and re-fetches its subject,
// requiring an active user. The re-fetch ensures deactivated users lose
// access before their token naturally expires.
func (s *Service) AuthenticateRequest(ctx context.Context, accessToken string) (*userdomain.User, error) {
	if accessToken == "" {
		return nil, ErrInvalidAccessToken
	}
	userID, err := s.tokens.Decode(accessToken)
	if err != nil {
		return nil, ErrInvalidAccessToken
	}
	user, err := s.users.GetActiveByID(ctx, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	if user == nil {
		return nil, ErrInvalidAccessToken
	}
	return user, nil
}

// issueTokenPair issues an access and refresh token for userID and persists
// the refresh record with its expiry.
func (s *Service) issueTokenPair(ctx context.Context, userID int64) (*TokenPair, error) {
	access, accessExp, err := s.tokens.IssueAccess(userID)
	if err != nil {
		return nil, unavailable(err)
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(userID)
	if err != nil {
		return nil, unavailable(err)
	}
	record := &sessiondomain.RefreshToken{
		UserID:    userID,
		TokenHash: security.HashRefreshToken(refresh),
		ExpiresAt: refreshExp,
	}
	if err := s.sessions.CreateRefreshToken(ctx, record); err != nil {
		return nil, unavailable(err)
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// lookupByIdentifier finds an active user by email or phone depending on channel.
func (s *Service) lookupByIdentifier(ctx context.Context, identifier string, channel userdomain.Channel) (*userdomain.User, error) {
	var (
		user *userdomain.User
		err  error
	)
	switch channel {
	case userdomain.ChannelEmail:
		user, err = s.users.GetActiveByEmail(ctx, identifier)
	case userdomain.ChannelPhone:
		user, err = s.users.GetActiveByPhone(ctx, identifier)
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return user, nil
}

// channelFor classifies an identifier: email when it contains "@", else phone.
func channelFor(identifier string) userdomain.Channel {
	if strings.Contains(identifier, "@") {
		return userdomain.ChannelEmail
	}
	return userdomain.ChannelPhone
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

var (
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneRe = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if !emailRe.MatchString(email) {
		return fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	return nil
}

func validateUsername(username string) error {
	if len(username) < 3 || len(username) > 100 {
		return fmt.Errorf("%w: username must be 3-100 characters", ErrInvalidInput)
	}
	return nil
}

func validatePhone(phone string) error {
	if phone == "" {
		return nil // optional
	}
	if !phoneRe.MatchString(phone) {
		return fmt.Errorf("%w: invalid phone format", ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	var hasUpper, hasLower, hasNumber bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		}
	}
	if !hasUpper {
		return fmt.Errorf("%w: password must contain at least one uppercase letter", ErrInvalidInput)
	}
	if !hasLower {
		return fmt.Errorf("%w: password must contain at least one lowercase letter", ErrInvalidInput)
	}
	if !hasNumber {
		return fmt.Errorf("%w: password must contain at least one number", ErrInvalidInput)
	}
	return nil
}
