package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"auth-service/internal/auth"
	"auth-service/internal/security"
	sessiondomain "auth-service/internal/session/domain"
	userdomain "auth-service/internal/user/domain"
	userrepository "auth-service/internal/user/repository"
)

// In-memory stores backing the full HTTP stack under test.

type memUserRepo struct {
	mu     sync.Mutex
	users  map[int64]*userdomain.User
	nextID int64
}

func (r *memUserRepo) find(match func(*userdomain.User) bool) *userdomain.User {
	for _, u := range r.users {
		if match(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (r *memUserRepo) GetByEmailUsernameOrPhone(_ context.Context, email, username, phone string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(func(u *userdomain.User) bool {
		return u.Email == email || u.Username == username || (phone != "" && u.Phone == phone)
	}), nil
}

func (r *memUserRepo) GetActiveByEmail(_ context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(func(u *userdomain.User) bool { return u.Email == email && u.IsActive }), nil
}

func (r *memUserRepo) GetActiveByPhone(_ context.Context, phone string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(func(u *userdomain.User) bool { return u.Phone == phone && u.IsActive }), nil
}

func (r *memUserRepo) GetActiveByID(_ context.Context, id int64) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(func(u *userdomain.User) bool { return u.ID == id && u.IsActive }), nil
}

func (r *memUserRepo) Create(_ context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email || existing.Username == u.Username || (u.Phone != "" && existing.Phone == u.Phone) {
			return userrepository.ErrDuplicate
		}
	}
	u.ID = r.nextID
	r.nextID++
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *memUserRepo) MarkEmailVerified(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.EmailVerified = true
	}
	return nil
}

func (r *memUserRepo) MarkPhoneVerified(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.PhoneVerified = true
	}
	return nil
}

type memSessionRepo struct {
	mu      sync.Mutex
	otps    map[int64]*sessiondomain.OTPCode
	refresh map[int64]*sessiondomain.RefreshToken
	nextID  int64
}

func (r *memSessionRepo) CreateOTP(_ context.Context, c *sessiondomain.OTPCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	c.ID = r.nextID
	c.CreatedAt = time.Now().UTC()
	cp := *c
	r.otps[c.ID] = &cp
	return nil
}

func (r *memSessionRepo) GetValidOTP(_ context.Context, userID int64, codeHash string, channel userdomain.Channel, now time.Time) (*sessiondomain.OTPCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.otps {
		if c.UserID == userID && c.CodeHash == codeHash && c.Channel == channel && !c.Used && c.ExpiresAt.After(now) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memSessionRepo) MarkOTPUsed(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.otps[id]
	if !ok || c.Used {
		return false, nil
	}
	c.Used = true
	return true, nil
}

func (r *memSessionRepo) CreateRefreshToken(_ context.Context, t *sessiondomain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = r.nextID
	t.CreatedAt = time.Now().UTC()
	cp := *t
	r.refresh[t.ID] = &cp
	return nil
}

func (r *memSessionRepo) GetValidRefreshToken(_ context.Context, tokenHash string, now time.Time) (*sessiondomain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.refresh {
		if t.TokenHash == tokenHash && t.ExpiresAt.After(now) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memSessionRepo) RotateRefreshToken(_ context.Context, oldID int64, newToken *sessiondomain.RefreshToken) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.refresh[oldID]; !ok {
		return false, nil
	}
	delete(r.refresh, oldID)
	r.nextID++
	newToken.ID = r.nextID
	newToken.CreatedAt = time.Now().UTC()
	cp := *newToken
	r.refresh[newToken.ID] = &cp
	return true, nil
}

func (r *memSessionRepo) DeleteAllRefreshTokensForUser(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.refresh {
		if t.UserID == userID {
			delete(r.refresh, id)
		}
	}
	return nil
}

type memNotifier struct {
	mu       sync.Mutex
	lastCode string
}

func (n *memNotifier) SendOTP(_ context.Context, _ userdomain.Channel, _, code, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastCode = code
	return nil
}

func (n *memNotifier) code() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastCode
}

func newTestServer(t *testing.T) (*Server, *memNotifier) {
	t.Helper()
	users := &memUserRepo{users: map[int64]*userdomain.User{}, nextID: 1}
	sessions := &memSessionRepo{otps: map[int64]*sessiondomain.OTPCode{}, refresh: map[int64]*sessiondomain.RefreshToken{}}
	n := &memNotifier{}
	tokens := security.NewTokenProvider("test-secret", "auth-service", 30*time.Minute, 7*24*time.Hour)
	svc := auth.NewService(users, sessions, n, security.NewHasher(4), tokens, 5*time.Minute, 6)
	return New(svc, zap.NewNop(), ":0"), n
}

func doJSON(t *testing.T, srv *Server, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

const registerBody = `{"email":"alice@example.com","phone":"15551230001","username":"alice","password":"Str0ngPassw0rd"}`

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRegisterEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/register", registerBody, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var user struct {
		ID            int64  `json:"id"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	decode(t, rec, &user)
	if user.ID == 0 || user.Email != "alice@example.com" || user.EmailVerified {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response must not mention the password")
	}

	// Duplicate registration conflicts.
	rec = doJSON(t, srv, http.MethodPost, "/register", registerBody, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", rec.Code)
	}

	// Policy violations are 400.
	weak := `{"email":"bob@example.com","username":"bob","password":"weak"}`
	rec = doJSON(t, srv, http.MethodPost, "/register", weak, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("weak password status = %d, want 400", rec.Code)
	}
}

func TestLoginAndMeEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	doJSON(t, srv, http.MethodPost, "/register", registerBody, "")

	rec := doJSON(t, srv, http.MethodPost, "/login", `{"identifier":"alice@example.com","password":"Str0ngPassw0rd"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
	}
	decode(t, rec, &tokens)
	if tokens.AccessToken == "" || tokens.RefreshToken == "" || tokens.TokenType != "bearer" {
		t.Fatalf("unexpected token body: %s", rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/me", "", tokens.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var me struct {
		Username string `json:"username"`
	}
	decode(t, rec, &me)
	if me.Username != "alice" {
		t.Errorf("me username = %q", me.Username)
	}

	// Wrong password and unknown identifier are indistinguishable 401s.
	for _, body := range []string{
		`{"identifier":"alice@example.com","password":"Wr0ngPassword"}`,
		`{"identifier":"nobody@example.com","password":"Str0ngPassw0rd"}`,
	} {
		rec = doJSON(t, srv, http.MethodPost, "/login", body, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("login(%s) status = %d, want 401", body, rec.Code)
		}
	}

	// /me without or with a bad token is 401.
	if rec = doJSON(t, srv, http.MethodGet, "/me", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("me without token = %d, want 401", rec.Code)
	}
	if rec = doJSON(t, srv, http.MethodGet, "/me", "", "garbage"); rec.Code != http.StatusUnauthorized {
		t.Errorf("me with garbage token = %d, want 401", rec.Code)
	}
}

func TestOTPEndpoints(t *testing.T) {
	srv, notifier := newTestServer(t)
	doJSON(t, srv, http.MethodPost, "/register", registerBody, "")

	rec := doJSON(t, srv, http.MethodPost, "/request-otp", `{"identifier":"alice@example.com","channel":"email"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("request-otp status = %d, body = %s", rec.Code, rec.Body.String())
	}
	code := notifier.code()
	if len(code) != 6 {
		t.Fatalf("code = %q", code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/request-otp", `{"identifier":"nobody@example.com","channel":"email"}`, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("request-otp unknown user = %d, want 404", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodPost, "/request-otp", `{"identifier":"alice@example.com","channel":"fax"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("request-otp bad channel = %d, want 400", rec.Code)
	}

	verifyBody := `{"identifier":"alice@example.com","channel":"email","otp":"` + code + `"}`
	rec = doJSON(t, srv, http.MethodPost, "/verify-otp", verifyBody, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify-otp status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var tokens struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, rec, &tokens)

	rec = doJSON(t, srv, http.MethodGet, "/me", "", tokens.AccessToken)
	var me struct {
		EmailVerified bool `json:"email_verified"`
	}
	decode(t, rec, &me)
	if !me.EmailVerified {
		t.Error("email should be verified after OTP verification")
	}

	// Replaying the same code fails.
	rec = doJSON(t, srv, http.MethodPost, "/verify-otp", verifyBody, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("verify-otp replay = %d, want 400", rec.Code)
	}
}

func TestRefreshAndLogoutEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	doJSON(t, srv, http.MethodPost, "/register", registerBody, "")

	rec := doJSON(t, srv, http.MethodPost, "/login", `{"identifier":"alice@example.com","password":"Str0ngPassw0rd"}`, "")
	var first struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	decode(t, rec, &first)

	rec = doJSON(t, srv, http.MethodPost, "/refresh-token", `{"refresh_token":"`+first.RefreshToken+`"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var second struct {
		RefreshToken string `json:"refresh_token"`
	}
	decode(t, rec, &second)

	// The rotated-out token is dead.
	rec = doJSON(t, srv, http.MethodPost, "/refresh-token", `{"refresh_token":"`+first.RefreshToken+`"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("refresh replay = %d, want 401", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/logout", "", first.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Logout revoked the remaining refresh token.
	rec = doJSON(t, srv, http.MethodPost, "/refresh-token", `{"refresh_token":"`+second.RefreshToken+`"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout = %d, want 401", rec.Code)
	}

	// Access tokens survive logout until they expire on their own.
	rec = doJSON(t, srv, http.MethodGet, "/me", "", first.AccessToken)
	if rec.Code != http.StatusOK {
		t.Errorf("me after logout = %d, want 200", rec.Code)
	}
}
