package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/molarlink/molarlink/internal/auth"
	"github.com/molarlink/molarlink/internal/authz"
	"github.com/molarlink/molarlink/internal/shared"
	_ "github.com/molarlink/molarlink/testing"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil {
		return nil, shared.ErrInvalidCredentials
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID string, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	return nil
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	binder := authz.NewBinder(authz.BinderConfig{Catalog: authz.NewCatalog(nil)})
	handler := auth.NewHandler(nil, auth.NewService(repo), binder, sessionManager, csrfManager)
	return handler, sessionManager
}

func postLogin(t *testing.T, handler *auth.Handler, sessionManager *shared.SessionManager, body string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)
	if err := sessionManager.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	return res, sess
}

func TestLoginInvalidCredentials(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	handler, sessionManager := newAuthHandler(t, &stubRepo{user: &auth.User{
		ID: "u1", Email: "user@test.local", PasswordHash: string(hashed), IsActive: true,
	}})

	res, sess := postLogin(t, handler, sessionManager, `{"email":"user@test.local","password":"wrongpass1"}`)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if sess.User() != "" {
		t.Fatalf("session must not be bound after failed login")
	}
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	handler, sessionManager := newAuthHandler(t, &stubRepo{user: &auth.User{
		ID: "u1", Email: "user@test.local", PasswordHash: string(hashed), IsActive: false,
	}})

	res, _ := postLogin(t, handler, sessionManager, `{"email":"user@test.local","password":"correctpass"}`)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for inactive user, got %d", res.Code)
	}
}

func TestLoginBindsDefaultPrincipal(t *testing.T) {
	hashed, _ := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	handler, sessionManager := newAuthHandler(t, &stubRepo{user: &auth.User{
		ID: "u1", Email: "user@test.local", PasswordHash: string(hashed), IsActive: true,
	}})

	res, sess := postLogin(t, handler, sessionManager, `{"email":"user@test.local","password":"correctpass"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if sess.User() != "u1" {
		t.Fatalf("expected session bound to u1, got %q", sess.User())
	}

	var payload struct {
		Principal *authz.Principal `json:"principal"`
		CSRFToken string           `json:"csrf_token"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Principal == nil || payload.Principal.Role != authz.DefaultRole {
		t.Fatalf("expected default role binding, got %+v", payload.Principal)
	}
	if payload.Principal.Subscription != authz.DefaultTier {
		t.Fatalf("expected default tier, got %s", payload.Principal.Subscription)
	}
	if payload.CSRFToken == "" {
		t.Fatalf("expected csrf token in login response")
	}
}
