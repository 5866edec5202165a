package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/eatthat/eatthat/internal/auth"
	"github.com/eatthat/eatthat/internal/shared"
	"github.com/eatthat/eatthat/internal/users"
)

type stubDirectory struct {
	user *users.User
}

func (s *stubDirectory) FindByEmail(ctx context.Context, email string) (users.User, error) {
	if s.user == nil {
		return users.User{}, shared.ErrNotFound
	}
	return *s.user, nil
}

type stubSessions struct {
	registered []string
	removed    []string
}

func (s *stubSessions) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.registered = append(s.registered, id)
	return nil
}

func (s *stubSessions) DeleteSession(ctx context.Context, id string) error {
	s.removed = append(s.removed, id)
	return nil
}

func (s *stubSessions) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func newAuthHandler(t *testing.T, directory auth.UserDirectory, sessions auth.SessionRepository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := auth.NewHandler(logger, auth.NewService(directory, sessions), sessionManager, csrfManager)
	return handler, sessionManager
}

func testMux(handler *auth.Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	return r
}

func activeUser(t *testing.T, password string) *users.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &users.User{ID: 1, UUID: "user-uuid-1", Email: "user@test.local", Name: "Test User", PasswordHash: string(hashed), IsActive: true}
}

func doLogin(t *testing.T, handler *auth.Handler, sessionManager *shared.SessionManager, body string) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	res := httptest.NewRecorder()
	mux := testMux(handler)
	mux.ServeHTTP(res, req)
	return res, sess
}

func TestLoginSuccess(t *testing.T) {
	sessions := &stubSessions{}
	handler, sessionManager := newAuthHandler(t, &stubDirectory{user: activeUser(t, "correctpass")}, sessions)

	res, sess := doLogin(t, handler, sessionManager, `{"email":"user@test.local","password":"correctpass"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var payload struct {
		UserID    int64  `json:"user_id"`
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.UserID != 1 {
		t.Fatalf("expected user id 1, got %d", payload.UserID)
	}
	if payload.CSRFToken == "" {
		t.Fatalf("expected csrf token in response")
	}
	if sess.User() != "1" {
		t.Fatalf("expected session user 1, got %q", sess.User())
	}
	if len(sessions.registered) != 1 {
		t.Fatalf("expected one registered session, got %d", len(sessions.registered))
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, &stubDirectory{user: activeUser(t, "correctpass")}, &stubSessions{})

	res, sess := doLogin(t, handler, sessionManager, `{"email":"user@test.local","password":"wrongpass!"}`)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if sess.User() != "" {
		t.Fatalf("session user must stay empty on failed login")
	}
}

func TestLoginUnknownUser(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, &stubDirectory{}, &stubSessions{})

	res, _ := doLogin(t, handler, sessionManager, `{"email":"ghost@test.local","password":"whatever1"}`)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestLoginInactiveUser(t *testing.T) {
	user := activeUser(t, "correctpass")
	user.IsActive = false
	handler, sessionManager := newAuthHandler(t, &stubDirectory{user: user}, &stubSessions{})

	res, _ := doLogin(t, handler, sessionManager, `{"email":"user@test.local","password":"correctpass"}`)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for inactive account, got %d", res.Code)
	}
}

func TestLoginValidation(t *testing.T) {
	handler, sessionManager := newAuthHandler(t, &stubDirectory{}, &stubSessions{})

	res, _ := doLogin(t, handler, sessionManager, `{"email":"not-an-email","password":"short"}`)
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
}

func TestLogoutRemovesSessionRecord(t *testing.T) {
	sessions := &stubSessions{}
	handler, sessionManager := newAuthHandler(t, &stubDirectory{user: activeUser(t, "correctpass")}, sessions)

	_, sess := doLogin(t, handler, sessionManager, `{"email":"user@test.local","password":"correctpass"}`)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	res := httptest.NewRecorder()
	testMux(handler).ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if len(sessions.removed) != 1 {
		t.Fatalf("expected one removed session, got %d", len(sessions.removed))
	}
}
