package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sitework/backend/internal/models"
)

// resetTokenFromMailer pulls the token out of the most recent reset link.
func resetTokenFromMailer(t *testing.T, env *testEnv) string {
	t.Helper()

	env.mailer.mu.Lock()
	defer env.mailer.mu.Unlock()
	if len(env.mailer.sends) == 0 {
		t.Fatal("expected a reset email to have been sent")
	}
	link := env.mailer.sends[len(env.mailer.sends)-1]

	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("mailer received unparsable link %q: %v", link, err)
	}
	token := parsed.Query().Get("token")
	if token == "" {
		t.Fatalf("reset link %q carries no token", link)
	}
	return token
}

func TestPasswordResetRoundTrip(t *testing.T) {
	env := setupTestEnv(t)

	tenant := createTestTenant(t, env.db, "Acme", "acme")
	user := createTestUser(t, env.db, tenant, "user@example.com", "OldPassw0rd", models.UserRoleMember)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/password-reset/request", map[string]any{
		"email": "user@example.com",
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	token := resetTokenFromMailer(t, env)
	if !strings.HasPrefix(env.mailer.sends[0], env.cfg.Server.FrontendURL) {
		t.Errorf("reset link %q does not point at the frontend", env.mailer.sends[0])
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/password-reset/reset", map[string]any{
		"token":    token,
		"password": "NewPassw0rd",
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	login := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "user@example.com",
		"password": "OldPassw0rd",
	}, nil)
	assertStatus(t, login, http.StatusUnauthorized)

	login = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "user@example.com",
		"password": "NewPassw0rd",
	}, nil)
	assertStatus(t, login, http.StatusOK)

	var count int64
	env.db.Model(&models.VerificationToken{}).Where("user_id = ?", user.ID).Count(&count)
	if count != 0 {
		t.Fatal("expected reset token row to be consumed")
	}
}

func TestPasswordResetRequestDoesNotRevealAccounts(t *testing.T) {
	env := setupTestEnv(t)

	tenant := createTestTenant(t, env.db, "Acme", "acme")
	createTestUser(t, env.db, tenant, "known@example.com", "Sup3rSecret", models.UserRoleMember)

	known := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/password-reset/request", map[string]any{
		"email": "known@example.com",
	}, nil)
	assertStatus(t, known, http.StatusOK)
	knownBody := decodeJSONMap(t, known)

	unknown := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/password-reset/request", map[string]any{
		"email": "ghost@example.com",
	}, nil)
	assertStatus(t, unknown, http.StatusOK)
	unknownBody := decodeJSONMap(t, unknown)

	knownData := dataMap(t, knownBody)
	unknownData := dataMap(t, unknownBody)
	if knownData["message"] != unknownData["message"] {
		t.Errorf("response bodies differ between known and unknown email: %v vs %v",
			knownData["message"], unknownData["message"])
	}

	// Only the real account produced an email and a token row.
	if env.mailer.sendCount() != 1 {
		t.Fatalf("expected exactly one reset email, got %d", env.mailer.sendCount())
	}
	var count int64
	env.db.Model(&models.VerificationToken{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one token row, got %d", count)
	}
}

func TestPasswordResetTokenIsSingleUse(t *testing.T) {
	env := setupTestEnv(t)

	tenant := createTestTenant(t, env.db, "Acme", "acme")
	createTestUser(t, env.db, tenant, "user@example.com", "OldPassw0rd", models.UserRoleMember)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/password-reset/request", map[string]any{
		"email": "user@example.com",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	token := resetTokenFromMailer(t, env)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/password-reset/reset", map[string]any{
		"token":    token,
		"password": "NewPassw0rd",
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/password-reset/reset", map[string]any{
		"token":    token,
		"password": "OtherPassw0rd",
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestPasswordResetRejectsUnknownAndExpiredTokens(t *testing.T) {
	env := setupTestEnv(t)

	tenant := createTestTenant(t, env.db, "Acme", "acme")
	user := createTestUser(t, env.db, tenant, "user@example.com", "OldPassw0rd", models.UserRoleMember)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/password-reset/reset", map[string]any{
		"token":    "not-a-real-token",
		"password": "NewPassw0rd",
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/password-reset/request", map[string]any{
		"email": "user@example.com",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	token := resetTokenFromMailer(t, env)

	if err := env.db.Model(&models.VerificationToken{}).Where("user_id = ?", user.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error; err != nil {
		t.Fatalf("backdating token: %v", err)
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/password-reset/reset", map[string]any{
		"token":    token,
		"password": "NewPassw0rd",
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)

	// Expired token rejection left the password untouched.
	login := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "user@example.com",
		"password": "OldPassw0rd",
	}, nil)
	assertStatus(t, login, http.StatusOK)
}

func TestPasswordResetRevokesAllSessions(t *testing.T) {
	env := setupTestEnv(t)

	tenant := createTestTenant(t, env.db, "Acme", "acme")
	user := createTestUser(t, env.db, tenant, "user@example.com", "OldPassw0rd", models.UserRoleMember)
	first := createTestSession(t, env.db, user, time.Now().Add(time.Hour))
	second := createTestSession(t, env.db, user, time.Now().Add(time.Hour))

	other := createTestUser(t, env.db, tenant, "bystander@example.com", "Sup3rSecret", models.UserRoleMember)
	otherSession := createTestSession(t, env.db, other, time.Now().Add(time.Hour))

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/password-reset/request", map[string]any{
		"email": "user@example.com",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	token := resetTokenFromMailer(t, env)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/password-reset/reset", map[string]any{
		"token":    token,
		"password": "NewPassw0rd",
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	for _, sid := range []string{first.ID, second.ID} {
		me := performJSONRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, sessionHeaders(sid))
		assertStatus(t, me, http.StatusUnauthorized)
	}

	// Unrelated users keep their sessions.
	me := performJSONRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, sessionHeaders(otherSession.ID))
	assertStatus(t, me, http.StatusOK)
}

func TestPasswordResetValidatesNewPassword(t *testing.T) {
	env := setupTestEnv(t)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/password-reset/reset", map[string]any{
		"token":    "whatever",
		"password": "weak",
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
}
