package server

import (
	contextpkg "context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRegisterIssuesBearerToken(t *testing.T) {
	env := newTestEnvironment(t)

	response := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "casey",
		"email":    "casey@example.com",
		"password": "hunter22",
		"timezone": "America/New_York",
	})
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", response.StatusCode)
	}
	var payload authResponsePayload
	decodeBody(t, response, &payload)
	if payload.TokenType != "Bearer" {
		t.Fatalf("unexpected token type %q", payload.TokenType)
	}
	if payload.User.Email != "casey@example.com" {
		t.Fatalf("unexpected email %q", payload.User.Email)
	}
	if payload.ExpiresIn <= 0 {
		t.Fatalf("expected positive expiry, got %d", payload.ExpiresIn)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	env := newTestEnvironment(t)
	env.registerAccount(t, "casey@example.com")

	response := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "casey",
		"email":    "casey@example.com",
		"password": "hunter22",
		"timezone": "America/New_York",
	})
	if response.StatusCode != http.StatusConflict {
		t.Fatalf("unexpected status: %d", response.StatusCode)
	}
}

func TestRegisterRejectsUnknownTimezone(t *testing.T) {
	env := newTestEnvironment(t)

	response := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "casey",
		"email":    "casey@example.com",
		"password": "hunter22",
		"timezone": "Mars/Olympus_Mons",
	})
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", response.StatusCode)
	}
}

func TestLoginVerifiesCredentials(t *testing.T) {
	env := newTestEnvironment(t)
	env.registerAccount(t, "casey@example.com")

	response := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "casey@example.com",
		"password": "hunter22",
	})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected login status: %d", response.StatusCode)
	}
	var payload authResponsePayload
	decodeBody(t, response, &payload)
	if payload.AccessToken == "" {
		t.Fatalf("expected an access token")
	}

	denied := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "casey@example.com",
		"password": "wrong",
	})
	if denied.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status for wrong password: %d", denied.StatusCode)
	}
}

func TestMeReturnsAuthenticatedAccount(t *testing.T) {
	env := newTestEnvironment(t)
	token, userID := env.registerAccount(t, "casey@example.com")

	response := env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", response.StatusCode)
	}
	var payload userPayload
	decodeBody(t, response, &payload)
	if payload.UserID != userID {
		t.Fatalf("unexpected user id %q", payload.UserID)
	}
	if payload.Timezone != "America/New_York" {
		t.Fatalf("unexpected timezone %q", payload.Timezone)
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	env := newTestEnvironment(t)

	response := env.do(t, http.MethodGet, "/api/habits", "", nil)
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status without token: %d", response.StatusCode)
	}

	forged := env.do(t, http.MethodGet, "/api/habits", "not-a-jwt", nil)
	if forged.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status for forged token: %d", forged.StatusCode)
	}
}

func TestAuthorizeRequestLogsValidationFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/api/habits", http.NoBody)
	request.Header.Set("Authorization", "Bearer invalid-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		tokens: stubTokenManager{validateErr: errors.New("signature mismatch")},
		logger: zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level, got %s", entries[0].Level)
	}
	if entries[0].Message != "token validation failed" {
		t.Fatalf("unexpected log message: %q", entries[0].Message)
	}
}

type stubTokenManager struct {
	validateErr error
}

func (s stubTokenManager) IssueToken(contextpkg.Context, string) (string, int64, error) {
	return "", 0, errors.New("not implemented")
}

func (s stubTokenManager) ValidateToken(string) (string, error) {
	return "", s.validateErr
}
