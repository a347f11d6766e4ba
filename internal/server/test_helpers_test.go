package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/emberlabs/ember/backend/internal/auth"
	"github.com/emberlabs/ember/backend/internal/habits"
	"github.com/emberlabs/ember/backend/internal/notify"
	"github.com/emberlabs/ember/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnvironment struct {
	server   *httptest.Server
	registry *notify.Registry
	broker   *notify.Broker
}

func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()

	databasePath := filepath.Join(t.TempDir(), "server.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&users.User{}, &habits.Habit{}, &habits.CompletionLog{}, &habits.Streak{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create user service: %v", err)
	}
	habitService, err := habits.NewService(habits.ServiceConfig{
		Database:   db,
		IDProvider: habits.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to create habit service: %v", err)
	}

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "ember-auth",
		Audience:      "ember-api",
		TokenTTL:      time.Minute,
	})

	registry := notify.NewRegistry()
	broker := notify.NewBroker(registry, zap.NewNop())

	handler, err := NewHTTPHandler(Dependencies{
		Tokens:       tokenIssuer,
		UserService:  userService,
		HabitService: habitService,
		Registry:     registry,
		Broker:       broker,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testEnvironment{
		server:   server,
		registry: registry,
		broker:   broker,
	}
}

func (e *testEnvironment) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewBuffer(encoded)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	request, err := http.NewRequestWithContext(context.Background(), method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { _ = response.Body.Close() })
	return response
}

func decodeBody(t *testing.T, response *http.Response, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

// registerAccount registers a fresh account and returns its token and user id.
func (e *testEnvironment) registerAccount(t *testing.T, email string) (string, string) {
	t.Helper()
	response := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "casey",
		"email":    email,
		"password": "hunter22",
		"timezone": "America/New_York",
	})
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected register status: %d", response.StatusCode)
	}
	var payload authResponsePayload
	decodeBody(t, response, &payload)
	if payload.AccessToken == "" {
		t.Fatalf("expected an access token")
	}
	return payload.AccessToken, payload.User.UserID
}

func (e *testEnvironment) createHabit(t *testing.T, token string, body map[string]interface{}) habitPayload {
	t.Helper()
	response := e.do(t, http.MethodPost, "/api/habits", token, body)
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected create habit status: %d", response.StatusCode)
	}
	var payload habitPayload
	decodeBody(t, response, &payload)
	return payload
}

func dailyHabitBody(name string) map[string]interface{} {
	return map[string]interface{}{
		"name":           name,
		"frequency_type": "daily",
	}
}
