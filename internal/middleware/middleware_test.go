package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mutqin/backend/internal/auth"
	"github.com/mutqin/backend/internal/core"
)

type fakeUserStore struct {
	created []string
}

func (f *fakeUserStore) FindOrCreateUserByEmail(_ context.Context, email string) (*core.User, error) {
	f.created = append(f.created, email)
	return &core.User{Email: email}, nil
}

func TestCorrelationMintsAndEchoes(t *testing.T) {
	var seen string
	h := Correlation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(CorrelationHeader))
}

func TestCorrelationReusesCallerID(t *testing.T) {
	var seen string
	h := Correlation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get(CorrelationHeader))
}

func TestAuthInjectsUser(t *testing.T) {
	verifier := auth.NewHMACVerifier("secret")
	store := &fakeUserStore{}

	var got *core.User
	h := Auth(verifier, store, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = UserFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+verifier.Sign("student@example.com"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "student@example.com", got.Email)
	assert.Equal(t, []string{"student@example.com"}, store.created)
}

func TestAuthRejectsMissingOrBadToken(t *testing.T) {
	verifier := auth.NewHMACVerifier("secret")
	h := Auth(verifier, &fakeUserStore{}, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "AUTHENTICATION_ERROR", body["code"])

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer forged-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
