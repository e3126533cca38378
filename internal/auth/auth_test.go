package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuthenticatorSelectsByKey(t *testing.T) {
	a, err := NewAuthenticator("")
	require.NoError(t, err)
	assert.IsType(t, &NoneAuthenticator{}, a)

	a, err = NewAuthenticator("s3cret")
	require.NoError(t, err)
	assert.IsType(t, &KeyAuthenticator{}, a)
}

func TestNewKeyAuthenticatorRequiresKey(t *testing.T) {
	_, err := NewKeyAuthenticator("")
	assert.Error(t, err)
}

func TestNoneAuthenticatorPassesThrough(t *testing.T) {
	a, err := NewNoneAuthenticator()
	require.NoError(t, err)

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	a.Authenticator(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestKeyAuthenticatorAcceptsMatchingKey(t *testing.T) {
	a, err := NewKeyAuthenticator("s3cret")
	require.NoError(t, err)

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set(APIKeyHeader, "s3cret")
	rec := httptest.NewRecorder()
	a.Authenticator(next).ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestKeyAuthenticatorRejectsWrongKey(t *testing.T) {
	a, err := NewKeyAuthenticator("s3cret")
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/snapshots", nil)
	req.Header.Set(APIKeyHeader, "wrong")
	rec := httptest.NewRecorder()
	a.Authenticator(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}

func TestKeyAuthenticatorRejectsMissingHeader(t *testing.T) {
	a, err := NewKeyAuthenticator("s3cret")
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	})

	rec := httptest.NewRecorder()
	a.Authenticator(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/snapshots", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
}
