package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify_RoundTrip(t *testing.T) {
	v := NewVerifier("secret", "globetalk")

	token, err := v.Issue("u1", time.Minute)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
}

func TestVerify_Rejects(t *testing.T) {
	v := NewVerifier("secret", "globetalk")

	wrongSecret, err := NewVerifier("other", "globetalk").Issue("u1", time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := NewVerifier("secret", "someone-else").Issue("u1", time.Minute)
	require.NoError(t, err)
	expired, err := v.Issue("u1", -time.Minute)
	require.NoError(t, err)
	noSubject, err := v.Issue("", time.Minute)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:  "globetalk",
		Subject: "u1",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": wrongSecret,
		"wrong issuer": wrongIssuer,
		"expired":      expired,
		"no subject":   noSubject,
		"no expiry":    noExpiry,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerify_AnyIssuer(t *testing.T) {
	token, err := NewVerifier("secret", "whoever").Issue("u1", time.Minute)
	require.NoError(t, err)

	id, err := NewVerifier("secret", "").Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier("secret", "")
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserID(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(id))
	}))

	token, err := v.Issue("u42", time.Minute)
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u42", rec.Body.String())
	})

	t.Run("missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"message":"Unauthorized"}`, rec.Body.String())
	})

	t.Run("invalid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"message":"Invalid token"}`, rec.Body.String())
	})
}

func TestUserID_Empty(t *testing.T) {
	_, ok := UserID(WithUserID(httptest.NewRequest(http.MethodGet, "/", nil).Context(), ""))
	assert.False(t, ok)
}
