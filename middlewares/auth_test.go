package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ray-remotestate/restro-qr/config"
	"github.com/ray-remotestate/restro-qr/models"
)

func signToken(t *testing.T, claims *Claims, key []byte) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware(t *testing.T) {
	config.SecretKey = []byte("test-secret")
	userID := uuid.New()

	var seen *Claims
	handler := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetAuthenticatedUser(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("accepts a valid token", func(t *testing.T) {
		token := signToken(t, &Claims{
			UserID:    userID,
			Roles:     []string{"owner"},
			TokenType: TokenTypeAccess,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		}, config.SecretKey)

		req := httptest.NewRequest(http.MethodGet, "/api/restaurants", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, userID, seen.UserID)
		assert.True(t, seen.HasRole(models.RoleOwner))
	})

	t.Run("rejects a missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/restaurants", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"unauthorized: missing token"}`, rec.Body.String())
	})

	t.Run("accepts a query token on websocket upgrades", func(t *testing.T) {
		token := signToken(t, &Claims{
			UserID:    userID,
			Roles:     []string{"manager"},
			TokenType: TokenTypeAccess,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		}, config.SecretKey)

		req := httptest.NewRequest(http.MethodGet, "/api/restaurants/x/live?access_token="+token, nil)
		req.Header.Set("Upgrade", "websocket")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		plain := httptest.NewRequest(http.MethodGet, "/api/restaurants?access_token="+token, nil)
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, plain)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects a refresh token", func(t *testing.T) {
		token := signToken(t, &Claims{
			UserID:    userID,
			Roles:     []string{"admin"},
			TokenType: TokenTypeRefresh,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   userID.String(),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(7 * 24 * time.Hour)),
			},
		}, config.SecretKey)
		req := httptest.NewRequest(http.MethodGet, "/api/restaurants", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects a token without a type", func(t *testing.T) {
		token := signToken(t, &Claims{
			UserID:           userID,
			Roles:            []string{"admin"},
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
		}, config.SecretKey)
		req := httptest.NewRequest(http.MethodGet, "/api/restaurants", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects a token signed with another key", func(t *testing.T) {
		token := signToken(t, &Claims{UserID: userID, TokenType: TokenTypeAccess}, []byte("other"))
		req := httptest.NewRequest(http.MethodGet, "/api/restaurants", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		token := signToken(t, &Claims{
			UserID: userID,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
		}, config.SecretKey)
		req := httptest.NewRequest(http.MethodGet, "/api/restaurants", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRoleBasedMiddleware(t *testing.T) {
	handler := RoleBasedMiddleware(models.RoleAdmin, models.RoleOwner)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(claims *Claims) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if claims != nil {
			req = req.WithContext(WithClaims(req.Context(), claims))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serve(&Claims{Roles: []string{"OWNER"}}))
	assert.Equal(t, http.StatusForbidden, serve(&Claims{Roles: []string{"manager"}}))
	assert.Equal(t, http.StatusUnauthorized, serve(nil))
}

func TestRequestLogger(t *testing.T) {
	var id string
	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "req-42", id)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}
