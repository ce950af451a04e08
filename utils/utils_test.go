package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ray-remotestate/restro-qr/config"
	"github.com/ray-remotestate/restro-qr/middlewares"
)

func TestGenerateTokens(t *testing.T) {
	config.SecretKey = []byte("test-secret")
	userID := uuid.New()

	access, refresh, err := GenerateTokens(userID, []string{"admin"})
	require.NoError(t, err)

	accessClaims, err := middlewares.ParseToken(access)
	require.NoError(t, err)
	assert.Equal(t, middlewares.TokenTypeAccess, accessClaims.TokenType)
	assert.Equal(t, userID, accessClaims.UserID)

	refreshClaims, err := middlewares.ParseToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, middlewares.TokenTypeRefresh, refreshClaims.TokenType)
	assert.True(t, refreshClaims.ExpiresAt.After(accessClaims.ExpiresAt.Time))

	handler := middlewares.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	bearer := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/restaurants", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusNoContent, bearer(access))
	assert.Equal(t, http.StatusUnauthorized, bearer(refresh))
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret-pass")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("wrong")))
}
