package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/orchard/backend/internal/domain/identity"
	"github.com/orchard/backend/internal/infrastructure/auth"
	"github.com/orchard/backend/internal/infrastructure/config"
	"github.com/orchard/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-chars"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestJWTService(expiration time.Duration) *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                testSecret,
		Issuer:                "test-issuer",
		AccessTokenExpiration: expiration,
	})
}

func newProtectedRouter(mw gin.HandlerFunc, handler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(mw)
	if handler == nil {
		handler = func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		}
	}
	router.GET("/test", handler)
	router.GET("/health", handler)
	return router
}

func doGet(router http.Handler, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorInfo {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return *resp.Error
}

func TestJWTAuthMiddleware_ValidToken(t *testing.T) {
	jwtService := newTestJWTService(15 * time.Minute)
	userID := uuid.New()
	token, _, err := jwtService.GenerateAccessToken(userID, identity.RoleOwner)
	require.NoError(t, err)

	var got identity.Caller
	router := newProtectedRouter(JWTAuthMiddleware(jwtService), func(c *gin.Context) {
		caller, ok := GetCaller(c)
		assert.True(t, ok)
		got = caller
		assert.NotNil(t, GetJWTClaims(c))
		assert.Equal(t, userID.String(), GetJWTUserID(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	rec := doGet(router, "/test", "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, identity.NewCaller(userID, identity.RoleOwner), got)
}

func TestJWTAuthMiddleware_Rejections(t *testing.T) {
	jwtService := newTestJWTService(15 * time.Minute)
	expired, _, err := newTestJWTService(-time.Hour).GenerateAccessToken(uuid.New(), identity.RoleOwner)
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-issuer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: uuid.New().String(),
		Role:   "farmhand",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name          string
		authorization string
		message       string
	}{
		{"missing header", "", "Invalid token"},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "Invalid token"},
		{"empty token", "Bearer ", "Invalid token"},
		{"garbage token", "Bearer not-a-jwt", "Invalid token"},
		{"expired token", "Bearer " + expired, "Token has expired"},
		{"unknown role", "Bearer " + badRole, "Token carries an unknown role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newProtectedRouter(JWTAuthMiddleware(jwtService), func(c *gin.Context) {
				t.Fatal("handler must not run")
			})

			rec := doGet(router, "/test", tt.authorization)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			info := decodeError(t, rec)
			assert.Equal(t, "UNAUTHORIZED", info.Code)
			assert.Equal(t, tt.message, info.Message)
		})
	}
}

func TestJWTAuthMiddleware_SkipPaths(t *testing.T) {
	jwtService := newTestJWTService(15 * time.Minute)

	t.Run("default skip paths", func(t *testing.T) {
		router := newProtectedRouter(JWTAuthMiddleware(jwtService), nil)
		assert.Equal(t, http.StatusOK, doGet(router, "/health", "").Code)
	})

	t.Run("custom prefix", func(t *testing.T) {
		cfg := DefaultJWTConfig(jwtService)
		cfg.SkipPathPrefixes = []string{"/te"}
		router := newProtectedRouter(JWTAuthMiddlewareWithConfig(cfg), nil)
		assert.Equal(t, http.StatusOK, doGet(router, "/test", "").Code)
	})
}

func TestJWTAuthMiddleware_OnError(t *testing.T) {
	jwtService := newTestJWTService(15 * time.Minute)
	cfg := DefaultJWTConfig(jwtService)
	var seen error
	cfg.OnError = func(c *gin.Context, err error) {
		seen = err
		c.AbortWithStatus(http.StatusTeapot)
	}

	router := newProtectedRouter(JWTAuthMiddlewareWithConfig(cfg), nil)
	rec := doGet(router, "/test", "Bearer nope")

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.ErrorIs(t, seen, auth.ErrInvalidToken)
}

func TestGetCaller_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := GetCaller(c)
	assert.False(t, ok)
	assert.Nil(t, GetJWTClaims(c))
}
