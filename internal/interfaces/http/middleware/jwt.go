package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/orchard/backend/internal/domain/identity"
	"github.com/orchard/backend/internal/domain/shared"
	"github.com/orchard/backend/internal/infrastructure/auth"
	"github.com/orchard/backend/internal/infrastructure/logger"
	"github.com/orchard/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Gin keys set by the JWT middleware
const (
	JWTClaimsKey = "jwt_claims"
	JWTCallerKey = "jwt_caller"
	JWTUserIDKey = "jwt_user_id"
)

const bearerPrefix = "Bearer "

// JWTMiddlewareConfig configures bearer authentication.
type JWTMiddlewareConfig struct {
	JWTService       *auth.JWTService
	SkipPaths        []string
	SkipPathPrefixes []string
	// OnError replaces the default 401 envelope.
	OnError func(c *gin.Context, err error)
	Logger  *zap.Logger
}

// DefaultJWTConfig leaves /health and /metrics open.
func DefaultJWTConfig(jwtService *auth.JWTService) JWTMiddlewareConfig {
	return JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths:  []string{"/health", "/metrics"},
	}
}

// JWTAuthMiddleware is JWTAuthMiddlewareWithConfig with DefaultJWTConfig.
func JWTAuthMiddleware(jwtService *auth.JWTService) gin.HandlerFunc {
	return JWTAuthMiddlewareWithConfig(DefaultJWTConfig(jwtService))
}

// JWTAuthMiddlewareWithConfig verifies the bearer token and stores the
// resulting identity.Caller under JWTCallerKey. Requests without a valid
// token never reach the handler.
func JWTAuthMiddlewareWithConfig(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		if cfg.skips(c.Request.URL.Path) {
			c.Next()
			return
		}

		claims, caller, err := authenticate(cfg.JWTService, c.GetHeader("Authorization"))
		if err != nil {
			log.Warn("Rejected bearer token", zap.Error(err), zap.String("path", c.Request.URL.Path))
			if cfg.OnError != nil {
				cfg.OnError(c, err)
				return
			}
			abortWithError(c, http.StatusUnauthorized, shared.CodeUnauthorized, authFailureMessage(err))
			return
		}

		role := caller.Role.String()
		c.Set(JWTClaimsKey, claims)
		c.Set(JWTCallerKey, caller)
		c.Set(JWTUserIDKey, claims.UserID)
		c.Set(logger.GinUserIDKey, claims.UserID)
		c.Set(logger.GinRoleKey, role)

		ctx := c.Request.Context()
		ctx, reqLog := logger.WithUserID(ctx, logger.FromContext(ctx), claims.UserID)
		ctx, _ = logger.WithRole(ctx, reqLog, role)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func (cfg JWTMiddlewareConfig) skips(path string) bool {
	if slices.Contains(cfg.SkipPaths, path) {
		return true
	}
	return slices.ContainsFunc(cfg.SkipPathPrefixes, func(prefix string) bool {
		return strings.HasPrefix(path, prefix)
	})
}

func authenticate(svc *auth.JWTService, header string) (*auth.Claims, identity.Caller, error) {
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || token == "" {
		return nil, identity.Caller{}, auth.ErrInvalidToken
	}
	claims, err := svc.ValidateAccessToken(token)
	if err != nil {
		return nil, identity.Caller{}, err
	}
	caller, err := claims.Caller()
	if err != nil {
		return nil, identity.Caller{}, err
	}
	return claims, caller, nil
}

func authFailureMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		return "Token is not yet valid"
	case errors.Is(err, auth.ErrInvalidRole):
		return "Token carries an unknown role"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidClaims),
		errors.Is(err, auth.ErrMissingUserID):
		return "Invalid token"
	default:
		return "Authentication required"
	}
}

// abortWithError ends the request with the standard error envelope.
func abortWithError(c *gin.Context, status int, code, message string) {
	SetErrorCode(c, code)
	c.AbortWithStatusJSON(status, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}

// GetJWTClaims returns the verified claims, or nil.
func GetJWTClaims(c *gin.Context) *auth.Claims {
	claims, _ := c.Value(JWTClaimsKey).(*auth.Claims)
	return claims
}

// GetCaller returns the authenticated caller.
func GetCaller(c *gin.Context) (identity.Caller, bool) {
	caller, ok := c.Value(JWTCallerKey).(identity.Caller)
	return caller, ok
}

// GetJWTUserID returns the subject of the verified token.
func GetJWTUserID(c *gin.Context) string {
	return c.GetString(JWTUserIDKey)
}
