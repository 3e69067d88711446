package middleware

import (
	"strings"

	"history-calendar-loadtest/internal/auth"
	"history-calendar-loadtest/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ClaimsContextKey holds the validated *auth.Claims when JWTs are enforced.
const ClaimsContextKey = "claims"

// AuthMiddleware guards the calendar routes with a bearer token.
type AuthMiddleware struct {
	authService *auth.AuthService
}

// NewAuthMiddleware validates tokens with authService. A nil authService
// accepts any non-empty bearer token.
func NewAuthMiddleware(authService *auth.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

func (m *AuthMiddleware) BearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := utils.NewResponseHelper(c)

		header := c.GetHeader("Authorization")
		if header == "" {
			resp.Unauthorized("Authorization header required")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			resp.Unauthorized("Invalid authorization header format")
			return
		}

		if m.authService != nil {
			claims, err := m.authService.ValidateToken(strings.TrimSpace(parts[1]))
			if err != nil {
				logrus.WithError(err).Debug("Rejected bearer token")
				resp.Unauthorized("Invalid token")
				return
			}
			c.Set(ClaimsContextKey, claims)
		}

		c.Next()
	}
}
