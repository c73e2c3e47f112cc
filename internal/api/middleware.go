package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/jumpgpt/internal/auth"
)

const subjectKey = "subject"

// requireClient validates the bearer token and stores its subject in the
// request context.
func requireClient(issuer *auth.Issuer, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			token, found := strings.CutPrefix(authHeader, "Bearer ")
			if !found || token == "" {
				logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "missing_token",
					Message: "JWT token is required in Authorization header",
				})
			}

			claims, err := issuer.ValidateToken(token)
			if err != nil {
				logger.Warn("Request rejected: invalid token", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired JWT token",
				})
			}

			if claims.Role != auth.RoleClient {
				logger.Warn("Request rejected: invalid role", zap.String("role", claims.Role))
				return c.JSON(http.StatusForbidden, ErrorResponse{
					Error:   "invalid_role",
					Message: "Only client tokens are accepted",
				})
			}

			c.Set(subjectKey, claims.Subject)
			return next(c)
		}
	}
}

func subject(c echo.Context) string {
	s, _ := c.Get(subjectKey).(string)
	return s
}
