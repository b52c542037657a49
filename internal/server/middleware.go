package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/coopscan/receipts-api/internal/common"
)

const headerRequestID = "X-Request-ID"

// RequestID tags every request with an id, generating one when the client
// did not send its own.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(headerRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Set("request_id", id)
			c.Response().Header().Set(headerRequestID, id)
			return next(c)
		}
	}
}

// Logging records one line per request.
func Logging(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			logger.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", c.Get("request_id"),
			)
			return err
		}
	}
}

// RequireToken guards dashboard routes with the shared-secret session token.
func RequireToken(auth *AuthManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
			if token == "" || !auth.Valid(token) {
				return c.JSON(http.StatusUnauthorized, errorBody(common.CodeUnauthorized, []string{"a valid access token is required"}))
			}
			return next(c)
		}
	}
}
