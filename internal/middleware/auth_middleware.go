package middleware

import (
	"net/http"
	"strings"
	"time"

	"cartlift/internal/rest"
	"cartlift/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// AuthMiddleware guards the job trigger endpoints with a JWT bearer
// token issued to the scheduler.
func AuthMiddleware(secretKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, rest.ResponseError{Message: "missing authorization header"})
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return c.JSON(http.StatusUnauthorized, rest.ResponseError{Message: "invalid authorization format"})
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenParts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secretKey), nil
			})
			if err != nil || !token.Valid {
				return c.JSON(http.StatusUnauthorized, rest.ResponseError{Message: "invalid token"})
			}

			expAt, err := claims.GetExpirationTime()
			if err != nil || expAt == nil {
				return c.JSON(http.StatusForbidden, rest.ResponseError{Message: "status forbidden"})
			}
			if time.Now().After(expAt.Time) {
				return c.JSON(http.StatusForbidden, rest.ResponseError{Message: "status forbidden"})
			}

			if sub, err := claims.GetSubject(); err == nil {
				c.Set("caller", sub)
			}

			return next(c)
		}
	}
}

// ErrorHandler is the central echo error handler; anything that escapes
// a handler lands here instead of surfacing a stack trace.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		}
	}

	logger.Error("http_error", "path", c.Request().URL.Path, "code", code, "error", err)

	if err := c.JSON(code, rest.ResponseError{Message: message}); err != nil {
		logger.Error("http_error_response_failed", "error", err)
	}
}
